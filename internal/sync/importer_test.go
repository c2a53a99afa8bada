package sync

import (
	"context"
	"testing"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
)

// importTree builds the canonical test tree:
//
//	root
//	├── Work            (depth 1 → board)
//	│   ├── go.dev      (bookmark directly on the board)
//	│   └── JS          (depth 2 → category)
//	│       ├── mdn     (bookmark in the category)
//	│       └── Deep    (depth 3 → flattened)
//	│           └── esbuild
//	└── news.yc         (top-level bookmark)
func importTree() *nativetree.Node {
	return &nativetree.Node{
		ID:    "root",
		Title: "root",
		Children: []*nativetree.Node{
			{ID: "f-work", Title: "Work", Children: []*nativetree.Node{
				{ID: "b-go", Title: "Go", URL: "https://go.dev"},
				{ID: "f-js", Title: "JS", Children: []*nativetree.Node{
					{ID: "b-mdn", Title: "MDN", URL: "https://developer.mozilla.org"},
					{ID: "f-deep", Title: "Deep", Children: []*nativetree.Node{
						{ID: "b-esbuild", Title: "esbuild", URL: "https://esbuild.github.io"},
					}},
				}},
			}},
			{ID: "b-yc", Title: "HN", URL: "https://news.ycombinator.com"},
		},
	}
}

func TestInitialImportDepthMapping(t *testing.T) {
	env := newTestEnv(t, model.DefaultSyncSettings(), importTree())
	ctx := context.Background()

	stats, err := env.engine.InitialImport(ctx, ImportOptions{})
	if err != nil {
		t.Fatalf("InitialImport failed: %v", err)
	}

	board := env.boardByTitle(t, "Work")
	if board == nil {
		t.Fatal("board Work was not created")
	}
	cat := env.categoryByTitle(t, board.ID, "JS")
	if cat == nil {
		t.Fatal("category JS was not created")
	}
	// Depth 3 creates no category of its own.
	if deep := env.categoryByTitle(t, board.ID, "Deep"); deep != nil {
		t.Error("depth-3 folder Deep became a category")
	}

	mdn := env.bookmarkByURL(t, "https://developer.mozilla.org")
	if mdn == nil || mdn.CategoryID != cat.ID {
		t.Errorf("MDN bookmark = %+v, want category %s", mdn, cat.ID)
	}
	if mdn.Notes != "" {
		t.Errorf("depth-2 bookmark carries a path note: %q", mdn.Notes)
	}

	// The flattened bookmark lands in the nearest category and keeps
	// its original path in the notes.
	esbuild := env.bookmarkByURL(t, "https://esbuild.github.io")
	if esbuild == nil {
		t.Fatal("esbuild bookmark was not created")
	}
	if esbuild.CategoryID != cat.ID {
		t.Errorf("flattened bookmark category = %s, want %s", esbuild.CategoryID, cat.ID)
	}
	if want := "Imported from path: root / Work / JS / Deep"; esbuild.Notes != want {
		t.Errorf("flattened bookmark notes = %q, want %q", esbuild.Notes, want)
	}

	// The folder mapping records the flattened folder's inherited
	// placement.
	m, err := env.store.GetMappingByNativeID(ctx, "f-deep")
	if err != nil {
		t.Fatalf("folder mapping missing: %v", err)
	}
	if m.BoardID != board.ID || m.CategoryID != cat.ID {
		t.Errorf("flattened folder mapping = %+v", m)
	}

	if stats.BoardsCreated != 1 || stats.CategoriesCreated != 1 {
		t.Errorf("stats = %+v, want 1 board and 1 category", stats)
	}
	if stats.BookmarksCreated != 4 || stats.BookmarksReused != 0 {
		t.Errorf("stats = %+v, want 4 bookmarks created", stats)
	}
}

func TestInitialImportIsIdempotent(t *testing.T) {
	env := newTestEnv(t, model.DefaultSyncSettings(), importTree())
	ctx := context.Background()

	if _, err := env.engine.InitialImport(ctx, ImportOptions{}); err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	stats, err := env.engine.InitialImport(ctx, ImportOptions{})
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}

	if stats.BookmarksCreated != 0 {
		t.Errorf("second import created %d bookmarks, want 0", stats.BookmarksCreated)
	}
	if stats.BoardsCreated != 0 || stats.CategoriesCreated != 0 {
		t.Errorf("second import created structure: %+v", stats)
	}

	bms, err := env.store.ListBookmarks(ctx)
	if err != nil {
		t.Fatalf("ListBookmarks failed: %v", err)
	}
	if len(bms) != 4 {
		t.Errorf("bookmarks after two imports = %d, want 4", len(bms))
	}
}

func TestInitialImportDedupsByCanonicalURL(t *testing.T) {
	env := newTestEnv(t, model.DefaultSyncSettings(), &nativetree.Node{
		ID:    "root",
		Title: "root",
		Children: []*nativetree.Node{
			{ID: "b-go", Title: "Go", URL: "https://go.dev/"},
		},
	})
	ctx := context.Background()

	// Same page, different tracking parameters and trailing slash.
	existing := &model.Bookmark{URL: "https://GO.dev?utm_source=newsletter", Title: "Go (old)"}
	if err := env.store.CreateBookmark(ctx, existing); err != nil {
		t.Fatalf("CreateBookmark failed: %v", err)
	}

	stats, err := env.engine.InitialImport(ctx, ImportOptions{})
	if err != nil {
		t.Fatalf("InitialImport failed: %v", err)
	}
	if stats.BookmarksCreated != 0 || stats.BookmarksReused != 1 {
		t.Errorf("stats = %+v, want 1 reused", stats)
	}

	// The mapping points at the pre-existing bookmark.
	m, err := env.store.GetMappingByNativeID(ctx, "b-go")
	if err != nil {
		t.Fatalf("mapping missing: %v", err)
	}
	if m.LocalID != existing.ID {
		t.Errorf("mapping local id = %s, want %s", m.LocalID, existing.ID)
	}
}

func TestInitialImportFlatWhenHierarchyDisabled(t *testing.T) {
	settings := model.DefaultSyncSettings()
	settings.ImportFolderHierarchy = false
	env := newTestEnv(t, settings, importTree())
	ctx := context.Background()

	stats, err := env.engine.InitialImport(ctx, ImportOptions{DefaultBoardTitle: "Inbox"})
	if err != nil {
		t.Fatalf("InitialImport failed: %v", err)
	}

	if stats.BoardsCreated != 1 || stats.CategoriesCreated != 0 {
		t.Errorf("stats = %+v, want only the default board", stats)
	}
	if env.boardByTitle(t, "Inbox") == nil {
		t.Error("default board Inbox was not created")
	}
	if env.boardByTitle(t, "Work") != nil {
		t.Error("folder Work became a board despite disabled hierarchy")
	}

	for _, url := range []string{"https://go.dev", "https://esbuild.github.io"} {
		bm := env.bookmarkByURL(t, url)
		if bm == nil {
			t.Fatalf("bookmark %s missing", url)
		}
		if bm.CategoryID != "" {
			t.Errorf("bookmark %s has category %s, want none", url, bm.CategoryID)
		}
		if bm.Notes != "" {
			t.Errorf("bookmark %s has a path note despite flat import", url)
		}
	}
}

func TestInitialImportSkipsMirrorRootSubtree(t *testing.T) {
	env := newTestEnv(t, model.DefaultSyncSettings(), &nativetree.Node{
		ID:    "root",
		Title: "root",
		Children: []*nativetree.Node{
			{ID: "f-mirror", Title: "Link-o-Saurus", Children: []*nativetree.Node{
				{ID: "b-mirrored", Title: "Mirrored", URL: "https://example.com/mirrored"},
			}},
			{ID: "b-real", Title: "Real", URL: "https://example.com/real"},
		},
	})

	stats, err := env.engine.InitialImport(context.Background(), ImportOptions{})
	if err != nil {
		t.Fatalf("InitialImport failed: %v", err)
	}

	if env.bookmarkByURL(t, "https://example.com/mirrored") != nil {
		t.Error("imported a bookmark from inside the mirror root")
	}
	if env.bookmarkByURL(t, "https://example.com/real") == nil {
		t.Error("bookmark outside the mirror root was not imported")
	}
	if stats.BookmarksCreated != 1 {
		t.Errorf("bookmarks created = %d, want 1", stats.BookmarksCreated)
	}
}
