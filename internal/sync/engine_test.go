package sync

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/store"
)

// testEnv wires an Engine to a real sqlite store and an in-memory native
// tree.
type testEnv struct {
	engine *Engine
	store  *store.Store
	tree   *nativetree.Memory
}

func newTestEnv(t *testing.T, settings model.SyncSettings, root *nativetree.Node) *testEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	var mem *nativetree.Memory
	if root != nil {
		mem = nativetree.NewMemoryFromTree(root)
	} else {
		mem = nativetree.NewMemory()
	}
	t.Cleanup(mem.Close)

	engine, err := New(Config{
		Catalog:  st,
		Mappings: st,
		Gateway:  mem,
		Events:   mem,
		Settings: settings,
		Logger:   log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: st, tree: mem}
}

// drainTreeEvents discards buffered native events so later assertions
// start from a quiet channel.
func (env *testEnv) drainTreeEvents() {
	for {
		select {
		case <-env.tree.Events():
		default:
			return
		}
	}
}

func (env *testEnv) boardByTitle(t *testing.T, title string) *model.Board {
	t.Helper()
	boards, err := env.store.ListBoards(context.Background())
	if err != nil {
		t.Fatalf("ListBoards failed: %v", err)
	}
	for _, b := range boards {
		if b.Title == title {
			return b
		}
	}
	return nil
}

func (env *testEnv) categoryByTitle(t *testing.T, boardID, title string) *model.Category {
	t.Helper()
	cats, err := env.store.ListCategories(context.Background(), boardID)
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	for _, c := range cats {
		if c.Title == title {
			return c
		}
	}
	return nil
}

func (env *testEnv) bookmarkByURL(t *testing.T, url string) *model.Bookmark {
	t.Helper()
	bms, err := env.store.ListBookmarks(context.Background())
	if err != nil {
		t.Fatalf("ListBookmarks failed: %v", err)
	}
	for _, bm := range bms {
		if bm.URL == url {
			return bm
		}
	}
	return nil
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	mem := nativetree.NewMemory()
	defer mem.Close()

	if _, err := New(Config{Gateway: mem}); err == nil {
		t.Error("New without catalog succeeded")
	}
	if _, err := New(Config{}); err == nil {
		t.Error("New with nothing succeeded")
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	env := newTestEnv(t, model.DefaultSyncSettings(), nil)
	ctx := context.Background()

	if err := env.engine.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := env.engine.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}

	// Only one mirror root folder exists.
	tree, err := env.tree.GetTree(ctx)
	if err != nil {
		t.Fatalf("GetTree failed: %v", err)
	}
	var count int
	for _, child := range tree.Children {
		if child.Title == "Link-o-Saurus" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("mirror roots = %d, want 1", count)
	}
}

func TestEnsureMirrorRootRecreatesWhenRemoved(t *testing.T) {
	env := newTestEnv(t, model.DefaultSyncSettings(), nil)
	ctx := context.Background()

	first, err := env.engine.ensureMirrorRoot(ctx)
	if err != nil {
		t.Fatalf("ensureMirrorRoot failed: %v", err)
	}
	if err := env.tree.Remove(ctx, first); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	second, err := env.engine.ensureMirrorRoot(ctx)
	if err != nil {
		t.Fatalf("ensureMirrorRoot after removal failed: %v", err)
	}
	if second == first {
		t.Error("stale mirror root id was reused")
	}
	if _, err := env.tree.Get(ctx, second); err != nil {
		t.Errorf("recreated mirror root missing: %v", err)
	}
}

func TestDeleteBookmarkSeversMappingsWhenSyncDisabled(t *testing.T) {
	settings := model.DefaultSyncSettings()
	settings.EnableBidirectional = false
	env := newTestEnv(t, settings, nil)
	ctx := context.Background()

	bm := &model.Bookmark{URL: "https://go.dev", Title: "Go"}
	m := &model.Mapping{NativeID: "n1", NodeType: model.NodeTypeBookmark, BoardID: "b1"}
	if err := env.store.CreateBookmarkWithMapping(ctx, bm, m); err != nil {
		t.Fatalf("CreateBookmarkWithMapping failed: %v", err)
	}

	if err := env.engine.DeleteBookmark(ctx, bm.ID); err != nil {
		t.Fatalf("DeleteBookmark failed: %v", err)
	}

	// The mapping must not survive to correlate a future re-enable.
	if got, _ := env.store.GetMappingsByLocalID(ctx, bm.ID); len(got) != 0 {
		t.Errorf("mappings after disabled delete = %d, want 0", len(got))
	}
}

func TestFolderChainExcludesRoot(t *testing.T) {
	env := newTestEnv(t, model.DefaultSyncSettings(), &nativetree.Node{
		ID:    "root",
		Title: "root",
		Children: []*nativetree.Node{
			{ID: "f1", Title: "Work", Children: []*nativetree.Node{
				{ID: "f2", Title: "JS"},
			}},
		},
	})

	chain, depth, err := env.engine.folderChain(context.Background(), "f2")
	if err != nil {
		t.Fatalf("folderChain failed: %v", err)
	}
	if depth != 2 {
		t.Errorf("depth = %d, want 2", depth)
	}
	if len(chain) != 2 || chain[0] != "Work" || chain[1] != "JS" {
		t.Errorf("chain = %v, want [Work JS]", chain)
	}
}

func TestAddBookmarkMirrorsNamedPlacement(t *testing.T) {
	env := newTestEnv(t, model.DefaultSyncSettings(), nil)
	ctx := context.Background()
	if err := env.engine.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	bm := &model.Bookmark{URL: "https://go.dev", Title: "Go"}
	if err := env.engine.AddBookmark(ctx, bm, "Work", "Go"); err != nil {
		t.Fatalf("AddBookmark failed: %v", err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := env.engine.Flush(flushCtx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	board := env.boardByTitle(t, "Work")
	if board == nil {
		t.Fatal("board Work was not created")
	}
	cat := env.categoryByTitle(t, board.ID, "Go")
	if cat == nil {
		t.Fatal("category Go was not created")
	}
	if bm.CategoryID != cat.ID {
		t.Errorf("bookmark category = %q, want %q", bm.CategoryID, cat.ID)
	}
	if findByURL(t, env.tree, "https://go.dev") == nil {
		t.Error("native mirror was not created")
	}
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
