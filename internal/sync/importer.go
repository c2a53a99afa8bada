package sync

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/urlnorm"
)

// importYieldEvery is how many processed nodes pass between yields to
// the scheduler, so a huge import cannot starve other goroutines or
// ignore cancellation for long.
const importYieldEvery = 500

// ImportOptions configures InitialImport.
type ImportOptions struct {
	// DefaultBoardTitle is where bookmarks land when folder hierarchy
	// import is disabled. Empty means "Imported".
	DefaultBoardTitle string
}

// ImportStats summarizes one import run.
type ImportStats struct {
	NodesVisited      int
	BoardsCreated     int
	CategoriesCreated int
	BookmarksCreated  int
	BookmarksReused   int
	MappingsWritten   int
	Duration          time.Duration
}

// importFrame is one explicit-stack traversal frame.
type importFrame struct {
	node       *nativetree.Node
	depth      int
	path       []string
	boardID    string
	categoryID string
}

// InitialImport performs the one-time bulk traversal of the native tree
// into the catalog. It runs before the live engines attach listeners.
//
// Folders map onto the catalog by depth: depth 1 creates or reuses a
// Board, depth 2 a Category, and deeper folders keep their ancestors'
// context. Bookmarks are deduplicated by canonical URL; a duplicate gets
// only a mapping pointing at the already-existing local bookmark. The
// traversal uses an explicit stack rather than recursion so arbitrarily
// deep native trees cannot overflow the goroutine stack.
func (e *Engine) InitialImport(ctx context.Context, opts ImportOptions) (*ImportStats, error) {
	start := nowFunc()
	stats := &ImportStats{}

	mirrorID, err := e.ensureMirrorRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure mirror root: %w", err)
	}

	root, err := e.gateway.GetTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read native tree: %w", err)
	}

	imp, err := e.newImportState(ctx, opts, stats)
	if err != nil {
		return nil, err
	}

	stack := []*importFrame{{node: root, depth: 0, path: []string{root.Title}}}
	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stats.NodesVisited++
		if stats.NodesVisited%importYieldEvery == 0 {
			runtime.Gosched()
		}

		node := frame.node
		if node.ID == mirrorID {
			// The mirror root holds outbound-created mirrors; importing
			// it would feed the engine its own output.
			continue
		}

		boardID, categoryID := frame.boardID, frame.categoryID

		if node.IsFolder() {
			if frame.depth > 0 {
				boardID, categoryID, err = imp.placeFolder(ctx, node, frame)
				if err != nil {
					return stats, err
				}
			}
		} else {
			if err := imp.placeBookmark(ctx, node, frame); err != nil {
				return stats, err
			}
			continue
		}

		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, &importFrame{
				node:       node.Children[i],
				depth:      frame.depth + 1,
				path:       append(append([]string{}, frame.path...), node.Children[i].Title),
				boardID:    boardID,
				categoryID: categoryID,
			})
		}
	}

	stats.Duration = nowFunc().Sub(start)
	e.logger.Printf("import complete: %d nodes, %d boards, %d categories, %d bookmarks (%d reused) in %s",
		stats.NodesVisited, stats.BoardsCreated, stats.CategoriesCreated,
		stats.BookmarksCreated, stats.BookmarksReused, stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// importState holds the caches one import run shares across frames.
type importState struct {
	engine *Engine
	opts   ImportOptions
	stats  *ImportStats

	// boardsByTitle and categoriesByKey are case-insensitive caches of
	// existing catalog structure so repeated folder titles reuse
	// entities instead of duplicating them.
	boardsByTitle   map[string]string
	categoriesByKey map[string]string

	// bookmarkByCanonical dedups by canonical URL across pre-existing
	// bookmarks and earlier frames of this same run.
	bookmarkByCanonical map[string]string

	defaultBoardID string
}

// newImportState loads existing boards, categories, and bookmark URLs
// into the run's caches.
func (e *Engine) newImportState(ctx context.Context, opts ImportOptions, stats *ImportStats) (*importState, error) {
	imp := &importState{
		engine:              e,
		opts:                opts,
		stats:               stats,
		boardsByTitle:       make(map[string]string),
		categoriesByKey:     make(map[string]string),
		bookmarkByCanonical: make(map[string]string),
	}

	boards, err := e.catalog.ListBoards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load boards: %w", err)
	}
	for _, b := range boards {
		imp.boardsByTitle[strings.ToLower(b.Title)] = b.ID
		cats, err := e.catalog.ListCategories(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load categories: %w", err)
		}
		for _, c := range cats {
			imp.categoriesByKey[categoryKey(b.ID, c.Title)] = c.ID
		}
	}

	bms, err := e.catalog.ListBookmarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookmarks: %w", err)
	}
	for _, bm := range bms {
		imp.bookmarkByCanonical[urlnorm.Canonical(bm.URL)] = bm.ID
	}

	return imp, nil
}

func categoryKey(boardID, title string) string {
	return boardID + "\x00" + strings.ToLower(title)
}

// ensureBoard returns the id of the board with the given title, creating
// it when absent.
func (imp *importState) ensureBoard(ctx context.Context, title string) (string, error) {
	if id, ok := imp.boardsByTitle[strings.ToLower(title)]; ok {
		return id, nil
	}
	board := &model.Board{Title: title}
	if err := imp.engine.catalog.CreateBoard(ctx, board); err != nil {
		return "", fmt.Errorf("failed to create board %q: %w", title, err)
	}
	imp.boardsByTitle[strings.ToLower(title)] = board.ID
	imp.stats.BoardsCreated++
	return board.ID, nil
}

// ensureCategory returns the id of the category with the given title
// under boardID, creating it when absent.
func (imp *importState) ensureCategory(ctx context.Context, boardID, title string) (string, error) {
	key := categoryKey(boardID, title)
	if id, ok := imp.categoriesByKey[key]; ok {
		return id, nil
	}
	cat := &model.Category{BoardID: boardID, Title: title}
	if err := imp.engine.catalog.CreateCategory(ctx, cat); err != nil {
		return "", fmt.Errorf("failed to create category %q: %w", title, err)
	}
	imp.categoriesByKey[key] = cat.ID
	imp.stats.CategoriesCreated++
	return cat.ID, nil
}

// defaultBoard lazily creates the single board used when hierarchy
// import is disabled.
func (imp *importState) defaultBoard(ctx context.Context) (string, error) {
	if imp.defaultBoardID != "" {
		return imp.defaultBoardID, nil
	}
	title := imp.opts.DefaultBoardTitle
	if title == "" {
		title = defaultBoardTitle
	}
	id, err := imp.ensureBoard(ctx, title)
	if err != nil {
		return "", err
	}
	imp.defaultBoardID = id
	return id, nil
}

// placeFolder maps a folder node onto the catalog per the depth rule and
// writes its folder mapping. It returns the board/category context its
// children inherit.
func (imp *importState) placeFolder(ctx context.Context, node *nativetree.Node, frame *importFrame) (string, string, error) {
	e := imp.engine
	boardID, categoryID := frame.boardID, frame.categoryID

	if !e.settings.ImportFolderHierarchy {
		var err error
		boardID, err = imp.defaultBoard(ctx)
		if err != nil {
			return "", "", err
		}
		categoryID = ""
	} else {
		switch frame.depth {
		case 1:
			var err error
			boardID, err = imp.ensureBoard(ctx, node.Title)
			if err != nil {
				return "", "", err
			}
			categoryID = ""
		case 2:
			if boardID != "" {
				var err error
				categoryID, err = imp.ensureCategory(ctx, boardID, node.Title)
				if err != nil {
					return "", "", err
				}
			}
		default:
			// Deeper folders keep their ancestors' context and create
			// no further structure.
		}
	}

	m := &model.Mapping{
		NativeID:   node.ID,
		NodeType:   model.NodeTypeFolder,
		BoardID:    boardID,
		CategoryID: categoryID,
		LastSyncAt: nowFunc().UTC(),
	}
	if err := e.mappings.PutMapping(ctx, m); err != nil {
		return "", "", err
	}
	imp.stats.MappingsWritten++
	return boardID, categoryID, nil
}

// placeBookmark dedups a bookmark node by canonical URL and creates the
// local bookmark when it is new. The mapping is written either way.
func (imp *importState) placeBookmark(ctx context.Context, node *nativetree.Node, frame *importFrame) error {
	e := imp.engine

	boardID, categoryID := frame.boardID, frame.categoryID
	if !e.settings.ImportFolderHierarchy {
		var err error
		boardID, err = imp.defaultBoard(ctx)
		if err != nil {
			return err
		}
		categoryID = ""
	}

	canonical := urlnorm.Canonical(node.URL)
	m := &model.Mapping{
		NativeID:   node.ID,
		NodeType:   model.NodeTypeBookmark,
		BoardID:    boardID,
		CategoryID: categoryID,
		LastSyncAt: nowFunc().UTC(),
	}

	if existingID, ok := imp.bookmarkByCanonical[canonical]; ok {
		m.LocalID = existingID
		if err := e.mappings.PutMapping(ctx, m); err != nil {
			return err
		}
		imp.stats.MappingsWritten++
		imp.stats.BookmarksReused++
		return nil
	}

	bm := &model.Bookmark{
		URL:        node.URL,
		Title:      node.Title,
		CategoryID: categoryID,
	}
	// The folder path of a deeply nested bookmark is lost by
	// flattening; preserve it in a note. frame.depth here is the
	// bookmark's own depth, so its containing folder sits at depth-1.
	if e.settings.ImportFolderHierarchy && frame.depth-1 > 2 {
		bm.Notes = "Imported from path: " + strings.Join(frame.path[:len(frame.path)-1], " / ")
	}

	if err := e.mappings.CreateBookmarkWithMapping(ctx, bm, m); err != nil {
		return err
	}
	imp.bookmarkByCanonical[canonical] = bm.ID
	imp.stats.MappingsWritten++
	imp.stats.BookmarksCreated++
	return nil
}
