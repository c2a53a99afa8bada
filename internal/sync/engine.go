package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
)

// Catalog is the narrow interface the engine consumes from the local
// catalog store. Missing records are reported with errors matching
// store.ErrNotFound.
type Catalog interface {
	CreateBoard(ctx context.Context, b *model.Board) error
	UpdateBoard(ctx context.Context, b *model.Board) error
	DeleteBoard(ctx context.Context, id string) error
	ListBoards(ctx context.Context) ([]*model.Board, error)

	CreateCategory(ctx context.Context, c *model.Category) error
	UpdateCategory(ctx context.Context, c *model.Category) error
	DeleteCategory(ctx context.Context, id string) error
	ListCategories(ctx context.Context, boardID string) ([]*model.Category, error)

	CreateBookmark(ctx context.Context, bm *model.Bookmark) error
	UpdateBookmark(ctx context.Context, bm *model.Bookmark) error
	DeleteBookmark(ctx context.Context, id string) error
	GetBookmark(ctx context.Context, id string) (*model.Bookmark, error)
	ListBookmarks(ctx context.Context) ([]*model.Bookmark, error)
}

// MappingStore is the narrow interface the engine consumes from the
// mapping table.
type MappingStore interface {
	PutMapping(ctx context.Context, m *model.Mapping) error
	GetMappingByNativeID(ctx context.Context, nativeID string) (*model.Mapping, error)
	GetMappingsByLocalID(ctx context.Context, localID string) ([]*model.Mapping, error)
	DeleteMappingByNativeID(ctx context.Context, nativeID string) error
	FolderMappingForBoard(ctx context.Context, boardID string) (*model.Mapping, error)
	FolderMappingForCategory(ctx context.Context, categoryID string) (*model.Mapping, error)
	CreateBookmarkWithMapping(ctx context.Context, bm *model.Bookmark, m *model.Mapping) error
}

// Config assembles an Engine's collaborators.
type Config struct {
	Catalog  Catalog
	Mappings MappingStore
	Gateway  nativetree.Gateway

	// Events is the native change event source the inbound engine
	// subscribes to. May be nil when only import or outbound mirroring
	// is needed.
	Events nativetree.EventSource

	Settings model.SyncSettings

	// Logger for engine activity. If nil, a default stderr logger is
	// used.
	Logger *log.Logger
}

// Engine owns all bidirectional sync state: the two reentrancy guard
// sets, the mirror root cache, and the listener registration flag. It is
// constructed once at startup and shared by both directional engines.
type Engine struct {
	catalog  Catalog
	mappings MappingStore
	gateway  nativetree.Gateway
	events   nativetree.EventSource
	settings model.SyncSettings
	logger   *log.Logger

	// pendingNativeOps holds native node ids the outbound engine is
	// currently mutating; the inbound engine drops events for them.
	pendingNativeOps *GuardSet

	// pendingLocalOps holds catalog entity ids the inbound engine is
	// currently mutating; outbound dispatch skips them.
	pendingLocalOps *GuardSet

	// mirrorMu protects mirrorRootID, which both the outbound worker
	// and the inbound drain loop resolve.
	mirrorMu     sync.Mutex
	mirrorRootID string

	initialized bool
	initFlight  *GuardSet

	inbound  *Inbound
	outbound *Outbound

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs an Engine. Call Initialize to ensure the mirror root and
// attach the inbound listeners; call Close to stop background work.
func New(cfg Config) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if cfg.Mappings == nil {
		return nil, fmt.Errorf("mapping store cannot be nil")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		catalog:          cfg.Catalog,
		mappings:         cfg.Mappings,
		gateway:          cfg.Gateway,
		events:           cfg.Events,
		settings:         cfg.Settings,
		logger:           cfg.Logger,
		pendingNativeOps: NewGuardSet(),
		pendingLocalOps:  NewGuardSet(),
		initFlight:       NewGuardSet(),
		ctx:              ctx,
		cancel:           cancel,
	}
	e.inbound = newInbound(e)
	e.outbound = newOutbound(e)
	return e, nil
}

// Settings returns the engine's settings snapshot.
func (e *Engine) Settings() model.SyncSettings {
	return e.settings
}

// Initialize ensures the mirror root exists and attaches the inbound
// engine's listeners. It is idempotent and single-flight: concurrent
// callers share one initialization.
func (e *Engine) Initialize(ctx context.Context) error {
	return e.initFlight.Run("init", func() error {
		if e.initialized {
			return nil
		}

		if e.settings.EnableBidirectional {
			if _, err := e.ensureMirrorRoot(ctx); err != nil {
				return err
			}
		}

		if e.events != nil {
			go e.pumpEvents()
		}
		e.outbound.start()

		e.initialized = true
		e.logger.Printf("sync initialized (bidirectional=%v, mirror root=%q)",
			e.settings.EnableBidirectional, e.settings.MirrorRootName)
		return nil
	})
}

// Close stops the event pump and both queues. Queued tasks are dropped.
func (e *Engine) Close() {
	e.cancel()
	e.outbound.stop()
}

// pumpEvents forwards native change events into the inbound engine until
// the source closes or the engine shuts down.
func (e *Engine) pumpEvents() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-e.events.Events():
			if !ok {
				return
			}
			e.inbound.Handle(ev)
		}
	}
}

// mirrorRoot returns the cached mirror root id without resolving it.
func (e *Engine) mirrorRoot() string {
	e.mirrorMu.Lock()
	defer e.mirrorMu.Unlock()
	return e.mirrorRootID
}

// ensureMirrorRoot resolves and caches the mirror root folder id.
func (e *Engine) ensureMirrorRoot(ctx context.Context) (string, error) {
	e.mirrorMu.Lock()
	defer e.mirrorMu.Unlock()

	if e.mirrorRootID != "" {
		// Verify the cached node still exists; the host may have
		// removed it between calls.
		if _, err := e.gateway.Get(ctx, e.mirrorRootID); err == nil {
			return e.mirrorRootID, nil
		}
		e.mirrorRootID = ""
	}

	id, err := nativetree.EnsureMirrorRoot(ctx, e.gateway, e.settings.MirrorRootName)
	if err != nil {
		return "", err
	}
	e.mirrorRootID = id
	return id, nil
}

// underMirrorRoot reports whether parentID sits at or below the mirror
// root. Nodes there are outbound mirrors of catalog content, never
// source content to import.
func (e *Engine) underMirrorRoot(ctx context.Context, parentID string) bool {
	mirror := e.mirrorRoot()
	if mirror == "" {
		return false
	}
	id := parentID
	for id != "" {
		if id == mirror {
			return true
		}
		node, err := e.gateway.Get(ctx, id)
		if err != nil {
			return false
		}
		id = node.ParentID
	}
	return false
}

// AddBookmark creates a bookmark placed under the named board and
// category, creating either when absent (case-insensitive title match),
// and queues its outbound mirror. An empty board title leaves the
// bookmark uncategorized.
func (e *Engine) AddBookmark(ctx context.Context, bm *model.Bookmark, boardTitle, categoryTitle string) error {
	_, categoryID, err := e.ensurePlacement(ctx, Placement{
		BoardTitle:    boardTitle,
		CategoryTitle: categoryTitle,
	})
	if err != nil {
		return err
	}
	bm.CategoryID = categoryID
	return e.CreateBookmark(ctx, bm)
}

// Flush blocks until the outbound queue has drained, for one-shot
// callers that exit right after a mutation. Retries scheduled after a
// failed native write are not waited for.
func (e *Engine) Flush(ctx context.Context) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if e.outbound.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CreateBookmark creates a catalog bookmark and queues its outbound
// mirror.
func (e *Engine) CreateBookmark(ctx context.Context, bm *model.Bookmark) error {
	if err := e.catalog.CreateBookmark(ctx, bm); err != nil {
		return err
	}
	e.dispatchOutbound(ctx, TaskCreate, bm)
	return nil
}

// UpdateBookmark updates a catalog bookmark and queues the native update.
func (e *Engine) UpdateBookmark(ctx context.Context, bm *model.Bookmark) error {
	if err := e.catalog.UpdateBookmark(ctx, bm); err != nil {
		return err
	}
	e.dispatchOutbound(ctx, TaskUpdate, bm)
	return nil
}

// DeleteBookmark deletes a catalog bookmark and queues the native-side
// cleanup. When bidirectional sync is off, the mapping records are still
// severed so a re-enable does not resurrect stale correlations.
func (e *Engine) DeleteBookmark(ctx context.Context, id string) error {
	bm, err := e.catalog.GetBookmark(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if err := e.catalog.DeleteBookmark(ctx, id); err != nil {
		return err
	}

	if !e.settings.EnableBidirectional {
		return e.severMappings(ctx, id)
	}
	e.dispatchOutbound(ctx, TaskDelete, bm)
	return nil
}

// severMappings deletes every mapping pointing at the local id.
func (e *Engine) severMappings(ctx context.Context, localID string) error {
	mappings, err := e.mappings.GetMappingsByLocalID(ctx, localID)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if err := e.mappings.DeleteMappingByNativeID(ctx, m.NativeID); err != nil {
			return err
		}
	}
	return nil
}

// dispatchOutbound queues an outbound task unless the mutation is
// inbound-caused (the local id is guarded) or sync is disabled.
func (e *Engine) dispatchOutbound(ctx context.Context, kind TaskKind, bm *model.Bookmark) {
	if !e.settings.EnableBidirectional {
		return
	}
	if e.pendingLocalOps.Has(bm.ID) {
		e.logger.Printf("skipping outbound %s for %s: inbound-caused", kind, bm.ID)
		return
	}
	e.outbound.Dispatch(e.buildOutboundTask(ctx, kind, bm))
}

// buildOutboundTask snapshots the bookmark with its resolved category and
// board context so the outbound worker does not depend on catalog state
// that may have changed by the time the task runs.
func (e *Engine) buildOutboundTask(ctx context.Context, kind TaskKind, bm *model.Bookmark) OutboundTask {
	task := OutboundTask{
		Kind:     kind,
		Bookmark: bm,
	}
	if bm.CategoryID == "" {
		return task
	}

	boards, err := e.catalog.ListBoards(ctx)
	if err != nil {
		e.logger.Printf("failed to resolve board context for %s: %v", bm.ID, err)
		return task
	}
	for _, b := range boards {
		cats, err := e.catalog.ListCategories(ctx, b.ID)
		if err != nil {
			continue
		}
		for _, c := range cats {
			if c.ID == bm.CategoryID {
				task.Category = c
				task.Board = b
				return task
			}
		}
	}
	return task
}

// ensurePlacement resolves a Placement into catalog ids, reusing existing
// boards and categories by case-insensitive title and creating them when
// absent.
func (e *Engine) ensurePlacement(ctx context.Context, p Placement) (boardID, categoryID string, err error) {
	if p.BoardTitle == "" {
		return "", "", nil
	}

	boards, err := e.catalog.ListBoards(ctx)
	if err != nil {
		return "", "", err
	}
	for _, b := range boards {
		if strings.EqualFold(b.Title, p.BoardTitle) {
			boardID = b.ID
			break
		}
	}
	if boardID == "" {
		board := &model.Board{Title: p.BoardTitle}
		if err := e.catalog.CreateBoard(ctx, board); err != nil {
			return "", "", err
		}
		boardID = board.ID
	}

	if p.CategoryTitle == "" {
		return boardID, "", nil
	}

	cats, err := e.catalog.ListCategories(ctx, boardID)
	if err != nil {
		return "", "", err
	}
	for _, c := range cats {
		if strings.EqualFold(c.Title, p.CategoryTitle) {
			return boardID, c.ID, nil
		}
	}
	cat := &model.Category{BoardID: boardID, Title: p.CategoryTitle}
	if err := e.catalog.CreateCategory(ctx, cat); err != nil {
		return "", "", err
	}
	return boardID, cat.ID, nil
}

// folderChain walks parent links from folderID up to the tree root and
// returns the folder titles below the root, outermost first. The second
// return is the chain length, which is the folder's depth.
func (e *Engine) folderChain(ctx context.Context, folderID string) ([]string, int, error) {
	var reversed []string
	id := folderID
	for id != "" {
		node, err := e.gateway.Get(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if node.ParentID == "" {
			// Tree root reached; its title is not part of the chain.
			break
		}
		reversed = append(reversed, node.Title)
		id = node.ParentID
	}

	chain := make([]string, len(reversed))
	for i, title := range reversed {
		chain[len(reversed)-1-i] = title
	}
	return chain, len(chain), nil
}

// resolveNodePlacement computes the catalog placement for a native node
// from its parent folder chain, honoring the folder hierarchy setting.
func (e *Engine) resolveNodePlacement(ctx context.Context, parentID string) (Placement, error) {
	if !e.settings.ImportFolderHierarchy {
		return Placement{BoardTitle: defaultBoardTitle}, nil
	}
	chain, depth, err := e.folderChain(ctx, parentID)
	if err != nil {
		return Placement{}, err
	}
	return ResolvePlacement(depth, chain), nil
}

// defaultBoardTitle is where everything lands when folder hierarchy
// import is disabled.
const defaultBoardTitle = "Imported"

// nowFunc is swapped in tests that exercise time-dependent queue
// behavior.
var nowFunc = time.Now
