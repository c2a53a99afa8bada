package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/urlnorm"
)

const (
	// taskLifetime bounds how long a queued task may wait before it is
	// abandoned. Tasks older than this are dropped on dequeue without
	// executing.
	taskLifetime = 5 * time.Minute

	// retryBaseDelay and retryMaxDelay shape the exponential backoff
	// for failed tasks: 200ms × 2^attempt, capped at 5s.
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// inboundTask is one queued native change event with its retry state.
type inboundTask struct {
	event      nativetree.Event
	attempts   int
	enqueuedAt time.Time
}

// Inbound replays native tree change events onto the catalog.
//
// Events move through: received → guarded (dropped if self-caused) →
// queued → retry loop → applied or abandoned. The queue drains
// sequentially in enqueue order; failed tasks are re-appended to the
// tail after backoff, so a later unrelated event may be processed before
// a retried earlier one. That reordering under failure is accepted.
type Inbound struct {
	engine *Engine

	mu         sync.Mutex
	queue      []*inboundTask
	processing bool
}

func newInbound(e *Engine) *Inbound {
	return &Inbound{engine: e}
}

// Handle receives one native change event. Self-caused events (the
// native id is registered in pendingNativeOps by an in-flight outbound
// write) are dropped here, before queueing.
func (in *Inbound) Handle(ev nativetree.Event) {
	e := in.engine
	if !e.settings.EnableBidirectional {
		return
	}
	if e.pendingNativeOps.Has(ev.NativeID) {
		e.logger.Printf("suppressed self-caused %s event for native node %s", ev.Kind, ev.NativeID)
		return
	}

	in.enqueue(&inboundTask{event: ev, enqueuedAt: nowFunc()})
}

// QueueLen returns the number of queued tasks.
func (in *Inbound) QueueLen() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queue)
}

// enqueue appends a task and starts the drain loop if one is not
// already running.
func (in *Inbound) enqueue(task *inboundTask) {
	in.mu.Lock()
	in.queue = append(in.queue, task)
	start := !in.processing
	if start {
		in.processing = true
	}
	in.mu.Unlock()

	if start {
		go in.drain()
	}
}

// drain processes the queue sequentially until it is empty. Only one
// drain loop runs at a time.
func (in *Inbound) drain() {
	e := in.engine
	for {
		if e.ctx.Err() != nil {
			in.mu.Lock()
			in.queue = nil
			in.processing = false
			in.mu.Unlock()
			return
		}

		in.mu.Lock()
		if len(in.queue) == 0 {
			in.processing = false
			in.mu.Unlock()
			return
		}
		task := in.queue[0]
		in.queue = in.queue[1:]
		in.mu.Unlock()

		if nowFunc().Sub(task.enqueuedAt) > taskLifetime {
			e.logger.Printf("WARNING: abandoning stale %s event for %s (queued %s ago, %d attempts)",
				task.event.Kind, task.event.NativeID,
				nowFunc().Sub(task.enqueuedAt).Round(time.Second), task.attempts)
			continue
		}

		if err := in.apply(e.ctx, task.event); err != nil {
			if !isRetryable(err) {
				e.logger.Printf("dropping %s event for %s: %v", task.event.Kind, task.event.NativeID, err)
				continue
			}
			task.attempts++
			delay := backoff(task.attempts)
			e.logger.Printf("retrying %s event for %s in %s (attempt %d): %v",
				task.event.Kind, task.event.NativeID, delay, task.attempts, err)
			time.AfterFunc(delay, func() {
				if e.ctx.Err() == nil {
					in.enqueue(task)
				}
			})
		}
	}
}

// backoff returns the retry delay for the given attempt count.
func backoff(attempt int) time.Duration {
	delay := retryBaseDelay << (attempt - 1)
	if delay > retryMaxDelay || delay <= 0 {
		return retryMaxDelay
	}
	return delay
}

// apply dispatches one event to its handler. Handlers never panic
// upward into the event source; every failure is converted to the retry
// decision in drain.
func (in *Inbound) apply(ctx context.Context, ev nativetree.Event) error {
	switch ev.Kind {
	case nativetree.EventCreated:
		return in.handleCreated(ctx, ev)
	case nativetree.EventChanged:
		return in.handleChanged(ctx, ev)
	case nativetree.EventRemoved:
		return in.handleRemoved(ctx, ev)
	case nativetree.EventMoved:
		return in.handleMoved(ctx, ev)
	default:
		in.engine.logger.Printf("ignoring unknown event kind %q", ev.Kind)
		return nil
	}
}

// handleCreated mirrors a newly created native node into the catalog.
func (in *Inbound) handleCreated(ctx context.Context, ev nativetree.Event) error {
	e := in.engine

	// The mirror root and everything under it are the outbound engine's
	// own output, never catalog content.
	if ev.NativeID == e.mirrorRoot() || e.underMirrorRoot(ctx, ev.ParentID) {
		return nil
	}

	// A mapping means the node is already known, typically because the
	// outbound engine created it and the event outran the guard window.
	_, err := e.mappings.GetMappingByNativeID(ctx, ev.NativeID)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	if ev.IsFolder {
		return in.createdFolder(ctx, ev)
	}
	return in.createdBookmark(ctx, ev)
}

// createdFolder applies the folder-depth rule to the folder itself and
// records its mapping.
func (in *Inbound) createdFolder(ctx context.Context, ev nativetree.Event) error {
	e := in.engine

	var placement Placement
	if e.settings.ImportFolderHierarchy {
		chain, depth, err := e.folderChain(ctx, ev.ParentID)
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		chain = append(chain, ev.Title)
		placement = ResolvePlacement(depth+1, chain)
	} else {
		placement = Placement{BoardTitle: defaultBoardTitle}
	}

	boardID, categoryID, err := e.ensurePlacement(ctx, placement)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	m := &model.Mapping{
		NativeID:   ev.NativeID,
		NodeType:   model.NodeTypeFolder,
		BoardID:    boardID,
		CategoryID: categoryID,
		LastSyncAt: nowFunc().UTC(),
	}
	if err := e.mappings.PutMapping(ctx, m); err != nil {
		return err
	}
	return nil
}

// createdBookmark reuses a local bookmark with the same canonical URL or
// creates a new one, then records the correlation.
func (in *Inbound) createdBookmark(ctx context.Context, ev nativetree.Event) error {
	e := in.engine

	placement, err := e.resolveNodePlacement(ctx, ev.ParentID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	boardID, categoryID, err := e.ensurePlacement(ctx, placement)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	canonical := urlnorm.Canonical(ev.URL)
	existing, err := e.findBookmarkByCanonicalURL(ctx, canonical)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	m := &model.Mapping{
		NativeID:   ev.NativeID,
		NodeType:   model.NodeTypeBookmark,
		BoardID:    boardID,
		CategoryID: categoryID,
		LastSyncAt: nowFunc().UTC(),
	}

	if existing != nil {
		m.LocalID = existing.ID
		return e.mappings.PutMapping(ctx, m)
	}

	bm := &model.Bookmark{
		URL:        ev.URL,
		Title:      ev.Title,
		CategoryID: categoryID,
	}
	return e.pendingLocalOps.Run(bmGuardKey(bm), func() error {
		return e.mappings.CreateBookmarkWithMapping(ctx, bm, m)
	})
}

// bmGuardKey returns the local guard key for a bookmark that may not
// have an id yet.
func bmGuardKey(bm *model.Bookmark) string {
	if bm.ID != "" {
		return bm.ID
	}
	return "url:" + urlnorm.Canonical(bm.URL)
}

// findBookmarkByCanonicalURL scans the catalog for a bookmark whose
// canonical URL matches.
func (e *Engine) findBookmarkByCanonicalURL(ctx context.Context, canonical string) (*model.Bookmark, error) {
	if canonical == "" {
		return nil, nil
	}
	bms, err := e.catalog.ListBookmarks(ctx)
	if err != nil {
		return nil, err
	}
	for _, bm := range bms {
		if urlnorm.Canonical(bm.URL) == canonical {
			return bm, nil
		}
	}
	return nil, nil
}

// handleChanged resolves a native edit against possible concurrent local
// edits and applies the winner.
func (in *Inbound) handleChanged(ctx context.Context, ev nativetree.Event) error {
	e := in.engine

	m, err := e.mappings.GetMappingByNativeID(ctx, ev.NativeID)
	if err != nil {
		if isNotFound(err) {
			// Node not yet known; nothing to update.
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	if m.NodeType == model.NodeTypeFolder {
		return in.changedFolder(ctx, m, ev)
	}

	local, err := e.catalog.GetBookmark(ctx, m.LocalID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	res := ResolveBookmarkConflict(local, ev.Title, ev.URL, ev.Timestamp, e.settings.ConflictPolicy)
	if res.Title == local.Title && res.URL == local.URL {
		return nil
	}

	return e.pendingNativeOps.Run(ev.NativeID, func() error {
		return e.pendingLocalOps.Run(local.ID, func() error {
			local.Title = res.Title
			local.URL = res.URL
			local.UpdatedAt = res.UpdatedAt
			if err := e.catalog.UpdateBookmark(ctx, local); err != nil {
				return err
			}
			m.LastSyncAt = nowFunc().UTC()
			return e.mappings.PutMapping(ctx, m)
		})
	})
}

// changedFolder renames the board or category a folder mirrors. Only the
// folder that IS the board/category folder renames anything; flattened
// folders merely inherit placement and renaming them must not touch the
// inherited entities.
func (in *Inbound) changedFolder(ctx context.Context, m *model.Mapping, ev nativetree.Event) error {
	e := in.engine

	if m.CategoryID != "" {
		catMapping, err := e.mappings.FolderMappingForCategory(ctx, m.CategoryID)
		if err != nil || catMapping.NativeID != m.NativeID {
			return nil
		}
		cats, err := e.catalog.ListCategories(ctx, m.BoardID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		for _, c := range cats {
			if c.ID == m.CategoryID {
				c.Title = ev.Title
				return e.catalog.UpdateCategory(ctx, c)
			}
		}
		return nil
	}

	if m.BoardID != "" {
		boardMapping, err := e.mappings.FolderMappingForBoard(ctx, m.BoardID)
		if err != nil || boardMapping.NativeID != m.NativeID {
			return nil
		}
		boards, err := e.catalog.ListBoards(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		for _, b := range boards {
			if b.ID == m.BoardID {
				b.Title = ev.Title
				return e.catalog.UpdateBoard(ctx, b)
			}
		}
	}
	return nil
}

// handleRemoved deletes the catalog counterpart and the mapping.
// Deletion is unconditional; no conflict resolution applies.
func (in *Inbound) handleRemoved(ctx context.Context, ev nativetree.Event) error {
	e := in.engine

	m, err := e.mappings.GetMappingByNativeID(ctx, ev.NativeID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	if m.NodeType == model.NodeTypeFolder {
		if err := in.removedFolder(ctx, m); err != nil {
			return err
		}
	} else if m.LocalID != "" {
		err := e.pendingLocalOps.Run(m.LocalID, func() error {
			return e.catalog.DeleteBookmark(ctx, m.LocalID)
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}

	return e.mappings.DeleteMappingByNativeID(ctx, ev.NativeID)
}

// removedFolder deletes the board or category the folder mirrors, using
// the same identity rule as renames.
func (in *Inbound) removedFolder(ctx context.Context, m *model.Mapping) error {
	e := in.engine

	if m.CategoryID != "" {
		catMapping, err := e.mappings.FolderMappingForCategory(ctx, m.CategoryID)
		if err == nil && catMapping.NativeID == m.NativeID {
			if err := e.catalog.DeleteCategory(ctx, m.CategoryID); err != nil {
				return fmt.Errorf("%w: %v", ErrTransient, err)
			}
		}
		return nil
	}
	if m.BoardID != "" {
		boardMapping, err := e.mappings.FolderMappingForBoard(ctx, m.BoardID)
		if err == nil && boardMapping.NativeID == m.NativeID {
			if err := e.catalog.DeleteBoard(ctx, m.BoardID); err != nil {
				return fmt.Errorf("%w: %v", ErrTransient, err)
			}
		}
	}
	return nil
}

// handleMoved re-resolves placement from the node's new parent chain and
// updates both the mapping and, for bookmarks, the local category.
func (in *Inbound) handleMoved(ctx context.Context, ev nativetree.Event) error {
	e := in.engine

	m, err := e.mappings.GetMappingByNativeID(ctx, ev.NativeID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	// A move into the mirror root subtree parks the node with the
	// outbound mirrors; its placement no longer derives from folders.
	if e.underMirrorRoot(ctx, ev.ParentID) {
		return nil
	}

	placement, err := e.resolveNodePlacement(ctx, ev.ParentID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	boardID, categoryID, err := e.ensurePlacement(ctx, placement)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	m.BoardID = boardID
	m.CategoryID = categoryID
	m.LastSyncAt = nowFunc().UTC()
	if err := e.mappings.PutMapping(ctx, m); err != nil {
		return err
	}

	if m.NodeType != model.NodeTypeBookmark || m.LocalID == "" {
		return nil
	}

	local, err := e.catalog.GetBookmark(ctx, m.LocalID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if local.CategoryID == categoryID {
		return nil
	}

	return e.pendingNativeOps.Run(ev.NativeID, func() error {
		return e.pendingLocalOps.Run(local.ID, func() error {
			local.CategoryID = categoryID
			return e.catalog.UpdateBookmark(ctx, local)
		})
	})
}
