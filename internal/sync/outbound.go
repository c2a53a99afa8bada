package sync

import (
	"context"
	"sync"
	"time"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
)

const (
	// outboundBatchSize and outboundBatchPause pace native API writes
	// so a bulk local operation (import, batch edit) cannot flood the
	// host.
	outboundBatchSize  = 50
	outboundBatchPause = 75 * time.Millisecond
)

// TaskKind is the kind of outbound mirroring task.
type TaskKind string

const (
	TaskCreate TaskKind = "create"
	TaskUpdate TaskKind = "update"
	TaskDelete TaskKind = "delete"
)

// OutboundTask carries a local bookmark plus its resolved category and
// board context, snapshotted at dispatch time.
type OutboundTask struct {
	Kind     TaskKind
	Bookmark *model.Bookmark
	Category *model.Category
	Board    *model.Board

	attempts   int
	enqueuedAt time.Time
}

// Outbound replays catalog mutations onto the native tree.
//
// Tasks are processed in enqueue order in fixed-size batches separated
// by a pause. Failed tasks are retried with the same bounded-lifetime
// backoff policy the inbound engine uses.
type Outbound struct {
	engine *Engine

	mu    sync.Mutex
	queue []*OutboundTask
	busy  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

func newOutbound(e *Engine) *Outbound {
	return &Outbound{
		engine: e,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// start launches the batch worker.
func (out *Outbound) start() {
	out.wg.Add(1)
	go out.worker()
}

// stop terminates the worker, dropping queued tasks.
func (out *Outbound) stop() {
	select {
	case <-out.done:
	default:
		close(out.done)
	}
	out.wg.Wait()
}

// Dispatch queues a task. A task dispatched while bidirectional sync is
// disabled is a no-op.
func (out *Outbound) Dispatch(task OutboundTask) {
	if !out.engine.settings.EnableBidirectional {
		return
	}
	task.enqueuedAt = nowFunc()
	out.enqueue(&task)
}

// QueueLen returns the number of queued tasks.
func (out *Outbound) QueueLen() int {
	out.mu.Lock()
	defer out.mu.Unlock()
	return len(out.queue)
}

func (out *Outbound) enqueue(task *OutboundTask) {
	out.mu.Lock()
	out.queue = append(out.queue, task)
	out.mu.Unlock()

	select {
	case out.wake <- struct{}{}:
	default:
	}
}

// worker drains the queue one batch at a time with a pause between
// batches.
func (out *Outbound) worker() {
	defer out.wg.Done()
	e := out.engine

	for {
		select {
		case <-out.done:
			return
		case <-out.wake:
		}

		for {
			batch := out.takeBatch()
			if len(batch) == 0 {
				break
			}
			for _, task := range batch {
				select {
				case <-out.done:
					return
				default:
				}
				out.process(e.ctx, task)
			}

			select {
			case <-out.done:
				return
			case <-time.After(outboundBatchPause):
			}
		}
	}
}

// takeBatch removes up to outboundBatchSize tasks from the queue head.
func (out *Outbound) takeBatch() []*OutboundTask {
	out.mu.Lock()
	defer out.mu.Unlock()
	n := len(out.queue)
	if n > outboundBatchSize {
		n = outboundBatchSize
	}
	batch := out.queue[:n]
	out.queue = out.queue[n:]
	out.busy = n > 0
	return batch
}

// idle reports whether no tasks are queued or in flight.
func (out *Outbound) idle() bool {
	out.mu.Lock()
	defer out.mu.Unlock()
	return len(out.queue) == 0 && !out.busy
}

// process runs one task, retrying transient failures with backoff until
// the task's lifetime budget runs out.
func (out *Outbound) process(ctx context.Context, task *OutboundTask) {
	e := out.engine

	if nowFunc().Sub(task.enqueuedAt) > taskLifetime {
		e.logger.Printf("WARNING: abandoning stale outbound %s for %s (%d attempts)",
			task.Kind, task.Bookmark.ID, task.attempts)
		return
	}

	var err error
	switch task.Kind {
	case TaskCreate:
		err = out.processCreate(ctx, task)
	case TaskUpdate:
		err = out.processUpdate(ctx, task)
	case TaskDelete:
		err = out.processDelete(ctx, task)
	default:
		e.logger.Printf("ignoring unknown outbound task kind %q", task.Kind)
		return
	}
	if err == nil {
		return
	}
	if !isRetryable(err) {
		e.logger.Printf("dropping outbound %s for %s: %v", task.Kind, task.Bookmark.ID, err)
		return
	}

	task.attempts++
	delay := backoff(task.attempts)
	e.logger.Printf("retrying outbound %s for %s in %s (attempt %d): %v",
		task.Kind, task.Bookmark.ID, delay, task.attempts, err)
	time.AfterFunc(delay, func() {
		select {
		case <-out.done:
		default:
			out.enqueue(task)
		}
	})
}

// ensureFolder returns the native folder id for the task's board and
// category context, creating mirrored folders on demand. Each ensure
// step checks the mapping store for an existing folder mapping before
// creating a new native folder.
func (out *Outbound) ensureFolder(ctx context.Context, board *model.Board, category *model.Category) (string, error) {
	e := out.engine

	rootID, err := e.ensureMirrorRoot(ctx)
	if err != nil {
		return "", err
	}
	if board == nil {
		return rootID, nil
	}

	boardFolderID, err := out.ensureMappedFolder(ctx, rootID, board.Title, &model.Mapping{
		NodeType: model.NodeTypeFolder,
		BoardID:  board.ID,
	}, func() (*model.Mapping, error) {
		return e.mappings.FolderMappingForBoard(ctx, board.ID)
	})
	if err != nil {
		return "", err
	}
	if category == nil {
		return boardFolderID, nil
	}

	return out.ensureMappedFolder(ctx, boardFolderID, category.Title, &model.Mapping{
		NodeType:   model.NodeTypeFolder,
		BoardID:    board.ID,
		CategoryID: category.ID,
	}, func() (*model.Mapping, error) {
		return e.mappings.FolderMappingForCategory(ctx, category.ID)
	})
}

// ensureMappedFolder reuses the mapped native folder when it still
// exists, otherwise creates one under parentID and records the mapping.
func (out *Outbound) ensureMappedFolder(ctx context.Context, parentID, title string, template *model.Mapping, lookup func() (*model.Mapping, error)) (string, error) {
	e := out.engine

	if m, err := lookup(); err == nil {
		if _, err := e.gateway.Get(ctx, m.NativeID); err == nil {
			return m.NativeID, nil
		}
		// Mapped folder vanished on the native side; recreate below.
		_ = e.mappings.DeleteMappingByNativeID(ctx, m.NativeID)
	}

	node, err := e.gateway.Create(ctx, parentID, title, "")
	if err != nil {
		return "", err
	}

	template.NativeID = node.ID
	template.LastSyncAt = nowFunc().UTC()
	err = e.pendingNativeOps.Run(node.ID, func() error {
		return e.mappings.PutMapping(ctx, template)
	})
	if err != nil {
		return "", err
	}
	return node.ID, nil
}

// processCreate mirrors a new local bookmark into the native tree.
func (out *Outbound) processCreate(ctx context.Context, task *OutboundTask) error {
	e := out.engine
	bm := task.Bookmark

	parentID, err := out.ensureFolder(ctx, task.Board, task.Category)
	if err != nil {
		return err
	}

	node, err := e.gateway.Create(ctx, parentID, bm.Title, bm.URL)
	if err != nil {
		return err
	}

	// Guard the new native id while the mapping is written so the
	// created event the host fires for our own write is suppressed on
	// its return trip.
	m := &model.Mapping{
		NativeID:   node.ID,
		LocalID:    bm.ID,
		NodeType:   model.NodeTypeBookmark,
		LastSyncAt: nowFunc().UTC(),
	}
	if task.Board != nil {
		m.BoardID = task.Board.ID
	}
	if task.Category != nil {
		m.CategoryID = task.Category.ID
	}
	return e.pendingNativeOps.Run(node.ID, func() error {
		return e.mappings.PutMapping(ctx, m)
	})
}

// processUpdate pushes a local edit to the mirrored native node, moving
// it first when its board/category placement changed. A missing mapping
// falls back to create.
func (out *Outbound) processUpdate(ctx context.Context, task *OutboundTask) error {
	e := out.engine
	bm := task.Bookmark

	mappings, err := e.mappings.GetMappingsByLocalID(ctx, bm.ID)
	if err != nil {
		return err
	}
	var mapping *model.Mapping
	for _, cand := range mappings {
		if cand.NodeType == model.NodeTypeBookmark {
			mapping = cand
			break
		}
	}
	if mapping == nil {
		return out.processCreate(ctx, task)
	}

	wantBoard, wantCategory := "", ""
	if task.Board != nil {
		wantBoard = task.Board.ID
	}
	if task.Category != nil {
		wantCategory = task.Category.ID
	}

	if mapping.BoardID != wantBoard || mapping.CategoryID != wantCategory {
		folderID, err := out.ensureFolder(ctx, task.Board, task.Category)
		if err != nil {
			return err
		}
		if err := e.pendingNativeOps.Run(mapping.NativeID, func() error {
			return e.gateway.Move(ctx, mapping.NativeID, folderID)
		}); err != nil {
			return err
		}
		mapping.BoardID = wantBoard
		mapping.CategoryID = wantCategory
	}

	if err := e.pendingNativeOps.Run(mapping.NativeID, func() error {
		return e.gateway.Update(ctx, mapping.NativeID, nativetree.NodeFields{
			Title: &bm.Title,
			URL:   &bm.URL,
		})
	}); err != nil {
		return err
	}

	mapping.LastSyncAt = nowFunc().UTC()
	return e.mappings.PutMapping(ctx, mapping)
}

// processDelete removes or archives the mirrored native node. The
// mapping record is always deleted: an archive policy retains the node
// but severs the correlation.
func (out *Outbound) processDelete(ctx context.Context, task *OutboundTask) error {
	e := out.engine

	mappings, err := e.mappings.GetMappingsByLocalID(ctx, task.Bookmark.ID)
	if err != nil {
		return err
	}

	for _, m := range mappings {
		if e.settings.DeleteBehavior == model.DeleteBehaviorDelete {
			err := e.pendingNativeOps.Run(m.NativeID, func() error {
				removeErr := e.gateway.Remove(ctx, m.NativeID)
				if removeErr != nil && isNotFound(removeErr) {
					return nil
				}
				return removeErr
			})
			if err != nil {
				return err
			}
		}
		if err := e.mappings.DeleteMappingByNativeID(ctx, m.NativeID); err != nil {
			return err
		}
	}
	return nil
}
