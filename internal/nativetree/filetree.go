package nativetree

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileTree is a Gateway backed by a JSON file on disk. It keeps the tree
// in memory, persists every mutation, and watches the file for external
// edits, which are diffed against the in-memory state and emitted as
// change events.
//
// This is the development and headless stand-in for a live browser: an
// external editor touching the file plays the role of the user editing
// bookmarks in the browser UI.
type FileTree struct {
	path    string
	mem     *Memory
	watcher *fsnotify.Watcher
	logger  *log.Logger

	mu        sync.Mutex
	lastSaved [32]byte

	done chan struct{}
	wg   sync.WaitGroup
}

// debounceInterval batches rapid file rewrites (editors often truncate
// then write) before reloading.
const debounceInterval = 100 * time.Millisecond

// OpenFileTree loads (or creates) the tree file at path and starts
// watching it for external edits. If logger is nil, a default stderr
// logger is used.
//
// The caller must call Close when done.
func OpenFileTree(path string, logger *log.Logger) (*FileTree, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[filetree] ", log.LstdFlags)
	}

	root, err := loadTreeFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ft := &FileTree{
		path:    path,
		mem:     NewMemoryFromTree(root),
		watcher: watcher,
		logger:  logger,
		done:    make(chan struct{}),
	}

	// Persist immediately so freshly assigned node ids are stable
	// across restarts.
	if err := ft.save(); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	// Watch the parent directory: editors replace files by rename,
	// which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	ft.wg.Add(1)
	go ft.watchLoop()

	return ft, nil
}

// loadTreeFile reads the JSON tree at path, returning an empty root for
// a missing file.
func loadTreeFile(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Node{ID: "root", Title: "root"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tree file: %w", err)
	}

	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse tree file %s: %w", path, err)
	}
	return &root, nil
}

// RootID returns the id of the tree root.
func (ft *FileTree) RootID() string {
	return ft.mem.RootID()
}

// Events implements EventSource.
func (ft *FileTree) Events() <-chan Event {
	return ft.mem.Events()
}

// Close stops the watcher and event delivery.
func (ft *FileTree) Close() error {
	close(ft.done)
	err := ft.watcher.Close()
	ft.wg.Wait()
	ft.mem.Close()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// save writes the current tree to disk and records its digest so the
// resulting fsnotify event is recognized as self-caused.
func (ft *FileTree) save() error {
	tree, _ := ft.mem.GetTree(context.Background())
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}

	ft.mu.Lock()
	ft.lastSaved = sha256.Sum256(data)
	ft.mu.Unlock()

	if err := os.WriteFile(ft.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write tree file: %w", err)
	}
	return nil
}

// watchLoop debounces fsnotify events for the tree file and reloads on
// external change.
func (ft *FileTree) watchLoop() {
	defer ft.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ft.done:
			return

		case event, ok := <-ft.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(ft.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceInterval)
				timerC = timer.C
			} else {
				timer.Reset(debounceInterval)
			}

		case err, ok := <-ft.watcher.Errors:
			if !ok {
				return
			}
			ft.logger.Printf("watch error: %v", err)

		case <-timerC:
			timer = nil
			timerC = nil
			if err := ft.reload(); err != nil {
				ft.logger.Printf("reload failed: %v", err)
			}
		}
	}
}

// reload reads the file and, if it differs from what this process last
// wrote, diffs it against the in-memory tree and emits change events for
// the delta.
func (ft *FileTree) reload() error {
	data, err := os.ReadFile(ft.path)
	if err != nil {
		return fmt.Errorf("failed to read tree file: %w", err)
	}

	digest := sha256.Sum256(data)
	ft.mu.Lock()
	self := digest == ft.lastSaved
	ft.mu.Unlock()
	if self {
		return nil
	}

	var newRoot Node
	if err := json.Unmarshal(data, &newRoot); err != nil {
		return fmt.Errorf("failed to parse tree file: %w", err)
	}

	ft.applyExternal(&newRoot)
	ft.logger.Printf("external edit applied from %s", ft.path)

	// Re-save so nodes the editor added without ids get them assigned.
	return ft.save()
}

// applyExternal replaces the in-memory tree with newRoot and emits the
// events that describe the difference. Removed events are emitted first
// (children before parents), then creates (parents before children),
// then changes and moves.
func (ft *FileTree) applyExternal(newRoot *Node) {
	mem := ft.mem
	mem.mu.Lock()
	defer mem.mu.Unlock()

	oldNodes := mem.nodes
	oldRootID := mem.rootID

	// Rebuild the index from the new tree, preserving ids.
	newRoot.ID = oldRootID
	mem.nodes = make(map[string]*Node)
	mem.nodes[oldRootID] = newRoot
	children := newRoot.Children
	newRoot.Children = nil
	for _, child := range children {
		mem.adopt(child, oldRootID)
	}

	// Removed nodes: in the old index, absent from the new one.
	var removed []string
	for id := range oldNodes {
		if id == oldRootID {
			continue
		}
		if _, ok := mem.nodes[id]; !ok {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		mem.emit(Event{Kind: EventRemoved, NativeID: id})
	}

	// Walk the new tree top-down for creates, changes, and moves.
	stack := []*Node{mem.nodes[oldRootID]}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		// Push children in reverse so they pop in order.
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
		if n.ID == oldRootID {
			continue
		}

		old, existed := oldNodes[n.ID]
		if !existed {
			mem.emit(Event{
				Kind:     EventCreated,
				NativeID: n.ID,
				Title:    n.Title,
				URL:      n.URL,
				ParentID: n.ParentID,
				IsFolder: n.IsFolder(),
			})
			continue
		}
		if old.Title != n.Title || old.URL != n.URL {
			mem.emit(Event{
				Kind:     EventChanged,
				NativeID: n.ID,
				Title:    n.Title,
				URL:      n.URL,
			})
		}
		if old.ParentID != n.ParentID {
			mem.emit(Event{
				Kind:        EventMoved,
				NativeID:    n.ID,
				ParentID:    n.ParentID,
				OldParentID: old.ParentID,
			})
		}
	}
}

// GetTree implements Gateway.
func (ft *FileTree) GetTree(ctx context.Context) (*Node, error) {
	return ft.mem.GetTree(ctx)
}

// Get implements Gateway.
func (ft *FileTree) Get(ctx context.Context, nativeID string) (*Node, error) {
	return ft.mem.Get(ctx, nativeID)
}

// Create implements Gateway.
func (ft *FileTree) Create(ctx context.Context, parentID, title, url string) (*Node, error) {
	n, err := ft.mem.Create(ctx, parentID, title, url)
	if err != nil {
		return nil, err
	}
	return n, ft.save()
}

// Update implements Gateway.
func (ft *FileTree) Update(ctx context.Context, nativeID string, fields NodeFields) error {
	if err := ft.mem.Update(ctx, nativeID, fields); err != nil {
		return err
	}
	return ft.save()
}

// Move implements Gateway.
func (ft *FileTree) Move(ctx context.Context, nativeID, newParentID string) error {
	if err := ft.mem.Move(ctx, nativeID, newParentID); err != nil {
		return err
	}
	return ft.save()
}

// Remove implements Gateway.
func (ft *FileTree) Remove(ctx context.Context, nativeID string) error {
	if err := ft.mem.Remove(ctx, nativeID); err != nil {
		return err
	}
	return ft.save()
}

// SeedFileTree writes root to path as the initial tree file, assigning
// ids to any nodes missing one. It refuses to overwrite an existing
// file.
func SeedFileTree(path string, root *Node) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("tree file %s already exists", path)
	}
	mem := NewMemoryFromTree(root)
	defer mem.Close()

	tree, err := mem.GetTree(context.Background())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tree: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write tree file: %w", err)
	}
	return nil
}

// seedNode is the YAML shape accepted by LoadSeed. Only structure and
// content are seeded; ids are assigned on load.
type seedNode struct {
	Title    string      `yaml:"title"`
	URL      string      `yaml:"url"`
	Children []*seedNode `yaml:"children"`
}

// LoadSeed reads a YAML seed file describing a bookmark tree and returns
// it as a Node tree ready for NewMemoryFromTree or SeedFileTree.
//
// Example seed:
//
//	title: root
//	children:
//	  - title: Work
//	    children:
//	      - title: Go
//	        url: https://go.dev
func LoadSeed(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedNode
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	var convert func(*seedNode) *Node
	convert = func(sn *seedNode) *Node {
		n := &Node{Title: sn.Title, URL: sn.URL}
		for _, child := range sn.Children {
			n.Children = append(n.Children, convert(child))
		}
		return n
	}
	return convert(&seed), nil
}
