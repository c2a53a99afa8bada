package nativetree

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Gateway backed by a mutable tree. It is used in
// tests and as the working copy behind the FileTree gateway.
//
// All mutations emit an Event, mirroring how browser bookmark APIs fire
// events for the caller's own writes.
type Memory struct {
	mu     sync.Mutex
	nodes  map[string]*Node
	rootID string
	nextID int

	events chan Event
	closed bool
}

// NewMemory creates an empty in-memory tree containing only the root
// node.
func NewMemory() *Memory {
	m := &Memory{
		nodes:  make(map[string]*Node),
		rootID: "root",
		events: make(chan Event, 100),
	}
	m.nodes[m.rootID] = &Node{ID: m.rootID, Title: "root"}
	return m
}

// NewMemoryFromTree creates an in-memory tree seeded from root. Node ids
// are preserved when present and assigned otherwise.
func NewMemoryFromTree(root *Node) *Memory {
	m := NewMemory()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, child := range root.Children {
		m.adopt(child, m.rootID)
	}
	return m
}

// adopt registers a subtree under parentID without emitting events.
// Caller holds the lock.
func (m *Memory) adopt(n *Node, parentID string) {
	if n.ID == "" || n.ID == m.rootID {
		n.ID = m.allocID()
	}
	n.ParentID = parentID
	m.nodes[n.ID] = n
	parent := m.nodes[parentID]
	parent.Children = append(parent.Children, n)
	children := n.Children
	n.Children = nil
	for _, child := range children {
		m.adopt(child, n.ID)
	}
}

// allocID returns a fresh node id. Caller holds the lock.
func (m *Memory) allocID() string {
	for {
		m.nextID++
		id := strconv.Itoa(m.nextID)
		if _, taken := m.nodes[id]; !taken {
			return id
		}
	}
}

// RootID returns the id of the synthetic root node.
func (m *Memory) RootID() string {
	return m.rootID
}

// Events implements EventSource.
func (m *Memory) Events() <-chan Event {
	return m.events
}

// Close stops event delivery and closes the event channel.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
}

// emit delivers an event unless the channel is full or closed. Caller
// holds the lock.
func (m *Memory) emit(ev Event) {
	if m.closed {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case m.events <- ev:
	default:
		// Slow consumer; drop rather than block the mutation path.
	}
}

// GetTree implements Gateway. The returned tree is a deep copy.
func (m *Memory) GetTree(ctx context.Context) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copySubtree(m.nodes[m.rootID]), nil
}

// copySubtree deep-copies a node and its descendants. Caller holds the
// lock.
func (m *Memory) copySubtree(n *Node) *Node {
	cp := *n
	cp.Children = make([]*Node, 0, len(n.Children))
	for _, child := range n.Children {
		cp.Children = append(cp.Children, m.copySubtree(child))
	}
	return &cp
}

// Get implements Gateway.
func (m *Memory) Get(ctx context.Context, nativeID string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[nativeID]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", nativeID, ErrNotFound)
	}
	cp := *n
	cp.Children = nil
	return &cp, nil
}

// Create implements Gateway.
func (m *Memory) Create(ctx context.Context, parentID, title, url string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if parentID == "" {
		parentID = m.rootID
	}
	parent, ok := m.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
	}
	if !parent.IsFolder() {
		return nil, fmt.Errorf("parent %s is not a folder", parentID)
	}
	if parent.ReadOnly {
		return nil, fmt.Errorf("parent %s is read-only", parentID)
	}

	n := &Node{
		ID:       m.allocID(),
		Title:    title,
		URL:      url,
		ParentID: parentID,
	}
	m.nodes[n.ID] = n
	parent.Children = append(parent.Children, n)

	m.emit(Event{
		Kind:     EventCreated,
		NativeID: n.ID,
		Title:    title,
		URL:      url,
		ParentID: parentID,
		IsFolder: n.IsFolder(),
	})

	cp := *n
	cp.Children = nil
	return &cp, nil
}

// Update implements Gateway.
func (m *Memory) Update(ctx context.Context, nativeID string, fields NodeFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[nativeID]
	if !ok {
		return fmt.Errorf("node %s: %w", nativeID, ErrNotFound)
	}
	if fields.Title != nil {
		n.Title = *fields.Title
	}
	if fields.URL != nil {
		n.URL = *fields.URL
	}

	m.emit(Event{
		Kind:     EventChanged,
		NativeID: nativeID,
		Title:    n.Title,
		URL:      n.URL,
	})
	return nil
}

// Move implements Gateway.
func (m *Memory) Move(ctx context.Context, nativeID, newParentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[nativeID]
	if !ok {
		return fmt.Errorf("node %s: %w", nativeID, ErrNotFound)
	}
	newParent, ok := m.nodes[newParentID]
	if !ok {
		return fmt.Errorf("parent %s: %w", newParentID, ErrNotFound)
	}
	if !newParent.IsFolder() {
		return fmt.Errorf("parent %s is not a folder", newParentID)
	}

	// Reject cycles: the new parent must not be inside the moved
	// subtree.
	for p := newParent; p != nil; p = m.nodes[p.ParentID] {
		if p.ID == nativeID {
			return fmt.Errorf("cannot move %s under its own subtree", nativeID)
		}
		if p.ParentID == "" {
			break
		}
	}

	oldParentID := n.ParentID
	m.detach(n)
	n.ParentID = newParentID
	newParent.Children = append(newParent.Children, n)

	m.emit(Event{
		Kind:        EventMoved,
		NativeID:    nativeID,
		ParentID:    newParentID,
		OldParentID: oldParentID,
	})
	return nil
}

// Remove implements Gateway. Removing a folder removes its subtree, with
// one removed event per node, children first.
func (m *Memory) Remove(ctx context.Context, nativeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[nativeID]
	if !ok {
		return fmt.Errorf("node %s: %w", nativeID, ErrNotFound)
	}
	if nativeID == m.rootID {
		return fmt.Errorf("cannot remove the tree root")
	}

	m.detach(n)
	m.removeSubtree(n)
	return nil
}

// detach unlinks n from its parent's child list. Caller holds the lock.
func (m *Memory) detach(n *Node) {
	parent, ok := m.nodes[n.ParentID]
	if !ok {
		return
	}
	for i, child := range parent.Children {
		if child.ID == n.ID {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			break
		}
	}
}

// removeSubtree deletes n and its descendants, emitting removed events
// children first. Caller holds the lock.
func (m *Memory) removeSubtree(n *Node) {
	for _, child := range n.Children {
		m.removeSubtree(child)
	}
	delete(m.nodes, n.ID)
	m.emit(Event{Kind: EventRemoved, NativeID: n.ID})
}
