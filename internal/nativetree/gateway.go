// Package nativetree abstracts the host browser's hierarchical bookmark
// storage behind a single gateway interface.
//
// Two implementations are provided: Memory, an in-process tree used by
// tests and as the backing store for development, and FileTree, a
// JSON-file-backed tree that watches the file for external edits. The
// production transport is the WebSocket bridge (internal/bridge), which
// relays the interface to a connected browser extension.
//
// Every gateway emits an Event for every mutation of the tree, including
// mutations performed through the gateway itself. That matches browser
// behavior: the extension API fires change events for the extension's own
// writes. The sync engine's reentrancy guard is what distinguishes
// self-caused events from external ones.
package nativetree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a referenced node does not exist.
var ErrNotFound = errors.New("native node not found")

// ErrUnavailable is returned when no native tree is reachable in the
// current execution context (for example, no extension is connected to
// the bridge).
var ErrUnavailable = errors.New("native tree unavailable")

// Node is one node of the native bookmark tree. A node with an empty URL
// is a folder.
type Node struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	URL      string  `json:"url,omitempty"`
	ParentID string  `json:"parent_id,omitempty"`
	Children []*Node `json:"children,omitempty"`

	// ReadOnly marks managed folders the host refuses writes to.
	ReadOnly bool `json:"read_only,omitempty"`
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool {
	return n.URL == ""
}

// NodeFields is a partial update for Update. Nil fields are left
// unchanged.
type NodeFields struct {
	Title *string
	URL   *string
}

// EventKind is the kind of native tree change event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventChanged EventKind = "changed"
	EventRemoved EventKind = "removed"
	EventMoved   EventKind = "moved"
)

// Event is a native tree change notification. The payload is partial the
// way browser events are: only the fields relevant to the kind are set.
type Event struct {
	Kind     EventKind
	NativeID string

	// Title and URL carry the node's values for created and changed
	// events.
	Title string
	URL   string

	// ParentID is the node's parent for created events and the new
	// parent for moved events. OldParentID is set for moved events.
	ParentID    string
	OldParentID string

	// IsFolder is set for created events.
	IsFolder bool

	// Timestamp is when the host observed the change. The zero value
	// means the host did not report one.
	Timestamp time.Time
}

// Gateway is the capability interface over a host bookmark tree. It
// performs no business logic; all sync policy lives in the engines.
type Gateway interface {
	// GetTree returns the full tree rooted at the synthetic root node.
	GetTree(ctx context.Context) (*Node, error)

	// Get returns a single node without children populated.
	Get(ctx context.Context, nativeID string) (*Node, error)

	// Create adds a node under parentID. An empty url creates a folder.
	// The created node is returned with its assigned id.
	Create(ctx context.Context, parentID, title, url string) (*Node, error)

	// Update changes the title and/or url of a node.
	Update(ctx context.Context, nativeID string, fields NodeFields) error

	// Move reparents a node.
	Move(ctx context.Context, nativeID, newParentID string) error

	// Remove deletes a node and, for folders, its subtree.
	Remove(ctx context.Context, nativeID string) error
}

// EventSource delivers native tree change events in the order the host
// observed them.
type EventSource interface {
	// Events returns the channel change events are delivered on. The
	// channel is closed when the source shuts down.
	Events() <-chan Event
}

// wellKnownRoots are conventional names of writable top-level folders,
// checked in preference order when picking where to create the mirror
// root.
var wellKnownRoots = []string{
	"bookmarks toolbar",
	"bookmarks bar",
	"toolbar",
	"bookmarks menu",
	"other bookmarks",
	"menu",
}

// EnsureMirrorRoot finds or creates the folder named name that outbound
// sync nests all mirrored nodes under, returning its native id.
//
// An existing folder with that title anywhere in the tree is reused.
// Otherwise the folder is created under the first writable top-level
// folder, preferring conventionally named toolbar/menu folders, falling
// back to the tree root when no writable child exists.
func EnsureMirrorRoot(ctx context.Context, gw Gateway, name string) (string, error) {
	root, err := gw.GetTree(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read native tree: %w", err)
	}

	if id := findFolderByTitle(root, name); id != "" {
		return id, nil
	}

	parentID := pickWritableParent(root)
	node, err := gw.Create(ctx, parentID, name, "")
	if err != nil {
		return "", fmt.Errorf("failed to create mirror root %q: %w", name, err)
	}
	return node.ID, nil
}

// findFolderByTitle walks the tree depth-first for a folder with the
// given title (case-insensitive).
func findFolderByTitle(root *Node, title string) string {
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IsFolder() && n.ID != root.ID && strings.EqualFold(n.Title, title) {
			return n.ID
		}
		stack = append(stack, n.Children...)
	}
	return ""
}

// pickWritableParent chooses the top-level folder the mirror root is
// created under.
func pickWritableParent(root *Node) string {
	// Conventionally named folders first.
	for _, known := range wellKnownRoots {
		for _, child := range root.Children {
			if child.IsFolder() && !child.ReadOnly && strings.EqualFold(child.Title, known) {
				return child.ID
			}
		}
	}
	// Otherwise the first writable folder child.
	for _, child := range root.Children {
		if child.IsFolder() && !child.ReadOnly {
			return child.ID
		}
	}
	return root.ID
}
