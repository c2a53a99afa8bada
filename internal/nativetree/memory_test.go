package nativetree

import (
	"context"
	"errors"
	"testing"
	"time"
)

// drainEvent pulls one event with a timeout so a missing emit fails the
// test instead of hanging it.
func drainEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestMemoryCreateEmitsEvent(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	node, err := m.Create(ctx, m.RootID(), "Go", "https://go.dev")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if node.ID == "" {
		t.Error("Create did not assign an id")
	}

	ev := drainEvent(t, m.Events())
	if ev.Kind != EventCreated || ev.NativeID != node.ID {
		t.Errorf("event = %+v, want created for %s", ev, node.ID)
	}
	if ev.IsFolder {
		t.Error("bookmark event marked as folder")
	}
	if ev.URL != "https://go.dev" {
		t.Errorf("event url = %q", ev.URL)
	}
}

func TestMemoryUpdateAndMove(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	folder, err := m.Create(ctx, m.RootID(), "Work", "")
	if err != nil {
		t.Fatalf("Create folder failed: %v", err)
	}
	bm, err := m.Create(ctx, m.RootID(), "Go", "https://go.dev")
	if err != nil {
		t.Fatalf("Create bookmark failed: %v", err)
	}
	drainEvent(t, m.Events())
	drainEvent(t, m.Events())

	title := "Go homepage"
	if err := m.Update(ctx, bm.ID, NodeFields{Title: &title}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	ev := drainEvent(t, m.Events())
	if ev.Kind != EventChanged || ev.Title != "Go homepage" {
		t.Errorf("changed event = %+v", ev)
	}

	if err := m.Move(ctx, bm.ID, folder.ID); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	ev = drainEvent(t, m.Events())
	if ev.Kind != EventMoved || ev.ParentID != folder.ID || ev.OldParentID != m.RootID() {
		t.Errorf("moved event = %+v", ev)
	}

	got, err := m.Get(ctx, bm.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ParentID != folder.ID {
		t.Errorf("parent after move = %s, want %s", got.ParentID, folder.ID)
	}
}

func TestMemoryMoveRejectsCycle(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	outer, _ := m.Create(ctx, m.RootID(), "Outer", "")
	inner, _ := m.Create(ctx, outer.ID, "Inner", "")

	if err := m.Move(ctx, outer.ID, inner.ID); err == nil {
		t.Error("moving a folder into its own subtree succeeded")
	}
}

func TestMemoryRemoveSubtree(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	folder, _ := m.Create(ctx, m.RootID(), "Work", "")
	bm, _ := m.Create(ctx, folder.ID, "Go", "https://go.dev")
	drainEvent(t, m.Events())
	drainEvent(t, m.Events())

	if err := m.Remove(ctx, folder.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	// Children are reported removed before their ancestors.
	first := drainEvent(t, m.Events())
	second := drainEvent(t, m.Events())
	if first.Kind != EventRemoved || first.NativeID != bm.ID {
		t.Errorf("first removed event = %+v, want child %s", first, bm.ID)
	}
	if second.NativeID != folder.ID {
		t.Errorf("second removed event = %+v, want folder %s", second, folder.ID)
	}

	if _, err := m.Get(ctx, bm.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get removed child = %v, want ErrNotFound", err)
	}
}

func TestMemoryGetTreeIsACopy(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	if _, err := m.Create(ctx, m.RootID(), "Go", "https://go.dev"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tree, err := m.GetTree(ctx)
	if err != nil {
		t.Fatalf("GetTree failed: %v", err)
	}
	tree.Children[0].Title = "mutated"

	again, err := m.GetTree(ctx)
	if err != nil {
		t.Fatalf("GetTree failed: %v", err)
	}
	if again.Children[0].Title == "mutated" {
		t.Error("GetTree returned shared node memory")
	}
}

func TestEnsureMirrorRootReusesExisting(t *testing.T) {
	m := NewMemoryFromTree(&Node{
		ID:    "root",
		Title: "root",
		Children: []*Node{
			{Title: "Bookmarks Bar", Children: []*Node{
				{Title: "link-o-saurus"},
			}},
		},
	})
	defer m.Close()

	id, err := EnsureMirrorRoot(context.Background(), m, "Link-o-Saurus")
	if err != nil {
		t.Fatalf("EnsureMirrorRoot failed: %v", err)
	}

	// Reused by case-insensitive title, not re-created.
	node, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if node.Title != "link-o-saurus" {
		t.Errorf("mirror root = %q, want the existing folder", node.Title)
	}
}

func TestEnsureMirrorRootPrefersWellKnownParent(t *testing.T) {
	m := NewMemoryFromTree(&Node{
		ID:    "root",
		Title: "root",
		Children: []*Node{
			{Title: "Managed", ReadOnly: true},
			{Title: "Other Bookmarks"},
			{Title: "Bookmarks Bar"},
		},
	})
	defer m.Close()
	ctx := context.Background()

	id, err := EnsureMirrorRoot(ctx, m, "Link-o-Saurus")
	if err != nil {
		t.Fatalf("EnsureMirrorRoot failed: %v", err)
	}
	node, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	parent, err := m.Get(ctx, node.ParentID)
	if err != nil {
		t.Fatalf("Get parent failed: %v", err)
	}
	if parent.Title != "Bookmarks Bar" {
		t.Errorf("mirror root created under %q, want Bookmarks Bar", parent.Title)
	}
}

func TestEnsureMirrorRootFallsBackToRoot(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	id, err := EnsureMirrorRoot(ctx, m, "Link-o-Saurus")
	if err != nil {
		t.Fatalf("EnsureMirrorRoot failed: %v", err)
	}
	node, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if node.ParentID != m.RootID() {
		t.Errorf("mirror root parent = %s, want tree root", node.ParentID)
	}
}
