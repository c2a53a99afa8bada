package nativetree

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileTreePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")
	ctx := context.Background()

	ft, err := OpenFileTree(path, nil)
	if err != nil {
		t.Fatalf("OpenFileTree failed: %v", err)
	}
	folder, err := ft.Create(ctx, ft.RootID(), "Work", "")
	if err != nil {
		t.Fatalf("Create folder failed: %v", err)
	}
	bm, err := ft.Create(ctx, folder.ID, "Go", "https://go.dev")
	if err != nil {
		t.Fatalf("Create bookmark failed: %v", err)
	}
	if err := ft.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenFileTree(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	// Node ids survive the restart.
	got, err := reopened.Get(ctx, bm.ID)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.URL != "https://go.dev" || got.ParentID != folder.ID {
		t.Errorf("reloaded node = %+v", got)
	}
}

func TestFileTreeDetectsExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")
	ctx := context.Background()

	ft, err := OpenFileTree(path, nil)
	if err != nil {
		t.Fatalf("OpenFileTree failed: %v", err)
	}
	defer ft.Close()

	bm, err := ft.Create(ctx, ft.RootID(), "Go", "https://go.dev")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	drainEvent(t, ft.Events())

	// Simulate a user editing the file outside the process.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read tree file: %v", err)
	}
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		t.Fatalf("parse tree file: %v", err)
	}
	if len(root.Children) != 1 || root.Children[0].ID != bm.ID {
		t.Fatalf("unexpected persisted tree: %+v", root)
	}
	root.Children[0].Title = "Go homepage"
	edited, err := json.MarshalIndent(&root, "", "  ")
	if err != nil {
		t.Fatalf("marshal edited tree: %v", err)
	}
	if err := os.WriteFile(path, edited, 0644); err != nil {
		t.Fatalf("write edited tree: %v", err)
	}

	ev := drainEvent(t, ft.Events())
	if ev.Kind != EventChanged || ev.NativeID != bm.ID || ev.Title != "Go homepage" {
		t.Errorf("external edit event = %+v", ev)
	}

	got, err := ft.Get(ctx, bm.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "Go homepage" {
		t.Errorf("title after external edit = %q", got.Title)
	}
}

func TestFileTreeDetectsExternalRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")
	ctx := context.Background()

	ft, err := OpenFileTree(path, nil)
	if err != nil {
		t.Fatalf("OpenFileTree failed: %v", err)
	}
	defer ft.Close()

	bm, err := ft.Create(ctx, ft.RootID(), "Go", "https://go.dev")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	drainEvent(t, ft.Events())

	var root Node
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &root); err != nil {
		t.Fatalf("parse tree file: %v", err)
	}
	root.Children = nil
	edited, _ := json.MarshalIndent(&root, "", "  ")
	if err := os.WriteFile(path, edited, 0644); err != nil {
		t.Fatalf("write edited tree: %v", err)
	}

	ev := drainEvent(t, ft.Events())
	if ev.Kind != EventRemoved || ev.NativeID != bm.ID {
		t.Errorf("external remove event = %+v", ev)
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	seed := `title: root
children:
  - title: Work
    children:
      - title: Go
        url: https://go.dev
  - title: News
`
	if err := os.WriteFile(path, []byte(seed), 0644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	root, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed failed: %v", err)
	}
	if len(root.Children) != 2 {
		t.Fatalf("root children = %d, want 2", len(root.Children))
	}
	work := root.Children[0]
	if work.Title != "Work" || !work.IsFolder() {
		t.Errorf("first child = %+v, want Work folder", work)
	}
	if len(work.Children) != 1 || work.Children[0].URL != "https://go.dev" {
		t.Errorf("Work children = %+v", work.Children)
	}
}

func TestSeedFileTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")

	root := &Node{Title: "root", Children: []*Node{
		{Title: "Work", Children: []*Node{
			{Title: "Go", URL: "https://go.dev"},
		}},
	}}
	if err := SeedFileTree(path, root); err != nil {
		t.Fatalf("SeedFileTree failed: %v", err)
	}

	// Seeding twice must not clobber the existing file.
	if err := SeedFileTree(path, root); err == nil {
		t.Error("second SeedFileTree succeeded, want error")
	}

	ft, err := OpenFileTree(path, nil)
	if err != nil {
		t.Fatalf("OpenFileTree failed: %v", err)
	}
	defer ft.Close()

	tree, err := ft.GetTree(context.Background())
	if err != nil {
		t.Fatalf("GetTree failed: %v", err)
	}
	if len(tree.Children) != 1 || tree.Children[0].Title != "Work" {
		t.Errorf("seeded tree = %+v", tree.Children)
	}
}

// Guard against the debounce window missing rapid consecutive writes.
func TestFileTreeDebouncesRapidWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")
	ctx := context.Background()

	ft, err := OpenFileTree(path, nil)
	if err != nil {
		t.Fatalf("OpenFileTree failed: %v", err)
	}
	defer ft.Close()

	bm, err := ft.Create(ctx, ft.RootID(), "Go", "https://go.dev")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	drainEvent(t, ft.Events())

	var root Node
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &root); err != nil {
		t.Fatalf("parse tree file: %v", err)
	}

	// Two rewrites inside one debounce window; only the final content
	// matters.
	for _, title := range []string{"draft", "final"} {
		root.Children[0].Title = title
		edited, _ := json.MarshalIndent(&root, "", "  ")
		if err := os.WriteFile(path, edited, 0644); err != nil {
			t.Fatalf("write edited tree: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ft.Events():
			if ev.Kind == EventChanged && ev.NativeID == bm.ID && ev.Title == "final" {
				return
			}
		case <-deadline:
			t.Fatal("never observed the final title")
		}
	}
}
