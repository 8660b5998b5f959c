package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zenweave/zen/internal/model"
)

func TestParseCodeTaskFileFrontMatter(t *testing.T) {
	content := []byte(`---
id: task-2
name: Add retry logic
dependencies:
  - task-1
---

Wrap the HTTP client with exponential backoff.
`)
	spec, err := ParseCodeTaskFile("002-retry.code-task.md", content)
	if err != nil {
		t.Fatalf("ParseCodeTaskFile: %v", err)
	}
	if spec.ID != "task-2" {
		t.Errorf("ID = %q, want task-2", spec.ID)
	}
	if spec.Name != "Add retry logic" {
		t.Errorf("Name = %q, want %q", spec.Name, "Add retry logic")
	}
	if len(spec.Dependencies) != 1 || spec.Dependencies[0] != "task-1" {
		t.Errorf("Dependencies = %v, want [task-1]", spec.Dependencies)
	}
}

func TestParseCodeTaskFileProseFallback(t *testing.T) {
	content := []byte("# Wire up the cache layer\n\nThis depends on #task-1 and requires task-0 to land first.\n")
	spec, err := ParseCodeTaskFile("003-cache.code-task.md", content)
	if err != nil {
		t.Fatalf("ParseCodeTaskFile: %v", err)
	}
	if spec.ID != "003-cache" {
		t.Errorf("ID = %q, want 003-cache", spec.ID)
	}
	if spec.Name != "Wire up the cache layer" {
		t.Errorf("Name = %q, want %q", spec.Name, "Wire up the cache layer")
	}
	want := map[string]bool{"task-1": true, "task-0": true}
	if len(spec.Dependencies) != 2 {
		t.Fatalf("Dependencies = %v, want 2 entries", spec.Dependencies)
	}
	for _, d := range spec.Dependencies {
		if !want[d] {
			t.Errorf("unexpected dependency %q", d)
		}
	}
}

func TestDiscoverCodeTaskFiles(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "001-setup.code-task.md"),
		filepath.Join(dir, "nested", "002-build.code-task.md"),
		filepath.Join(dir, "readme.md"),
	}
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range paths {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	found, err := DiscoverCodeTaskFiles(dir)
	if err != nil {
		t.Fatalf("DiscoverCodeTaskFiles: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found = %v, want 2 .code-task.md files", found)
	}
}

func TestBuildTaskDAGWiresDependenciesAndWarnsOnUnknown(t *testing.T) {
	specs := []TaskSpec{
		{ID: "task-1", Name: "Setup", Description: "setup"},
		{ID: "task-2", Name: "Build", Description: "build", Dependencies: []string{"task-1"}},
		{ID: "task-3", Name: "Ghost", Description: "references a task that doesn't exist", Dependencies: []string{"task-missing"}},
	}

	wfID := model.NewID()
	graph, tasks, warnings := BuildTaskDAG(wfID, specs)

	if graph.TaskCount() != 3 {
		t.Errorf("TaskCount = %d, want 3", graph.TaskCount())
	}
	if len(tasks) != 3 {
		t.Errorf("len(tasks) = %d, want 3", len(tasks))
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}

	var task1, task2 *model.Task
	for _, tk := range tasks {
		switch tk.Name {
		case "Setup":
			task1 = tk
		case "Build":
			task2 = tk
		}
	}
	if task1 == nil || task2 == nil {
		t.Fatal("expected to find Setup and Build tasks")
	}

	ready := graph.ReadyTasks()
	for _, r := range ready {
		if r.ID == task2.ID {
			t.Error("Build should not be ready before Setup completes")
		}
	}
	if err := graph.CompleteTask(task1.ID); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	ready = graph.ReadyTasks()
	found := false
	for _, r := range ready {
		if r.ID == task2.ID {
			found = true
		}
	}
	if !found {
		t.Error("Build should become ready once Setup completes")
	}
}
