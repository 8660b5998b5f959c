package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zenweave/zen/internal/dag"
	"github.com/zenweave/zen/internal/model"
)

func writeTaskFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitForEvent(t *testing.T, events <-chan PlannerEvent, kind PlannerEventKind, timeout time.Duration) PlannerEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestPlannerAddsNewTaskFile(t *testing.T) {
	dir := t.TempDir()
	writeTaskFile(t, dir, "001.code-task.md", "---\nid: task-1\nname: Setup\n---\nfirst task\n")

	specs := []TaskSpec{{ID: "task-1", Name: "Setup", Description: "first task"}}
	wfID := model.NewID()
	graph, _, _ := BuildTaskDAG(wfID, specs)

	planner := NewPlanner(dir, wfID, graph, map[string]model.ID{"task-1": mustLookup(t, graph, "Setup")}, nil)
	if err := planner.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer planner.Stop()

	writeTaskFile(t, dir, "002.code-task.md", "---\nid: task-2\nname: Build\ndependencies:\n  - task-1\n---\nsecond task\n")

	ev := waitForEvent(t, planner.Events(), TasksAdded, 3*time.Second)
	if len(ev.TaskIDs) != 1 {
		t.Fatalf("TaskIDs = %v, want exactly one new task", ev.TaskIDs)
	}
	if graph.TaskCount() != 2 {
		t.Errorf("TaskCount = %d, want 2", graph.TaskCount())
	}
}

func TestPlannerBlocksRemovedPendingTask(t *testing.T) {
	dir := t.TempDir()
	writeTaskFile(t, dir, "001.code-task.md", "---\nid: task-1\nname: Setup\n---\nfirst task\n")
	writeTaskFile(t, dir, "002.code-task.md", "---\nid: task-2\nname: Build\n---\nsecond task\n")

	specs := []TaskSpec{
		{ID: "task-1", Name: "Setup", Description: "first task"},
		{ID: "task-2", Name: "Build", Description: "second task"},
	}
	wfID := model.NewID()
	graph, tasks, _ := BuildTaskDAG(wfID, specs)

	idByRef := map[string]model.ID{"task-1": tasks[0].ID, "task-2": tasks[1].ID}
	for _, tk := range tasks {
		if tk.Name == "Setup" {
			idByRef["task-1"] = tk.ID
		}
		if tk.Name == "Build" {
			idByRef["task-2"] = tk.ID
		}
	}

	planner := NewPlanner(dir, wfID, graph, idByRef, nil)
	if err := planner.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer planner.Stop()

	if err := os.Remove(filepath.Join(dir, "002.code-task.md")); err != nil {
		t.Fatal(err)
	}

	ev := waitForEvent(t, planner.Events(), TasksCancelled, 3*time.Second)
	if len(ev.TaskIDs) != 1 || ev.TaskIDs[0] != idByRef["task-2"] {
		t.Fatalf("TaskIDs = %v, want [%v]", ev.TaskIDs, idByRef["task-2"])
	}

	task, ok := graph.GetTask(idByRef["task-2"])
	if !ok {
		t.Fatal("expected task-2 to still exist in the graph")
	}
	if task.Status != model.TaskBlocked {
		t.Errorf("Status = %s, want blocked", task.Status)
	}
}

func mustLookup(t *testing.T, graph *dag.TaskDAG, name string) model.ID {
	t.Helper()
	for _, id := range graph.TopologicalOrder() {
		tk, ok := graph.GetTask(id)
		if ok && tk.Name == name {
			return tk.ID
		}
	}
	t.Fatalf("no task named %q found", name)
	return model.ID("")
}
