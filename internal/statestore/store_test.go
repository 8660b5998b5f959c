package statestore

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/zenweave/zen/internal/model"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v (%s)", args, err, out)
		}
	}
	run("init")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("zen\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	run("add", "README.md")
	run("commit", "-m", "initial commit")
	return dir
}

func TestSaveAndLoadWorkflow(t *testing.T) {
	dir := initRepo(t)
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	wf := model.NewWorkflow("build user authentication", model.DefaultConfig())
	wf.Start()

	if err := store.SaveWorkflow(wf); err != nil {
		t.Fatalf("SaveWorkflow() error: %v", err)
	}

	loaded, err := store.LoadWorkflow(wf.ID)
	if err != nil {
		t.Fatalf("LoadWorkflow() error: %v", err)
	}
	if loaded.ID != wf.ID || loaded.Prompt != wf.Prompt || loaded.Status != wf.Status {
		t.Fatalf("LoadWorkflow() = %+v, want match for %+v", loaded, wf)
	}
}

func TestSaveWorkflowUpdatesNoteInPlace(t *testing.T) {
	dir := initRepo(t)
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	wf := model.NewWorkflow("build user authentication", model.DefaultConfig())
	if err := store.SaveWorkflow(wf); err != nil {
		t.Fatalf("first SaveWorkflow() error: %v", err)
	}

	wf.AdvancePhase(model.PhaseTaskGeneration)
	if err := store.SaveWorkflow(wf); err != nil {
		t.Fatalf("second SaveWorkflow() error: %v", err)
	}

	loaded, err := store.LoadWorkflow(wf.ID)
	if err != nil {
		t.Fatalf("LoadWorkflow() error: %v", err)
	}
	if loaded.Phase != model.PhaseTaskGeneration {
		t.Errorf("loaded.Phase = %s, want task_generation", loaded.Phase)
	}
}

func TestLoadWorkflowNotFound(t *testing.T) {
	dir := initRepo(t)
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := store.LoadWorkflow(model.NewID()); err != ErrNotFound {
		t.Errorf("LoadWorkflow() on unknown id = %v, want ErrNotFound", err)
	}
}

func TestSaveAndLoadTask(t *testing.T) {
	dir := initRepo(t)
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	task := model.NewTask(model.NewID(), "add login handler", "implement POST /login")
	if err := store.SaveTask(task); err != nil {
		t.Fatalf("SaveTask() error: %v", err)
	}

	loaded, err := store.LoadTask(task.ID)
	if err != nil {
		t.Fatalf("LoadTask() error: %v", err)
	}
	if loaded.Name != task.Name || loaded.Status != task.Status {
		t.Fatalf("LoadTask() = %+v, want match for %+v", loaded, task)
	}
}

func TestListWorkflowIDs(t *testing.T) {
	dir := initRepo(t)
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	wf1 := model.NewWorkflow("first workflow", model.DefaultConfig())
	wf2 := model.NewWorkflow("second workflow", model.DefaultConfig())
	if err := store.SaveWorkflow(wf1); err != nil {
		t.Fatalf("SaveWorkflow(wf1) error: %v", err)
	}
	if err := store.SaveWorkflow(wf2); err != nil {
		t.Fatalf("SaveWorkflow(wf2) error: %v", err)
	}

	ids, err := store.ListWorkflowIDs()
	if err != nil {
		t.Fatalf("ListWorkflowIDs() error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ListWorkflowIDs() = %v, want 2 entries", ids)
	}
}

func TestMigrateFromJSONImportsLegacyState(t *testing.T) {
	dir := initRepo(t)
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	legacyDir := filepath.Join(dir, ".zen", "state")
	if err := os.MkdirAll(filepath.Join(legacyDir, "tasks"), 0o755); err != nil {
		t.Fatalf("mkdir legacy dir: %v", err)
	}

	wf := model.NewWorkflow("legacy workflow", model.DefaultConfig())
	wfRaw, _ := json.Marshal(wf)
	if err := os.WriteFile(filepath.Join(legacyDir, "workflow.json"), wfRaw, 0o644); err != nil {
		t.Fatalf("write legacy workflow.json: %v", err)
	}

	task := model.NewTask(wf.ID, "legacy task", "desc")
	taskRaw, _ := json.Marshal(task)
	if err := os.WriteFile(filepath.Join(legacyDir, "tasks", task.ID.String()+".json"), taskRaw, 0o644); err != nil {
		t.Fatalf("write legacy task json: %v", err)
	}

	if err := store.MigrateFromJSON(legacyDir); err != nil {
		t.Fatalf("MigrateFromJSON() error: %v", err)
	}

	migrated, err := store.IsMigrated()
	if err != nil {
		t.Fatalf("IsMigrated() error: %v", err)
	}
	if !migrated {
		t.Fatal("IsMigrated() = false after MigrateFromJSON")
	}

	loadedWf, err := store.LoadWorkflow(wf.ID)
	if err != nil {
		t.Fatalf("LoadWorkflow() after migration error: %v", err)
	}
	if loadedWf.Prompt != wf.Prompt {
		t.Errorf("migrated workflow prompt = %q, want %q", loadedWf.Prompt, wf.Prompt)
	}

	loadedTask, err := store.LoadTask(task.ID)
	if err != nil {
		t.Fatalf("LoadTask() after migration error: %v", err)
	}
	if loadedTask.Name != task.Name {
		t.Errorf("migrated task name = %q, want %q", loadedTask.Name, task.Name)
	}

	// Running migration again must be a no-op and not error.
	if err := store.MigrateFromJSON(legacyDir); err != nil {
		t.Fatalf("second MigrateFromJSON() error: %v", err)
	}
}
