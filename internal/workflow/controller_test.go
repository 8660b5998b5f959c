package workflow

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/zenweave/zen/internal/agent"
	"github.com/zenweave/zen/internal/model"
	"github.com/zenweave/zen/internal/routing"
	"github.com/zenweave/zen/internal/statestore"
)

// scriptedPhaseAgent plays every role a controller run needs from a
// single shell script: it writes plan.md the first time it's asked to
// do anything in a directory that doesn't have one, writes one task
// file the first time it's asked in a directory that has a plan but no
// task file yet, and otherwise just reports completion — which covers
// the task workers, the merge resolver, and the documentation worker.
type scriptedPhaseAgent struct{}

func (scriptedPhaseAgent) Name() string { return "scripted" }

func (scriptedPhaseAgent) Command(s *agent.Session) []string {
	script := `
if [ ! -f plan.md ]; then
  printf 'plan\n' > plan.md
  echo "task completed successfully"
elif ! ls *.code-task.md >/dev/null 2>&1; then
  printf '%s\n' '---' 'id: t1' 'name: add the thing' '---' 'add the thing' > t1.code-task.md
  echo "task completed successfully"
else
  echo "task completed successfully"
fi
`
	return []string{"sh", "-c", script}
}

func (scriptedPhaseAgent) Env(s *agent.Session) map[string]string { return nil }
func (scriptedPhaseAgent) BuildPrompt(s *agent.Session) string    { return "" }
func (scriptedPhaseAgent) ParseOutput(code int, raw string) (*agent.Result, error) {
	return &agent.Result{ExitCode: code, Success: code == 0}, nil
}
func (scriptedPhaseAgent) Validate() error { return nil }

type fixedSelector struct{}

func (fixedSelector) SelectForPhase(phase string) string { return "be helpful during " + phase }

func initControllerRepo(t *testing.T) string {
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

func TestControllerRunsWorkflowToCompletion(t *testing.T) {
	repo := initControllerRepo(t)
	store, err := statestore.Open(repo)
	if err != nil {
		t.Fatalf("statestore.Open: %v", err)
	}

	cfg := model.Config{
		UpdateDocs:          false,
		MaxParallelAgents:   2,
		StagingBranchPrefix: "zen/staging/",
		WorkerAgent:         "scripted",
		SkillTimeout:        5 * time.Second,
		PollInterval:        20 * time.Millisecond,
		StuckThreshold:      5 * time.Second,
		MaxRetries:          3,
	}

	ctrl := New(repo, filepath.Join(repo, ".zen", "worktrees"), cfg, store, scriptedPhaseAgent{}, routing.NewRouter(nil), fixedSelector{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	wf, err := ctrl.Run(ctx, "add a health check endpoint")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if wf.Status != model.StatusCompleted {
		t.Errorf("wf.Status = %v, want %v (last error: %s)", wf.Status, model.StatusCompleted, wf.LastError)
	}
	if wf.Phase != model.PhaseComplete {
		t.Errorf("wf.Phase = %v, want %v", wf.Phase, model.PhaseComplete)
	}
	if len(wf.Tasks) != 1 {
		t.Fatalf("len(wf.Tasks) = %d, want 1", len(wf.Tasks))
	}

	task, err := store.LoadTask(wf.Tasks[0])
	if err != nil {
		t.Fatalf("LoadTask: %v", err)
	}
	if task.Status != model.TaskCompleted {
		t.Errorf("task.Status = %v, want %v", task.Status, model.TaskCompleted)
	}
}

func TestControllerSkipsDocumentationWhenDisabled(t *testing.T) {
	repo := initControllerRepo(t)
	store, err := statestore.Open(repo)
	if err != nil {
		t.Fatalf("statestore.Open: %v", err)
	}

	cfg := model.Config{
		MaxParallelAgents: 1,
		WorkerAgent:       "scripted",
		SkillTimeout:      5 * time.Second,
		PollInterval:      20 * time.Millisecond,
		StuckThreshold:    5 * time.Second,
		MaxRetries:        3,
	}
	ctrl := New(repo, filepath.Join(repo, ".zen", "worktrees"), cfg, store, scriptedPhaseAgent{}, nil, fixedSelector{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	wf, err := ctrl.Run(ctx, "add a metrics endpoint")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	for _, h := range wf.History {
		if h.Phase == model.PhaseDocumentation {
			t.Error("documentation phase should not appear in history when UpdateDocs is false")
		}
	}
}
