package scheduler

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/zenweave/zen/internal/agent"
	"github.com/zenweave/zen/internal/agentpool"
	"github.com/zenweave/zen/internal/answer"
	"github.com/zenweave/zen/internal/dag"
	"github.com/zenweave/zen/internal/model"
)

// scriptedAgent emits a completion marker the classifier recognizes so
// the scheduler can observe task completion without a real CLI agent
// installed.
type scriptedAgent struct{}

func (scriptedAgent) Name() string { return "scripted" }
func (scriptedAgent) Command(s *agent.Session) []string {
	return []string{"sh", "-c", "echo 'working...'; echo 'Task completed successfully'"}
}
func (scriptedAgent) Env(s *agent.Session) map[string]string { return nil }
func (scriptedAgent) BuildPrompt(s *agent.Session) string    { return "" }
func (scriptedAgent) ParseOutput(code int, raw string) (*agent.Result, error) {
	return &agent.Result{ExitCode: code, Success: code == 0}, nil
}
func (scriptedAgent) Validate() error { return nil }

type noopStore struct{}

func (noopStore) SaveTask(task *model.Task) error { return nil }

func initSchedulerRepo(t *testing.T) string {
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

func TestSchedulerRunsTaskToCompletion(t *testing.T) {
	repo := initSchedulerRepo(t)
	pool := agentpool.New(repo, filepath.Join(repo, ".zen", "worktrees"), 2, nil)
	graph := dag.New()

	wfID := model.NewID()
	task := model.NewTask(wfID, "add health check", "add a /healthz endpoint")
	graph.AddTask(task)

	sched := New(graph, pool, scriptedAgent{}, answer.New("build a service", answer.Heuristic), noopStore{}, Config{
		MaxParallelAgents: 2,
		PollInterval:      20 * time.Millisecond,
		StuckThreshold:    5 * time.Second,
	}, nil)

	var events []Event
	done := make(chan struct{})
	go func() {
		for ev := range sched.Events() {
			events = append(events, ev)
		}
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sched.Run(ctx, func(model.ID) string { return "zen/task/" + task.ID.Short() }, func(*model.Task) string { return "add the endpoint" }); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	<-done

	if task.Status != model.TaskCompleted {
		t.Fatalf("task.Status = %s, want completed", task.Status)
	}
	if !graph.AllComplete() {
		t.Fatal("graph.AllComplete() = false after Run()")
	}

	var sawCompleted bool
	for _, ev := range events {
		if ev.Kind == EventTaskCompleted && ev.TaskID == task.ID {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Errorf("events = %+v, want an EventTaskCompleted for the task", events)
	}
}

func TestSchedulerCascadeBlocksDependents(t *testing.T) {
	repo := initSchedulerRepo(t)
	pool := agentpool.New(repo, filepath.Join(repo, ".zen", "worktrees"), 2, nil)
	graph := dag.New()

	wfID := model.NewID()
	failing := model.NewTask(wfID, "failing task", "this will fail")
	dependent := model.NewTask(wfID, "dependent task", "depends on the failing task")
	graph.AddTask(failing)
	graph.AddTask(dependent)
	if err := graph.AddDependency(failing.ID, dependent.ID, model.SemanticDependency); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	failAgent := agentFunc(func(s *agent.Session) []string {
		return []string{"sh", "-c", "echo 'Error: something broke'"}
	})

	sched := New(graph, pool, failAgent, answer.New("build a service", answer.Heuristic), noopStore{}, Config{
		MaxParallelAgents: 2,
		PollInterval:      20 * time.Millisecond,
		StuckThreshold:    5 * time.Second,
	}, nil)

	go func() {
		for range sched.Events() {
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

err := sched.Run(ctx, func(model.ID) string { return "zen/task/t" }, func(*model.Task) string { return "do it" })
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("Run() error = %v, want ErrStalled", err)
	}

	if failing.Status != model.TaskFailed {
		t.Errorf("failing.Status = %s, want failed", failing.Status)
	}
	if dependent.Status != model.TaskBlocked {
		t.Errorf("dependent.Status = %s, want blocked", dependent.Status)
	}
}

// agentFunc adapts a Command function into a minimal agent.Agent for
// tests that only need to control the worker's shell command.
type agentFunc func(*agent.Session) []string

func (f agentFunc) Name() string                           { return "test-agent" }
func (f agentFunc) Command(s *agent.Session) []string      { return f(s) }
func (f agentFunc) Env(s *agent.Session) map[string]string { return nil }
func (f agentFunc) BuildPrompt(s *agent.Session) string    { return "" }
func (f agentFunc) ParseOutput(code int, raw string) (*agent.Result, error) {
	return &agent.Result{ExitCode: code, Success: code == 0}, nil
}
func (f agentFunc) Validate() error { return nil }
