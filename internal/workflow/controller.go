package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"

	"github.com/zenweave/zen/internal/agent"
	"github.com/zenweave/zen/internal/agentpool"
	"github.com/zenweave/zen/internal/answer"
	"github.com/zenweave/zen/internal/merge"
	"github.com/zenweave/zen/internal/model"
	"github.com/zenweave/zen/internal/routing"
	"github.com/zenweave/zen/internal/scheduler"
)

// SkillSelector is the subset of internal/skills' Selector the
// controller needs, kept narrow so tests can substitute a fixed-prompt
// fake rather than the real embedded skill set.
type SkillSelector interface {
	SelectForPhase(phase string) string
}

// StatePersister is the subset of internal/statestore's Store the
// controller needs; it is also asserted against scheduler.StatePersister
// and the task-loading interface used during merging, so a caller's real
// *statestore.Store (which implements all three) satisfies every use.
type StatePersister interface {
	SaveWorkflow(wf *model.Workflow) error
	SaveTask(task *model.Task) error
	LoadTask(id model.ID) (*model.Task, error)
}

// Controller orchestrates one workflow end to end, driving the
// PhaseController through the five phases, wiring a shared agent pool
// across every skill worker and task worker, and persisting state at
// every transition.
type Controller struct {
	repoDir     string
	worktreeDir string
	cfg         model.Config
	store       StatePersister
	pool        *agentpool.Pool
	agent       agent.Agent
	router      *routing.Router
	selector    SkillSelector
	logger      *log.Logger
}

// New returns a Controller rooted at repoDir, spawning skill and task
// workers through a pool capped at cfg.MaxParallelAgents. Every worker
// runs defaultAgent. For the planning, task-generation and
// documentation phases the model router resolves for that phase is set
// on the worker's session; the router's adapter name is not used, and
// implementation and merging workers are not routed.
func New(repoDir, worktreeDir string, cfg model.Config, store StatePersister, defaultAgent agent.Agent, router *routing.Router, selector SkillSelector, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	if router == nil {
		router = routing.NewRouter(nil)
	}
	return &Controller{
		repoDir:     repoDir,
		worktreeDir: worktreeDir,
		cfg:         cfg,
		store:       store,
		pool:        agentpool.New(repoDir, worktreeDir, cfg.MaxParallelAgents, logger),
		agent:       defaultAgent,
		router:      router,
		selector:    selector,
		logger:      logger,
	}
}

// Run drives prompt through every phase of a fresh workflow, persisting
// the workflow after each transition, and returns the final workflow
// state. A Documentation failure is logged but does not fail the
// workflow, per the spec's explicit carve-out for that phase; every
// other phase's failure aborts the run and marks the workflow Failed.
func (c *Controller) Run(ctx context.Context, prompt string) (*model.Workflow, error) {
	wf := model.NewWorkflow(prompt, c.cfg)
	wf.BaseCommit = c.headCommit()
	wf.Start()
	if err := c.store.SaveWorkflow(wf); err != nil {
		return wf, fmt.Errorf("workflow: save initial state: %w", err)
	}

	phases := NewPhaseController()

	planPath, err := c.runPlanning(ctx, wf, phases, prompt)
	if err != nil {
		return c.failWorkflow(wf, fmt.Sprintf("planning: %v", err))
	}

	specs, err := c.runTaskGeneration(ctx, wf, phases, planPath)
	if err != nil {
		return c.failWorkflow(wf, fmt.Sprintf("task generation: %v", err))
	}

	if err := c.runImplementation(ctx, wf, phases, specs); err != nil {
		return c.failWorkflow(wf, fmt.Sprintf("implementation: %v", err))
	}

	if err := c.runMerging(ctx, wf, phases); err != nil {
		return c.failWorkflow(wf, fmt.Sprintf("merging: %v", err))
	}

	if wf.Phase == model.PhaseDocumentation {
		c.runDocumentation(ctx, wf, phases)
	}

	wf.Complete()
	if err := c.store.SaveWorkflow(wf); err != nil {
		return wf, fmt.Errorf("workflow: save final state: %w", err)
	}
	return wf, nil
}

func (c *Controller) failWorkflow(wf *model.Workflow, reason string) (*model.Workflow, error) {
	wf.Fail(reason)
	if err := c.store.SaveWorkflow(wf); err != nil {
		c.logger.Printf("[controller] failed to persist failed workflow %s: %v", wf.ID.Short(), err)
	}
	return wf, fmt.Errorf("workflow: %s", reason)
}

// advance transitions the phase controller to target, records the move
// on wf, and persists wf. Callers treat a transition error as fatal to
// the run, since it means the controller's own phase bookkeeping has
// drifted from the expected order.
func (c *Controller) advance(wf *model.Workflow, phases *PhaseController, target model.Phase) error {
	if err := phases.Transition(target); err != nil {
		return err
	}
	wf.AdvancePhase(target)
	return c.store.SaveWorkflow(wf)
}

// runPlanning spawns the pdd skill directly in the host repository (no
// task worktree exists yet) and returns the path to the plan.md it
// produces.
func (c *Controller) runPlanning(ctx context.Context, wf *model.Workflow, phases *PhaseController, prompt string) (string, error) {
	mc := c.router.ModelForPhase("planning")
	session := &agent.Session{
		WorkflowID:   wf.ID.String(),
		Prompt:       prompt,
		SystemPrompt: c.selector.SelectForPhase("planning"),
		Model:        mc.Model,
	}
	proxy := answer.New(prompt, nil)

	if _, err := RunSkillToCompletion(ctx, c.pool, c.agent, proxy, model.NewID(), c.repoDir, session, c.cfg.PollInterval, c.cfg.SkillTimeout); err != nil {
		return "", err
	}

	path := filepath.Join(c.repoDir, "plan.md")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("pdd skill did not produce plan.md: %w", err)
	}

	if err := c.advance(wf, phases, model.PhaseTaskGeneration); err != nil {
		return "", err
	}
	return path, nil
}

// runTaskGeneration spawns the code-task-generator skill, sends it the
// plan path, and scans its working copy (the repository root, since
// this skill too runs in place) for the `.code-task.md` files it
// produced.
func (c *Controller) runTaskGeneration(ctx context.Context, wf *model.Workflow, phases *PhaseController, planPath string) ([]TaskSpec, error) {
	mc := c.router.ModelForPhase("task_generation")
	session := &agent.Session{
		WorkflowID:   wf.ID.String(),
		Prompt:       fmt.Sprintf("Plan: %s", planPath),
		SystemPrompt: c.selector.SelectForPhase("task_generation"),
		Model:        mc.Model,
	}
	proxy := answer.New(planPath, nil)

	if _, err := RunSkillToCompletion(ctx, c.pool, c.agent, proxy, model.NewID(), c.repoDir, session, c.cfg.PollInterval, c.cfg.SkillTimeout); err != nil {
		return nil, err
	}

	files, err := DiscoverCodeTaskFiles(c.repoDir)
	if err != nil {
		return nil, err
	}
	specs := make([]TaskSpec, 0, len(files))
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("workflow: read %s: %w", f, err)
		}
		spec, err := ParseCodeTaskFile(f, content)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	if err := c.advance(wf, phases, model.PhaseImplementation); err != nil {
		return nil, err
	}
	return specs, nil
}

// runImplementation builds the task DAG from specs, persists every
// minted task, and runs the scheduler and health monitor concurrently
// until the DAG is complete. The reactive planner watches the
// repository root (where code-task-generator wrote its files) for
// further edits for the duration of the run.
func (c *Controller) runImplementation(ctx context.Context, wf *model.Workflow, phases *PhaseController, specs []TaskSpec) error {
	graph, tasks, warnings := BuildTaskDAG(wf.ID, specs)
	for _, w := range warnings {
		c.logger.Printf("[controller] task generation warning: %s", w)
	}

	idByRef := make(map[string]model.ID, len(specs))
	for i, spec := range specs {
		idByRef[spec.ID] = tasks[i].ID
		wf.Tasks = append(wf.Tasks, tasks[i].ID)
		if err := c.store.SaveTask(tasks[i]); err != nil {
			return err
		}
	}
	if err := c.store.SaveWorkflow(wf); err != nil {
		return err
	}

	proxy := answer.New(wf.Prompt, nil)
	sched := scheduler.New(graph, c.pool, c.agent, proxy, c.store, scheduler.Config{
		MaxParallelAgents: c.cfg.MaxParallelAgents,
		PollInterval:      c.cfg.PollInterval,
		StuckThreshold:    c.cfg.StuckThreshold,
		SystemPrompt:      c.selector.SelectForPhase("implementation"),
	}, c.logger)

	health := NewHealthMonitor(c.pool, graph, c.cfg.MaxRetries, c.cfg.StuckThreshold, c.cfg.PollInterval, c.logger)
	healthCtx, cancelHealth := context.WithCancel(ctx)
	defer cancelHealth()
	go health.Run(healthCtx)
	go drainHealthEvents(health)

	planner := NewPlanner(c.repoDir, wf.ID, graph, idByRef, c.logger)
	if err := planner.Start(); err != nil {
		c.logger.Printf("[controller] reactive planner disabled: %v", err)
	} else {
		defer planner.Stop()
		go drainPlannerEvents(planner)
	}

	branchFor := func(id model.ID) string { return "zen/task/" + id.Short() }
	promptFor := func(t *model.Task) string {
		return fmt.Sprintf("Task: %s\n\n%s", t.Name, t.Description)
	}
	if err := sched.Run(ctx, branchFor, promptFor); err != nil {
		if errors.Is(err, scheduler.ErrStalled) {
			return fmt.Errorf("task graph stalled: one or more tasks were cascade-blocked and never ran: %w", err)
		}
		return err
	}

	return c.advance(wf, phases, model.PhaseMerging)
}

func drainHealthEvents(h *HealthMonitor) {
	for ev := range h.Events() {
		if ev.Kind == StuckDetected {
			log.Printf("[controller] worker for task %s is stuck", ev.TaskID.Short())
		}
	}
}

func drainPlannerEvents(p *Planner) {
	for range p.Events() {
	}
}

// runMerging folds every completed task's branch into the workflow's
// staging branch, in the order the tasks completed (by their recorded
// CompletedAt), then advances to Documentation or straight to Complete
// depending on config.UpdateDocs.
func (c *Controller) runMerging(ctx context.Context, wf *model.Workflow, phases *PhaseController) error {
	pipeline := merge.New(c.repoDir, c.pool, c.agent, c.selector.SelectForPhase("merging"), merge.Config{
		StagingBranchPrefix: c.cfg.StagingBranchPrefix,
		PollInterval:        c.cfg.PollInterval,
		SkillTimeout:        c.cfg.SkillTimeout,
	}, c.logger)

	var completed []*model.Task
	for _, id := range wf.Tasks {
		task, err := c.store.LoadTask(id)
		if err != nil || task.Status != model.TaskCompleted {
			continue
		}
		completed = append(completed, task)
	}
	sort.SliceStable(completed, func(i, j int) bool {
		a, b := completed[i].CompletedAt, completed[j].CompletedAt
		return a != nil && b != nil && a.Before(*b)
	})
	var branches []string
	for _, task := range completed {
		branches = append(branches, task.BranchName)
	}

	result := pipeline.Run(ctx, wf.ID, wf.BaseCommit, branches)
	if result.Err != nil {
		return result.Err
	}

	if c.cfg.UpdateDocs {
		return c.advance(wf, phases, model.PhaseDocumentation)
	}
	return c.advance(wf, phases, model.PhaseComplete)
}

// runDocumentation spawns the codebase-summary skill against the
// staging branch's working copy. A failure here is logged, not
// propagated: the workflow still completes successfully without an
// updated summary.
func (c *Controller) runDocumentation(ctx context.Context, wf *model.Workflow, phases *PhaseController) {
	mc := c.router.ModelForPhase("documentation")
	session := &agent.Session{
		WorkflowID:   wf.ID.String(),
		Prompt:       "Summarize the changes merged into this staging branch.",
		SystemPrompt: c.selector.SelectForPhase("documentation"),
		Model:        mc.Model,
	}
	proxy := answer.New(session.Prompt, nil)

	if _, err := RunSkillToCompletion(ctx, c.pool, c.agent, proxy, model.NewID(), c.repoDir, session, c.cfg.PollInterval, c.cfg.SkillTimeout); err != nil {
		c.logger.Printf("[controller] documentation phase failed, continuing: %v", err)
	}

	if err := c.advance(wf, phases, model.PhaseComplete); err != nil {
		c.logger.Printf("[controller] documentation transition: %v", err)
	}
}

// headCommit returns the host repository's current HEAD commit hash,
// or the empty string if the repository has no commits yet (a fresh
// repo the first workflow runs against).
func (c *Controller) headCommit() string {
	repo, err := git.PlainOpen(c.repoDir)
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}
