// Package scheduler drives the task DAG: it repeatedly dispatches
// tasks whose dependencies are all satisfied, up to the agent pool's
// capacity, and reacts to each worker's completion or failure by
// advancing the DAG and emitting lifecycle events.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zenweave/zen/internal/agent"
	"github.com/zenweave/zen/internal/agentpool"
	"github.com/zenweave/zen/internal/answer"
	"github.com/zenweave/zen/internal/classify"
	"github.com/zenweave/zen/internal/dag"
	"github.com/zenweave/zen/internal/model"
)

// ErrStalled is returned by Run when the DAG stops progressing because
// every remaining task has been cascade-blocked by an upstream failure
// and none can ever become ready, as distinct from a nil return, which
// means every task reached a terminal state and graph.AllComplete()
// is true.
var ErrStalled = errors.New("scheduler: workflow stalled with tasks blocked")

// StatePersister is the subset of internal/statestore's Store the
// scheduler needs, kept narrow so tests can supply an in-memory fake.
type StatePersister interface {
	SaveTask(task *model.Task) error
}

// Scheduler dispatches a workflow's task DAG through one shared agent
// pool, driving the output classifier and answer proxy for every live
// worker, and emits SchedulerEvents as tasks move through their
// lifecycle.
type Scheduler struct {
	graph        *dag.TaskDAG
	pool         *agentpool.Pool
	agent        agent.Agent
	proxy        *answer.Proxy
	store        StatePersister
	maxParallel  int
	pollInterval time.Duration
	stuckAfter   time.Duration
	systemPrompt string
	logger       *log.Logger

	events     chan Event
	dispatched sync.Map // model.ID -> struct{}, tasks already sent to a worker
}

// Config carries the tunables a Scheduler needs beyond the DAG and
// pool, mirroring the workflow's model.Config fields.
type Config struct {
	MaxParallelAgents int
	PollInterval      time.Duration
	StuckThreshold    time.Duration

	// SystemPrompt is the compiled code-assist skill prompt for the
	// implementation phase, sent as every worker's system prompt
	// alongside its task-specific initial prompt.
	SystemPrompt string
}

// New returns a Scheduler over graph, dispatching work through pool
// using adapter a, answering worker questions through proxy, and
// persisting task updates through store.
func New(graph *dag.TaskDAG, pool *agentpool.Pool, a agent.Agent, proxy *answer.Proxy, store StatePersister, cfg Config, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxParallelAgents <= 0 {
		cfg.MaxParallelAgents = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = 2 * time.Minute
	}
	return &Scheduler{
		graph:        graph,
		pool:         pool,
		agent:        a,
		proxy:        proxy,
		store:        store,
		maxParallel:  cfg.MaxParallelAgents,
		pollInterval: cfg.PollInterval,
		stuckAfter:   cfg.StuckThreshold,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger,
		events:       make(chan Event, 64),
	}
}

// Events returns the channel SchedulerEvents are published on. Callers
// should drain it continuously; delivery is lossy-allowed.
func (s *Scheduler) Events() <-chan Event { return s.events }

func (s *Scheduler) emit(kind EventKind, taskID model.ID, reason string) {
	select {
	case s.events <- Event{Kind: kind, TaskID: taskID, Reason: reason, Timestamp: time.Now()}:
	default:
	}
}

// Run drives the DAG to completion: it repeatedly dispatches every
// ready, not-yet-dispatched task up to the pool's capacity, and returns
// once every task has reached a terminal state or ctx is canceled.
func (s *Scheduler) Run(ctx context.Context, branchFor func(model.ID) string, promptFor func(*model.Task) string) error {
	sem := make(chan struct{}, s.maxParallel)
	var wg sync.WaitGroup
	var inFlight int32

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var stalled bool
	for {
		if s.graph.AllComplete() {
			break
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			close(s.events)
			return ctx.Err()
		case <-ticker.C:
		}

		ready := s.graph.ReadyTasks()
		for _, t := range ready {
			if _, already := s.dispatched.LoadOrStore(t.ID, struct{}{}); already {
				continue
			}
			select {
			case sem <- struct{}{}:
			default:
				s.dispatched.Delete(t.ID)
				continue
			}

			atomic.AddInt32(&inFlight, 1)
			wg.Add(1)
			go func(task *model.Task) {
				defer wg.Done()
				defer atomic.AddInt32(&inFlight, -1)
				defer func() { <-sem }()
				defer func() {
					if r := recover(); r != nil {
						s.logger.Printf("[scheduler] panic running task %s: %v", task.ID.Short(), r)
						task.Fail(fmt.Sprintf("panic: %v", r))
						s.persist(task)
						s.emit(EventTaskFailed, task.ID, task.LastError)
						s.cascadeBlock(task.ID, "dependency failed")
					}
				}()
				s.runTask(ctx, task, branchFor(task.ID), promptFor(task))
			}(t)
		}

		// A workflow stalls when nothing is in flight, nothing is ready
		// to dispatch, and the graph still isn't complete: every
		// remaining task has been cascaded into Blocked by some upstream
		// failure and will never become ready on its own.
		if len(ready) == 0 && atomic.LoadInt32(&inFlight) == 0 && !s.graph.AllComplete() {
			stalled = true
			break
		}
	}

	wg.Wait()
	if stalled {
		s.emit(EventStalled, "", "")
		close(s.events)
		return ErrStalled
	}
	s.emit(EventDrained, "", "")
	close(s.events)
	return nil
}

// runTask spawns task in the agent pool and drives it to completion or
// failure, handling questions via the answer proxy along the way.
func (s *Scheduler) runTask(ctx context.Context, task *model.Task, branch, prompt string) {
	session := &agent.Session{
		TaskID:       task.ID.String(),
		WorkflowID:   task.WorkflowID.String(),
		Prompt:       prompt,
		SystemPrompt: s.systemPrompt,
	}

	h, err := s.pool.Spawn(ctx, s.agent, task.ID, branch, session)
	if err != nil {
		task.Fail(fmt.Sprintf("spawn failed: %v", err))
		s.persist(task)
		s.emit(EventTaskFailed, task.ID, task.LastError)
		s.cascadeBlock(task.ID, "dependency failed to start")
		return
	}
	task.Start(h.ID, h.WorktreePath, branch)
	s.persist(task)
	s.emit(EventTaskDispatched, task.ID, "")

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.pool.Terminate(context.Background(), task.ID, false)
			return
		case <-ticker.C:
		}

		if time.Since(h.LastActivity()) > s.stuckAfter {
			task.Fail("worker idle past stuck threshold")
			s.persist(task)
			s.emit(EventTaskFailed, task.ID, task.LastError)
			_ = s.pool.Terminate(ctx, task.ID, false)
			s.cascadeBlock(task.ID, "dependency stuck")
			return
		}

		snapshot := h.Capture()
		ev := classify.Classify(snapshot)
		switch ev.Kind {
		case classify.KindQuestion:
			answerText := s.proxy.AnswerQuestion(ev.Text)
			if err := s.pool.SendInput(task.ID, answerText); err != nil {
				s.logger.Printf("[scheduler] failed to answer worker for task %s: %v", task.ID.Short(), err)
			}
		case classify.KindCompleted:
			commit, err := s.pool.HeadCommit(ctx, task.ID)
			if err != nil {
				commit = ""
			}
			if result, err := s.agent.ParseOutput(0, snapshot); err == nil && result.Summary != "" {
				s.logger.Printf("[scheduler] task %s: %s", task.ID.Short(), result.Summary)
			}
			task.Complete(commit)
			s.persist(task)
			if err := s.graph.CompleteTask(task.ID); err != nil {
				s.logger.Printf("[scheduler] CompleteTask(%s): %v", task.ID.Short(), err)
			}
			s.emit(EventTaskCompleted, task.ID, "")
			_ = s.pool.Terminate(ctx, task.ID, true)
			return
		case classify.KindError:
			task.Fail(ev.Text)
			s.persist(task)
			s.emit(EventTaskFailed, task.ID, ev.Text)
			_ = s.pool.Terminate(ctx, task.ID, false)
			s.cascadeBlock(task.ID, "dependency failed")
			return
		}
	}
}

// cascadeBlock marks every task that (directly or transitively)
// depends on failedID as Blocked, since it can never become ready now
// that failedID will never reach Completed.
func (s *Scheduler) cascadeBlock(failedID model.ID, reason string) {
	for _, id := range s.graph.Descendants(failedID) {
		t, ok := s.graph.GetTask(id)
		if !ok {
			continue
		}
		if t.Status == model.TaskPending || t.Status == model.TaskReady {
			t.Block(reason)
			s.persist(t)
			s.emit(EventTaskBlocked, id, reason)
		}
	}
}

func (s *Scheduler) persist(task *model.Task) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveTask(task); err != nil {
		s.logger.Printf("[scheduler] failed to persist task %s: %v", task.ID.Short(), err)
	}
}
