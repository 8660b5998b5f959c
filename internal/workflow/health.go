package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zenweave/zen/internal/agentpool"
	"github.com/zenweave/zen/internal/dag"
	"github.com/zenweave/zen/internal/model"
)

// RecoveryAction is the action the health monitor decides to take
// against a stuck worker.
type RecoveryAction string

const (
	// ActionRestart terminates the worker and returns its task to
	// Pending so the scheduler redispatches a fresh attempt.
	ActionRestart RecoveryAction = "restart"
	// ActionReassign is like ActionRestart but intended for a caller
	// that wants to hand the retry to a different adapter. The default
	// heuristics below never select it on their own.
	ActionReassign RecoveryAction = "reassign"
	// ActionDecompose flags that the task is too large for one worker
	// and should be split into smaller tasks upstream.
	ActionDecompose RecoveryAction = "decompose"
	// ActionEscalate surfaces the task to a human operator; the
	// monitor cannot resolve it on its own.
	ActionEscalate RecoveryAction = "escalate"
	// ActionAbort gives up on the task outright (e.g. fatal, unrecoverable errors).
	ActionAbort RecoveryAction = "abort"
)

// transientPatterns mark failures a fresh attempt is likely to clear on
// its own, mirroring the teacher's isAdapterExecutionFailure pattern
// table but for signals observed in a stuck worker's own pane output
// rather than a container-launch error.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"network is unreachable",
	"timeout",
	"timed out",
	"rate limit",
	"rate_limit",
	"429",
	"temporarily unavailable",
	"econnreset",
}

// fatalPatterns mark failures no retry will clear; the task is aborted
// rather than retried.
var fatalPatterns = []string{
	"authentication",
	"permission denied",
	"unauthorized",
	"disk full",
	"no space left on device",
	"out of memory",
}

// complexityPatterns suggest the task itself is too large for one
// worker to finish in a single pass.
var complexityPatterns = []string{
	"too large",
	"too complex",
	"scope is too broad",
	"needs to be broken down",
}

// DetermineRecovery picks a RecoveryAction for a stuck task, following a
// fixed heuristic chain (no model call): exhausted retries escalate
// first, then fatal/transient/complexity text patterns in the worker's
// recent output, else a plain restart.
func DetermineRecovery(task *model.Task, recentOutput string, maxRetries int) RecoveryAction {
	if task.RetryCount >= maxRetries {
		return ActionEscalate
	}

	lower := strings.ToLower(recentOutput)
	for _, p := range fatalPatterns {
		if strings.Contains(lower, p) {
			return ActionAbort
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return ActionRestart
		}
	}
	for _, p := range complexityPatterns {
		if strings.Contains(lower, p) {
			return ActionDecompose
		}
	}
	return ActionRestart
}

// HealthEventKind tags the variant of a HealthEvent.
type HealthEventKind string

const (
	StuckDetected    HealthEventKind = "stuck_detected"
	RecoveryExecuted HealthEventKind = "recovery_executed"
)

// HealthEvent is emitted by the HealthMonitor whenever it detects and
// acts on a stuck worker.
type HealthEvent struct {
	Kind      HealthEventKind
	TaskID    model.ID
	Action    RecoveryAction
	Reason    string
	Timestamp time.Time
}

// HealthMonitor periodically scans live workers for ones that have
// fallen silent past a threshold and decides what to do about it.
// Unlike the scheduler's own inline stuck check (a terminal "fail and
// cascade" backstop), the monitor applies the fuller recovery chain —
// restart, abort, decompose, escalate — described by DetermineRecovery.
type HealthMonitor struct {
	pool       *agentpool.Pool
	graph      *dag.TaskDAG
	maxRetries int
	threshold  time.Duration
	interval   time.Duration
	logger     *log.Logger

	events chan HealthEvent
	mu     sync.Mutex
	seen   map[model.ID]time.Time // task -> last time its idle state was observed fresh
}

// NewHealthMonitor returns a monitor over pool and graph, treating a
// worker idle longer than threshold as stuck, escalating once a task's
// RetryCount reaches maxRetries.
func NewHealthMonitor(pool *agentpool.Pool, graph *dag.TaskDAG, maxRetries int, threshold, interval time.Duration, logger *log.Logger) *HealthMonitor {
	if logger == nil {
		logger = log.Default()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if threshold <= 0 {
		threshold = 2 * time.Minute
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HealthMonitor{
		pool:       pool,
		graph:      graph,
		maxRetries: maxRetries,
		threshold:  threshold,
		interval:   interval,
		logger:     logger,
		events:     make(chan HealthEvent, 32),
		seen:       make(map[model.ID]time.Time),
	}
}

// Events returns the channel HealthEvents are published on.
func (m *HealthMonitor) Events() <-chan HealthEvent { return m.events }

func (m *HealthMonitor) emit(ev HealthEvent) {
	ev.Timestamp = time.Now()
	select {
	case m.events <- ev:
	default:
	}
}

// Run polls every interval until ctx is canceled, scanning for stuck
// workers on each tick.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(m.events)
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan checks every live worker once and executes recovery for any
// that have exceeded the stuck threshold.
func (m *HealthMonitor) Scan(ctx context.Context) {
	for _, taskID := range m.pool.RunningTasks() {
		h, err := m.pool.Get(taskID)
		if err != nil {
			continue
		}
		idle := time.Since(h.LastActivity())
		if idle <= m.threshold {
			continue
		}

		task, ok := m.graph.GetTask(taskID)
		if !ok {
			continue
		}

		m.emit(HealthEvent{Kind: StuckDetected, TaskID: taskID, Reason: fmt.Sprintf("idle for %s", idle)})

		output := h.Capture()
		action := DetermineRecovery(task, output, m.maxRetries)
		m.executeRecovery(ctx, task, action)
	}
}

// executeRecovery carries out action against task, terminating its
// current worker and moving the task into whatever state the action
// implies.
func (m *HealthMonitor) executeRecovery(ctx context.Context, task *model.Task, action RecoveryAction) {
	reason := fmt.Sprintf("health monitor: %s", action)
	_ = m.pool.Terminate(ctx, task.ID, action == ActionRestart || action == ActionReassign)

	switch action {
	case ActionRestart, ActionReassign:
		task.Restart()
	case ActionAbort:
		task.Fail(reason)
		m.cascadeBlock(task.ID, "dependency aborted by health monitor")
	case ActionEscalate:
		// No automated path forward: block the task (and everything
		// downstream of it) rather than let the workflow hang waiting
		// on a worker that will never finish, and surface the event so
		// the controller can notify an operator.
		task.Block(reason)
		m.cascadeBlock(task.ID, "dependency escalated to a human operator")
	case ActionDecompose:
		// Splitting a task into smaller ones requires the
		// code-task-generator skill to run again; the monitor itself
		// has no model backing it, so it blocks the task and leaves
		// actual decomposition to a human or a follow-up TaskGeneration
		// pass rather than fabricating subtasks.
		task.Block(reason + ": task appears too large, consider splitting it")
		m.cascadeBlock(task.ID, "dependency requires decomposition")
	}

	m.emit(HealthEvent{Kind: RecoveryExecuted, TaskID: task.ID, Action: action, Reason: reason})
}

// cascadeBlock marks every task that (directly or transitively) depends
// on id as Blocked, mirroring the scheduler's own cascadeBlock — the
// two can't share an implementation since the scheduler package would
// have to depend on this one's model types the other way round, and
// internal/workflow already sits above internal/scheduler in the import
// graph.
func (m *HealthMonitor) cascadeBlock(id model.ID, reason string) {
	for _, childID := range m.graph.Descendants(id) {
		t, ok := m.graph.GetTask(childID)
		if !ok {
			continue
		}
		if t.Status == model.TaskPending || t.Status == model.TaskReady {
			t.Block(reason)
		}
	}
}
