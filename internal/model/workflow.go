package model

import "time"

// Phase is one of the five stages through which a workflow progresses, in
// strict order.
type Phase string

const (
	PhasePlanning       Phase = "planning"
	PhaseTaskGeneration Phase = "task_generation"
	PhaseImplementation Phase = "implementation"
	PhaseMerging        Phase = "merging"
	PhaseDocumentation  Phase = "documentation"
	PhaseComplete       Phase = "complete"
)

// phaseOrder gives each phase its position in the strict ordering
// Planning < TaskGeneration < Implementation < Merging < Documentation < Complete.
var phaseOrder = map[Phase]int{
	PhasePlanning:       0,
	PhaseTaskGeneration: 1,
	PhaseImplementation: 2,
	PhaseMerging:        3,
	PhaseDocumentation:  4,
	PhaseComplete:       5,
}

// Before reports whether p strictly precedes other in the canonical phase order.
func (p Phase) Before(other Phase) bool {
	return phaseOrder[p] < phaseOrder[other]
}

// Valid reports whether p is a recognized phase.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// Status is a workflow's lifecycle status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Config holds the recognized workflow configuration options and their
// documented defaults.
type Config struct {
	UpdateDocs          bool          `json:"update_docs"`
	MaxParallelAgents   int           `json:"max_parallel_agents"`
	StagingBranchPrefix string        `json:"staging_branch_prefix"`
	WorkerAgent         string        `json:"worker_agent"`
	SkillTimeout        time.Duration `json:"skill_timeout"`
	PollInterval        time.Duration `json:"poll_interval"`
	StuckThreshold      time.Duration `json:"stuck_threshold"`
	MaxRetries          int           `json:"max_retries"`
}

// DefaultConfig returns a Config populated with the spec's documented
// defaults.
func DefaultConfig() Config {
	return Config{
		UpdateDocs:          true,
		MaxParallelAgents:   4,
		StagingBranchPrefix: "zen/staging/",
		WorkerAgent:         "claude-code",
		SkillTimeout:        10 * time.Minute,
		PollInterval:        100 * time.Millisecond,
		StuckThreshold:      2 * time.Minute,
		MaxRetries:          3,
	}
}

// PhaseHistoryEntry records one phase transition and when it happened.
type PhaseHistoryEntry struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// Workflow is one end-to-end run from user prompt to merged staging branch.
type Workflow struct {
	ID          ID                  `json:"id"`
	Name        string              `json:"name"`
	Prompt      string              `json:"prompt"`
	Phase       Phase               `json:"phase"`
	Status      Status              `json:"status"`
	Config      Config              `json:"config"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at"`
	Tasks       []ID                `json:"tasks"`
	LastError   string              `json:"last_error,omitempty"`
	History     []PhaseHistoryEntry `json:"-"`

	// BaseCommit is the commit that was HEAD in the host repository when
	// the workflow started; the merge pipeline branches its staging line
	// from here.
	BaseCommit string `json:"base_commit,omitempty"`
}

// NewWorkflow creates a workflow in Pending status with Planning as its
// current phase, stamping the creation time and the initial phase-history
// entry.
func NewWorkflow(prompt string, cfg Config) *Workflow {
	now := time.Now()
	return &Workflow{
		ID:        NewID(),
		Name:      SlugName(prompt, 5),
		Prompt:    prompt,
		Phase:     PhasePlanning,
		Status:    StatusPending,
		Config:    cfg,
		CreatedAt: now,
		Tasks:     []ID{},
		History:   []PhaseHistoryEntry{{Phase: PhasePlanning, Timestamp: now}},
	}
}

// Start transitions the workflow to Running and stamps the start time.
func (w *Workflow) Start() {
	now := time.Now()
	w.Status = StatusRunning
	w.StartedAt = &now
}

// Complete transitions the workflow to Completed and stamps the completion time.
func (w *Workflow) Complete() {
	now := time.Now()
	w.Status = StatusCompleted
	w.CompletedAt = &now
}

// Fail transitions the workflow to Failed, records the error, and stamps the
// completion time.
func (w *Workflow) Fail(reason string) {
	now := time.Now()
	w.Status = StatusFailed
	w.LastError = reason
	w.CompletedAt = &now
}

// AdvancePhase appends a phase-history entry for the new phase. Callers are
// expected to have already validated the transition via the phase
// controller (internal/workflow); this method only performs the bookkeeping.
func (w *Workflow) AdvancePhase(p Phase) {
	w.Phase = p
	w.History = append(w.History, PhaseHistoryEntry{Phase: p, Timestamp: time.Now()})
}
