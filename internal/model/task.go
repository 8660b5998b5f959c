package model

import "time"

// TaskStatus is the lifecycle status of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskReady     TaskStatus = "ready"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskBlocked   TaskStatus = "blocked"
)

// Task is one unit of implementation work dispatched to a single worker
// agent in its own isolated working copy.
type Task struct {
	ID           ID         `json:"id"`
	WorkflowID   ID         `json:"workflow_id,omitempty"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	AgentID      *ID        `json:"agent_id,omitempty"`
	WorktreePath string     `json:"worktree_path,omitempty"`
	BranchName   string     `json:"branch_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CommitHash   string     `json:"commit_hash,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	RetryCount   int        `json:"retry_count"`
}

// NewTask creates a task in Pending status for the given workflow.
func NewTask(workflowID ID, name, description string) *Task {
	return &Task{
		ID:          NewID(),
		WorkflowID:  workflowID,
		Name:        name,
		Description: description,
		Status:      TaskPending,
		CreatedAt:   time.Now(),
	}
}

// Start transitions the task to Running, stamps the start time, and records
// the assigned worker and its isolated working copy.
func (t *Task) Start(agentID ID, worktreePath, branchName string) {
	now := time.Now()
	t.Status = TaskRunning
	t.AgentID = &agentID
	t.WorktreePath = worktreePath
	t.BranchName = branchName
	t.StartedAt = &now
}

// Complete transitions the task to Completed, recording the commit hash
// produced by the worker.
func (t *Task) Complete(commitHash string) {
	now := time.Now()
	t.Status = TaskCompleted
	t.CommitHash = commitHash
	t.CompletedAt = &now
}

// Fail transitions the task to Failed, recording the error.
func (t *Task) Fail(reason string) {
	now := time.Now()
	t.Status = TaskFailed
	t.LastError = reason
	t.CompletedAt = &now
}

// Block transitions the task to Blocked, recording the reason (e.g. removed
// by a reactive replan).
func (t *Task) Block(reason string) {
	t.Status = TaskBlocked
	t.LastError = reason
}

// Ready marks a pending task as ready to dispatch now that all of its
// dependencies have completed.
func (t *Task) Ready() {
	if t.Status == TaskPending {
		t.Status = TaskReady
	}
}

// Restart returns a stuck or misbehaving task to Pending so the
// scheduler will dispatch a fresh worker at it, bumping the retry
// counter and clearing the fields tied to the abandoned attempt.
func (t *Task) Restart() {
	t.Status = TaskPending
	t.RetryCount++
	t.AgentID = nil
	t.WorktreePath = ""
	t.BranchName = ""
	t.StartedAt = nil
}
