// Package agentpool owns subordinate-worker handles: it spawns each
// worker in its own git worktree and PTY-backed terminal session,
// enforces the configured concurrency ceiling, and lets the scheduler
// send input, read output, and terminate workers by ID.
package agentpool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/zenweave/zen/internal/agent"
	"github.com/zenweave/zen/internal/model"
)

// ErrPoolFull is returned by Spawn when the concurrency ceiling has
// already been reached; the scheduler is expected to simply wait and
// retry rather than treat this as fatal.
var ErrPoolFull = errors.New("agentpool: pool is at capacity")

// ErrWorkerNotFound is returned by Get/Terminate/SendInput when no
// handle is registered under the given ID.
var ErrWorkerNotFound = errors.New("agentpool: worker not found")

// Pool manages live worker handles for one workflow. Concurrent access
// is mediated by a single read/write lock on the pool itself, mirroring
// the teacher's ContainerPool.
type Pool struct {
	mu       sync.RWMutex
	handles  map[model.ID]*Handle
	repoDir  string
	worktree string
	capacity int
	logger   *log.Logger
}

// New returns a Pool rooted at repoDir, creating worktrees under
// worktreeDir, capped at capacity concurrently-running workers.
func New(repoDir, worktreeDir string, capacity int, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.Default()
	}
	return &Pool{
		handles:  make(map[model.ID]*Handle),
		repoDir:  repoDir,
		worktree: worktreeDir,
		capacity: capacity,
		logger:   logger,
	}
}

// Len returns the number of live handles.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles)
}

// Spawn creates a worktree for taskID, starts the given adapter's
// worker process in it over a new PTY session, submits the initial
// prompt, and registers the resulting handle. It refuses to exceed the
// pool's configured capacity.
func (p *Pool) Spawn(ctx context.Context, a agent.Agent, taskID model.ID, branch string, session *agent.Session) (*Handle, error) {
	p.mu.Lock()
	if len(p.handles) >= p.capacity {
		p.mu.Unlock()
		return nil, ErrPoolFull
	}
	p.mu.Unlock()

	worktreePath, err := addWorktree(ctx, p.repoDir, p.worktree, taskID.String(), branch)
	if err != nil {
		return nil, err
	}
	session.WorktreePath = worktreePath

	argv := a.Command(session)
	env := a.Env(session)

	h, err := startSession(ctx, taskID, worktreePath, argv, env)
	if err != nil {
		_ = removeWorktree(ctx, p.repoDir, worktreePath, true)
		return nil, err
	}
	taskIDCopy := taskID
	h.taskID = &taskIDCopy

	if prompt := a.BuildPrompt(session); prompt != "" {
		if err := h.Write(prompt); err != nil {
			_ = h.Terminate()
			_ = removeWorktree(ctx, p.repoDir, worktreePath, true)
			return nil, err
		}
	}

	p.mu.Lock()
	p.handles[taskID] = h
	p.mu.Unlock()

	p.logger.Printf("[agentpool] spawned worker %s for task %s (worktree=%s)", h.ID.Short(), taskID.Short(), worktreePath)
	return h, nil
}

// SpawnInPlace starts a worker the same way Spawn does, except it runs
// directly in dir instead of creating a fresh isolated worktree. The
// merge pipeline uses this to dispatch the conflict-resolver skill into
// the staging branch's own checkout, where the unresolved merge state
// actually lives.
func (p *Pool) SpawnInPlace(ctx context.Context, a agent.Agent, id model.ID, dir string, session *agent.Session) (*Handle, error) {
	p.mu.Lock()
	if len(p.handles) >= p.capacity {
		p.mu.Unlock()
		return nil, ErrPoolFull
	}
	p.mu.Unlock()

	session.WorktreePath = dir
	argv := a.Command(session)
	env := a.Env(session)

	h, err := startSession(ctx, id, dir, argv, env)
	if err != nil {
		return nil, err
	}
	idCopy := id
	h.taskID = &idCopy

	if prompt := a.BuildPrompt(session); prompt != "" {
		if err := h.Write(prompt); err != nil {
			_ = h.Terminate()
			return nil, err
		}
	}

	p.mu.Lock()
	p.handles[id] = h
	p.mu.Unlock()

	p.logger.Printf("[agentpool] spawned in-place worker %s (dir=%s)", h.ID.Short(), dir)
	return h, nil
}

// RunningTasks returns the task IDs of every live handle, for the
// health monitor's periodic stuck-worker scan.
func (p *Pool) RunningTasks() []model.ID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]model.ID, 0, len(p.handles))
	for id := range p.handles {
		ids = append(ids, id)
	}
	return ids
}

// Get returns the live handle for taskID.
func (p *Pool) Get(taskID model.ID) (*Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handles[taskID]
	if !ok {
		return nil, ErrWorkerNotFound
	}
	return h, nil
}

// SendInput writes a line of input to the worker assigned to taskID.
func (p *Pool) SendInput(taskID model.ID, input string) error {
	h, err := p.Get(taskID)
	if err != nil {
		return err
	}
	return h.Write(input)
}

// Capture returns the worker's accumulated pane output for taskID.
func (p *Pool) Capture(taskID model.ID) (string, error) {
	h, err := p.Get(taskID)
	if err != nil {
		return "", err
	}
	return h.Capture(), nil
}

// Terminate stops the worker assigned to taskID and removes its
// worktree. keepWorktree lets the merge pipeline terminate the worker
// process while leaving the branch's commits intact for folding.
func (p *Pool) Terminate(ctx context.Context, taskID model.ID, keepWorktree bool) error {
	p.mu.Lock()
	h, ok := p.handles[taskID]
	if ok {
		delete(p.handles, taskID)
	}
	p.mu.Unlock()

	if !ok {
		return ErrWorkerNotFound
	}

	if err := h.Terminate(); err != nil {
		return err
	}
	if !keepWorktree {
		if err := removeWorktree(ctx, p.repoDir, h.WorktreePath, true); err != nil {
			return fmt.Errorf("agentpool: terminate task %s: %w", taskID.Short(), err)
		}
	}
	p.logger.Printf("[agentpool] terminated worker %s (task=%s, keep_worktree=%v)", h.ID.Short(), taskID.Short(), keepWorktree)
	return nil
}

// TerminateAll stops every live worker, discarding their worktrees. It
// is called when a workflow aborts.
func (p *Pool) TerminateAll(ctx context.Context) {
	p.mu.Lock()
	ids := make([]model.ID, 0, len(p.handles))
	for id := range p.handles {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		if err := p.Terminate(ctx, id, false); err != nil {
			p.logger.Printf("[agentpool] warning: failed to terminate %s: %v", id.Short(), err)
		}
	}
}

// HeadCommit returns the HEAD commit hash of the completed task's
// worktree, for stamping onto the task record.
func (p *Pool) HeadCommit(ctx context.Context, taskID model.ID) (string, error) {
	h, err := p.Get(taskID)
	if err != nil {
		return "", err
	}
	return headCommit(ctx, h.WorktreePath)
}
