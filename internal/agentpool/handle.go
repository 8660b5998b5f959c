package agentpool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/zenweave/zen/internal/model"
)

// Status is a worker handle's lifecycle status.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRunning    Status = "running"
	StatusStuck      Status = "stuck"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
)

// Handle is a live subordinate worker: a PTY-backed terminal session
// attached to a CLI agent process running inside one task's isolated
// git worktree. Handles are owned exclusively by the Pool; callers
// reach them only through Pool.Get, which hands back a pointer shared
// with the pool's internal map (cheap to pass to scheduler goroutines,
// per the teacher's ManagedContainer sharing model).
type Handle struct {
	ID           model.ID
	SessionName  string
	WorktreePath string
	StartedAt    time.Time

	mu           sync.RWMutex
	status       Status
	taskID       *model.ID
	lastActivity time.Time
	buf          bytes.Buffer

	cmd    *exec.Cmd
	pty    *os.File
	cancel context.CancelFunc
	done   chan struct{}
}

// Status returns the handle's current status.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// setStatus updates status, guarded by the handle's own lock so the
// pool's goroutine and the scheduler's readers never race.
func (h *Handle) setStatus(s Status) {
	h.mu.Lock()
	h.status = s
	h.mu.Unlock()
}

// TaskID returns the task currently assigned to this handle, if any.
func (h *Handle) TaskID() *model.ID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.taskID
}

// LastActivity returns the timestamp of the most recent pane output,
// used by the health monitor's idle-duration check.
func (h *Handle) LastActivity() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastActivity
}

// Write submits a line of input to the worker, followed by a submit
// keystroke (newline), mirroring the spec's line-oriented wire format.
func (h *Handle) Write(input string) error {
	h.mu.RLock()
	p := h.pty
	h.mu.RUnlock()
	if p == nil {
		return fmt.Errorf("agentpool: handle %s has no active session", h.ID.Short())
	}
	if _, err := p.WriteString(input + "\n"); err != nil {
		return fmt.Errorf("agentpool: write to handle %s: %w", h.ID.Short(), err)
	}
	return nil
}

// Capture returns a snapshot of everything captured from the pane since
// the session started. The classifier looks only at the trailing lines,
// so handles never truncate this buffer during a worker's lifetime.
func (h *Handle) Capture() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.buf.String()
}

// pumpOutput copies everything the PTY produces into the handle's
// buffer and stamps last-activity on every read, until the PTY closes.
func (h *Handle) pumpOutput() {
	defer close(h.done)
	chunk := make([]byte, 4096)
	for {
		n, err := h.pty.Read(chunk)
		if n > 0 {
			h.mu.Lock()
			h.buf.Write(chunk[:n])
			h.lastActivity = time.Now()
			h.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// Terminate requests cooperative exit via the cancellation latch, then
// closes the PTY and waits for the process to exit.
func (h *Handle) Terminate() error {
	h.mu.Lock()
	if h.status == StatusTerminated {
		h.mu.Unlock()
		return nil
	}
	h.status = StatusTerminated
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if h.pty != nil {
		_ = h.pty.Close()
	}
	<-h.done
	if h.cmd != nil {
		_ = h.cmd.Wait()
	}
	return nil
}

// ExitCode returns the worker process's exit code, or -1 while its exit
// status has not been collected. Terminate is the only place that
// collects it (via Wait), so the value is meaningful only after
// Terminate has returned.
func (h *Handle) ExitCode() int {
	if h.cmd == nil || h.cmd.ProcessState == nil {
		return -1
	}
	return h.cmd.ProcessState.ExitCode()
}

// startSession launches argv[0] with the given args and env attached to
// a new PTY rooted in worktreePath, and begins pumping its output.
func startSession(ctx context.Context, id model.ID, worktreePath string, argv []string, env map[string]string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("agentpool: empty command for handle %s", id.Short())
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(sessionCtx, argv[0], argv[1:]...)
	cmd.Dir = worktreePath
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("agentpool: start pty for handle %s: %w", id.Short(), err)
	}

	now := time.Now()
	h := &Handle{
		ID:           id,
		SessionName:  fmt.Sprintf("zen-worker-%s", id.Short()),
		WorktreePath: worktreePath,
		StartedAt:    now,
		status:       StatusRunning,
		lastActivity: now,
		cmd:          cmd,
		pty:          ptmx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go h.pumpOutput()
	return h, nil
}
