package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zenweave/zen/internal/agent"
	"github.com/zenweave/zen/internal/agentpool"
	"github.com/zenweave/zen/internal/answer"
	"github.com/zenweave/zen/internal/classify"
	"github.com/zenweave/zen/internal/model"
)

// ErrSkillFailed is returned by RunSkillToCompletion when the worker's
// output classifies as an error.
type ErrSkillFailed struct {
	Skill  string
	Reason string
}

func (e *ErrSkillFailed) Error() string {
	return fmt.Sprintf("workflow: skill %q failed: %s", e.Skill, e.Reason)
}

// ErrSkillTimedOut is returned when a single-skill phase worker never
// reaches a terminal classification before its deadline.
type ErrSkillTimedOut struct{ Skill string }

func (e *ErrSkillTimedOut) Error() string {
	return fmt.Sprintf("workflow: skill %q timed out waiting for completion", e.Skill)
}

// RunSkillToCompletion dispatches a single worker for one of the
// single-skill phases (Planning, TaskGeneration, Documentation) and
// drives it to completion, answering any questions it asks along the
// way. It returns the worker's final captured pane output on success.
//
// The shape mirrors scheduler.runTask's classify-driven poll loop and
// merge.Pipeline's runResolver, but for a worker that isn't attached to
// a DAG task: the phase itself is the unit of work, so there is no
// per-task cascade-block or retry bookkeeping here.
func RunSkillToCompletion(ctx context.Context, pool *agentpool.Pool, a agent.Agent, proxy *answer.Proxy, workerID model.ID, workDir string, session *agent.Session, pollInterval, timeout time.Duration) (string, error) {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}

	h, err := pool.SpawnInPlace(ctx, a, workerID, workDir, session)
	if err != nil {
		return "", fmt.Errorf("workflow: spawn skill worker: %w", err)
	}
	defer func() { _ = pool.Terminate(context.Background(), workerID, true) }()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		if timeout > 0 && time.Now().After(deadline) {
			return "", &ErrSkillTimedOut{Skill: a.Name()}
		}

		snapshot := h.Capture()
		ev := classify.Classify(snapshot)
		switch ev.Kind {
		case classify.KindQuestion:
			answerText := proxy.AnswerQuestion(ev.Text)
			if err := pool.SendInput(workerID, answerText); err != nil {
				log.Printf("[workflow] failed to answer skill worker %s: %v", workerID.Short(), err)
			}
		case classify.KindCompleted:
			return snapshot, nil
		case classify.KindError:
			return snapshot, &ErrSkillFailed{Skill: a.Name(), Reason: ev.Text}
		}
	}
}

// IsSkillFailure reports whether err originated from a worker's own
// classified failure, as opposed to a context cancellation or timeout.
func IsSkillFailure(err error) bool {
	var failed *ErrSkillFailed
	return errors.As(err, &failed)
}
