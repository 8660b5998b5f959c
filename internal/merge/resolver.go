package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zenweave/zen/internal/agent"
	"github.com/zenweave/zen/internal/classify"
	"github.com/zenweave/zen/internal/model"
)

// ConflictRecord describes one file left with unmerged index stages
// after a fold attempt. Base is empty when the path has no common
// ancestor version (e.g. added independently on both sides).
type ConflictRecord struct {
	Path   string
	Ours   string
	Theirs string
	Base   string
}

// buildConflictRecords reads the ours/theirs/base text for every
// currently-conflicted path out of the index.
func buildConflictRecords(ctx context.Context, dir string) ([]ConflictRecord, error) {
	paths, err := conflictedFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	records := make([]ConflictRecord, 0, len(paths))
	for _, path := range paths {
		base, _, err := showStage(ctx, dir, 1, path)
		if err != nil {
			return nil, err
		}
		ours, _, err := showStage(ctx, dir, 2, path)
		if err != nil {
			return nil, err
		}
		theirs, _, err := showStage(ctx, dir, 3, path)
		if err != nil {
			return nil, err
		}
		records = append(records, ConflictRecord{Path: path, Ours: ours, Theirs: theirs, Base: base})
	}
	return records, nil
}

// resolverPrompt renders every conflict record into the prompt the
// conflict-resolver skill worker is given: for each file, the path and
// its full ours/theirs/base text, clearly delimited.
func resolverPrompt(records []ConflictRecord) string {
	var b strings.Builder
	b.WriteString("Resolve the following merge conflicts. For each file, replace the file's\n")
	b.WriteString("entire content with a resolved version that removes every conflict marker.\n\n")
	for _, r := range records {
		fmt.Fprintf(&b, "## %s\n\n", r.Path)
		if r.Base != "" {
			fmt.Fprintf(&b, "### base\n```\n%s\n```\n\n", r.Base)
		}
		fmt.Fprintf(&b, "### ours\n```\n%s\n```\n\n", r.Ours)
		fmt.Fprintf(&b, "### theirs\n```\n%s\n```\n\n", r.Theirs)
	}
	return b.String()
}

// runResolver dispatches a dedicated conflict-resolver worker in-place
// in the staging checkout, drives it with the monitor loop until it
// reports completion or the skill timeout elapses, then verifies no
// conflict marker remains in any previously-conflicted file.
func (p *Pipeline) runResolver(ctx context.Context, workflowID model.ID, stagingDir string, records []ConflictRecord) error {
	workerID := model.NewID()
	session := &agent.Session{
		TaskID:       workerID.String(),
		WorkflowID:   workflowID.String(),
		WorktreePath: stagingDir,
		Prompt:       resolverPrompt(records),
		SystemPrompt: p.resolverSkill,
	}

	h, err := p.pool.SpawnInPlace(ctx, p.resolverAgent, workerID, stagingDir, session)
	if err != nil {
		return fmt.Errorf("merge: spawn conflict-resolver worker: %w", err)
	}
	defer func() { _ = p.pool.Terminate(context.Background(), workerID, true) }()

	deadline := time.Now().Add(p.skillTimeout)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("merge: conflict-resolver worker timed out after %s", p.skillTimeout)
		}

		snapshot := h.Capture()
		ev := classify.Classify(snapshot)
		switch ev.Kind {
		case classify.KindQuestion:
			// The conflict-resolver skill runs unattended with full
			// context up front; a question here means it couldn't
			// proceed without more information, which we treat as a
			// resolution failure rather than looping the answer proxy
			// in (there is no original user prompt to stay consistent
			// with for a merge-time question).
			return fmt.Errorf("merge: conflict-resolver worker asked a question instead of resolving: %q", ev.Text)
		case classify.KindError:
			return fmt.Errorf("merge: conflict-resolver worker reported an error: %s", ev.Text)
		case classify.KindCompleted:
			return p.verifyResolved(ctx, stagingDir, records)
		}
	}
}

// verifyResolved re-reads every path that was conflicted and confirms
// no conflict marker survives.
func (p *Pipeline) verifyResolved(ctx context.Context, stagingDir string, records []ConflictRecord) error {
	var remaining []string
	for _, r := range records {
		content, err := readWorkingFile(ctx, stagingDir, r.Path)
		if err != nil {
			return fmt.Errorf("merge: re-read %s after resolution: %w", r.Path, err)
		}
		if markersRemain(content) {
			remaining = append(remaining, r.Path)
		}
	}
	if len(remaining) > 0 {
		return &ErrConflictResolutionFailed{Paths: remaining}
	}
	return nil
}

// ErrConflictResolutionFailed is returned when the resolver worker
// finished but left conflict markers in one or more files.
type ErrConflictResolutionFailed struct {
	Paths []string
}

func (e *ErrConflictResolutionFailed) Error() string {
	return fmt.Sprintf("merge: conflict markers remain in %v after resolution", e.Paths)
}
