// Package merge implements the merge/resolve pipeline: it folds each
// completed task's branch into a per-workflow staging line and, when a
// fold conflicts, dispatches a dedicated conflict-resolver worker to
// settle it autonomously before continuing.
package merge

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zenweave/zen/internal/agent"
	"github.com/zenweave/zen/internal/agentpool"
	"github.com/zenweave/zen/internal/model"
)

// Outcome tags the result of a Pipeline run.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeConflicts Outcome = "conflicts"
	OutcomeFailed    Outcome = "failed"
)

// Result is the outcome of folding every task branch into staging.
type Result struct {
	Outcome    Outcome
	CommitHash string
	Conflicts  []ConflictRecord
	Err        error
}

// Pipeline owns one workflow's merge run: it shells to git for the
// actual branch folding (go-git's merge support does not yet implement
// three-way content merges with conflict markers) and uses the agent
// pool to dispatch the conflict-resolver worker when folding conflicts.
type Pipeline struct {
	repoDir       string
	pool          *agentpool.Pool
	resolverAgent agent.Agent
	resolverSkill string
	stagingPrefix string
	pollInterval  time.Duration
	skillTimeout  time.Duration
	logger        *log.Logger
}

// Config carries the tunables a Pipeline needs.
type Config struct {
	StagingBranchPrefix string
	PollInterval        time.Duration
	SkillTimeout        time.Duration
}

// New returns a Pipeline that folds branches in repoDir, dispatching
// conflict-resolver workers through pool using resolverAgent primed
// with the compiled conflict-resolver skill prompt (resolverSkill).
func New(repoDir string, pool *agentpool.Pool, resolverAgent agent.Agent, resolverSkill string, cfg Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.StagingBranchPrefix == "" {
		cfg.StagingBranchPrefix = "zen/staging/"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.SkillTimeout <= 0 {
		cfg.SkillTimeout = 10 * time.Minute
	}
	return &Pipeline{
		repoDir:       repoDir,
		pool:          pool,
		resolverAgent: resolverAgent,
		resolverSkill: resolverSkill,
		stagingPrefix: cfg.StagingBranchPrefix,
		pollInterval:  cfg.PollInterval,
		skillTimeout:  cfg.SkillTimeout,
		logger:        logger,
	}
}

// StagingBranch returns the deterministic staging branch name for a
// workflow.
func (p *Pipeline) StagingBranch(workflowID model.ID) string {
	return p.stagingPrefix + workflowID.String()
}

// Run creates the staging branch from baseCommit and folds in each of
// taskBranches in the order given, resolving conflicts as they arise.
// The workflow controller passes the branches in the order their tasks
// completed.
func (p *Pipeline) Run(ctx context.Context, workflowID model.ID, baseCommit string, taskBranches []string) *Result {
	staging := p.StagingBranch(workflowID)
	if err := createStagingBranch(ctx, p.repoDir, staging, baseCommit); err != nil {
		return &Result{Outcome: OutcomeFailed, Err: err}
	}

	for _, branch := range taskBranches {
		conflicted, err := foldBranch(ctx, p.repoDir, branch)
		if err != nil {
			return &Result{Outcome: OutcomeFailed, Err: err}
		}
		if !conflicted {
			continue
		}

		records, err := buildConflictRecords(ctx, p.repoDir)
		if err != nil {
			return &Result{Outcome: OutcomeFailed, Err: err}
		}
		p.logger.Printf("[merge] folding %s produced %d conflicted file(s); dispatching resolver", branch, len(records))

		if err := p.runResolver(ctx, workflowID, p.repoDir, records); err != nil {
			if failed, ok := err.(*ErrConflictResolutionFailed); ok {
				return &Result{Outcome: OutcomeConflicts, Conflicts: records, Err: failed}
			}
			return &Result{Outcome: OutcomeFailed, Err: fmt.Errorf("merge: resolve conflicts in %s: %w", branch, err)}
		}

		hash, err := commitResolution(ctx, p.repoDir, fmt.Sprintf("Resolve merge conflicts folding %s", branch))
		if err != nil {
			return &Result{Outcome: OutcomeFailed, Err: err}
		}
		p.logger.Printf("[merge] resolution commit %s for %s", hash[:minInt(8, len(hash))], branch)
	}

	hash, err := headCommit(ctx, p.repoDir)
	if err != nil {
		return &Result{Outcome: OutcomeFailed, Err: err}
	}
	return &Result{Outcome: OutcomeSuccess, CommitHash: hash}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
