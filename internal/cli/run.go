package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zenweave/zen/internal/agent"
	"github.com/zenweave/zen/internal/config"
	"github.com/zenweave/zen/internal/routing"
	"github.com/zenweave/zen/internal/skills"
	"github.com/zenweave/zen/internal/statestore"
	"github.com/zenweave/zen/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a prompt through zen's planning/implementation/merge pipeline",
	Long: `Run drives a single prompt through zen's full phase sequence against a
local git repository: a planning skill produces plan.md, a task-generation
skill splits it into dependency-ordered *.code-task.md files, one worker
agent per ready task implements it in its own git worktree, and the
completed task branches are folded back into a staging branch.

Example:
  zen run --repo /path/to/repo --prompt "add a health check endpoint"`,
	RunE: runWorkflow,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("repo", "", "path to the local git repository zen operates on")
	runCmd.Flags().String("prompt", "", "the prompt describing the work to perform")
	runCmd.Flags().String("agent", "", "worker agent to use (claude-code, codex)")
	runCmd.Flags().Int("max-parallel", 0, "maximum number of concurrently running task workers")
	runCmd.Flags().Bool("update-docs", false, "run the documentation phase after merging")
	runCmd.Flags().String("model", "", "model for the planning, task-generation and documentation phases (format: adapter:model)")
	runCmd.Flags().StringSlice("phase-model", nil, "per-phase model override (format: phase=adapter:model)")
	runCmd.Flags().Bool("dry-run", false, "print the resolved configuration without running")

	_ = viper.BindPFlag("project.repository", runCmd.Flags().Lookup("repo"))
	_ = viper.BindPFlag("worker_agent", runCmd.Flags().Lookup("agent"))
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt signal, cleaning up...")
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if repo := viper.GetString("project.repository"); repo != "" {
		cfg.Project.Repository = repo
	}
	if workerAgent := viper.GetString("worker_agent"); workerAgent != "" {
		cfg.WorkerAgent = workerAgent
	}
	if cmd.Flags().Changed("max-parallel") {
		maxParallel, _ := cmd.Flags().GetInt("max-parallel")
		cfg.MaxParallel = maxParallel
	}
	if cmd.Flags().Changed("update-docs") {
		updateDocs, _ := cmd.Flags().GetBool("update-docs")
		cfg.UpdateDocs = updateDocs
	}

	prompt, _ := cmd.Flags().GetString("prompt")
	if prompt == "" {
		return fmt.Errorf("--prompt is required")
	}

	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Routing.Default = routing.ParseModelSpec(model)
	}
	if phaseModels, _ := cmd.Flags().GetStringSlice("phase-model"); len(phaseModels) > 0 {
		if cfg.Routing.Overrides == nil {
			cfg.Routing.Overrides = make(map[string]routing.ModelConfig)
		}
		for _, pm := range phaseModels {
			parts := strings.SplitN(pm, "=", 2)
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return fmt.Errorf("invalid --phase-model value %q: expected format phase=adapter:model", pm)
			}
			cfg.Routing.Overrides[strings.ToLower(parts[0])] = routing.ParseModelSpec(parts[1])
		}
	}

	if err := cfg.ValidateForRun(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	verbose := viper.GetBool("verbose")

	fmt.Printf("Repository: %s\n", cfg.Project.Repository)
	fmt.Printf("Worker agent: %s\n", cfg.WorkerAgent)
	fmt.Printf("Max parallel tasks: %d\n", cfg.MaxParallel)
	if cfg.UpdateDocs {
		fmt.Println("Documentation phase: enabled")
	}
	fmt.Println()

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		fmt.Println("Dry run - no workflow will be started")
		return nil
	}

	defaultAgent, err := agent.Get(cfg.WorkerAgent)
	if err != nil {
		return fmt.Errorf("failed to construct worker agent: %w", err)
	}

	store, err := statestore.Open(cfg.Project.Repository)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.HealthCheck(); err != nil {
		return fmt.Errorf("state store unreachable: %w", err)
	}

	legacyDir := filepath.Join(cfg.Project.Repository, ".zen", "state")
	if needsMigration, err := store.NeedsMigration(legacyDir); err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	} else if needsMigration {
		if verbose {
			fmt.Fprintln(os.Stderr, "Migrating legacy .zen/state JSON layout into git-native storage...")
		}
		if err := store.MigrateFromJSON(legacyDir); err != nil {
			return fmt.Errorf("failed to migrate legacy state: %w", err)
		}
	}

	manifest, err := skills.LoadManifest()
	if err != nil {
		return fmt.Errorf("failed to load skill manifest: %w", err)
	}
	loadedSkills, err := skills.LoadSkills(manifest)
	if err != nil {
		return fmt.Errorf("failed to load skills: %w", err)
	}
	selector := skills.NewSelector(loadedSkills)

	var logger *log.Logger
	if verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	worktreeDir := cfg.WorktreeDir
	if !filepath.IsAbs(worktreeDir) {
		worktreeDir = filepath.Join(cfg.Project.Repository, worktreeDir)
	}

	ctrl := workflow.New(cfg.Project.Repository, worktreeDir, cfg.ToWorkflowConfig(), store, defaultAgent, cfg.Router(), selector, logger)

	wf, err := ctrl.Run(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("Workflow interrupted by user")
			return nil
		}
		return fmt.Errorf("workflow failed: %w", err)
	}

	fmt.Printf("\nWorkflow %s completed with status %s\n", wf.ID.Short(), wf.Status)
	fmt.Printf("To check status: zen status %s\n", wf.ID.String())

	return nil
}
