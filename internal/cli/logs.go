package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zenweave/zen/internal/config"
	"github.com/zenweave/zen/internal/model"
	"github.com/zenweave/zen/internal/statestore"
)

var logsCmd = &cobra.Command{
	Use:   "logs <workflow-id>",
	Short: "Show a persisted workflow's phase and task history",
	Long: `Show the phase transitions and per-task outcomes recorded for a workflow
in the repository's state store.

Example:
  zen logs 3f2b9c1e-8a4d-4e7f-b6c2-1d9e5a7f0b34
  zen logs 3f2b9c1e-8a4d-4e7f-b6c2-1d9e5a7f0b34 --task 7c1e4a92`,
	Args: cobra.ExactArgs(1),
	RunE: getLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().String("task", "", "show only the named task's history")
}

func getLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if repo := viper.GetString("project.repository"); repo != "" {
		cfg.Project.Repository = repo
	}
	if cfg.Project.Repository == "" {
		return fmt.Errorf("project.repository not configured")
	}

	store, err := statestore.Open(cfg.Project.Repository)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}

	wf, err := store.LoadWorkflow(model.ID(args[0]))
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", args[0], err)
	}

	if taskFilter, _ := cmd.Flags().GetString("task"); taskFilter != "" {
		return printTaskLog(store, wf, taskFilter)
	}

	fmt.Printf("Workflow %s: %s\n\n", wf.ID.Short(), wf.Prompt)
	fmt.Println("Phase history:")
	for _, entry := range wf.History {
		fmt.Printf("  [%s] %s\n", entry.Timestamp.Format(time.RFC3339), entry.Phase)
	}
	if wf.LastError != "" {
		fmt.Printf("\nLast error: %s\n", wf.LastError)
	}

	if len(wf.Tasks) == 0 {
		return nil
	}

	fmt.Println("\nTasks:")
	for _, taskID := range wf.Tasks {
		task, err := store.LoadTask(taskID)
		if err != nil {
			fmt.Printf("  %s: failed to load (%v)\n", taskID.Short(), err)
			continue
		}
		printTaskSummary(task)
	}

	return nil
}

func printTaskLog(store *statestore.Store, wf *model.Workflow, taskFilter string) error {
	for _, taskID := range wf.Tasks {
		if taskID.Short() != taskFilter && taskID.String() != taskFilter {
			continue
		}
		task, err := store.LoadTask(taskID)
		if err != nil {
			return fmt.Errorf("failed to load task %s: %w", taskFilter, err)
		}
		printTaskSummary(task)
		return nil
	}
	return fmt.Errorf("no task %q found in workflow %s", taskFilter, wf.ID.Short())
}

func printTaskSummary(task *model.Task) {
	fmt.Printf("  %s (%s) — %s\n", task.ID.Short(), task.Status, task.Name)
	if task.BranchName != "" {
		fmt.Printf("    branch: %s\n", task.BranchName)
	}
	if task.CommitHash != "" {
		fmt.Printf("    commit: %s\n", task.CommitHash)
	}
	if task.RetryCount > 0 {
		fmt.Printf("    retries: %d\n", task.RetryCount)
	}
	if task.LastError != "" {
		fmt.Printf("    error: %s\n", task.LastError)
	}
}
