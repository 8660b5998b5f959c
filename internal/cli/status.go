package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zenweave/zen/internal/config"
	"github.com/zenweave/zen/internal/model"
	"github.com/zenweave/zen/internal/statestore"
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Check workflow status",
	Long: `Check the status of zen workflows recorded in the repository's state store.

Without arguments, lists every workflow zen has recorded against the
configured repository. With a workflow ID, shows detailed phase and task
status for that workflow.

Examples:
  zen status                    # List all workflows
  zen status 3f2b9c1e-8a4d-4e7f-b6c2-1d9e5a7f0b34   # Show a specific workflow's tasks`,
	Args: cobra.MaximumNArgs(1),
	RunE: checkStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("delete", false, "delete the named workflow's recorded state instead of showing it")
}

func checkStatus(cmd *cobra.Command, args []string) error {
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
	if err := store.HealthCheck(); err != nil {
		return fmt.Errorf("state store unreachable: %w", err)
	}

	if del, _ := cmd.Flags().GetBool("delete"); del {
		if len(args) != 1 {
			return fmt.Errorf("--delete requires exactly one workflow ID")
		}
		if err := store.DeleteWorkflow(model.ID(args[0])); err != nil {
			return fmt.Errorf("failed to delete workflow %s: %w", args[0], err)
		}
		fmt.Printf("Deleted workflow %s\n", args[0])
		return nil
	}

	if len(args) == 0 {
		return listWorkflows(store)
	}

	return showWorkflowStatus(store, args[0])
}

func listWorkflows(store *statestore.Store) error {
	ids, err := store.ListWorkflowIDs()
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}
	if len(ids) == 0 {
		fmt.Println("No workflows found.")
		return nil
	}

	fmt.Printf("%-38s %-14s %-16s %-6s %s\n", "WORKFLOW", "PHASE", "STATUS", "TASKS", "PROMPT")
	fmt.Println(strings.Repeat("-", 100))

	for _, id := range ids {
		wf, err := store.LoadWorkflow(id)
		if err != nil {
			continue
		}
		fmt.Printf("%-38s %-14s %-16s %-6d %s\n",
			wf.ID.String(), wf.Phase, wf.Status, len(wf.Tasks), truncate(wf.Prompt, 40))
	}

	fmt.Printf("\n%d workflow(s) found.\n", len(ids))
	return nil
}

func showWorkflowStatus(store *statestore.Store, rawID string) error {
	id := model.ID(rawID)
	wf, err := store.LoadWorkflow(id)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", rawID, err)
	}

	fmt.Printf("Workflow: %s\n", wf.ID.String())
	fmt.Printf("Name: %s\n", wf.Name)
	fmt.Printf("Prompt: %s\n", wf.Prompt)
	fmt.Printf("Phase: %s\n", wf.Phase)
	fmt.Printf("Status: %s\n", wf.Status)
	if wf.StartedAt != nil {
		fmt.Printf("Started: %s\n", wf.StartedAt.Format(time.RFC3339))
	}
	if wf.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", wf.CompletedAt.Format(time.RFC3339))
		if wf.StartedAt != nil {
			fmt.Printf("Duration: %s\n", wf.CompletedAt.Sub(*wf.StartedAt).Round(time.Second))
		}
	}
	if wf.LastError != "" {
		fmt.Printf("Last error: %s\n", wf.LastError)
	}

	if len(wf.Tasks) == 0 {
		return nil
	}

	fmt.Println("\nTasks:")
	fmt.Printf("%-38s %-12s %-20s %s\n", "TASK", "STATUS", "BRANCH", "NAME")
	fmt.Println(strings.Repeat("-", 100))
	for _, taskID := range wf.Tasks {
		task, err := store.LoadTask(taskID)
		if err != nil {
			fmt.Printf("%-38s %-12s %-20s (failed to load: %v)\n", taskID.String(), "?", "", err)
			continue
		}
		fmt.Printf("%-38s %-12s %-20s %s\n", task.ID.String(), task.Status, task.BranchName, task.Name)
		if task.LastError != "" {
			fmt.Printf("  error: %s\n", task.LastError)
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
