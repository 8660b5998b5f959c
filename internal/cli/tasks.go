package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zenweave/zen/internal/config"
	"github.com/zenweave/zen/internal/model"
	"github.com/zenweave/zen/internal/statestore"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List or delete tasks recorded in the state store",
	Long: `List every task recorded in the repository's state store, across all
workflows, or delete one by ID.

Examples:
  zen tasks
  zen tasks --delete 7c1e4a92-3b5d-4f86-9e0a-2d4c6b8f1a57`,
	Args: cobra.NoArgs,
	RunE: runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.Flags().String("delete", "", "delete the named task's recorded state")
}

func runTasks(cmd *cobra.Command, args []string) error {
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

	if id, _ := cmd.Flags().GetString("delete"); id != "" {
		if err := store.DeleteTask(model.ID(id)); err != nil {
			return fmt.Errorf("failed to delete task %s: %w", id, err)
		}
		fmt.Printf("Deleted task %s\n", id)
		return nil
	}

	ids, err := store.ListTaskIDs()
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	if len(ids) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	fmt.Printf("%-38s %-14s %-20s %s\n", "TASK", "STATUS", "BRANCH", "NAME")
	fmt.Println(strings.Repeat("-", 100))
	for _, id := range ids {
		task, err := store.LoadTask(id)
		if err != nil {
			fmt.Printf("%-38s %-14s %-20s (failed to load: %v)\n", id.String(), "?", "", err)
			continue
		}
		fmt.Printf("%-38s %-14s %-20s %s\n", task.ID.String(), task.Status, task.BranchName, task.Name)
	}
	fmt.Printf("\n%d task(s) found.\n", len(ids))
	return nil
}
