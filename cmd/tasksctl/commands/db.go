package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/benvon/smart-tasks/internal/config"
	"github.com/benvon/smart-tasks/internal/database"
	"github.com/spf13/cobra"
)

func openDatabase(cmd *cobra.Command) (*database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := database.New(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func closeDatabase(db *database.DB) {
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

// NewMigrateCmd creates the migrate command
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the task schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	var threadID string
	var includeCompleted bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tasks of a thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(threadID) == "" {
				return fmt.Errorf("--thread is required")
			}
			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			repo := database.NewTaskRepository(db)
			list := repo.GetActiveByThread
			if includeCompleted {
				list = repo.GetByThread
			}
			tasks, err := list(cmd.Context(), threadID)
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintf(out, "No tasks in thread %s\n", threadID)
				return nil
			}
			fmt.Fprintf(out, "Tasks in thread %s:\n", threadID)
			for _, t := range tasks {
				v := viewOf(t)
				fmt.Fprintf(out, "\n  %s\n", v.Description)
				fmt.Fprintf(out, "    ID:       %s\n", v.ID)
				fmt.Fprintf(out, "    Priority: %s\n", v.Priority)
				fmt.Fprintf(out, "    Status:   %s\n", v.Status)
				if v.Deadline != "" {
					fmt.Fprintf(out, "    Deadline: %s\n", v.Deadline)
				}
				if v.Parent != "" {
					fmt.Fprintf(out, "    Parent:   %s\n", v.Parent)
				}
				if len(v.Children) > 0 {
					fmt.Fprintf(out, "    Children: %s\n", strings.Join(v.Children, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "Thread id")
	cmd.Flags().BoolVar(&includeCompleted, "all", false, "Include completed tasks")
	return cmd
}
