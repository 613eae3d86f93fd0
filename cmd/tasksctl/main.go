package main

import (
	"fmt"
	"os"

	"github.com/benvon/smart-tasks/cmd/tasksctl/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:          "tasksctl",
		Short:        "Operator tool for the smart-tasks consolidation engine",
		Long:         "Run the consolidation pipeline on fixtures, manage the task schema and enqueue worker jobs",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(commands.NewConsolidateCmd())
	rootCmd.AddCommand(commands.NewMigrateCmd())
	rootCmd.AddCommand(commands.NewEnqueueCmd())
	rootCmd.AddCommand(commands.NewListCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
