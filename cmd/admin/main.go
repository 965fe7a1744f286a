package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskdeck/taskdeck-api/cmd/admin/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "taskdeck-admin",
		Short: "Operations tool for the TaskDeck API",
		Long:  "CLI tool for running archival sweeps and checking backing services",
	}

	rootCmd.AddCommand(commands.NewArchiveCmd())
	rootCmd.AddCommand(commands.NewTestCmd())
	rootCmd.AddCommand(commands.NewConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
