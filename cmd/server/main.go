package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	root := &cobra.Command{
		Use:           "assessment-orchestrator",
		Short:         "Durable orchestration of extended clinical risk assessments",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := newServeCmd()
	root.AddCommand(serveCmd, newMigrateCmd())

	// Serve when no subcommand is given
	root.RunE = serveCmd.RunE

	if err := root.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
