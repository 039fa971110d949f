// Package main provides linkctl, a command line companion to the linker
// server for trying queries and moving data in and out of storage.
package main

import (
	"fmt"
	"os"

	"github.com/liamcoop/linker/internal/logger"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "linkctl",
		Short: "Inspect and manage linker shortcuts",
		Long: `linkctl evaluates linker queries against a data file and moves
shortcuts and lookup tables between files and PostgreSQL.

Examples:
  # Show how a query resolves
  linkctl eval --data linker.yaml go mr 42

  # Check a document before importing it
  linkctl validate --data linker.yaml

  # Dump the database to YAML
  linkctl export --database-url postgres://localhost/linker --format yaml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.SetOutput(cmd.ErrOrStderr())
			return logger.Configure(logLevel, 1)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")

	cmd.AddCommand(evalCmd())
	cmd.AddCommand(validateCmd())
	cmd.AddCommand(exportCmd())
	cmd.AddCommand(importCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linkctl version %s\n", Version)
		},
	})

	return cmd
}
