// Package cmd implements the CLI commands for hookgate.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xdg/hookgate/internal/version"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hookgate",
	Short: "Hook mediation and iteration control for coding agents",
	Long: `Hookgate sits between an agent runtime and the operations it proposes.
Wired in as the runtime's hook handler, it vets shell commands and file
edits against guard rules, keeps an append-only audit trail, and can hold
a session in an iteration loop until a task is done.

Typical wiring registers 'hookgate hook' for the runtime's tool-use and
stop events; 'hookgate loop start' arms the iteration loop for a task.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns any error.
func Execute() error {
	return rootCmd.Execute()
}
