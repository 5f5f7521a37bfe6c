package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xdg/hookgate/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the hookgate version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hookgate %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
