package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xdg/hookgate/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the commented default config file",
	Long: `Create the default configuration file with all settings present but
commented out, so the built-in rules stay authoritative until the
operator uncomments and edits them. An existing file is left untouched.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := config.WriteDefaultConfig(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Config ready at %s\n", config.Path())
	return nil
}
