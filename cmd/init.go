package cmd

import (
	"fmt"

	"yap/pkg/workspace"

	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write starter config.json, messages.json and .env.example",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}

		files, err := workspace.Scaffold(dir, initForce)
		for _, f := range files {
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", f.Status, f.Path)
		}
		if err != nil {
			return fmt.Errorf("scaffold: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing files")
}
