package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X yap/cmd.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the yap version",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args
		fmt.Fprintln(cmd.OutOrStdout(), "yap "+version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
