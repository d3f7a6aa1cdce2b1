package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "safelayer %s\n", resolvedVersion())
		fmt.Fprintf(cmd.OutOrStdout(), "  commit:     %s\n", Commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:      %s\n", BuildDate)
		fmt.Fprintf(cmd.OutOrStdout(), "  go version: %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
