package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version info set by main package
	Commit string
	Date   string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "wfplug %s\n", Version)
		if Commit != "" {
			fmt.Fprintf(out, "commit: %s\n", Commit)
		}
		if Date != "" {
			fmt.Fprintf(out, "built: %s\n", Date)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
