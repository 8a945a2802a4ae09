package cmd

import (
	"fmt"

	"github.com/bnema/wfplug/internal/ui"
	"github.com/spf13/cobra"
)

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List the IPC methods of the running wfplug",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, addr, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		methods, err := listMethods(conn)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.SubheaderStyle.Render(fmt.Sprintf("%d methods at %s", len(methods), addr)))
		fmt.Fprintln(out, ui.CreateSeparator(40, ""))
		for _, m := range methods {
			fmt.Fprintln(out, ui.FormatMethod(m))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(methodsCmd)
}
