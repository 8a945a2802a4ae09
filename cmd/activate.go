package cmd

import (
	"github.com/bnema/wfplug/internal/activator"
	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/plugin/basic"
	"github.com/spf13/cobra"
)

var (
	activateOutput  int64
	activateView    int64
	activateBinding string
)

var activateCmd = &cobra.Command{
	Use:   "activate [activator]",
	Short: "Run an activator over IPC",
	Long: `Run an activator (default basic-example/activator_option) as if it was
triggered from IPC. With --binding, the binding is fed to every activator
instead, as if it was pressed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, _, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		method := basic.ActivatorName
		if len(args) > 0 {
			method = args[0]
		}

		data := ipc.Document{}
		if activateOutput != 0 {
			data["output_id"] = activateOutput
		}
		if activateView != 0 {
			data["view_id"] = activateView
		}
		if activateBinding != "" {
			method = activator.TriggerMethodName
			data["binding"] = activateBinding
		}

		resp, err := conn.Call(method, data)
		if err != nil {
			return err
		}
		if err := printDocument(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
		printResult(cmd.ErrOrStderr(), method, resp)
		return ipc.ResponseError(resp)
	},
}

func init() {
	activateCmd.Flags().Int64Var(&activateOutput, "output", 0, "Output id passed to the handler")
	activateCmd.Flags().Int64Var(&activateView, "view", 0, "View id passed to the handler")
	activateCmd.Flags().StringVarP(&activateBinding, "binding", "b", "", `Trigger a binding such as "<super> KEY_E"`)
	rootCmd.AddCommand(activateCmd)
}
