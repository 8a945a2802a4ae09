package cmd

import (
	"fmt"
	"io"

	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/ui"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call [method] [json]",
	Short: "Call an IPC method and print the response",
	Long: `Call an IPC method with an optional JSON object as request data. Without a
method name, the available methods are listed for selection.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	conn, _, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	var method string
	if len(args) > 0 {
		method = args[0]
	} else {
		method, err = selectMethod(conn)
		if err != nil {
			return err
		}
	}

	var data ipc.Document
	if len(args) > 1 {
		data, err = ipc.ParseJSON([]byte(args[1]))
		if err != nil {
			return fmt.Errorf("invalid request data: %w", err)
		}
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
}

// listMethods asks the server for its registered methods
func listMethods(conn *ipc.Conn) ([]string, error) {
	resp, err := conn.Call(ipc.ListMethodsName, nil)
	if err != nil {
		return nil, err
	}
	if err := ipc.ResponseError(resp); err != nil {
		return nil, err
	}

	raw, _ := resp["methods"].([]interface{})
	methods := make([]string, 0, len(raw))
	for _, m := range raw {
		if s, ok := m.(string); ok {
			methods = append(methods, s)
		}
	}
	return methods, nil
}

// selectMethod presents an interactive selection of the server's methods
func selectMethod(conn *ipc.Conn) (string, error) {
	methods, err := listMethods(conn)
	if err != nil {
		return "", err
	}
	if len(methods) == 0 {
		return "", fmt.Errorf("no methods registered")
	}

	options := make([]huh.Option[string], len(methods))
	for i, m := range methods {
		options[i] = huh.NewOption(m, m)
	}

	var selected string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Method").
				Description("Choose the IPC method to call").
				Options(options...).
				Value(&selected),
		),
	)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("method selection cancelled: %w", err)
	}
	return selected, nil
}

// printResult writes a one-line verdict for resp. Callers pass stderr, stdout
// carries the JSON.
func printResult(w io.Writer, method string, resp ipc.Document) {
	if resp.IsError() {
		fmt.Fprintln(w, ui.FormatResult(false, method+": "+resp.ErrorMessage()))
		return
	}
	fmt.Fprintln(w, ui.FormatResult(true, method))
}

func printDocument(w io.Writer, doc ipc.Document) error {
	out, err := ipc.FormatJSON(doc)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
