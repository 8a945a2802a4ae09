package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/bnema/wfplug/internal/logger"
	"github.com/bnema/wfplug/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [topic]",
	Short: "Subscribe to a topic in an interactive view",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := topicArg(args)

		conn, addr, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		events, err := subscribe(conn, topic)
		if err != nil {
			return err
		}

		// Keep log lines from tearing the view
		logger.SetOutput(io.Discard)

		model := ui.NewWatchModel(topic, addr, conn)
		now := time.Now()
		for _, doc := range events {
			model.Update(ui.EventMsg{Doc: doc, Time: now})
		}

		p := tea.NewProgram(model)
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("watch UI failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
