package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"reflect"
	"syscall"

	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/logger"
	"github.com/bnema/wfplug/internal/plugin/basic"
	"github.com/spf13/cobra"
)

var subscribeCount int

var subscribeCmd = &cobra.Command{
	Use:   "subscribe [topic]",
	Short: "Subscribe to a topic and print every event",
	Long: `Subscribe to a topic (default basic-example/client-interest) and print each
pushed event as JSON until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubscribe,
}

func init() {
	subscribeCmd.Flags().IntVarP(&subscribeCount, "count", "n", 0, "Exit after this many events (0 means run until interrupted)")
	rootCmd.AddCommand(subscribeCmd)
}

func topicArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return basic.ClientInterestMethod
}

// subscribe sends the subscribe request and returns the events received so
// far, oldest first. The server pushes this client's copy of the broadcast
// before the direct response, which carries the same document, and other
// broadcasts may arrive between the two. The direct response is consumed
// here so it is not reported as a second event.
func subscribe(conn *ipc.Conn, topic string) ([]ipc.Document, error) {
	first, err := conn.Call(topic, ipc.Document{"type": ipc.InterestSubscribe})
	if err != nil {
		return nil, err
	}
	if err := ipc.ResponseError(first); err != nil {
		return nil, err
	}

	events := []ipc.Document{first}
	if ev, _ := first.String("event"); ev != ipc.SubscribersChangedEvent {
		// Not a broker topic; the response was the only frame.
		return events, nil
	}

	for {
		doc, err := conn.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to read subscribe response: %w", err)
		}
		if reflect.DeepEqual(doc, first) {
			return events, nil
		}
		events = append(events, doc)
	}
}

func runSubscribe(cmd *cobra.Command, args []string) error {
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
	logger.Debugf("Subscribed to %s at %s", topic, addr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	out := cmd.OutOrStdout()
	seen := 0
	for _, doc := range events {
		if subscribeCount != 0 && seen == subscribeCount {
			return nil
		}
		if err := printDocument(out, doc); err != nil {
			return err
		}
		seen++
	}

	for ; subscribeCount == 0 || seen < subscribeCount; seen++ {
		doc, err := conn.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("subscription ended: %w", err)
		}
		if err := printDocument(out, doc); err != nil {
			return err
		}
	}
	return nil
}
