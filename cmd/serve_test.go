package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bnema/wfplug/internal/config"
	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/plugin/basic"
	"github.com/bnema/wfplug/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDaemon runs an in-process daemon on a private socket and returns its path
func startDaemon(t *testing.T) string {
	t.Helper()
	isolateConfig(t)
	require.NoError(t, config.Init())

	// Unix socket paths are short, t.TempDir can be too deep
	dir, err := os.MkdirTemp("", "wfplug")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "ipc.sock")

	cfg := *config.Get()
	cfg.SSH.Enabled = false

	d, err := newDaemon(&cfg, socket)
	require.NoError(t, err)
	require.NoError(t, d.start(context.Background()))
	t.Cleanup(d.stop)

	return socket
}

func TestDaemonCommands(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping daemon test in short mode")
	}
	socket := startDaemon(t)

	t.Run("methods lists plugin methods", func(t *testing.T) {
		out, err := executeCommandOutput(rootCmd, "methods", "--socket", socket)
		require.NoError(t, err)
		assert.Contains(t, out, basic.ClientInterestMethod)
		assert.Contains(t, out, basic.ActivatorName)
		assert.Contains(t, out, "bindings/trigger")
		assert.Contains(t, out, "────")
	})

	t.Run("call oneshot", func(t *testing.T) {
		out, verdict, err := executeCommandStreams(rootCmd, "call", basic.ClientInterestMethod, `{"type":"oneshot"}`, "--socket", socket)
		require.NoError(t, err)
		assert.Contains(t, out, `"nr-subscribers"`)
		assert.Contains(t, out, `"ok"`)
		assert.NotContains(t, out, ui.IconSuccess)
		assert.Contains(t, verdict, ui.IconSuccess)
		assert.Contains(t, verdict, basic.ClientInterestMethod)
	})

	t.Run("call with bad interest type", func(t *testing.T) {
		out, verdict, err := executeCommandStreams(rootCmd, "call", basic.ClientInterestMethod, `{"type":"sometimes"}`, "--socket", socket)
		require.Error(t, err)
		assert.Contains(t, out, "Invalid interest type!")
		assert.Contains(t, verdict, ui.IconError)
		assert.Contains(t, verdict, "Invalid interest type!")
	})

	t.Run("call unknown method", func(t *testing.T) {
		_, err := executeCommandOutput(rootCmd, "call", "nobody/home", "--socket", socket)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "No such method found!")
	})

	t.Run("call with invalid JSON", func(t *testing.T) {
		_, err := executeCommandOutput(rootCmd, "call", basic.ClientInterestMethod, `{type`, "--socket", socket)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid request data")
	})

	t.Run("activate with output", func(t *testing.T) {
		out, err := executeCommandOutput(rootCmd, "activate", "--output", "3", "--socket", socket)
		require.NoError(t, err)
		assert.Contains(t, out, `"ok"`)
	})

	t.Run("activate by binding", func(t *testing.T) {
		out, err := executeCommandOutput(rootCmd, "activate", "--binding", "<super> <shift> KEY_E", "--socket", socket)
		require.NoError(t, err)
		assert.Contains(t, out, `"handled"`)
		assert.Contains(t, out, "true")
	})

	t.Run("subscribe prints each broadcast once", func(t *testing.T) {
		type result struct {
			out string
			err error
		}
		done := make(chan result, 1)
		go func() {
			out, err := executeCommandOutput(rootCmd, "subscribe", "--count", "2", "--socket", socket)
			done <- result{out, err}
		}()

		observer, err := ipc.Dial(socket, time.Second)
		require.NoError(t, err)
		defer observer.Close()

		require.Eventually(t, func() bool {
			resp, err := observer.Call(basic.ClientInterestMethod, ipc.Document{"type": ipc.InterestOneshot})
			if err != nil {
				return false
			}
			n, _ := resp.Int("nr-subscribers")
			return n == 1
		}, 2*time.Second, 20*time.Millisecond)

		// A second subscriber causes the only other broadcast.
		second, err := ipc.Dial(socket, time.Second)
		require.NoError(t, err)
		defer second.Close()
		_, err = second.Call(basic.ClientInterestMethod, ipc.Document{"type": ipc.InterestSubscribe})
		require.NoError(t, err)

		var res result
		select {
		case res = <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("subscribe did not see the second broadcast")
		}
		require.NoError(t, res.err)

		assert.Equal(t, 2, strings.Count(res.out, "nr-subscribers-changed"))
		assert.Regexp(t, `"nr-subscribers":\s*1\b`, res.out)
		assert.Regexp(t, `"nr-subscribers":\s*2\b`, res.out)
	})
}

func TestDaemonSocketMissing(t *testing.T) {
	isolateConfig(t)
	socket := filepath.Join(t.TempDir(), "absent.sock")

	_, err := executeCommandOutput(rootCmd, "methods", "--socket", socket)
	require.Error(t, err)
}
