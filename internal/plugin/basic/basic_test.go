package basic

import (
	"bytes"
	"testing"

	"github.com/bnema/wfplug/internal/activator"
	"github.com/bnema/wfplug/internal/ipc"
	"github.com/bnema/wfplug/internal/options"
	"github.com/bnema/wfplug/internal/plugin"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClient struct {
	id       string
	received []ipc.Document
}

func (c *testClient) ID() string { return c.id }

func (c *testClient) Send(d ipc.Document) error {
	c.received = append(c.received, d)
	return nil
}

type fixture struct {
	hub      *ipc.Hub
	source   *viper.Viper
	store    *options.Store
	bindings *activator.Bindings
	host     *plugin.Host
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, intOption int) *fixture {
	t.Helper()

	v := viper.New()
	v.Set("basic-example.int_option", intOption)
	v.Set("basic-example.double_option", 0.5)
	v.Set("basic-example.bool_option", false)
	v.Set("basic-example.string_option", "hello")
	v.Set("basic-example.activator_option", "<super> <shift> KEY_E | <alt> BTN_LEFT")
	v.Set("basic-example.list_opt", []interface{}{
		map[string]interface{}{"name": "term", "binding": "<super> KEY_ENTER", "command": "foot", "type": "exec"},
	})

	f := &fixture{
		hub:      ipc.NewHub(ipc.NewRegistry()),
		source:   v,
		bindings: activator.NewBindings(),
		logs:     &bytes.Buffer{},
	}
	f.store = options.NewStore(v)
	f.host = &plugin.Host{
		Registry:  f.hub.Registry(),
		Transport: f.hub,
		Options:   f.store,
		Bindings:  f.bindings,
		Logger:    log.NewWithOptions(f.logs, log.Options{Level: log.DebugLevel}),
	}
	return f
}

func TestInitRegistersEverything(t *testing.T) {
	f := newFixture(t, 5)
	p := New()
	require.NoError(t, p.Init(f.host))
	defer p.Fini()

	assert.Equal(t, []string{ActivatorName, ClientInterestMethod}, f.hub.Registry().Methods())
	// One callback from the option handler, one from the activator
	assert.Equal(t, 2, f.bindings.Len())
	assert.NotNil(t, p.Broker())

	out := f.logs.String()
	assert.Contains(t, out, "basic-example/int_option is 5!")
	assert.Contains(t, out, "name=term")
	assert.Contains(t, out, "command=foot")
}

func TestInitLogsIntOptionMismatch(t *testing.T) {
	f := newFixture(t, 3)
	p := New()
	require.NoError(t, p.Init(f.host))
	defer p.Fini()

	assert.Contains(t, f.logs.String(), "basic-example/int_option is not 5!")
}

func TestBoolOptionIsLocked(t *testing.T) {
	f := newFixture(t, 5)
	p := New()
	require.NoError(t, p.Init(f.host))

	opt, err := f.store.Bool(Name + "/bool_option")
	require.NoError(t, err)
	assert.True(t, opt.Value())
	assert.True(t, opt.Locked())

	f.source.Set("basic-example.bool_option", false)
	require.NoError(t, f.store.Reload())
	assert.True(t, opt.Value())

	p.Fini()
	assert.False(t, opt.Locked())
}

func TestClientInterestThroughHub(t *testing.T) {
	f := newFixture(t, 5)
	p := New()
	require.NoError(t, p.Init(f.host))
	defer p.Fini()

	a := &testClient{id: "a"}
	f.hub.Connect(a)

	resp := f.hub.Handle(a, ClientInterestMethod, ipc.Document{"type": "subscribe"})
	assert.Equal(t, 1, resp["nr-subscribers"])
	assert.Len(t, a.received, 1)

	resp = f.hub.Handle(nil, ClientInterestMethod, ipc.Document{"type": "oneshot"})
	assert.Equal(t, 1, resp["nr-subscribers"])

	f.hub.Disconnect(a)
	resp = f.hub.Handle(nil, ClientInterestMethod, ipc.Document{"type": "oneshot"})
	assert.Equal(t, 0, resp["nr-subscribers"])
}

func TestActivatorHandlesIPCAndBindings(t *testing.T) {
	f := newFixture(t, 5)
	p := New()
	require.NoError(t, p.Init(f.host))
	defer p.Fini()

	var toggled []ipc.Document
	require.NoError(t, f.hub.Registry().Register(ScaleToggleMethod, func(_ ipc.Client, req ipc.Document) ipc.Document {
		toggled = append(toggled, req)
		return ipc.OK()
	}))

	resp := f.hub.Handle(nil, ActivatorName, ipc.Document{"output_id": 4})
	assert.Equal(t, ipc.OK(), resp)
	require.Len(t, toggled, 1)
	assert.Equal(t, int64(4), toggled[0]["output_id"])

	key, err := options.ParseBinding("<shift> <super> KEY_E")
	require.NoError(t, err)
	assert.True(t, f.bindings.Trigger(key, activator.Data{Source: activator.SourceKeybinding}))
	assert.Contains(t, f.logs.String(), "Plugin activated with key")

	button, err := options.ParseBinding("<alt> BTN_LEFT")
	require.NoError(t, err)
	assert.True(t, f.bindings.Trigger(button, activator.Data{Source: activator.SourceButtonbinding}))
	assert.Contains(t, f.logs.String(), "Plugin activated with button")
}

func TestFiniReleasesEverything(t *testing.T) {
	f := newFixture(t, 5)
	p := New()
	require.NoError(t, p.Init(f.host))

	a := &testClient{id: "a"}
	f.hub.Connect(a)
	f.hub.Handle(a, ClientInterestMethod, ipc.Document{"type": "subscribe"})

	p.Fini()
	assert.Empty(t, f.hub.Registry().Methods())
	assert.Equal(t, 0, f.bindings.Len())
	assert.Nil(t, p.Broker())

	// A second Fini is harmless and the plugin can be loaded again
	p.Fini()
	require.NoError(t, p.Init(f.host))
	p.Fini()
}

func TestInitFailsOnMissingOption(t *testing.T) {
	f := newFixture(t, 5)
	f.host.Options = options.NewStore(viper.New())

	p := New()
	assert.ErrorIs(t, p.Init(f.host), options.ErrUnknownOption)
	assert.Empty(t, f.hub.Registry().Methods())
}

func TestInitFailsWhenTopicTaken(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, f.hub.Registry().Register(ClientInterestMethod, func(ipc.Client, ipc.Document) ipc.Document {
		return ipc.OK()
	}))

	p := New()
	assert.ErrorIs(t, p.Init(f.host), ipc.ErrDuplicateMethod)
	assert.Equal(t, 0, f.bindings.Len())
	assert.Equal(t, []string{ClientInterestMethod}, f.hub.Registry().Methods())
}
