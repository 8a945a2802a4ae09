package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/wfplug/internal/ipc"
	tea "github.com/charmbracelet/bubbletea"
)

// EventSource yields documents pushed by the server
type EventSource interface {
	Next() (ipc.Document, error)
}

// EventMsg carries one pushed document into the model
type EventMsg struct {
	Doc  ipc.Document
	Time time.Time
}

// DisconnectedMsg ends the stream
type DisconnectedMsg struct {
	Err error
}

// WatchModel shows the live event stream of a subscribed topic
type WatchModel struct {
	topic       string
	source      EventSource
	status      *StatusBar
	events      EventLog
	controls    ControlsHelp
	message     *Message
	subscribers int64
	connected   bool
	quitting    bool
}

// NewWatchModel creates a model that reads events from source
func NewWatchModel(topic, addr string, source EventSource) *WatchModel {
	status := NewStatusBar("wfplug watch")
	status.Status = "Subscribed to " + topic + " at " + addr
	status.Connected = true

	return &WatchModel{
		topic:     topic,
		source:    source,
		status:    status,
		events:    EventLog{Max: 20},
		connected: true,
		controls: ControlsHelp{Controls: []Control{
			{Key: "c", Desc: "Clear"},
			{Key: "q", Desc: "Quit"},
		}},
	}
}

// Listen returns a command that waits for the next document
func Listen(source EventSource) tea.Cmd {
	return func() tea.Msg {
		doc, err := source.Next()
		if err != nil {
			return DisconnectedMsg{Err: err}
		}
		return EventMsg{Doc: doc, Time: time.Now()}
	}
}

// Init implements tea.Model
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.status.Init(), Listen(m.source))
}

// Update implements tea.Model
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.events.Entries = nil
			m.message = nil
		}
		return m, nil

	case EventMsg:
		m.record(msg)
		return m, Listen(m.source)

	case DisconnectedMsg:
		m.connected = false
		m.status.Connected = false
		m.status.ShowSpinner = false
		m.status.Status = "Disconnected"
		m.message = &Message{Type: MessageError, Content: fmt.Sprintf("Connection closed: %v", msg.Err)}
		return m, nil
	}

	var cmd tea.Cmd
	m.status, cmd = m.status.Update(msg)
	return m, cmd
}

func (m *WatchModel) record(msg EventMsg) {
	name := "response"
	if ev, ok := msg.Doc.String("event"); ok {
		name = ev
	}
	isErr := msg.Doc.IsError()
	if isErr {
		name = "error"
	}

	if n, ok := msg.Doc.Int("nr-subscribers"); ok {
		m.subscribers = n
	}

	m.events.Add(EventEntry{
		Time:  msg.Time,
		Name:  name,
		Body:  summarize(msg.Doc),
		Error: isErr,
	})
}

// summarize renders the payload fields as key=value pairs
func summarize(doc ipc.Document) string {
	var parts []string
	for _, k := range doc.Keys() {
		if k == "event" || k == "result" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, doc[k]))
	}
	return strings.Join(parts, " ")
}

// Subscribers returns the last seen subscriber count
func (m *WatchModel) Subscribers() int64 {
	return m.subscribers
}

// Connected reports whether the stream is still open
func (m *WatchModel) Connected() bool {
	return m.connected
}

// View implements tea.Model
func (m *WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.status.View())
	b.WriteString("\n")
	b.WriteString(SubheaderStyle.Render(fmt.Sprintf("Subscribers: %d", m.subscribers)))
	b.WriteString("\n\n")
	b.WriteString(m.events.View())
	b.WriteString("\n\n")
	if m.message != nil {
		b.WriteString(m.message.View())
		b.WriteString("\n")
	}
	b.WriteString(m.controls.View())
	b.WriteString("\n")
	return b.String()
}
