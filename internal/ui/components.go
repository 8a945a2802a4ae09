package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatusBar represents a reusable status bar component
type StatusBar struct {
	Width       int
	Title       string
	Status      string
	Connected   bool
	ShowSpinner bool
	spinner     spinner.Model
}

// NewStatusBar creates a new status bar
func NewStatusBar(title string) *StatusBar {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: SpinnerDot,
		FPS:    time.Second / 10,
	}
	s.Style = SpinnerStyle

	return &StatusBar{
		Title:       title,
		ShowSpinner: true,
		spinner:     s,
	}
}

// Init implements tea.Model
func (s *StatusBar) Init() tea.Cmd {
	return s.spinner.Tick
}

// Update implements tea.Model
func (s *StatusBar) Update(msg tea.Msg) (*StatusBar, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd
	case tea.WindowSizeMsg:
		s.Width = msg.Width
	}
	return s, nil
}

// View renders the status bar
func (s *StatusBar) View() string {
	title := TitleStyle.Render(s.Title)

	status := s.Status
	if s.ShowSpinner {
		status = s.spinner.View() + " " + s.Status
	}
	statusFormatted := FormatStatus(s.Connected, status)

	gap := s.Width - lipgloss.Width(title) - lipgloss.Width(statusFormatted) - 4
	if gap < 1 {
		gap = 1
	}

	line := title + strings.Repeat(" ", gap) + statusFormatted
	if s.Width <= 0 {
		return BoxStyle.Render(line)
	}
	return BoxStyle.Width(s.Width - 2).Render(line)
}

// ControlsHelp displays keyboard controls
type ControlsHelp struct {
	Controls []Control
}

// Control represents a keyboard control
type Control struct {
	Key  string
	Desc string
}

// View renders the controls on one line
func (c *ControlsHelp) View() string {
	parts := make([]string, len(c.Controls))
	for i, ctrl := range c.Controls {
		parts[i] = FormatControl(ctrl.Key, ctrl.Desc)
	}
	return SubtleStyle.Render(strings.Join(parts, "  •  "))
}

// EventLog keeps the most recent events for display
type EventLog struct {
	Max     int
	Entries []EventEntry
}

// EventEntry is one received document, already formatted
type EventEntry struct {
	Time  time.Time
	Name  string
	Body  string
	Error bool
}

// Add appends e, dropping the oldest entries beyond Max
func (l *EventLog) Add(e EventEntry) {
	l.Entries = append(l.Entries, e)
	if l.Max > 0 && len(l.Entries) > l.Max {
		l.Entries = l.Entries[len(l.Entries)-l.Max:]
	}
}

// View renders the log, newest last
func (l *EventLog) View() string {
	if len(l.Entries) == 0 {
		return MutedStyle.Render("No events yet")
	}

	var b strings.Builder
	for i, e := range l.Entries {
		name := EventNameStyle.Render(e.Name)
		if e.Error {
			name = ErrorStyle.Render(e.Name)
		}
		fmt.Fprintf(&b, "%s %s %s", TimestampStyle.Render(e.Time.Format("15:04:05")), name, TextStyle.Render(e.Body))
		if i < len(l.Entries)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Message displays a styled message
type Message struct {
	Type    MessageType
	Content string
}

// MessageType represents the type of message
type MessageType int

const (
	MessageInfo MessageType = iota
	MessageSuccess
	MessageWarning
	MessageError
)

// View renders the message
func (m *Message) View() string {
	var style lipgloss.Style
	var prefix string

	switch m.Type {
	case MessageSuccess:
		style = SuccessStyle
		prefix = IconSuccess + " "
	case MessageWarning:
		style = WarningStyle
		prefix = IconWarning + " "
	case MessageError:
		style = ErrorStyle
		prefix = IconError + " "
	default:
		style = InfoStyle
		prefix = IconInfo + " "
	}

	return style.Render(prefix + m.Content)
}
