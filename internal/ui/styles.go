// Package ui provides consistent styling and components for the wfplug CLI
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	// Primary colors
	ColorPrimary   = lipgloss.Color("39")  // Bright blue
	ColorSecondary = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("86")  // Cyan

	// Neutral colors
	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
	ColorMuted  = lipgloss.Color("238") // Dark gray

	// Status colors
	ColorConnected    = ColorSuccess
	ColorDisconnected = ColorError
)

// Base styles
var (
	TextStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	SubheaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorMuted).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 1)

	ListItemStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)
)

// Component-specific styles
var (
	ConnectedIndicator = lipgloss.NewStyle().
				Foreground(ColorConnected).
				Render("●")

	DisconnectedIndicator = lipgloss.NewStyle().
				Foreground(ColorDisconnected).
				Render("○")

	ControlKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	ControlDescStyle = lipgloss.NewStyle().
				Foreground(ColorText)

	EventNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)
)

// Spinner presets
var (
	SpinnerDot  = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
	SpinnerLine = []string{"|", "/", "-", "\\"}
)

// Icons
var (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "!"
	IconInfo    = "i"
	IconMethod  = "→"
)

func FormatControl(key, desc string) string {
	return ControlKeyStyle.Render(key) + " - " + ControlDescStyle.Render(desc)
}

func FormatStatus(connected bool, status string) string {
	indicator := DisconnectedIndicator
	if connected {
		indicator = ConnectedIndicator
	}
	return indicator + " " + status
}

// FormatMethod renders one registered IPC method name
func FormatMethod(name string) string {
	section, method, found := strings.Cut(name, "/")
	if !found {
		return "  " + IconMethod + " " + ListItemStyle.Render(name)
	}
	return "  " + IconMethod + " " + SubtleStyle.Render(section+"/") + ListItemStyle.Render(method)
}

// FormatResult renders a success or failure line
func FormatResult(success bool, message string) string {
	if success {
		return SuccessStyle.Render(IconSuccess) + " " + message
	}
	return ErrorStyle.Render(IconError) + " " + message
}

// CreateSeparator creates a horizontal line separator
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50 // Default width
	}
	if char == "" {
		char = "─"
	}

	return lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Render(strings.Repeat(char, width))
}
