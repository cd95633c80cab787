package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette for the simulator UI
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - streaming
	ErrorColor   = lipgloss.Color("#FF5555") // Red - errors
	WarningColor = lipgloss.Color("#FFA500") // Orange - paused
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60  // Minimum supported terminal width
	MaxContentWidth  = 100 // Maximum content width before capping
	minBarWidth      = 20
	maxBarWidth      = 60
)

var (
	// TitleStyle is for the "ACCELSOCK SIMULATOR" banner
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true).
			PaddingLeft(2)

	// TargetStyle is for the socket URL under the title
	TargetStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2)

	StatusStreamingStyle = lipgloss.NewStyle().
				Foreground(SuccessColor).
				Bold(true)

	StatusPausedStyle = lipgloss.NewStyle().
				Foreground(WarningColor).
				Bold(true)

	StatusErrorStyle = lipgloss.NewStyle().
				Foreground(ErrorColor).
				Bold(true)

	// AxisLabelStyle is for the X/Y/Z labels in front of each bar
	AxisLabelStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			PaddingLeft(2).
			Width(5)

	// AxisValueStyle is for the numeric value after each bar
	AxisValueStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Width(9).
			Align(lipgloss.Right)

	// DetailStyle is for counters and tilt
	DetailStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	HelpStyle = lipgloss.NewStyle().
			PaddingLeft(2)
)

// FrameStyle returns the rounded border around the whole view
func FrameStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2) // Account for border characters
}

// GetTerminalWidth returns the current terminal width, with fallback
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth
	}
	return clampWidth(width)
}

func clampWidth(width int) int {
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// barWidth leaves room for the label, the value and the frame.
func barWidth(width int) int {
	w := width - 22
	if w < minBarWidth {
		return minBarWidth
	}
	if w > maxBarWidth {
		return maxBarWidth
	}
	return w
}
