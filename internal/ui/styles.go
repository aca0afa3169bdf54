package ui

import "github.com/charmbracelet/lipgloss"

// Semantic color palette.
var (
	colorPrimary = lipgloss.Color("#00BFFF") // Cyan: headings
	colorAccent  = lipgloss.Color("#FFD700") // Gold: attention
	colorSuccess = lipgloss.Color("#00E676") // Green: safe
	colorDanger  = lipgloss.Color("#FF5252") // Red: conflicts and errors
	colorMuted   = lipgloss.Color("#636363") // Gray: de-emphasized
)

// Status icons.
const (
	iconSafe     = "✓"
	iconConflict = "✗"
	iconWarning  = "⚠"
	iconError    = "?"
	iconSkipped  = "–"
	iconBullet   = "•"
)

var (
	styleHeading = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleDanger  = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleBold    = lipgloss.NewStyle().Bold(true)
)

// Styles shared with the terminal prompter.
var (
	QuestionMarker = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	QuestionText   = styleBold
	Hint           = styleMuted
)
