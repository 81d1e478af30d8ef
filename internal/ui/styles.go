package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarning   = lipgloss.Color("214") // Orange
	colorDanger    = lipgloss.Color("196") // Red
)

// telescopeColors tints the telescope badge.
var telescopeColors = map[string]lipgloss.Color{
	"jwst":   lipgloss.Color("214"),
	"hubble": lipgloss.Color("39"),
}

// SelectedItem style for the currently highlighted row.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalItem style for unselected rows.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// SeenItem style for alerts already acknowledged.
var SeenItem = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 1)

// MetaItem style for ages and other trailing metadata.
var MetaItem = lipgloss.NewStyle().
	Foreground(colorMuted)

// TimeBandHeader style for age band labels (e.g., "Today", "This Week").
var TimeBandHeader = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// TelescopeBadge style for the telescope tag of an observation.
var TelescopeBadge = lipgloss.NewStyle().
	Background(lipgloss.Color("236")).
	Padding(0, 1).
	MarginRight(1)

// Tab styles for the pane selector.
var (
	ActiveTab = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(colorPrimary).
			Padding(0, 1)

	InactiveTab = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Padding(0, 1)
)

// Header style for the telemetry summary line.
var Header = lipgloss.NewStyle().
	Foreground(lipgloss.Color("252")).
	Padding(0, 1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorDanger).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help and empty-state text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// Priority styles for alert rows.
var priorityStyles = map[string]lipgloss.Style{
	"high":   lipgloss.NewStyle().Foreground(colorDanger).Bold(true),
	"medium": lipgloss.NewStyle().Foreground(colorWarning),
	"low":    lipgloss.NewStyle().Foreground(colorSecondary),
}

// Chat transcript styles.
var (
	UserTurn = lipgloss.NewStyle().
			Foreground(colorHighlight).
			Bold(true)

	AssistantTurn = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	ErroredTurn = lipgloss.NewStyle().
			Foreground(colorDanger)

	CitationStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Italic(true)
)

// Source health styles.
var (
	HealthyStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	StaleStyle   = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
)

// DebugPanel frames the source health pane.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section headers inside DebugPanel.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)
