// Package ui holds the lipgloss styles and display helpers of the TUI.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/zynpsy/threadsimulation/internal/stream"
)

// Palette by role. Each color adapts to light and dark terminals.
var (
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#0A64C8", Dark: "#5FAFFF"}
	ColorSeed    = lipgloss.AdaptiveColor{Light: "#8A2BE2", Dark: "#D787FF"}
	ColorOK      = lipgloss.AdaptiveColor{Light: "#1E8C3A", Dark: "#5FFF87"}
	ColorWarn    = lipgloss.AdaptiveColor{Light: "#A66A00", Dark: "#FFD75F"}
	ColorFail    = lipgloss.AdaptiveColor{Light: "#C81E1E", Dark: "#FF5F5F"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6C6C6C", Dark: "#767676"}
	ColorRule    = lipgloss.AdaptiveColor{Light: "#C6C6C6", Dark: "#444444"}
	ColorHeading = lipgloss.AdaptiveColor{Light: "#1C1C1C", Dark: "#EEEEEE"}
)

func fg(c lipgloss.TerminalColor) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func bold(c lipgloss.TerminalColor) lipgloss.Style { return fg(c).Bold(true) }

var (
	TitleStyle     = bold(ColorAccent)
	StatusStyle    = fg(ColorMuted)
	ErrorStyle     = bold(ColorFail)
	ErrorTextStyle = fg(ColorFail)
	NoticeStyle    = fg(ColorWarn)
	DimStyle       = fg(ColorMuted)
	DividerStyle   = fg(ColorRule)
	SpinnerStyle   = fg(ColorSeed)

	// Transcript
	AuthorStyle     = bold(ColorAccent)
	SeedAuthorStyle = bold(ColorSeed)
	TimestampStyle  = fg(ColorMuted)

	// Panels
	PanelTitleStyle       = bold(ColorHeading)
	PanelTitleActiveStyle = bold(ColorAccent)

	FooterKeyStyle  = bold(ColorWarn)
	FooterDescStyle = fg(ColorMuted)

	ProgressFillStyle  = fg(ColorOK)
	ProgressEmptyStyle = fg(ColorRule)

	// Badges
	LiveBadgeStyle   = bold(ColorOK)
	ScrollBadgeStyle = bold(ColorWarn)
	PausedBadgeStyle = bold(ColorSeed)
	DoneBadgeStyle   = bold(ColorAccent)
)

// StateDot renders the connection indicator for s.
func StateDot(s stream.ConnState) string {
	switch s {
	case stream.Connected:
		return bold(ColorOK).Render("●")
	case stream.Connecting, stream.Reconnecting:
		return fg(ColorWarn).Render("◐")
	}
	return DimStyle.Render("○")
}
