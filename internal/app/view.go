package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/zynpsy/threadsimulation/internal/backend"
	"github.com/zynpsy/threadsimulation/internal/stream"
	"github.com/zynpsy/threadsimulation/internal/ui"
)

// chromeLines is the height taken by everything except the two panels.
const chromeLines = 8

func (m Model) transcriptVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	return max(5, m.height-chromeLines)
}

func (m Model) personaPanelWidth() int {
	if m.width == 0 {
		return 30
	}
	return max(20, m.width*3/10)
}

func (m Model) transcriptPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.personaPanelWidth()-3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	rule := ui.DividerStyle.Render(strings.Repeat("─", m.width))
	out := []string{
		m.renderHeader(),
		m.renderStatusBar(),
		rule,
		m.renderMainContent(),
		rule,
	}
	if err := m.client.Err(); err != nil {
		out = append(out, ui.ErrorStyle.Render("Error: ")+ui.ErrorTextStyle.Render(err.Error()))
	}
	if m.notice != "" {
		style := ui.NoticeStyle
		if m.noticeIsError {
			style = ui.ErrorTextStyle
		}
		out = append(out, style.Render(m.notice))
	}
	out = append(out, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, out...)
}

func (m Model) renderHeader() string {
	return ui.TitleStyle.Render("THREADSIM") + ui.DimStyle.Render("  "+m.cfg.Endpoint)
}

func (m Model) renderStatusBar() string {
	state := m.client.State()
	var b strings.Builder
	b.WriteString(ui.StateDot(state) + " " + strings.ToUpper(state.String()))

	if state == stream.Reconnecting {
		b.WriteString(ui.DimStyle.Render(fmt.Sprintf(" (attempt %d/%d)", m.client.Attempts(), m.cfg.Reconnect.MaxAttempts)))
	}
	if session := m.client.Session(); session != "" {
		b.WriteString(ui.DimStyle.Render("  session " + session))
	}
	if p := m.client.Progress(); p != nil {
		b.WriteString("  " + renderProgress(p))
	}
	if m.client.Complete() {
		b.WriteString("  " + ui.DoneBadgeStyle.Render("DONE"))
	}
	if m.requesting {
		b.WriteString("  " + ui.SpinnerStyle.Render("⟳ request"))
	}
	return b.String()
}

func renderProgress(p *backend.Progress) string {
	const barLen = 10
	filled := min(max(int(p.Percent/100*barLen), 0), barLen)

	bar := ui.ProgressFillStyle.Render(strings.Repeat("█", filled)) +
		ui.ProgressEmptyStyle.Render(strings.Repeat("░", barLen-filled))

	label := fmt.Sprintf(" %3.0f%%", p.Percent)
	if p.Stage != "" {
		label += " " + p.Stage
	}
	return bar + ui.StatusStyle.Render(label)
}

func (m Model) renderMainContent() string {
	h := m.transcriptVisibleLines()
	personas := m.renderPersonaPanel(m.personaPanelWidth(), h)
	transcript := m.renderTranscriptPanel(m.transcriptPanelWidth(), h)
	divider := ui.DividerStyle.Render(strings.TrimSuffix(strings.Repeat("│\n", h), "\n"))
	return lipgloss.JoinHorizontal(lipgloss.Top, personas, divider, transcript)
}

func panelTitle(title string, active bool) string {
	if active {
		return ui.PanelTitleActiveStyle.Render(title)
	}
	return ui.PanelTitleStyle.Render(title)
}

func (m Model) renderPersonaPanel(width, height int) string {
	personas := m.visiblePersonas()
	active := m.focusedPanel == FocusPersonas

	lines := []string{panelTitle(fmt.Sprintf("PERSONAS (%d)", len(personas)), active)}

	if len(personas) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No personas yet..."))
		if n := len(m.basePersonas) + len(m.userPersonas); n > 0 {
			lines = append(lines, ui.DimStyle.Render(fmt.Sprintf("  %d ready for the next run", n)))
		}
	}

	for i, p := range personas {
		open := m.expanded[p.Handle]
		marker := "▸"
		if open {
			marker = "▾"
		}
		entry := marker + " @" + m.displayHandle(p.Handle)
		if active && i == m.selectedPersona {
			entry = ui.PanelTitleActiveStyle.Render("> " + entry)
		} else {
			entry = "  " + entry
		}
		lines = append(lines, ui.Truncate(entry, width))

		if !open {
			continue
		}
		lines = append(lines, ui.DimStyle.Render(fmt.Sprintf("    %d posts · %d replies · %d likes",
			p.Statistics.TotalPosts, p.Statistics.TotalReplies, p.Statistics.TotalLikes)))
		for _, wl := range ui.Wrap(p.Analysis, max(10, width-6)) {
			lines = append(lines, ui.DimStyle.Render("    "+wl))
		}
	}

	lines = ui.Fit(lines, height, "")
	for i := range lines {
		lines[i] = ui.PadRight(lines[i], width)
	}
	return strings.Join(lines, "\n")
}

// transcriptLines lays out the merged transcript for a panel of the given
// width.
func (m Model) transcriptLines(width int) []string {
	textWidth := max(10, width-6)

	var out []string
	for i, msg := range m.client.Messages() {
		author := "@" + m.displayHandle(msg.Author)
		head := ui.AuthorStyle.Render(author)
		if i == 0 && m.hasSeed {
			head = ui.SeedAuthorStyle.Render(author) + ui.DimStyle.Render(" · original post")
		}
		if !msg.CreatedAt.IsZero() {
			head += " " + ui.TimestampStyle.Render(msg.CreatedAt.Local().Format("[15:04:05]"))
		}
		out = append(out, head)
		for _, wl := range ui.Wrap(msg.Text, textWidth) {
			out = append(out, "  "+wl)
		}
	}
	return out
}

func (m Model) renderTranscriptPanel(width, height int) string {
	badge := ui.ScrollBadgeStyle.Render(" SCROLL")
	if m.transcriptLive {
		badge = ui.LiveBadgeStyle.Render(" LIVE")
	}
	if m.client.Paused() {
		badge += ui.PausedBadgeStyle.Render(fmt.Sprintf(" PAUSED (%d buffered)", m.client.Buffered()))
	}
	title := fmt.Sprintf("THREAD (%d)", len(m.client.Messages()))
	lines := []string{panelTitle(title, m.focusedPanel == FocusTranscript) + badge}

	body := m.transcriptLines(width)
	if m.client.Arrived() {
		body = append(body, m.spinner.View()+ui.DimStyle.Render(" typing..."))
	}

	if len(body) == 0 {
		lines = append(lines, "", m.emptyTranscriptHint())
		return strings.Join(ui.Fit(lines, height, ""), "\n")
	}

	visible := height - 1
	start := m.transcriptScroll
	if m.transcriptLive {
		start = len(body) - visible
	}
	start = max(min(start, len(body)-visible), 0)
	end := min(start+visible, len(body))
	for _, l := range body[start:end] {
		lines = append(lines, "  "+l)
	}
	return strings.Join(ui.Fit(lines, height, ""), "\n")
}

func (m Model) emptyTranscriptHint() string {
	switch m.client.State() {
	case stream.Reconnecting:
		return ui.ErrorTextStyle.Render("  Connection lost. Reconnecting...")
	case stream.Connecting:
		return ui.DimStyle.Render("  Connecting to " + m.cfg.Endpoint + "...")
	case stream.Disconnected:
		return ui.DimStyle.Render("  Disconnected. Press c to connect.")
	}
	return ui.DimStyle.Render("  Press s to start a simulation")
}

func (m Model) renderFooter() string {
	key := func(k, desc string) string {
		return ui.FooterKeyStyle.Render(k) + ui.FooterDescStyle.Render(" "+desc)
	}

	var parts []string
	switch m.client.State() {
	case stream.Connected:
		parts = append(parts, key("s", "Start"))
		if m.client.Paused() {
			parts = append(parts, key("r", "Resume"))
		} else {
			parts = append(parts, key("p", "Pause"))
		}
		parts = append(parts, key("u", "Join"), key("n", "Clear"), key("d", "Disconnect"))
	case stream.Disconnected:
		parts = append(parts, key("c", "Connect"))
	}
	parts = append(parts, key("x", "Reset"), key("Tab", "Focus"), key("↑↓", "Scroll"), key("q", "Quit"))
	return strings.Join(parts, "  ")
}
