package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// PadRight pads s with spaces to width visible cells.
func PadRight(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// Truncate shortens s to width visible cells, marking the cut with an
// ellipsis. Styled strings keep their escape sequences.
func Truncate(s string, width int) string {
	return ansi.Truncate(s, width, "…")
}

// Fit pads or cuts lines to exactly height entries, filling with fill.
func Fit(lines []string, height int, fill string) []string {
	if len(lines) > height {
		return lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, fill)
	}
	return lines
}

// Wrap breaks text into lines of at most width cells on word boundaries.
// Words wider than a line are split. Blank lines are kept.
func Wrap(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var out []string
	for _, para := range strings.Split(text, "\n") {
		line, lineW := "", 0
		for _, word := range strings.Fields(para) {
			for lipgloss.Width(word) > width {
				if lineW > 0 {
					out = append(out, line)
					line, lineW = "", 0
				}
				var head string
				head, word = splitWidth(word, width)
				out = append(out, head)
			}

			w := lipgloss.Width(word)
			switch {
			case lineW == 0:
				line, lineW = word, w
			case lineW+1+w <= width:
				line += " " + word
				lineW += 1 + w
			default:
				out = append(out, line)
				line, lineW = word, w
			}
		}
		out = append(out, line)
	}
	return out
}

// splitWidth cuts s after the last rune that fits in width cells.
func splitWidth(s string, width int) (string, string) {
	w := 0
	for i, r := range s {
		rw := lipgloss.Width(string(r))
		if w+rw > width && i > 0 {
			return s[:i], s[i:]
		}
		w += rw
	}
	return s, ""
}
