package ui

import (
	"reflect"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"empty", "", 10, []string{""}},
		{"fits", "one two", 10, []string{"one two"}},
		{"breaks on words", "one two three four", 9, []string{"one two", "three", "four"}},
		{"keeps blank lines", "a\n\nb", 5, []string{"a", "", "b"}},
		{"splits long words", "abcdefghij xy", 4, []string{"abcd", "efgh", "ij", "xy"}},
		{"wide runes", "日本語テキスト", 6, []string{"日本語", "テキス", "ト"}},
		{"no width", "one two", 0, []string{"one two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Wrap(tt.text, tt.width)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Wrap(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}

func TestPadRight(t *testing.T) {
	if got := PadRight("ab", 5); got != "ab   " {
		t.Errorf("PadRight = %q", got)
	}
	if got := PadRight("abcdef", 3); got != "abcdef" {
		t.Errorf("PadRight should not cut: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	got := Truncate("abcdefghij", 5)
	if lipgloss.Width(got) > 5 {
		t.Errorf("Truncate width = %d, want <= 5", lipgloss.Width(got))
	}
	if got != "abcd…" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("abc", 5); got != "abc" {
		t.Errorf("Truncate(short) = %q", got)
	}
}

func TestFit(t *testing.T) {
	if got := Fit([]string{"a", "b", "c"}, 2, ""); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Fit cut = %q", got)
	}
	if got := Fit([]string{"a"}, 3, "-"); !reflect.DeepEqual(got, []string{"a", "-", "-"}) {
		t.Errorf("Fit pad = %q", got)
	}
}
