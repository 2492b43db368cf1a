package tui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// VisualWidth returns the display width of text, ignoring ANSI sequences
// and accounting for wide characters.
func VisualWidth(s string) int {
	return runewidth.StringWidth(ansi.Strip(s))
}

// Truncate cuts text to maxLen cells with an optional "..." tail.
func Truncate(s string, maxLen int, ellipsis bool) string {
	s = strings.TrimSpace(s)
	if maxLen <= 0 {
		return ""
	}
	if VisualWidth(s) <= maxLen {
		return s
	}
	if ellipsis && maxLen > 3 {
		return runewidth.Truncate(s, maxLen-3, "") + "..."
	}
	return runewidth.Truncate(s, maxLen, "")
}

// TruncateAndPad truncates and then pads to exactly width cells.
// Used for table cells to keep columns aligned.
func TruncateAndPad(s string, width int, ellipsis bool) string {
	s = Truncate(s, width, ellipsis)
	if w := VisualWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// WrapLines hard-wraps every line of text to width cells. Log content keeps
// its indentation; nothing is reflowed.
func WrapLines(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = ansi.Hardwrap(line, width, true)
	}
	return strings.Join(lines, "\n")
}

// Summary returns the first meaningful line of a stored message: the
// "type: ..." tag line and blank lines are skipped, ANSI codes removed.
func Summary(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(ansi.Strip(line))
		if line == "" || strings.HasPrefix(line, "type: ") {
			continue
		}
		return line
	}
	return ""
}
