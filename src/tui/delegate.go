package tui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	// listRenderingOverhead accounts for padding added by bubbles/list and panel borders.
	listRenderingOverhead = 10

	roleWidth = 9 // len("ASSISTANT")
	typeWidth = 10
)

// Delegate renders history items as table rows.
type Delegate struct {
	IndexWidth int
	BuildWidth int
	styles     *StyleConfig
}

// NewDelegate creates a new history table delegate with default styles
func NewDelegate(styles *StyleConfig) Delegate {
	if styles == nil {
		styles = DefaultStyles()
	}
	return Delegate{
		IndexWidth: 2,
		BuildWidth: 2,
		styles:     styles,
	}
}

// SetColumnWidths sizes the numeric columns for the largest values shown.
func (d *Delegate) SetColumnWidths(maxIndex, maxBuild int) {
	d.IndexWidth = max(2, len(strconv.Itoa(maxIndex)))
	d.BuildWidth = max(2, len(strconv.Itoa(maxBuild)))
}

// FixedWidth is the width of every column except the summary.
func (d Delegate) FixedWidth() int {
	// 4 separators of 3 cells each
	return d.IndexWidth + roleWidth + d.BuildWidth + typeWidth + 12
}

// Height returns the height of a list item
func (d Delegate) Height() int {
	return 1
}

// Spacing returns spacing between items
func (d Delegate) Spacing() int {
	return 0
}

// Update handles item updates
func (d Delegate) Update(msg tea.Msg, m *list.Model) tea.Cmd {
	return nil
}

// Row formats an item as a table row for the given list width.
func (d Delegate) Row(entry Item, width int) string {
	indexCol := fmt.Sprintf("%*d", d.IndexWidth, entry.Index)
	roleCol := TruncateAndPad(string(entry.Message.Role), roleWidth, false)
	buildCol := fmt.Sprintf("%*d", d.BuildWidth, entry.Message.BuildNumber)
	typeCol := TruncateAndPad(entry.TypeLabel(), typeWidth, true)

	var summary string
	if available := width - d.FixedWidth() - listRenderingOverhead; available > 0 {
		summary = TruncateAndPad(Summary(entry.Message.Content), available, true)
	}

	return fmt.Sprintf("%s │ %s │ %s │ %s │ %s", indexCol, roleCol, buildCol, typeCol, summary)
}

// Render renders a list item
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	entry, ok := item.(Item)
	if !ok {
		return
	}

	style := lipgloss.NewStyle().Foreground(d.styles.TextSecondary)
	if index == m.Index() {
		style = style.Bold(true).
			Foreground(d.styles.RoleColor(string(entry.Message.Role))).
			Background(d.styles.SelectedColor)
	}

	fmt.Fprint(w, style.Render(d.Row(entry, m.Width())))
}
