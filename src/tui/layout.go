package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// panelDimensions holds calculated layout dimensions
type panelDimensions struct {
	availableHeight int
	leftPanelWidth  int
	rightPanelWidth int
}

// calculateDimensions computes panel sizes from the terminal size.
func (m Model) calculateDimensions() panelDimensions {
	headerHeight := lipgloss.Height(m.header.Render(m.width))
	// header + help line (1) + column header row (1) + panel borders (2)
	availableHeight := max(m.height-headerHeight-1-1-2, 1)

	// Two-panel layout: message list (45%) | detail (55%)
	leftPanelWidth := int(float64(m.width) * 0.45)
	rightPanelWidth := m.width - leftPanelWidth

	return panelDimensions{
		availableHeight: availableHeight,
		leftPanelWidth:  leftPanelWidth,
		rightPanelWidth: rightPanelWidth,
	}
}

// resizeComponents handles window resize events
func (m *Model) resizeComponents() {
	dims := m.calculateDimensions()

	m.list.SetSize(dims.leftPanelWidth-2, dims.availableHeight)
	m.detail.Width = max(dims.rightPanelWidth-2, 1)
	m.detail.Height = dims.availableHeight

	// Content wraps to the viewport width, so re-render it
	m.selectedID = ""
	m.syncDetail()
}

// View renders the complete TUI layout
func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	header := m.header.Render(m.width)

	if m.loading && len(m.items) == 0 {
		body := lipgloss.NewStyle().Width(m.width).Align(lipgloss.Center).PaddingTop(2).
			Render(fmt.Sprintf("%s Loading history...", m.spinner.View()))
		return lipgloss.JoinVertical(lipgloss.Left, header, body)
	}

	if m.err != nil {
		body := lipgloss.NewStyle().Foreground(m.styles.ErrorColor).Padding(2, 2).
			Render(fmt.Sprintf("Failed to load history: %v\n\nPress r to retry or q to quit.", m.err))
		return lipgloss.JoinVertical(lipgloss.Left, header, body)
	}

	dims := m.calculateDimensions()
	left := m.renderListPanel(dims.leftPanelWidth, dims.availableHeight)
	right := m.renderDetailPanel(dims.rightPanelWidth, dims.availableHeight)

	main := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	return lipgloss.JoinVertical(lipgloss.Left, header, main, m.renderHelpText())
}

// renderListPanel renders the left panel with the message table
func (m Model) renderListPanel(width, height int) string {
	d := m.delegate
	headerText := fmt.Sprintf("%*s │ %-*s │ %*s │ %-*s │ Summary",
		d.IndexWidth, "#",
		roleWidth, "Role",
		d.BuildWidth, "Bd",
		typeWidth, "Type")
	headerRow := lipgloss.NewStyle().
		Foreground(m.styles.PrimaryBlue).
		Bold(true).
		Width(width-2).
		Padding(0, 1).
		Render(Truncate(headerText, width-4, true))

	body := m.list.View()
	if len(m.list.Items()) == 0 {
		body = lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Faint(true).
			Render("No messages")
	}

	panel := m.styles.PanelStyle(!m.detailFocused).
		Width(width - 2).
		Height(height).
		Render(body)

	return lipgloss.JoinVertical(lipgloss.Left, headerRow, panel)
}

// renderDetailPanel renders the right panel with the detail viewport
func (m Model) renderDetailPanel(width, height int) string {
	title := " "
	if item, ok := m.SelectedItem(); ok {
		title = fmt.Sprintf("Message %d of %d", item.Index, len(m.items))
	}
	titleRow := lipgloss.NewStyle().
		Foreground(m.styles.PrimaryBlue).
		Bold(true).
		Padding(0, 1).
		Render(title)

	panel := m.styles.PanelStyle(m.detailFocused).
		Width(width - 2).
		Height(height).
		Render(m.detail.View())

	return lipgloss.JoinVertical(lipgloss.Left, titleRow, panel)
}

// renderHelpText renders context-aware help text at the bottom
func (m Model) renderHelpText() string {
	keyStyle := lipgloss.NewStyle().Foreground(m.styles.PrimaryBlue).Bold(true)
	sep := lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Render("•")

	var helpText string
	switch {
	case m.searchMode:
		helpText = fmt.Sprintf("%s: Apply %s %s: Cancel", keyStyle.Render("Enter"), sep, keyStyle.Render("Esc"))
	case m.detailFocused:
		helpText = fmt.Sprintf("%s: Scroll %s %s: Back %s %s: Quit",
			keyStyle.Render("j/k"), sep, keyStyle.Render("Esc"), sep, keyStyle.Render("q"))
	default:
		helpText = fmt.Sprintf("%s: Nav %s %s: View %s %s: Role %s %s: Search %s %s: Reload %s %s: Quit",
			keyStyle.Render("j/k"), sep,
			keyStyle.Render("Enter"), sep,
			keyStyle.Render("f"), sep,
			keyStyle.Render("/"), sep,
			keyStyle.Render("r"), sep,
			keyStyle.Render("q"))
	}

	return m.styles.HelpStyle().Render(helpText)
}
