package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// roleFilters are cycled with the f key.
var roleFilters = []string{"ALL", "USER", "ASSISTANT"}

// Header represents the top status bar component.
type Header struct {
	conversationID string
	total          int
	shown          int
	roleFilter     string
	searchQuery    string
	searchMode     bool
	styles         *StyleConfig
}

// NewHeader creates a new header for a conversation.
func NewHeader(conversationID string, styles *StyleConfig) Header {
	return Header{
		conversationID: conversationID,
		roleFilter:     "ALL",
		styles:         styles,
	}
}

// SetCounts sets the total and currently visible message counts.
func (h *Header) SetCounts(total, shown int) {
	h.total = total
	h.shown = shown
}

// RoleFilter returns the current role filter.
func (h Header) RoleFilter() string {
	return h.roleFilter
}

// CycleRoleFilter moves to the next role filter.
func (h *Header) CycleRoleFilter() {
	for i, f := range roleFilters {
		if f == h.roleFilter {
			h.roleFilter = roleFilters[(i+1)%len(roleFilters)]
			return
		}
	}
	h.roleFilter = roleFilters[0]
}

// SetSearch updates the search state
func (h *Header) SetSearch(query string, mode bool) {
	h.searchQuery = query
	h.searchMode = mode
}

// Render renders the header
func (h Header) Render(width int) string {
	section := lipgloss.NewStyle().
		Foreground(h.styles.PrimaryBlue).
		Bold(true).
		Padding(0, 2)

	title := section.Render(fmt.Sprintf("Jenkins memory: %s", h.conversationID))

	counts := fmt.Sprintf("%d messages", h.total)
	if h.shown != h.total {
		counts = fmt.Sprintf("%d of %d messages", h.shown, h.total)
	}
	countSection := section.Foreground(h.styles.TextSecondary).Render(counts)

	filter := section.Render(fmt.Sprintf("Role: %s", h.roleFilter))

	var searchText string
	switch {
	case h.searchMode:
		searchText = fmt.Sprintf("Search: %s█", h.searchQuery)
	case h.searchQuery != "":
		searchText = fmt.Sprintf("Search: %s", h.searchQuery)
	default:
		searchText = "[/] to search"
	}
	searchStyle := section.Bold(false).Foreground(h.styles.TextSecondary)
	if h.searchMode {
		searchStyle = searchStyle.Foreground(h.styles.PrimaryBlue)
	}
	search := searchStyle.Render(searchText)

	row := lipgloss.JoinHorizontal(lipgloss.Top, title, countSection, filter, search)

	return lipgloss.NewStyle().
		Width(width).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(h.styles.BorderColor).
		Render(row)
}
