package tui

import (
	"strings"

	"jenkins-memory-agent/src/contracts"
)

// typeLabels are short column labels for record types.
var typeLabels = map[string]string{
	"build_log_data":             "build log",
	"code_changes":               "changes",
	"secret_detection":           "secrets",
	"sast_scanning":              "sast",
	"additional_info_agent":      "agent",
	"additional_info_controller": "controller",
}

// Item is one stored message in the history list.
// It implements bubbles/list.Item.
type Item struct {
	Message contracts.Message
	Index   int // 1-based position in the conversation
}

// FilterValue is the value used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Message.Content }

// Title returns the first meaningful line of the message.
func (i Item) Title() string { return Summary(i.Message.Content) }

// Description returns the message role.
func (i Item) Description() string { return string(i.Message.Role) }

// RecordType returns the record type from metadata, falling back to the
// "type: ..." tag line at the top of the content.
func (i Item) RecordType() string {
	if t := i.Message.Metadata.Attributes["type"]; t != "" {
		return t
	}
	first, _, _ := strings.Cut(i.Message.Content, "\n")
	if t, ok := strings.CutPrefix(first, "type: "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

// TypeLabel returns a short label for the record type.
func (i Item) TypeLabel() string {
	t := i.RecordType()
	if label, ok := typeLabels[t]; ok {
		return label
	}
	if t == "" {
		return "-"
	}
	return t
}

// Matches reports whether the message contains query, case-insensitively.
func (i Item) Matches(query string) bool {
	query = strings.ToLower(query)
	return strings.Contains(strings.ToLower(i.Message.Content), query) ||
		strings.Contains(strings.ToLower(i.RecordType()), query)
}
