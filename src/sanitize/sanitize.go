// Package sanitize provides utilities for cleaning Jenkins console output before
// it is stored as conversation memory for AI analysis.
// It removes ANSI escape codes and Jenkins console-note markup (hyperlink and
// annotation payloads the Jenkins UI hides with an ESC[8m "concealed" sequence).
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// Jenkins console notes: \x1b[8mha:<base64>\x1b[0m
	consoleNotePattern = regexp.MustCompile(`\x1b\[8mha:[^\x1b]*\x1b\[0m`)

	// ANSI escape codes: \x1b[...m (SGR sequences)
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// StripANSI removes Jenkins console notes and ANSI escape codes.
// Notes are removed first so their payload does not survive as plain text.
func StripANSI(s string) string {
	s = consoleNotePattern.ReplaceAllString(s, "")
	s = ansiPattern.ReplaceAllString(s, "")
	return s
}

// Clean strips escape sequences, normalizes line endings and drops trailing newlines.
func Clean(s string) string {
	s = StripANSI(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimRight(s, "\n")
}
