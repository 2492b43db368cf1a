package mcp

import (
	"regexp"
	"strconv"
	"strings"
)

// Compaction trims stored record text before it is handed to an LLM.
// The stored messages are never modified.

// timestampPattern matches leading timestamps in various formats:
// - 2024-05-21T10:00:05.123Z
// - 2024-05-21 10:00:05,123
// - [2024-05-21T10:00:05.123Z] as written by the Jenkins timestamper plugin
var timestampPattern = regexp.MustCompile(`^\[?\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}[.,]?\d*Z?([+-]\d{2}:?\d{2})?\]?\s*`)

// hashPattern matches hex strings of 12+ characters (commit ids, image digests).
var hashPattern = regexp.MustCompile(`\b[a-f0-9]{12,}\b`)

// workspacePattern matches absolute paths with 3+ directories, such as
// /var/jenkins_home/workspace/api/src/main/App.java:42.
var workspacePattern = regexp.MustCompile(`/(?:[^/\s]+/){3,}([^/\s:]+(?::\d+)?)`)

// whitespacePattern matches runs of spaces and tabs.
var whitespacePattern = regexp.MustCompile(`[ \t]+`)

// pipelineNoise matches Jenkins pipeline step markers that carry no signal.
var pipelineNoise = regexp.MustCompile(`^\[Pipeline\] (\{|\}|// .*|stage|node|withEnv|dir)$`)

// compactLine applies the per-line rewrites.
func compactLine(line string) string {
	line = timestampPattern.ReplaceAllString(line, "")
	line = hashPattern.ReplaceAllString(line, "<HASH>")
	line = workspacePattern.ReplaceAllString(line, ".../$1")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(line, " "))
}

// compactContent rewrites every line, drops pipeline step noise and
// collapses runs of identical lines into one line with a repeat count.
func compactContent(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))

	var prev string
	repeats := 0
	flush := func() {
		if repeats > 0 {
			out[len(out)-1] = prev + " (repeated " + strconv.Itoa(repeats+1) + "x)"
		}
		repeats = 0
	}

	for _, raw := range lines {
		line := compactLine(raw)
		if line == "" || pipelineNoise.MatchString(line) {
			continue
		}
		if len(out) > 0 && line == prev {
			repeats++
			continue
		}
		flush()
		out = append(out, line)
		prev = line
	}
	flush()

	return strings.Join(out, "\n")
}
