package records

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"jenkins-memory-agent/src/codec"
	"jenkins-memory-agent/src/sanitize"
)

const notAvailable = "N/A"

// ContentToAnalyze renders rec as a single text block for AI analysis.
// It never mutates rec. An error is returned only when the build log or the
// scan result cannot be decompressed; other decode failures degrade to a
// logged warning.
func (n *Normalizer) ContentToAnalyze(rec Record) (string, error) {
	switch r := rec.(type) {
	case *BuildLog:
		return n.buildLogContent(r)
	case *CodeChanges:
		return n.codeChangesContent(r), nil
	case *SecretDetection:
		return n.secretDetectionContent(r), nil
	case *ScanResult:
		return n.scanResultContent(r)
	case *AgentInfo:
		return n.agentInfoContent(r), nil
	case nil:
		return "", fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownType, rec)
}

// text accumulates analyzable lines.
type text struct {
	b strings.Builder
}

func (t *text) line(format string, args ...interface{}) {
	fmt.Fprintf(&t.b, format, args...)
	t.b.WriteByte('\n')
}

// field writes "Label: value", substituting N/A for empty values.
func (t *text) field(label, value string) {
	if value == "" {
		value = notAvailable
	}
	t.line("%s: %s", label, value)
}

// block writes a heading followed by body, or nothing when body is empty.
func (t *text) block(heading, body string) {
	if body == "" {
		return
	}
	t.line("%s:", heading)
	t.line("%s", body)
}

func (t *text) header(h Header) {
	if h.Error != "" {
		t.line("Error: %s", h.Error)
	}
	t.field("Job", h.JobName)
	t.field("Build Number", strconv.Itoa(h.Build))
}

func (t *text) String() string {
	return strings.TrimRight(t.b.String(), "\n")
}

func (n *Normalizer) buildLogContent(r *BuildLog) (string, error) {
	log, err := n.buildLogText(r)
	if err != nil {
		return "", err
	}

	var t text
	t.header(r.Header)
	t.field("Timestamp", r.Timestamp)
	t.block("Build Log", sanitize.Clean(log))
	return t.String(), nil
}

func (n *Normalizer) buildLogText(r *BuildLog) (string, error) {
	if !r.LogCompressed {
		return r.Log, nil
	}
	log, err := codec.Decode(r.Log)
	if err != nil {
		return "", fmt.Errorf("failed to decompress build log for %s #%d: %w", r.JobName, r.Build, err)
	}
	return log, nil
}

func (n *Normalizer) codeChangesContent(r *CodeChanges) string {
	var t text
	t.header(r.Header)
	t.field("Change Message", r.Message)

	commits, raw := n.commits(r)
	if len(commits) > 0 {
		t.line("Commits:")
		for _, c := range commits {
			entry := fmt.Sprintf("- Commit: %s Author: %s Message: %s", orNA(c.CommitID), orNA(c.Author), orNA(c.Message))
			if c.Timestamp != "" {
				entry += " Time: " + c.Timestamp
			}
			if len(c.AffectedFiles) > 0 {
				entry += " Files: " + strings.Join(c.AffectedFiles, ", ")
			}
			t.line("%s", entry)
		}
	} else {
		t.block("Commits", raw)
	}

	if len(r.Culprits) > 0 {
		t.line("Culprits:")
		for _, c := range r.Culprits {
			t.line("- Culprit: %s", c)
		}
	}
	return t.String()
}

// commits returns the parsed commit list, or the raw commit text when
// CommitsData cannot be decoded or parsed.
func (n *Normalizer) commits(r *CodeChanges) ([]Commit, string) {
	if r.CommitsData == "" {
		return r.Commits, ""
	}

	data := r.CommitsData
	if r.CommitsCompressed {
		plain, err := codec.Decode(data)
		if err != nil {
			n.logger.Warn("Failed to decompress commits for %s #%d, using raw value: %v", r.JobName, r.Build, err)
		} else {
			data = plain
		}
	}

	var parsed []Commit
	if err := n.json.Unmarshal([]byte(data), &parsed); err != nil {
		n.logger.Warn("Commits for %s #%d are not a JSON list, rendering as text: %v", r.JobName, r.Build, err)
		return r.Commits, data
	}
	return append(append([]Commit(nil), r.Commits...), parsed...), ""
}

func (n *Normalizer) secretDetectionContent(r *SecretDetection) string {
	var t text
	t.header(r.Header)
	t.field("Source", r.Source)
	t.field("Message", r.Message)
	t.block("Content", n.secretContent(r))

	secrets := n.secrets(r)
	if len(secrets) > 0 {
		t.line("Secrets Found:")
		for _, typ := range sortedKeys(secrets) {
			findings := secrets[typ]
			t.line("- Type: %s Count: %d", typ, len(findings))
			for _, f := range findings {
				t.line("  - Finding: %s", f)
			}
		}
	}
	return t.String()
}

func (n *Normalizer) secretContent(r *SecretDetection) string {
	if !r.ContentCompressed {
		return r.Content
	}
	plain, err := codec.Decode(r.Content)
	if err != nil {
		n.logger.Warn("Failed to decompress secret scan content for %s #%d: %v", r.JobName, r.Build, err)
		return ""
	}
	return plain
}

func (n *Normalizer) secrets(r *SecretDetection) map[string][]string {
	if r.SecretsData == "" {
		return r.Secrets
	}

	data := r.SecretsData
	if r.SecretsCompressed {
		plain, err := codec.Decode(data)
		if err != nil {
			n.logger.Warn("Failed to decompress secrets for %s #%d: %v", r.JobName, r.Build, err)
			return r.Secrets
		}
		data = plain
	}

	var parsed map[string][]string
	if err := n.json.Unmarshal([]byte(data), &parsed); err != nil {
		n.logger.Warn("Failed to parse secrets for %s #%d: %v", r.JobName, r.Build, err)
		return r.Secrets
	}

	merged := make(map[string][]string, len(r.Secrets)+len(parsed))
	for k, v := range r.Secrets {
		merged[k] = v
	}
	for k, v := range parsed {
		merged[k] = append(merged[k], v...)
	}
	return merged
}

func (n *Normalizer) scanResultContent(r *ScanResult) (string, error) {
	result, err := n.scanResultText(r)
	if err != nil {
		return "", err
	}

	var t text
	t.header(r.Header)
	t.field("Repository", r.RepoURL)
	t.field("Branch", r.Branch)
	t.field("Tool", r.Tool)
	if r.ScanDurationSeconds != nil {
		t.field("Scan Duration", strconv.FormatFloat(*r.ScanDurationSeconds, 'f', -1, 64)+"s")
	} else {
		t.field("Scan Duration", "")
	}
	t.field("Status", r.Status)
	t.block("Scan Result", result)
	return t.String(), nil
}

func (n *Normalizer) scanResultText(r *ScanResult) (string, error) {
	if !r.ResultCompressed {
		return r.Result, nil
	}
	plain, err := codec.Decode(r.Result)
	if err != nil {
		return "", fmt.Errorf("failed to decompress scan result for %s #%d: %w", r.JobName, r.Build, err)
	}
	return plain, nil
}

// InErrorState reports whether the node reported a failure. Error-state
// records render only the error and its stack trace.
func (a *AgentInfo) InErrorState() bool {
	return a.Error != "" || strings.EqualFold(a.Status, "error") || len(a.Stacktrace) > 0
}

func (n *Normalizer) agentInfoContent(r *AgentInfo) string {
	var t text

	if r.InErrorState() {
		msg := r.Error
		if msg == "" {
			msg = orNA(r.Message)
		}
		t.line("Error: %s", msg)
		for _, frame := range r.Stacktrace {
			t.line("  at %s", strings.TrimSpace(frame))
		}
		return t.String()
	}

	t.field("Job", r.JobName)
	t.field("Build Number", strconv.Itoa(r.Build))
	t.field("Node Type", string(r.Kind))
	t.field("Node", r.Node)
	t.field("Host", r.Host)
	t.field("OS", r.OS)
	t.field("Status", r.Status)
	t.field("Session Count", intOrNA(r.SessionCount))
	t.field("Active Threads", intOrNA(r.ActiveThreadCount))
	t.field("Thread Count", intOrNA(r.ThreadCount))
	t.field("Load Average", floatOrNA(r.LoadAverage))
	t.field("CPU Load", floatOrNA(r.CPULoad))

	if len(r.Memory) > 0 {
		t.line("Memory:")
		for _, k := range sortedKeys(r.Memory) {
			t.line("- %s: %v", k, r.Memory[k])
		}
	}
	if len(r.Threads) > 0 {
		t.line("Threads:")
		for _, k := range sortedKeys(r.Threads) {
			t.line("- %s: %v", k, r.Threads[k])
		}
	}
	if r.Message != "" {
		t.field("Message", r.Message)
	}
	return t.String()
}

// Materialize returns a copy of rec with every compressed field replaced by
// its plain value and the compression flags cleared. rec is left untouched,
// so JSON output of the original still carries the compressed form.
func (n *Normalizer) Materialize(rec Record) (Record, error) {
	switch r := rec.(type) {
	case *BuildLog:
		out := *r
		log, err := n.buildLogText(r)
		if err != nil {
			return nil, err
		}
		out.Log, out.LogCompressed = log, false
		return &out, nil

	case *CodeChanges:
		out := *r
		if r.CommitsData != "" {
			commits, raw := n.commits(r)
			if raw != "" {
				return nil, fmt.Errorf("failed to materialize commits for %s #%d", r.JobName, r.Build)
			}
			out.Commits, out.CommitsData, out.CommitsCompressed = commits, "", false
		}
		return &out, nil

	case *SecretDetection:
		out := *r
		if r.ContentCompressed {
			plain, err := codec.Decode(r.Content)
			if err != nil {
				return nil, fmt.Errorf("failed to materialize secret content for %s #%d: %w", r.JobName, r.Build, err)
			}
			out.Content, out.ContentCompressed = plain, false
		}
		if r.SecretsData != "" {
			out.Secrets, out.SecretsData, out.SecretsCompressed = n.secrets(r), "", false
		}
		return &out, nil

	case *ScanResult:
		out := *r
		result, err := n.scanResultText(r)
		if err != nil {
			return nil, err
		}
		out.Result, out.ResultCompressed = result, false
		return &out, nil

	case *AgentInfo:
		out := *r
		return &out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownType, rec)
}

// ToJSON serializes rec, including its type discriminator, omitting empty fields.
// Serialization failures are logged and reported as "{}".
func (n *Normalizer) ToJSON(rec Record) string {
	var envelope any
	switch r := rec.(type) {
	case *BuildLog:
		envelope = struct {
			Type Type `json:"type"`
			*BuildLog
		}{r.Type(), r}
	case *CodeChanges:
		envelope = struct {
			Type Type `json:"type"`
			*CodeChanges
		}{r.Type(), r}
	case *SecretDetection:
		envelope = struct {
			Type Type `json:"type"`
			*SecretDetection
		}{r.Type(), r}
	case *ScanResult:
		envelope = struct {
			Type Type `json:"type"`
			*ScanResult
		}{r.Type(), r}
	case *AgentInfo:
		envelope = struct {
			Type Type `json:"type"`
			*AgentInfo
		}{r.Type(), r}
	default:
		n.logger.Error("Cannot serialize record of type %T", rec)
		return "{}"
	}

	data, err := n.json.Marshal(envelope)
	if err != nil {
		n.logger.Error("Failed to serialize %s record for %s #%d: %v", rec.Type(), rec.ConversationID(), rec.BuildNumber(), err)
		return "{}"
	}
	return string(data)
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func intOrNA(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatOrNA(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
