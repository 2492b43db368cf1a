// Package records defines the typed Jenkins pipeline records delivered on the
// typed-log topic and converts them into text suitable for AI analysis.
//
// Record is a closed set: BuildLog, CodeChanges, SecretDetection, ScanResult and
// AgentInfo. Adding a record type means adding a variant here and an arm to each
// type switch in content.go.
package records

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"

	"jenkins-memory-agent/src/codec"
	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/logger"
)

// Type is the discriminator carried in the "type" field of every record.
type Type string

const (
	TypeBuildLog        Type = "build_log_data"
	TypeCodeChanges     Type = "code_changes"
	TypeSecretDetection Type = "secret_detection"
	TypeScanResult      Type = "sast_scanning"
	TypeAgentInfo       Type = "additional_info_agent"
	TypeControllerInfo  Type = "additional_info_controller"
)

// SourceBuildLog is the SecretDetection source for scans of the build log itself.
const SourceBuildLog = "build_log"

var (
	// ErrUnknownType is returned when the discriminator names no known record.
	ErrUnknownType = errors.New("unknown record type")
	// ErrInvalidRecord is returned when a record misses required fields.
	ErrInvalidRecord = errors.New("invalid record")
)

// Record is one typed Jenkins pipeline event.
type Record interface {
	// Type returns the record discriminator.
	Type() Type
	// ConversationID returns the conversation the record belongs to (the job name).
	ConversationID() string
	// BuildNumber returns the Jenkins build number.
	BuildNumber() int

	isRecord()
}

// Header holds the fields every record carries.
type Header struct {
	JobName   string `json:"job_name"`
	Build     int    `json:"build_number"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h Header) ConversationID() string { return h.JobName }
func (h Header) BuildNumber() int       { return h.Build }

func (h Header) validate() error {
	if h.JobName == "" {
		return fmt.Errorf("%w: job_name is required", ErrInvalidRecord)
	}
	if h.Build < 0 {
		return fmt.Errorf("%w: build_number must be non-negative, got %d", ErrInvalidRecord, h.Build)
	}
	return nil
}

// BuildLog carries the console log of a build. Two are emitted per build.
type BuildLog struct {
	Header
	Log           string `json:"log,omitempty"`
	LogCompressed bool   `json:"log_compressed,omitempty"`
}

// Commit is one entry of a CodeChanges record.
type Commit struct {
	CommitID      string   `json:"commit_id,omitempty"`
	Author        string   `json:"author,omitempty"`
	Message       string   `json:"message,omitempty"`
	Timestamp     string   `json:"timestamp,omitempty"`
	AffectedFiles []string `json:"affected_files,omitempty"`
}

// CodeChanges describes the SCM changes that went into a build.
// Commits arrive either as a list or as a JSON array in CommitsData.
type CodeChanges struct {
	Header
	Message           string   `json:"message,omitempty"`
	Commits           []Commit `json:"commits,omitempty"`
	CommitsData       string   `json:"commits_data,omitempty"`
	CommitsCompressed bool     `json:"commits_compressed,omitempty"`
	Culprits          []string `json:"culprits,omitempty"`
}

// SecretDetection reports secrets found in one build artifact (Source).
type SecretDetection struct {
	Header
	Source            string              `json:"source,omitempty"`
	Message           string              `json:"message,omitempty"`
	Content           string              `json:"content,omitempty"`
	ContentCompressed bool                `json:"content_compressed,omitempty"`
	Secrets           map[string][]string `json:"secrets,omitempty"`
	SecretsData       string              `json:"secrets_data,omitempty"`
	SecretsCompressed bool                `json:"secrets_compressed,omitempty"`
}

// ScanResult is the outcome of a SAST scan of the build's repository.
type ScanResult struct {
	Header
	RepoURL             string   `json:"repo_url,omitempty"`
	Branch              string   `json:"branch,omitempty"`
	Tool                string   `json:"tool,omitempty"`
	ScanDurationSeconds *float64 `json:"scan_duration_seconds,omitempty"`
	Result              string   `json:"scan_result,omitempty"`
	ResultCompressed    bool     `json:"scan_result_compressed,omitempty"`
	Status              string   `json:"status,omitempty"`
}

// NodeKind tells agent metrics from controller metrics.
type NodeKind string

const (
	NodeAgent      NodeKind = "agent"
	NodeController NodeKind = "controller"
)

// AgentInfo carries health metrics of the Jenkins agent or controller that ran the build.
type AgentInfo struct {
	Header
	Kind              NodeKind       `json:"-"`
	Node              string         `json:"node,omitempty"`
	Host              string         `json:"host,omitempty"`
	OS                string         `json:"os,omitempty"`
	SessionCount      *int           `json:"session_count,omitempty"`
	ActiveThreadCount *int           `json:"active_thread_count,omitempty"`
	ThreadCount       *int           `json:"thread_count,omitempty"`
	LoadAverage       *float64       `json:"load_average,omitempty"`
	CPULoad           *float64       `json:"cpu_load,omitempty"`
	Memory            map[string]any `json:"memory,omitempty"`
	Threads           map[string]any `json:"threads,omitempty"`
	Status            string         `json:"status,omitempty"`
	Message           string         `json:"message,omitempty"`
	Stacktrace        []string       `json:"stacktrace,omitempty"`
}

func (*BuildLog) Type() Type        { return TypeBuildLog }
func (*CodeChanges) Type() Type     { return TypeCodeChanges }
func (*SecretDetection) Type() Type { return TypeSecretDetection }
func (*ScanResult) Type() Type      { return TypeScanResult }

func (a *AgentInfo) Type() Type {
	if a.Kind == NodeController {
		return TypeControllerInfo
	}
	return TypeAgentInfo
}

func (*BuildLog) isRecord()        {}
func (*CodeChanges) isRecord()     {}
func (*SecretDetection) isRecord() {}
func (*ScanResult) isRecord()      {}
func (*AgentInfo) isRecord()       {}

// Normalizer decodes records and renders them as analyzable text and JSON.
// It holds no per-record state and is safe for concurrent use.
type Normalizer struct {
	json   codec.JSON
	logger logger.Logger
}

// NewNormalizer creates a normalizer using the given serializer and logger.
func NewNormalizer(json codec.JSON, log logger.Logger) *Normalizer {
	if json == nil {
		json = codec.StdJSON
	}
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &Normalizer{json: json, logger: log}
}

// Decode reads the type discriminator and unmarshals data into the matching variant.
func (n *Normalizer) Decode(data []byte) (Record, error) {
	typ, err := jsonparser.GetString(data, "type")
	if err != nil {
		return nil, fmt.Errorf("%w: missing type discriminator: %v", ErrInvalidRecord, err)
	}

	var (
		rec    Record
		header *Header
	)
	switch Type(typ) {
	case TypeBuildLog:
		r := &BuildLog{}
		rec, header = r, &r.Header
	case TypeCodeChanges:
		r := &CodeChanges{}
		rec, header = r, &r.Header
	case TypeSecretDetection:
		r := &SecretDetection{}
		rec, header = r, &r.Header
	case TypeScanResult:
		r := &ScanResult{}
		rec, header = r, &r.Header
	case TypeAgentInfo:
		r := &AgentInfo{Kind: NodeAgent}
		rec, header = r, &r.Header
	case TypeControllerInfo:
		r := &AgentInfo{Kind: NodeController}
		rec, header = r, &r.Header
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	data, err = n.coerceBuildNumber(data, typ)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	if err := n.json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal %s: %v", ErrInvalidRecord, typ, err)
	}
	if err := header.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// coerceBuildNumber rewrites a build_number that is not a JSON integer, such
// as "42", into one. Values that cannot be read become 0 with a warning.
// Negative integers are left for validation to reject.
func (n *Normalizer) coerceBuildNumber(data []byte, typ string) ([]byte, error) {
	value, dataType, _, err := jsonparser.Get(data, "build_number")
	if err != nil || dataType == jsonparser.Null {
		// Absent, or malformed JSON that Unmarshal will report
		return data, nil
	}
	if dataType == jsonparser.Number {
		if _, err := strconv.Atoi(string(value)); err == nil {
			return data, nil
		}
	}

	var raw any = string(value)
	switch dataType {
	case jsonparser.String:
		if s, err := jsonparser.ParseString(value); err == nil {
			raw = s
		}
	case jsonparser.Number:
		if f, err := jsonparser.ParseFloat(value); err == nil {
			raw = f
		}
	case jsonparser.Boolean:
		if b, err := jsonparser.ParseBoolean(value); err == nil {
			raw = b
		}
	}

	build, err := contracts.ParseBuildNumber(raw)
	if err != nil || build < 0 {
		n.logger.Warn("Malformed build_number %s in %s record, using 0", value, typ)
		build = 0
	}

	return jsonparser.Set(append([]byte(nil), data...), []byte(strconv.Itoa(build)), "build_number")
}
