// Package contracts defines the message shapes shared by the memory agents.
package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Role identifies who authored a message in a conversation.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
	RoleSystem    Role = "SYSTEM"
)

// ParseRole converts a stored message type back into a Role.
// Matching is case-insensitive; unknown values return an error.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	case RoleSystem:
		return RoleSystem, nil
	}
	return "", fmt.Errorf("unknown message role: %q", s)
}

// Metadata is the typed metadata carried by a Message.
// BuildNumber is resolved once at the ingestion boundary.
type Metadata struct {
	// Jenkins build number, nil when the producer did not send one.
	BuildNumber *int `json:"build_number,omitempty"`
	// Remaining producer-supplied attributes (record type, job name, ...).
	Attributes map[string]string `json:"attributes,omitempty"`
}

// BuildNumberOrZero returns the build number, or 0 when unknown.
func (m Metadata) BuildNumberOrZero() int {
	if m.BuildNumber == nil {
		return 0
	}
	return *m.BuildNumber
}

// WithBuildNumber returns metadata carrying the given build number.
func WithBuildNumber(n int) Metadata {
	return Metadata{BuildNumber: &n}
}

// ErrMalformedBuildNumber is returned by ParseBuildNumber for values that
// are not a base-10 integer.
var ErrMalformedBuildNumber = errors.New("malformed build number")

// ParseBuildNumber reads a loosely typed build number. Integers of any
// width, floats with an integral value and base-10 numeric strings are
// accepted; booleans and every other type are rejected. The sign is not
// checked.
func ParseBuildNumber(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			break
		}
		return int(n), nil
	case uint64:
		if n > math.MaxInt64 {
			break
		}
		return int(n), nil
	case float32:
		return ParseBuildNumber(float64(n))
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			break
		}
		return int(n), nil
	case json.Number:
		return ParseBuildNumber(string(n))
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			break
		}
		return i, nil
	}
	return 0, fmt.Errorf("%w: %v (%T)", ErrMalformedBuildNumber, v, v)
}

// Message is the atomic unit of conversation memory.
// Messages are immutable once stored.
type Message struct {
	// Unique identifier (ULID), assigned by the store at write time.
	ID string `json:"id"`
	// Jenkins job name the message belongs to.
	ConversationID string `json:"conversation_id"`
	// Jenkins build number, 0 when unknown.
	BuildNumber int `json:"build_number"`
	// Author of the message.
	Role Role `json:"role"`
	// Message text.
	Content string `json:"content"`
	// ContentSet distinguishes an intentionally empty content from a missing one.
	// Messages built with NewMessage always have it set.
	ContentSet bool `json:"-"`
	// Write time, assigned by the store.
	Timestamp time.Time `json:"timestamp"`
	// Typed metadata.
	Metadata Metadata `json:"metadata"`
}

// NewMessage builds a message ready to be passed to a store.
func NewMessage(role Role, content string, meta Metadata) Message {
	return Message{
		Role:       role,
		Content:    content,
		ContentSet: true,
		Metadata:   meta,
	}
}

// UserMessage is shorthand for NewMessage(RoleUser, ...).
func UserMessage(content string, meta Metadata) Message {
	return NewMessage(RoleUser, content, meta)
}

// AssistantMessage is shorthand for NewMessage(RoleAssistant, ...).
func AssistantMessage(content string, meta Metadata) Message {
	return NewMessage(RoleAssistant, content, meta)
}

// AnalysisTrigger signals that a build has delivered both build logs and the
// secret scan of its build log, so AI analysis may start.
// Published to: jenkins.analysis.triggers
// Key: {conversation_id}
type AnalysisTrigger struct {
	ConversationID string `json:"conversation_id"`
	BuildNumber    int    `json:"build_number"`
	Timestamp      string `json:"timestamp"`
}

// Topic names used by the memory agents.
const (
	// TopicTypedLogs carries typed Jenkins pipeline records, one per event.
	TopicTypedLogs = "jenkins.logs.typed"

	// TopicAnalysisTriggers carries AnalysisTrigger messages for the AI caller.
	TopicAnalysisTriggers = "jenkins.analysis.triggers"
)

// ExpectedRecordsPerBuild is the number of typed records a Jenkins build emits.
const ExpectedRecordsPerBuild = 14
