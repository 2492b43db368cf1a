// Package store defines conversation memory storage for Jenkins jobs.
package store

import (
	"context"
	"errors"
	"fmt"

	"jenkins-memory-agent/src/contracts"
)

// DefaultMaxContentLength caps stored message content, in characters.
const DefaultMaxContentLength = 10_000_000

// ChatMemory stores conversation history keyed by conversation id (the
// Jenkins job name). Implementations are safe for concurrent use.
type ChatMemory interface {
	// Add persists messages in order. Content longer than the configured
	// cap is truncated; messages without content are skipped.
	Add(ctx context.Context, conversationID string, messages []contracts.Message) error

	// Get returns up to lastN of the most recent USER/ASSISTANT messages,
	// oldest first.
	Get(ctx context.Context, conversationID string, lastN int) ([]contracts.Message, error)

	// Clear deletes every message of the conversation.
	Clear(ctx context.Context, conversationID string) error

	// HasTwoBuildLogs reports whether exactly two stored messages for the
	// build carry the build log tag.
	HasTwoBuildLogs(ctx context.Context, conversationID string, buildNumber int) (bool, error)

	// ConversationIDs lists every conversation with at least one message.
	ConversationIDs(ctx context.Context) ([]string, error)

	// Prune keeps only the keep most recent messages of the conversation
	// and returns the number of deleted messages.
	Prune(ctx context.Context, conversationID string, keep int) (int, error)

	// Count returns the number of stored messages of the conversation.
	Count(ctx context.Context, conversationID string) (int, error)

	// Close releases the underlying resources.
	Close() error
}

var (
	// ErrNilConversationID is returned when the conversation id is empty.
	ErrNilConversationID = errors.New("conversation id is required")

	// ErrNegativeBuildNumber is returned for build numbers below zero.
	ErrNegativeBuildNumber = errors.New("build number must not be negative")

	// ErrInvalidRetention is returned for a retention limit below one.
	ErrInvalidRetention = errors.New("retention limit must be at least 1")
)

// PreconditionError reports a rejected argument. It unwraps to one of the
// sentinel errors above.
type PreconditionError struct {
	Op    string
	Field string
	Err   error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %v", e.Op, e.Field, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

func precondition(op, field string, err error) error {
	return &PreconditionError{Op: op, Field: field, Err: err}
}

func checkConversation(op, conversationID string) error {
	if conversationID == "" {
		return precondition(op, "conversation id", ErrNilConversationID)
	}
	return nil
}

func checkBuildNumber(op string, buildNumber int) error {
	if buildNumber < 0 {
		return precondition(op, "build number", ErrNegativeBuildNumber)
	}
	return nil
}

func checkKeep(op string, keep int) error {
	if keep < 1 {
		return precondition(op, "keep", ErrInvalidRetention)
	}
	return nil
}

// visible reports whether a stored role is returned by Get.
func visible(role contracts.Role) bool {
	return role == contracts.RoleUser || role == contracts.RoleAssistant
}
