package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/records"
)

// MemoryStore is an in-memory implementation of ChatMemory.
// Useful for testing and local mode.
type MemoryStore struct {
	w *writer

	mu            sync.RWMutex
	conversations map[string][]contracts.Message // conversationID -> messages, oldest first
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		w:             newWriter(opts),
		conversations: make(map[string][]contracts.Message),
	}
}

// Add appends messages to the conversation.
func (s *MemoryStore) Add(ctx context.Context, conversationID string, messages []contracts.Message) error {
	if err := checkConversation("add", conversationID); err != nil {
		return err
	}
	if len(messages) == 0 {
		s.w.log.Info("[ChatMemory] No messages to add for conversation %s", conversationID)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.w.prepare(conversationID, messages)
	if len(rows) > 0 {
		s.conversations[conversationID] = append(s.conversations[conversationID], rows...)
	}
	s.w.metrics.ObserveStoreOp("add", nil)

	return nil
}

// Get returns the most recent lastN visible messages, oldest first.
func (s *MemoryStore) Get(ctx context.Context, conversationID string, lastN int) ([]contracts.Message, error) {
	if err := checkConversation("get", conversationID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.conversations[conversationID]
	start := 0
	if lastN < len(all) {
		start = len(all) - max(lastN, 0)
	}

	result := make([]contracts.Message, 0, len(all)-start)
	for _, m := range all[start:] {
		if visible(m.Role) {
			result = append(result, m)
		}
	}
	s.w.metrics.ObserveStoreOp("get", nil)

	return result, nil
}

// Clear removes the conversation.
func (s *MemoryStore) Clear(ctx context.Context, conversationID string) error {
	if err := checkConversation("clear", conversationID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, conversationID)
	s.w.metrics.ObserveStoreOp("clear", nil)

	return nil
}

// HasTwoBuildLogs counts build log messages for the build.
func (s *MemoryStore) HasTwoBuildLogs(ctx context.Context, conversationID string, buildNumber int) (bool, error) {
	if err := checkConversation("has_two_build_logs", conversationID); err != nil {
		return false, err
	}
	if err := checkBuildNumber("has_two_build_logs", buildNumber); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.conversations[conversationID] {
		if m.BuildNumber == buildNumber && strings.Contains(m.Content, string(records.TypeBuildLog)) {
			count++
		}
	}
	s.w.metrics.ObserveStoreOp("has_two_build_logs", nil)

	return count == 2, nil
}

// ConversationIDs returns all conversation ids, sorted.
func (s *MemoryStore) ConversationIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.conversations))
	for id, msgs := range s.conversations {
		if len(msgs) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	return ids, nil
}

// Prune keeps the most recent keep messages.
func (s *MemoryStore) Prune(ctx context.Context, conversationID string, keep int) (int, error) {
	if err := checkConversation("prune", conversationID); err != nil {
		return 0, err
	}
	if err := checkKeep("prune", keep); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.conversations[conversationID]
	if len(msgs) <= keep {
		return 0, nil
	}

	removed := len(msgs) - keep
	kept := make([]contracts.Message, keep)
	copy(kept, msgs[removed:])
	s.conversations[conversationID] = kept
	s.w.metrics.ObserveStoreOp("prune", nil)

	return removed, nil
}

// Count returns the number of stored messages.
func (s *MemoryStore) Count(ctx context.Context, conversationID string) (int, error) {
	if err := checkConversation("count", conversationID); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.conversations[conversationID]), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
