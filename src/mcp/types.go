// Package mcp exposes conversation memory to LLM clients over the Model
// Context Protocol.
package mcp

// HistoryResponse is returned by get_conversation_history.
type HistoryResponse struct {
	ConversationID string           `json:"conversation_id"`
	Count          int              `json:"count"`
	Messages       []HistoryMessage `json:"messages"`
}

// HistoryMessage is one stored message, trimmed for LLM consumption.
type HistoryMessage struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	BuildNumber int    `json:"build_number"`
	Type        string `json:"type,omitempty"`
	Timestamp   string `json:"timestamp"`
	Content     string `json:"content"`
}

// ReadinessResponse is returned by check_build_ready.
type ReadinessResponse struct {
	ConversationID string `json:"conversation_id"`
	BuildNumber    int    `json:"build_number"`
	Ready          bool   `json:"ready"`
}

// ConversationsResponse is returned by list_conversations.
type ConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}

// ConversationSummary gives the stored message count of a conversation.
type ConversationSummary struct {
	ConversationID string `json:"conversation_id"`
	Messages       int    `json:"messages"`
}
