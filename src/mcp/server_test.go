package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/store"
)

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	return result.Content[0].(mcp.TextContent).Text
}

func testServer(t *testing.T) (*Server, store.ChatMemory) {
	t.Helper()
	memory := store.NewMemoryStore(store.Options{})
	ctx := context.Background()

	seed := []contracts.Message{
		contracts.UserMessage("type: build_log_data\n2024-05-21T10:00:05Z Building /var/jenkins_home/workspace/api/src/App.java:42",
			contracts.Metadata{BuildNumber: intPtr(7), Attributes: map[string]string{"type": "build_log_data"}}),
		contracts.UserMessage("type: build_log_data\nsecond stage", contracts.WithBuildNumber(7)),
		contracts.AssistantMessage("The build failed in App.java", contracts.WithBuildNumber(7)),
	}
	if err := memory.Add(ctx, "api", seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := memory.Add(ctx, "web", []contracts.Message{contracts.UserMessage("x", contracts.WithBuildNumber(1))}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	return NewServer(memory, nil), memory
}

func intPtr(n int) *int { return &n }

func TestHandleGetHistory(t *testing.T) {
	srv, _ := testServer(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		wantCount int
	}{
		{"default limit", map[string]any{"conversation_id": "api"}, false, 3},
		{"last two", map[string]any{"conversation_id": "api", "last_n": float64(2)}, false, 2},
		{"unknown conversation", map[string]any{"conversation_id": "nobody"}, false, 0},
		{"missing conversation id", map[string]any{}, true, 0},
		{"zero limit", map[string]any{"conversation_id": "api", "last_n": float64(0)}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := srv.handleGetHistory(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if result.IsError != tt.wantError {
				t.Fatalf("IsError = %v, want %v (%s)", result.IsError, tt.wantError, resultText(t, result))
			}
			if tt.wantError {
				return
			}

			var resp HistoryResponse
			if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp.Count != tt.wantCount || len(resp.Messages) != tt.wantCount {
				t.Errorf("Count = %d (%d messages), want %d", resp.Count, len(resp.Messages), tt.wantCount)
			}
		})
	}
}

func TestHandleGetHistory_Compact(t *testing.T) {
	srv, _ := testServer(t)

	result, err := srv.handleGetHistory(context.Background(), makeRequest(map[string]any{
		"conversation_id": "api",
		"last_n":          float64(3),
		"compact":         true,
	}))
	if err != nil || result.IsError {
		t.Fatalf("unexpected failure: %v", err)
	}

	var resp HistoryResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	first := resp.Messages[0]
	if first.Type != "build_log_data" {
		t.Errorf("Type = %q, want build_log_data", first.Type)
	}
	if strings.Contains(first.Content, "2024-05-21") {
		t.Errorf("compact content kept the timestamp: %q", first.Content)
	}
	if !strings.Contains(first.Content, "Building .../App.java:42") {
		t.Errorf("compact content did not shorten the workspace path: %q", first.Content)
	}
	if resp.Messages[2].Role != "ASSISTANT" {
		t.Errorf("Role = %q, want ASSISTANT", resp.Messages[2].Role)
	}
}

func TestHandleCheckBuildReady(t *testing.T) {
	srv, _ := testServer(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		wantReady bool
	}{
		{"ready build", map[string]any{"conversation_id": "api", "build_number": float64(7)}, false, true},
		{"other build", map[string]any{"conversation_id": "api", "build_number": float64(8)}, false, false},
		{"missing build number", map[string]any{"conversation_id": "api"}, true, false},
		{"negative build number", map[string]any{"conversation_id": "api", "build_number": float64(-2)}, true, false},
		{"missing conversation id", map[string]any{"build_number": float64(7)}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := srv.handleCheckBuildReady(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if result.IsError != tt.wantError {
				t.Fatalf("IsError = %v, want %v", result.IsError, tt.wantError)
			}
			if tt.wantError {
				return
			}

			var resp ReadinessResponse
			if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp.Ready != tt.wantReady {
				t.Errorf("Ready = %v, want %v", resp.Ready, tt.wantReady)
			}
		})
	}
}

func TestHandleClearConversation(t *testing.T) {
	srv, memory := testServer(t)
	ctx := context.Background()

	result, err := srv.handleClearConversation(ctx, makeRequest(map[string]any{"conversation_id": "api"}))
	if err != nil || result.IsError {
		t.Fatalf("unexpected failure: %v", err)
	}

	if count, _ := memory.Count(ctx, "api"); count != 0 {
		t.Errorf("api still has %d messages", count)
	}
	if count, _ := memory.Count(ctx, "web"); count != 1 {
		t.Errorf("web has %d messages, want 1", count)
	}

	result, _ = srv.handleClearConversation(ctx, makeRequest(map[string]any{}))
	if !result.IsError {
		t.Error("expected error for missing conversation_id")
	}
}

func TestHandleListConversations(t *testing.T) {
	srv, _ := testServer(t)

	result, err := srv.handleListConversations(context.Background(), makeRequest(nil))
	if err != nil || result.IsError {
		t.Fatalf("unexpected failure: %v", err)
	}

	var resp ConversationsResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	want := []ConversationSummary{{"api", 3}, {"web", 1}}
	if len(resp.Conversations) != len(want) {
		t.Fatalf("got %d conversations, want %d", len(resp.Conversations), len(want))
	}
	for i := range want {
		if resp.Conversations[i] != want[i] {
			t.Errorf("conversation %d = %+v, want %+v", i, resp.Conversations[i], want[i])
		}
	}
}
