package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"jenkins-memory-agent/src/logger"
	"jenkins-memory-agent/src/store"
)

// DefaultHistoryLimit is the number of messages returned when last_n is omitted.
const DefaultHistoryLimit = 20

// Server is the MCP server for Jenkins conversation memory.
type Server struct {
	mcpServer *server.MCPServer
	memory    store.ChatMemory
	logger    logger.Logger
}

// NewServer creates a new MCP server backed by memory.
func NewServer(memory store.ChatMemory, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewSilentLogger()
	}

	s := server.NewMCPServer(
		"jenkins-memory",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		memory:    memory,
		logger:    log,
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	historyTool := mcp.NewTool("get_conversation_history",
		mcp.WithDescription("Get the most recent stored messages for a Jenkins job, oldest first. Each message is one typed pipeline record (build log, code changes, secret scan, SAST scan, agent info) rendered as text."),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Jenkins job name"),
		),
		mcp.WithNumber("last_n",
			mcp.Description("Max messages to return (default: 20)"),
		),
		mcp.WithBoolean("compact",
			mcp.Description("Strip timestamps, hashes, long paths and repeated lines to save tokens (default: false)"),
		),
	)

	readyTool := mcp.NewTool("check_build_ready",
		mcp.WithDescription("Check whether both build logs of a Jenkins build have been stored, meaning the build is ready for analysis."),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Jenkins job name"),
		),
		mcp.WithNumber("build_number",
			mcp.Required(),
			mcp.Description("Jenkins build number"),
		),
	)

	clearTool := mcp.NewTool("clear_conversation",
		mcp.WithDescription("Delete every stored message of a Jenkins job."),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Jenkins job name"),
		),
	)

	listTool := mcp.NewTool("list_conversations",
		mcp.WithDescription("List Jenkins jobs with stored history and their message counts."),
	)

	s.mcpServer.AddTool(historyTool, s.handleGetHistory)
	s.mcpServer.AddTool(readyTool, s.handleCheckBuildReady)
	s.mcpServer.AddTool(clearTool, s.handleClearConversation)
	s.mcpServer.AddTool(listTool, s.handleListConversations)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// handleGetHistory handles the get_conversation_history tool call.
func (s *Server) handleGetHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID := request.GetString("conversation_id", "")
	if conversationID == "" {
		return mcp.NewToolResultError("conversation_id parameter is required"), nil
	}

	lastN := request.GetInt("last_n", DefaultHistoryLimit)
	if lastN < 1 {
		return mcp.NewToolResultError("last_n must be at least 1"), nil
	}
	compact := request.GetBool("compact", false)

	messages, err := s.memory.Get(ctx, conversationID, lastN)
	if err != nil {
		return s.toolError("get history", err), nil
	}

	response := HistoryResponse{
		ConversationID: conversationID,
		Count:          len(messages),
		Messages:       make([]HistoryMessage, 0, len(messages)),
	}
	for _, m := range messages {
		content := m.Content
		if compact {
			content = compactContent(content)
		}
		response.Messages = append(response.Messages, HistoryMessage{
			ID:          m.ID,
			Role:        string(m.Role),
			BuildNumber: m.BuildNumber,
			Type:        m.Metadata.Attributes["type"],
			Timestamp:   m.Timestamp.UTC().Format(time.RFC3339Nano),
			Content:     content,
		})
	}

	return jsonResult(response)
}

// handleCheckBuildReady handles the check_build_ready tool call.
func (s *Server) handleCheckBuildReady(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID := request.GetString("conversation_id", "")
	if conversationID == "" {
		return mcp.NewToolResultError("conversation_id parameter is required"), nil
	}

	buildNumber := request.GetInt("build_number", -1)
	if buildNumber < 0 {
		return mcp.NewToolResultError("build_number parameter is required and must not be negative"), nil
	}

	ready, err := s.memory.HasTwoBuildLogs(ctx, conversationID, buildNumber)
	if err != nil {
		return s.toolError("check build readiness", err), nil
	}

	return jsonResult(ReadinessResponse{
		ConversationID: conversationID,
		BuildNumber:    buildNumber,
		Ready:          ready,
	})
}

// handleClearConversation handles the clear_conversation tool call.
func (s *Server) handleClearConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID := request.GetString("conversation_id", "")
	if conversationID == "" {
		return mcp.NewToolResultError("conversation_id parameter is required"), nil
	}

	if err := s.memory.Clear(ctx, conversationID); err != nil {
		return s.toolError("clear conversation", err), nil
	}

	s.logger.Info("[MCPServer] Cleared conversation %s", conversationID)
	return mcp.NewToolResultText(fmt.Sprintf("cleared conversation %s", conversationID)), nil
}

// handleListConversations handles the list_conversations tool call.
func (s *Server) handleListConversations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := s.memory.ConversationIDs(ctx)
	if err != nil {
		return s.toolError("list conversations", err), nil
	}

	response := ConversationsResponse{Conversations: make([]ConversationSummary, 0, len(ids))}
	for _, id := range ids {
		count, err := s.memory.Count(ctx, id)
		if err != nil {
			return s.toolError("count messages", err), nil
		}
		response.Conversations = append(response.Conversations, ConversationSummary{ConversationID: id, Messages: count})
	}

	return jsonResult(response)
}

// toolError reports precondition failures as-is and logs everything else.
func (s *Server) toolError(action string, err error) *mcp.CallToolResult {
	var pe *store.PreconditionError
	if errors.As(err, &pe) {
		return mcp.NewToolResultError(pe.Error())
	}
	s.logger.Error("[MCPServer] Failed to %s: %v", action, err)
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
