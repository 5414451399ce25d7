package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/models"
)

func TestInteractionService_RecordLLMInteraction(t *testing.T) {
	h := setupHistoryService(t)
	ctx := context.Background()
	session := createTestSession(t, h)
	stage := createTestStage(t, h, session.SessionID, 0, "analysis")

	t.Run("persists full interaction", func(t *testing.T) {
		in := &models.LLMInteraction{
			SessionID:        session.SessionID,
			StageExecutionID: &stage.ExecutionID,
			DurationMs:       850,
			ModelName:        "claude-sonnet-4-5",
			RequestJSON: map[string]any{
				"messages": []any{map[string]any{"role": "user", "content": "Investigate the alert"}},
			},
			ResponseJSON: map[string]any{"content": "Thought: I should check the pod"},
			ToolCalls: []any{
				map[string]any{"id": "call_1", "name": "kubernetes-server.pods_get", "arguments": map[string]any{"namespace": "production"}},
			},
			TokenUsage:      &models.TokenUsage{PromptTokens: 1200, CompletionTokens: 340, TotalTokens: 1540},
			StepDescription: "ReAct iteration 1",
			Success:         true,
		}
		require.NoError(t, h.RecordLLMInteraction(ctx, in))

		// Missing id and timestamp are filled in on the way down.
		assert.NotEmpty(t, in.InteractionID)
		assert.NotZero(t, in.TimestampUs)

		stored, err := h.interactions.ListLLMInteractions(ctx, session.SessionID)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		got := stored[0]
		assert.Equal(t, in.InteractionID, got.InteractionID)
		require.NotNil(t, got.StageExecutionID)
		assert.Equal(t, stage.ExecutionID, *got.StageExecutionID)
		assert.Equal(t, "claude-sonnet-4-5", got.ModelName)
		assert.Equal(t, int64(850), got.DurationMs)
		assert.Equal(t, "ReAct iteration 1", got.StepDescription)
		assert.True(t, got.Success)
		require.Len(t, got.ToolCalls, 1)
		call := got.ToolCalls[0].(map[string]any)
		assert.Equal(t, "kubernetes-server.pods_get", call["name"])
		require.NotNil(t, got.TokenUsage)
		assert.Equal(t, 1540, got.TokenUsage.TotalTokens)
	})

	t.Run("records failed call with error message", func(t *testing.T) {
		in := &models.LLMInteraction{
			SessionID:    session.SessionID,
			ModelName:    "claude-sonnet-4-5",
			RequestJSON:  map[string]any{"messages": []any{}},
			Success:      false,
			ErrorMessage: strPtr("llm call timed out after 300s"),
		}
		require.NoError(t, h.RecordLLMInteraction(ctx, in))

		stored, err := h.interactions.ListLLMInteractions(ctx, session.SessionID)
		require.NoError(t, err)
		var failed *models.LLMInteraction
		for _, it := range stored {
			if !it.Success {
				failed = it
			}
		}
		require.NotNil(t, failed)
		assert.Nil(t, failed.StageExecutionID, "session-level interaction has no stage binding")
		require.NotNil(t, failed.ErrorMessage)
		assert.Contains(t, *failed.ErrorMessage, "timed out")
	})

	t.Run("requires session_id", func(t *testing.T) {
		err := h.RecordLLMInteraction(ctx, &models.LLMInteraction{ModelName: "m"})
		assert.True(t, IsValidationError(err))
	})

	t.Run("duplicate interaction id rejected", func(t *testing.T) {
		id := uuid.New().String()
		first := &models.LLMInteraction{InteractionID: id, SessionID: session.SessionID, ModelName: "m", Success: true}
		require.NoError(t, h.RecordLLMInteraction(ctx, first))

		err := h.RecordLLMInteraction(ctx, &models.LLMInteraction{InteractionID: id, SessionID: session.SessionID, ModelName: "m", Success: true})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})
}

func TestInteractionService_RecordMCPInteraction(t *testing.T) {
	h := setupHistoryService(t)
	ctx := context.Background()
	session := createTestSession(t, h)
	stage := createTestStage(t, h, session.SessionID, 0, "analysis")

	t.Run("persists tool call", func(t *testing.T) {
		in := &models.MCPInteraction{
			SessionID:         session.SessionID,
			StageExecutionID:  &stage.ExecutionID,
			DurationMs:        120,
			ServerName:        "kubernetes-server",
			CommunicationType: models.CommunicationTypeToolCall,
			ToolName:          strPtr("pods_get"),
			ToolArguments:     map[string]any{"namespace": "production", "pod": "api-7d4b9c-xk2p1"},
			ToolResult:        map[string]any{"result": "CrashLoopBackOff, restarts: 8"},
			StepDescription:   "ReAct iteration 1",
			Success:           true,
		}
		require.NoError(t, h.RecordMCPInteraction(ctx, in))
		assert.NotEmpty(t, in.CommunicationID)
		assert.NotZero(t, in.TimestampUs)

		stored, err := h.interactions.ListMCPInteractions(ctx, session.SessionID)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		got := stored[0]
		assert.Equal(t, "kubernetes-server", got.ServerName)
		assert.Equal(t, models.CommunicationTypeToolCall, got.CommunicationType)
		require.NotNil(t, got.ToolName)
		assert.Equal(t, "pods_get", *got.ToolName)
		assert.Equal(t, "production", got.ToolArguments["namespace"])
		assert.Equal(t, "CrashLoopBackOff, restarts: 8", got.ToolResult["result"])
	})

	t.Run("persists tool list with available tools", func(t *testing.T) {
		in := &models.MCPInteraction{
			SessionID:         session.SessionID,
			ServerName:        "kubernetes-server",
			CommunicationType: models.CommunicationTypeToolList,
			AvailableTools: []any{
				map[string]any{"name": "pods_get", "description": "Get pod details"},
				map[string]any{"name": "pods_list", "description": "List pods"},
			},
			Success: true,
		}
		require.NoError(t, h.RecordMCPInteraction(ctx, in))

		stored, err := h.interactions.ListMCPInteractions(ctx, session.SessionID)
		require.NoError(t, err)
		var list *models.MCPInteraction
		for _, it := range stored {
			if it.CommunicationType == models.CommunicationTypeToolList {
				list = it
			}
		}
		require.NotNil(t, list)
		assert.Len(t, list.AvailableTools, 2)
		assert.Nil(t, list.ToolName)
	})

	t.Run("validates communication type", func(t *testing.T) {
		err := h.RecordMCPInteraction(ctx, &models.MCPInteraction{
			SessionID:         session.SessionID,
			ServerName:        "kubernetes-server",
			CommunicationType: models.CommunicationType("telepathy"),
		})
		assert.True(t, IsValidationError(err))
	})

	t.Run("requires session_id and server_name", func(t *testing.T) {
		err := h.RecordMCPInteraction(ctx, &models.MCPInteraction{
			ServerName:        "kubernetes-server",
			CommunicationType: models.CommunicationTypeToolCall,
		})
		assert.True(t, IsValidationError(err))

		err = h.RecordMCPInteraction(ctx, &models.MCPInteraction{
			SessionID:         session.SessionID,
			CommunicationType: models.CommunicationTypeToolCall,
		})
		assert.True(t, IsValidationError(err))
	})
}

func TestInteractionService_ListOrdering(t *testing.T) {
	h := setupHistoryService(t)
	ctx := context.Background()
	session := createTestSession(t, h)

	// Insert with descending explicit timestamps; listing re-sorts ascending.
	base := models.NowUs()
	for i := 3; i >= 1; i-- {
		require.NoError(t, h.RecordLLMInteraction(ctx, &models.LLMInteraction{
			SessionID:       session.SessionID,
			TimestampUs:     base + int64(i),
			ModelName:       "claude-sonnet-4-5",
			StepDescription: "ReAct iteration",
			Success:         true,
		}))
		require.NoError(t, h.RecordMCPInteraction(ctx, &models.MCPInteraction{
			SessionID:         session.SessionID,
			TimestampUs:       base + int64(i),
			ServerName:        "kubernetes-server",
			CommunicationType: models.CommunicationTypeToolCall,
			ToolName:          strPtr("pods_get"),
			Success:           true,
		}))
	}

	llms, err := h.interactions.ListLLMInteractions(ctx, session.SessionID)
	require.NoError(t, err)
	require.Len(t, llms, 3)
	for i := 1; i < len(llms); i++ {
		assert.Less(t, llms[i-1].TimestampUs, llms[i].TimestampUs)
	}

	mcps, err := h.interactions.ListMCPInteractions(ctx, session.SessionID)
	require.NoError(t, err)
	require.Len(t, mcps, 3)
	for i := 1; i < len(mcps); i++ {
		assert.Less(t, mcps[i-1].TimestampUs, mcps[i].TimestampUs)
	}
}
