package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/models"
	"github.com/tarsy-bot/tarsy/test/util"
)

// setupHistoryService creates an enabled history service over an isolated
// test schema.
func setupHistoryService(t *testing.T) *HistoryService {
	t.Helper()
	client := util.SetupTestDatabase(t)
	return NewHistoryService(client)
}

// createTestSession persists a session with realistic kubernetes alert data.
func createTestSession(t *testing.T, h *HistoryService) *models.Session {
	t.Helper()
	session, err := h.CreateSession(context.Background(), models.CreateSessionRequest{
		SessionID: uuid.New().String(),
		AlertID:   uuid.New().String(),
		AlertType: "kubernetes",
		AlertData: map[string]any{
			"alertname": "PodCrashLooping",
			"namespace": "production",
			"pod":       "api-7d4b9c-xk2p1",
			"message":   "Pod has restarted 8 times in the last hour",
		},
		AgentType: "chain:kubernetes-agent-chain",
		ChainID:   "kubernetes-agent-chain",
		ChainDefinition: map[string]any{
			"chain_id": "kubernetes-agent-chain",
			"stages":   []any{map[string]any{"name": "analysis", "agent": "KubernetesAgent"}},
		},
	})
	require.NoError(t, err)
	return session
}

// createTestStage persists a stage execution for the session at the given
// index.
func createTestStage(t *testing.T, h *HistoryService, sessionID string, index int, name string) *models.StageExecution {
	t.Helper()
	execution, err := h.CreateStageExecution(context.Background(), models.CreateStageExecutionRequest{
		ExecutionID: uuid.New().String(),
		SessionID:   sessionID,
		StageID:     name + "_" + uuid.New().String()[:8],
		StageIndex:  index,
		StageName:   name,
		Agent:       "KubernetesAgent",
	})
	require.NoError(t, err)
	return execution
}

func strPtr(s string) *string { return &s }

func statusPtr(s models.ExecutionStatus) *models.ExecutionStatus { return &s }

func int64Ptr(n int64) *int64 { return &n }
