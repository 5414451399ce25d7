package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/models"
)

func TestSessionService_CreateSession(t *testing.T) {
	h := setupHistoryService(t)
	ctx := context.Background()

	t.Run("creates pending session with chain snapshot", func(t *testing.T) {
		session := createTestSession(t, h)

		stored, err := h.GetSession(ctx, session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, session.SessionID, stored.SessionID)
		assert.Equal(t, models.SessionStatusPending, stored.Status)
		assert.Equal(t, "kubernetes", stored.AlertType)
		assert.Equal(t, "chain:kubernetes-agent-chain", stored.AgentType)
		assert.Equal(t, "kubernetes-agent-chain", stored.ChainID)
		assert.Equal(t, "production", stored.AlertData["namespace"])
		assert.Equal(t, "kubernetes-agent-chain", stored.ChainDefinition["chain_id"])
		assert.NotZero(t, stored.StartedAtUs)
		assert.Nil(t, stored.CompletedAtUs, "non-terminal session has no completed_at_us")
	})

	t.Run("rejects duplicate session id", func(t *testing.T) {
		session := createTestSession(t, h)
		_, err := h.CreateSession(ctx, models.CreateSessionRequest{
			SessionID: session.SessionID,
			AlertID:   uuid.New().String(),
			AlertType: "kubernetes",
			AlertData: map[string]any{"pod": "x"},
			AgentType: "chain:kubernetes-agent-chain",
			ChainID:   "kubernetes-agent-chain",
		})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("validates required fields", func(t *testing.T) {
		tests := []struct {
			name    string
			req     models.CreateSessionRequest
			wantErr string
		}{
			{
				name:    "missing session_id",
				req:     models.CreateSessionRequest{AlertID: "a", AlertType: "t", AgentType: "g", ChainID: "c"},
				wantErr: "session_id",
			},
			{
				name:    "missing alert_id",
				req:     models.CreateSessionRequest{SessionID: "s", AlertType: "t", AgentType: "g", ChainID: "c"},
				wantErr: "alert_id",
			},
			{
				name:    "missing alert_type",
				req:     models.CreateSessionRequest{SessionID: "s", AlertID: "a", AgentType: "g", ChainID: "c"},
				wantErr: "alert_type",
			},
			{
				name:    "missing agent_type",
				req:     models.CreateSessionRequest{SessionID: "s", AlertID: "a", AlertType: "t", ChainID: "c"},
				wantErr: "agent_type",
			},
			{
				name:    "missing chain_id",
				req:     models.CreateSessionRequest{SessionID: "s", AlertID: "a", AlertType: "t", AgentType: "g"},
				wantErr: "chain_id",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.CreateSession(ctx, tt.req)
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				assert.Contains(t, err.Error(), tt.wantErr)
			})
		}
	})
}

func TestSessionService_UpdateSessionStatus(t *testing.T) {
	h := setupHistoryService(t)
	ctx := context.Background()

	t.Run("terminal status stamps completed_at_us", func(t *testing.T) {
		session := createTestSession(t, h)

		require.NoError(t, h.UpdateSessionStatus(ctx, session.SessionID, models.SessionStatusInProgress, nil))
		stored, err := h.GetSession(ctx, session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusInProgress, stored.Status)
		assert.Nil(t, stored.CompletedAtUs)

		require.NoError(t, h.UpdateSessionStatus(ctx, session.SessionID, models.SessionStatusCompleted, nil))
		stored, err = h.GetSession(ctx, session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, stored.Status)
		require.NotNil(t, stored.CompletedAtUs)
		assert.Greater(t, *stored.CompletedAtUs, stored.StartedAtUs)
	})

	t.Run("failed status stores error message", func(t *testing.T) {
		session := createTestSession(t, h)
		require.NoError(t, h.UpdateSessionStatus(ctx, session.SessionID, models.SessionStatusFailed, strPtr("chain execution failed")))

		stored, err := h.GetSession(ctx, session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "chain execution failed", *stored.ErrorMessage)
		assert.NotNil(t, stored.CompletedAtUs)
	})

	t.Run("unknown session returns not found", func(t *testing.T) {
		err := h.UpdateSessionStatus(ctx, uuid.New().String(), models.SessionStatusCompleted, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		session := createTestSession(t, h)
		err := h.UpdateSessionStatus(ctx, session.SessionID, models.SessionStatus("exploded"), nil)
		assert.True(t, IsValidationError(err))
	})
}

func TestSessionService_CurrentStageAndAnalysis(t *testing.T) {
	h := setupHistoryService(t)
	ctx := context.Background()
	session := createTestSession(t, h)

	require.NoError(t, h.UpdateSessionCurrentStage(ctx, session.SessionID, 1, "verification_1"))
	require.NoError(t, h.SetSessionFinalAnalysis(ctx, session.SessionID, "## Analysis\nThe pod ran out of memory."))

	stored, err := h.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	require.NotNil(t, stored.CurrentStageIndex)
	assert.Equal(t, 1, *stored.CurrentStageIndex)
	require.NotNil(t, stored.CurrentStageID)
	assert.Equal(t, "verification_1", *stored.CurrentStageID)
	require.NotNil(t, stored.FinalAnalysis)
	assert.Contains(t, *stored.FinalAnalysis, "out of memory")
}

func TestSessionService_ListSessions(t *testing.T) {
	h := setupHistoryService(t)
	ctx := context.Background()

	// Three kubernetes sessions, one completed with searchable analysis.
	first := createTestSession(t, h)
	second := createTestSession(t, h)
	third := createTestSession(t, h)
	require.NoError(t, h.UpdateSessionStatus(ctx, second.SessionID, models.SessionStatusCompleted, nil))
	require.NoError(t, h.SetSessionFinalAnalysis(ctx, second.SessionID, "Root cause: OOMKilled container"))

	t.Run("returns newest first with pagination envelope", func(t *testing.T) {
		list, err := h.ListSessions(ctx, models.SessionFilters{}, models.PageParams{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Len(t, list.Sessions, 2)
		assert.Equal(t, 3, list.Pagination.TotalItems)
		assert.Equal(t, 2, list.Pagination.TotalPages, "ceil(3/2) = 2")
		assert.Equal(t, third.SessionID, list.Sessions[0].SessionID)
		assert.Equal(t, second.SessionID, list.Sessions[1].SessionID)

		page2, err := h.ListSessions(ctx, models.SessionFilters{}, models.PageParams{Page: 2, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, page2.Sessions, 1)
		assert.Equal(t, first.SessionID, page2.Sessions[0].SessionID)
	})

	t.Run("filters by status", func(t *testing.T) {
		list, err := h.ListSessions(ctx, models.SessionFilters{Status: string(models.SessionStatusCompleted)}, models.PageParams{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, list.Sessions, 1)
		assert.Equal(t, second.SessionID, list.Sessions[0].SessionID)
	})

	t.Run("search matches final_analysis case-insensitively", func(t *testing.T) {
		list, err := h.ListSessions(ctx, models.SessionFilters{Search: "oomkilled"}, models.PageParams{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, list.Sessions, 1)
		assert.Equal(t, second.SessionID, list.Sessions[0].SessionID)
	})

	t.Run("search matches alert_data json paths", func(t *testing.T) {
		list, err := h.ListSessions(ctx, models.SessionFilters{Search: "api-7d4b9c"}, models.PageParams{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Len(t, list.Sessions, 3, "every test session carries the pod name")
	})

	t.Run("search is AND-ed with structured filters", func(t *testing.T) {
		list, err := h.ListSessions(ctx, models.SessionFilters{
			Search: "api-7d4b9c",
			Status: string(models.SessionStatusPending),
		}, models.PageParams{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Len(t, list.Sessions, 2)
	})

	t.Run("date range filter", func(t *testing.T) {
		list, err := h.ListSessions(ctx, models.SessionFilters{
			StartDateUs: int64Ptr(third.StartedAtUs),
		}, models.PageParams{Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, list.Sessions, 1)
		assert.Equal(t, third.SessionID, list.Sessions[0].SessionID)
	})

	t.Run("no match returns empty page", func(t *testing.T) {
		list, err := h.ListSessions(ctx, models.SessionFilters{Search: "no-such-text-anywhere"}, models.PageParams{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Empty(t, list.Sessions)
		assert.Equal(t, 0, list.Pagination.TotalItems)
		assert.Equal(t, 0, list.Pagination.TotalPages)
	})
}

func TestSessionService_ListActiveSessions(t *testing.T) {
	h := setupHistoryService(t)
	ctx := context.Background()

	pending := createTestSession(t, h)
	inProgress := createTestSession(t, h)
	done := createTestSession(t, h)
	require.NoError(t, h.UpdateSessionStatus(ctx, inProgress.SessionID, models.SessionStatusInProgress, nil))
	require.NoError(t, h.UpdateSessionCurrentStage(ctx, inProgress.SessionID, 0, "analysis_0"))
	require.NoError(t, h.UpdateSessionStatus(ctx, done.SessionID, models.SessionStatusCompleted, nil))

	active, err := h.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, pending.SessionID, active[0].SessionID, "oldest first")
	assert.Equal(t, inProgress.SessionID, active[1].SessionID)
	require.NotNil(t, active[1].CurrentStageID)
	assert.Equal(t, "analysis_0", *active[1].CurrentStageID)
}

func TestSessionService_ListFilterOptions(t *testing.T) {
	h := setupHistoryService(t)
	ctx := context.Background()
	createTestSession(t, h)

	options, err := h.ListFilterOptions(ctx)
	require.NoError(t, err)
	assert.Contains(t, options.AgentTypes, "chain:kubernetes-agent-chain")
	assert.Contains(t, options.AlertTypes, "kubernetes")
	assert.Contains(t, options.Statuses, string(models.SessionStatusPending))
	assert.NotEmpty(t, options.TimeRanges)
	assert.NotEmpty(t, options.Pagination)
}

func TestSessionService_CleanupOrphanedSessions(t *testing.T) {
	h := setupHistoryService(t)
	ctx := context.Background()

	orphanPending := createTestSession(t, h)
	orphanRunning := createTestSession(t, h)
	finished := createTestSession(t, h)
	require.NoError(t, h.UpdateSessionStatus(ctx, orphanRunning.SessionID, models.SessionStatusInProgress, nil))
	require.NoError(t, h.UpdateSessionStatus(ctx, finished.SessionID, models.SessionStatusCompleted, nil))

	// The running orphan also has an in-flight stage.
	stage := createTestStage(t, h, orphanRunning.SessionID, 0, "analysis")
	require.NoError(t, h.UpdateStageExecution(ctx, stage.ExecutionID, models.StageExecutionUpdate{
		Status:      statusPtr(models.ExecutionStatusActive),
		StartedAtUs: int64Ptr(models.NowUs()),
	}))

	count, err := h.CleanupOrphanedSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []string{orphanPending.SessionID, orphanRunning.SessionID} {
		stored, err := h.GetSession(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Contains(t, *stored.ErrorMessage, "interrupted by restart")
		assert.NotNil(t, stored.CompletedAtUs)
	}

	// Completed session untouched.
	stored, err := h.GetSession(ctx, finished.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, stored.Status)

	// In-flight stage closed too.
	closedStage, err := h.stages.GetStageExecution(ctx, stage.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, closedStage.Status)

	// Idempotent: second run finds nothing.
	count, err = h.CleanupOrphanedSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSessionService_DeleteSessionsOlderThan(t *testing.T) {
	h := setupHistoryService(t)
	ctx := context.Background()

	old := createTestSession(t, h)
	require.NoError(t, h.UpdateSessionStatus(ctx, old.SessionID, models.SessionStatusCompleted, nil))
	stage := createTestStage(t, h, old.SessionID, 0, "analysis")
	require.NoError(t, h.RecordLLMInteraction(ctx, &models.LLMInteraction{
		SessionID:        old.SessionID,
		StageExecutionID: &stage.ExecutionID,
		ModelName:        "claude-sonnet-4-5",
		Success:          true,
	}))

	active := createTestSession(t, h)

	// Cutoff after both sessions started: only the terminal one is deleted.
	count, err := h.DeleteSessionsOlderThan(ctx, models.NowUs())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = h.GetSession(ctx, old.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The cascade removed the interactions too.
	interactions, err := h.interactions.ListLLMInteractions(ctx, old.SessionID)
	require.NoError(t, err)
	assert.Empty(t, interactions)

	_, err = h.GetSession(ctx, active.SessionID)
	assert.NoError(t, err, "non-terminal session survives retention cleanup")
}

func TestBuildSessionFilterSQL(t *testing.T) {
	tests := []struct {
		name       string
		filters    models.SessionFilters
		wantWhere  bool
		wantArgs   int
		wantClause string
	}{
		{
			name:     "empty filters produce no where clause",
			filters:  models.SessionFilters{},
			wantArgs: 0,
		},
		{
			name:       "status filter",
			filters:    models.SessionFilters{Status: "completed"},
			wantWhere:  true,
			wantArgs:   1,
			wantClause: "status = $1",
		},
		{
			name:       "search produces OR block with single arg",
			filters:    models.SessionFilters{Search: "OOM"},
			wantWhere:  true,
			wantArgs:   1,
			wantClause: " OR ",
		},
		{
			name:      "combined filters AND together",
			filters:   models.SessionFilters{Status: "failed", AlertType: "kubernetes", Search: "pod"},
			wantWhere: true,
			wantArgs:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildSessionFilterSQL(tt.filters)
			assert.Len(t, args, tt.wantArgs)
			if tt.wantWhere {
				assert.Contains(t, where, "WHERE")
			} else {
				assert.Empty(t, where)
			}
			if tt.wantClause != "" {
				assert.Contains(t, where, tt.wantClause)
			}
			if tt.wantArgs > 0 {
				for i := 1; i <= tt.wantArgs; i++ {
					assert.Contains(t, where, fmt.Sprintf("$%d", i))
				}
			}
		})
	}
}
