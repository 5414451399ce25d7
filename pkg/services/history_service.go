package services

import (
	"context"
	"log/slog"

	"github.com/tarsy-bot/tarsy/pkg/database"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// HistoryService is the persistence façade used by the orchestrator, the
// hook subscribers, and the API layer. When history capture is disabled the
// engine still runs: writes become no-ops that return plausible values and
// reads report ErrHistoryDisabled or empty results.
type HistoryService struct {
	enabled      bool
	sessions     *SessionService
	stages       *StageService
	interactions *InteractionService
	timeline     *TimelineService
}

// NewHistoryService creates the enabled façade over a database client.
func NewHistoryService(client *database.Client) *HistoryService {
	sessions := NewSessionService(client)
	stages := NewStageService(client)
	interactions := NewInteractionService(client)
	return &HistoryService{
		enabled:      true,
		sessions:     sessions,
		stages:       stages,
		interactions: interactions,
		timeline:     NewTimelineService(sessions, stages, interactions),
	}
}

// NewDisabledHistoryService creates the façade in no-op mode for
// deployments running without a database.
func NewDisabledHistoryService() *HistoryService {
	slog.Warn("History capture disabled, sessions will not be persisted")
	return &HistoryService{enabled: false}
}

// Enabled reports whether history capture is active.
func (h *HistoryService) Enabled() bool {
	return h.enabled
}

// CreateSession persists a new session. In disabled mode it returns the
// session value without persisting so processing can continue.
func (h *HistoryService) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	if !h.enabled {
		return &models.Session{
			SessionID:       req.SessionID,
			AlertID:         req.AlertID,
			AlertType:       req.AlertType,
			AlertData:       req.AlertData,
			AgentType:       req.AgentType,
			ChainID:         req.ChainID,
			ChainDefinition: req.ChainDefinition,
			Status:          models.SessionStatusPending,
			StartedAtUs:     models.NowUs(),
			SessionMetadata: req.SessionMetadata,
		}, nil
	}
	return h.sessions.CreateSession(ctx, req)
}

// GetSession fetches one session.
func (h *HistoryService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if !h.enabled {
		return nil, ErrHistoryDisabled
	}
	return h.sessions.GetSession(ctx, sessionID)
}

// UpdateSessionStatus transitions a session's lifecycle state.
func (h *HistoryService) UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus, errorMessage *string) error {
	if !h.enabled {
		return nil
	}
	return h.sessions.UpdateSessionStatus(ctx, sessionID, status, errorMessage)
}

// UpdateSessionCurrentStage records the stage the session is executing.
func (h *HistoryService) UpdateSessionCurrentStage(ctx context.Context, sessionID string, stageIndex int, stageID string) error {
	if !h.enabled {
		return nil
	}
	return h.sessions.UpdateSessionCurrentStage(ctx, sessionID, stageIndex, stageID)
}

// SetSessionFinalAnalysis stores the final analysis text.
func (h *HistoryService) SetSessionFinalAnalysis(ctx context.Context, sessionID string, analysis string) error {
	if !h.enabled {
		return nil
	}
	return h.sessions.SetSessionFinalAnalysis(ctx, sessionID, analysis)
}

// CreateStageExecution persists a new stage execution.
func (h *HistoryService) CreateStageExecution(ctx context.Context, req models.CreateStageExecutionRequest) (*models.StageExecution, error) {
	if !h.enabled {
		return &models.StageExecution{
			ExecutionID: req.ExecutionID,
			SessionID:   req.SessionID,
			StageID:     req.StageID,
			StageIndex:  req.StageIndex,
			StageName:   req.StageName,
			Agent:       req.Agent,
			Status:      models.ExecutionStatusPending,
		}, nil
	}
	return h.stages.CreateStageExecution(ctx, req)
}

// UpdateStageExecution applies a partial stage execution update.
func (h *HistoryService) UpdateStageExecution(ctx context.Context, executionID string, update models.StageExecutionUpdate) error {
	if !h.enabled {
		return nil
	}
	return h.stages.UpdateStageExecution(ctx, executionID, update)
}

// RecordLLMInteraction appends an LLM interaction row.
func (h *HistoryService) RecordLLMInteraction(ctx context.Context, in *models.LLMInteraction) error {
	if !h.enabled {
		return nil
	}
	return h.interactions.RecordLLMInteraction(ctx, in)
}

// RecordMCPInteraction appends an MCP interaction row.
func (h *HistoryService) RecordMCPInteraction(ctx context.Context, in *models.MCPInteraction) error {
	if !h.enabled {
		return nil
	}
	return h.interactions.RecordMCPInteraction(ctx, in)
}

// ListSessions returns one filtered page of sessions.
func (h *HistoryService) ListSessions(ctx context.Context, filters models.SessionFilters, page models.PageParams) (*models.SessionList, error) {
	if !h.enabled {
		return nil, ErrHistoryDisabled
	}
	return h.sessions.ListSessions(ctx, filters, page)
}

// GetSessionTimeline returns the assembled timeline for one session.
func (h *HistoryService) GetSessionTimeline(ctx context.Context, sessionID string) (*models.SessionTimeline, error) {
	if !h.enabled {
		return nil, ErrHistoryDisabled
	}
	return h.timeline.GetSessionTimeline(ctx, sessionID)
}

// ListFilterOptions returns the distinct filterable values plus presets.
func (h *HistoryService) ListFilterOptions(ctx context.Context) (*models.FilterOptions, error) {
	if !h.enabled {
		return nil, ErrHistoryDisabled
	}
	return h.sessions.ListFilterOptions(ctx)
}

// ListActiveSessions returns the non-terminal sessions.
func (h *HistoryService) ListActiveSessions(ctx context.Context) ([]*models.ActiveSession, error) {
	if !h.enabled {
		return []*models.ActiveSession{}, nil
	}
	return h.sessions.ListActiveSessions(ctx)
}

// CleanupOrphanedSessions fails sessions left non-terminal by a previous
// run. Called once at startup, before alert intake opens.
func (h *HistoryService) CleanupOrphanedSessions(ctx context.Context) (int, error) {
	if !h.enabled {
		return 0, nil
	}
	count, err := h.sessions.CleanupOrphanedSessions(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		slog.Warn("Recovered orphaned sessions from previous run", "count", count)
	}
	return count, nil
}

// DeleteSessionsOlderThan removes terminal sessions past the retention
// cutoff. Stage executions and interactions cascade.
func (h *HistoryService) DeleteSessionsOlderThan(ctx context.Context, cutoffUs int64) (int, error) {
	if !h.enabled {
		return 0, nil
	}
	return h.sessions.DeleteSessionsOlderThan(ctx, cutoffUs)
}
