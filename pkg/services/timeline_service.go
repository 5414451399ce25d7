package services

import (
	"context"
	"fmt"

	"github.com/tarsy-bot/tarsy/pkg/models"
)

// TimelineService assembles the full session view: session row, stages in
// execution order, and each stage's interactions in chronological order.
type TimelineService struct {
	sessions     *SessionService
	stages       *StageService
	interactions *InteractionService
}

// NewTimelineService creates a new TimelineService.
func NewTimelineService(sessions *SessionService, stages *StageService, interactions *InteractionService) *TimelineService {
	return &TimelineService{
		sessions:     sessions,
		stages:       stages,
		interactions: interactions,
	}
}

// GetSessionTimeline returns the assembled timeline for one session.
// Interactions are grouped under their stage execution; rows recorded
// outside any stage surface as session-level interactions. Within each
// group the SQL ordering by timestamp_us is preserved, so merging LLM and
// MCP lists by timestamp reproduces the exact execution order.
func (s *TimelineService) GetSessionTimeline(ctx context.Context, sessionID string) (*models.SessionTimeline, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	executions, err := s.stages.ListStageExecutions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stage executions: %w", err)
	}
	llms, err := s.interactions.ListLLMInteractions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load llm interactions: %w", err)
	}
	mcps, err := s.interactions.ListMCPInteractions(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mcp interactions: %w", err)
	}

	timeline := &models.SessionTimeline{
		Session: session,
		Stages:  make([]*models.StageTimeline, 0, len(executions)),
	}

	byExecution := make(map[string]*models.StageTimeline, len(executions))
	for _, execution := range executions {
		stage := &models.StageTimeline{
			Execution:       execution,
			LLMInteractions: []*models.LLMInteraction{},
			MCPInteractions: []*models.MCPInteraction{},
		}
		byExecution[execution.ExecutionID] = stage
		timeline.Stages = append(timeline.Stages, stage)
	}

	for _, in := range llms {
		if in.StageExecutionID != nil {
			if stage, ok := byExecution[*in.StageExecutionID]; ok {
				stage.LLMInteractions = append(stage.LLMInteractions, in)
				continue
			}
		}
		timeline.SessionLLMInteraction = append(timeline.SessionLLMInteraction, in)
	}
	for _, in := range mcps {
		if in.StageExecutionID != nil {
			if stage, ok := byExecution[*in.StageExecutionID]; ok {
				stage.MCPInteractions = append(stage.MCPInteractions, in)
				continue
			}
		}
		timeline.SessionMCPInteraction = append(timeline.SessionMCPInteraction, in)
	}

	for _, stage := range timeline.Stages {
		stage.InteractionCount = len(stage.LLMInteractions) + len(stage.MCPInteractions)
	}
	timeline.TotalInteractions = len(llms) + len(mcps)

	return timeline, nil
}
