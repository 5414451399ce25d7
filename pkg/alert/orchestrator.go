package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/hooks"
	"github.com/tarsy-bot/tarsy/pkg/metrics"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// stageOutcome is what one stage-loop iteration reports back.
type stageOutcome struct {
	output     map[string]any
	succeeded  bool
	iterations int
}

// processAlert runs one alert through its chain. The returned string is the
// formatted analysis report; a non-nil error means the session failed.
//
// Stage failures do not abort the chain: each failure is recorded and the
// loop continues, so a broken data-collection stage still leaves later
// stages a chance to produce an analysis from whatever accumulated.
func (s *Service) processAlert(ctx context.Context, a models.Alert, apiAlertID string) (string, error) {
	if s.agents == nil {
		return "", fmt.Errorf("agent factory is not initialized")
	}
	if s.cfg.LLMProviderRegistry == nil || s.cfg.LLMProviderRegistry.Len() == 0 {
		return "", fmt.Errorf("no LLM providers configured")
	}

	sessionID := uuid.NewString()
	s.sessionIDs.Add(apiAlertID, sessionID)

	chainID, chain, chainErr := s.cfg.GetChainForAlertType(a.AlertType)
	if chainErr != nil {
		s.createSession(ctx, a, sessionID, apiAlertID, "unknown", nil)
		s.failSession(ctx, sessionID, a, "unknown", chainErr.Error())
		return "", chainErr
	}

	s.createSession(ctx, a, sessionID, apiAlertID, chainID, chain)
	s.triggerSession(ctx, hooks.EventSessionPre, sessionID, a, chainID, models.SessionStatusPending, "", "")

	if a.Runbook == "" {
		err := fmt.Errorf("No runbook specified")
		s.failSession(ctx, sessionID, a, chainID, err.Error())
		return "", err
	}
	runbookContent, err := s.runbooks.Resolve(ctx, a.Runbook)
	if err != nil {
		s.failSession(ctx, sessionID, a, chainID, fmt.Sprintf("Runbook fetch failed: %v", err))
		return "", err
	}

	chainCtx := agent.NewChainContext(sessionID, a.AlertType, a.Data)
	chainCtx.RunbookContent = runbookContent
	chainCtx.ChainID = chainID

	if err := s.history.UpdateSessionStatus(ctx, sessionID, models.SessionStatusInProgress, nil); err != nil {
		slog.Error("Failed to mark session in progress", "session_id", sessionID, "error", err)
	}

	var totalIterations, successes int
	timedOut := false
	for index, stage := range chain.Stages {
		outcome := s.runStage(ctx, chainCtx, sessionID, index, stage)
		chainCtx.StageOutputs.Append(stage.Name, outcome.output)
		totalIterations += outcome.iterations
		if outcome.succeeded {
			successes++
		}

		if ctx.Err() != nil {
			timedOut = true
			break
		}
	}

	if timedOut {
		err := fmt.Errorf("alert processing timed out after %s", s.settings.AlertProcessingTimeout)
		s.failSession(ctx, sessionID, a, chainID, err.Error())
		return "", err
	}

	analysis := extractFinalAnalysis(chainCtx.StageOutputs.Entries(), chainID)
	report := formatReport(a, chainID, len(chain.Stages), analysis, totalIterations, models.NowUs())

	if successes == 0 {
		s.failSession(ctx, sessionID, a, chainID, "all chain stages failed")
		return "", fmt.Errorf("all %d stages of chain %q failed", len(chain.Stages), chainID)
	}

	if err := s.history.SetSessionFinalAnalysis(ctx, sessionID, report); err != nil {
		slog.Error("Failed to persist final analysis", "session_id", sessionID, "error", err)
	}
	if err := s.history.UpdateSessionStatus(ctx, sessionID, models.SessionStatusCompleted, nil); err != nil {
		slog.Error("Failed to mark session completed", "session_id", sessionID, "error", err)
	}
	s.triggerSession(ctx, hooks.EventSessionPost, sessionID, a, chainID, models.SessionStatusCompleted, report, "")

	slog.Info("Alert processing completed",
		"session_id", sessionID,
		"alert_type", a.AlertType,
		"chain_id", chainID,
		"stages", len(chain.Stages),
		"successful_stages", successes,
		"total_iterations", totalIterations)
	return report, nil
}

// runStage executes one chain stage: creates its execution row, runs a
// fresh agent against the chain context, and records the terminal state.
// Never returns an error; failures are folded into the outcome so the
// caller's loop can continue.
func (s *Service) runStage(ctx context.Context, chainCtx *agent.ChainContext, sessionID string, index int, stage config.StageConfig) stageOutcome {
	executionID := uuid.NewString()
	stageID := fmt.Sprintf("%s_%d", stage.Name, index)

	if _, err := s.history.CreateStageExecution(ctx, models.CreateStageExecutionRequest{
		ExecutionID: executionID,
		SessionID:   sessionID,
		StageID:     stageID,
		StageIndex:  index,
		StageName:   stage.Name,
		Agent:       stage.Agent,
	}); err != nil {
		slog.Error("Failed to create stage execution", "session_id", sessionID, "stage", stageID, "error", err)
	}
	if err := s.history.UpdateSessionCurrentStage(ctx, sessionID, index, stageID); err != nil {
		slog.Error("Failed to update current stage", "session_id", sessionID, "stage", stageID, "error", err)
	}

	startUs := models.NowUs()
	active := models.ExecutionStatusActive
	s.updateStage(ctx, sessionID, executionID, models.StageExecutionUpdate{
		Status:      &active,
		StartedAtUs: &startUs,
	})
	s.triggerStage(ctx, hooks.EventStagePre, sessionID, executionID, stageID, index, stage, models.ExecutionStatusActive, "")

	result := s.executeStage(ctx, chainCtx, executionID, index, stage)

	endUs := models.NowUs()
	durationMs := models.DurationMs(startUs, endUs)

	if result.Status == models.ExecutionStatusCompleted {
		completed := models.ExecutionStatusCompleted
		s.updateStage(ctx, sessionID, executionID, models.StageExecutionUpdate{
			Status:        &completed,
			CompletedAtUs: &endUs,
			DurationMs:    &durationMs,
			StageOutput:   result.AsMap(),
		})
		s.triggerStage(ctx, hooks.EventStagePost, sessionID, executionID, stageID, index, stage, completed, "")
		metrics.StageExecutions.WithLabelValues("completed").Inc()
		return stageOutcome{output: result.AsMap(), succeeded: true, iterations: result.Iterations}
	}

	failed := models.ExecutionStatusFailed
	errMsg := result.ErrorMessage
	s.updateStage(ctx, sessionID, executionID, models.StageExecutionUpdate{
		Status:        &failed,
		CompletedAtUs: &endUs,
		DurationMs:    &durationMs,
		StageOutput:   result.AsMap(),
		ErrorMessage:  &errMsg,
	})
	s.triggerStage(ctx, hooks.EventStageError, sessionID, executionID, stageID, index, stage, failed, errMsg)
	metrics.StageExecutions.WithLabelValues("failed").Inc()
	slog.Warn("Stage failed, continuing chain",
		"session_id", sessionID,
		"stage", stageID,
		"agent", stage.Agent,
		"error", errMsg)
	return stageOutcome{output: result.AsMap(), succeeded: false, iterations: result.Iterations}
}

// executeStage creates the agent and runs it, normalizing every failure
// mode (factory error, panic, returned error) into a failed result.
func (s *Service) executeStage(ctx context.Context, chainCtx *agent.ChainContext, executionID string, index int, stage config.StageConfig) (result *agent.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Stage panicked",
				"session_id", chainCtx.SessionID,
				"stage", stage.Name,
				"panic", r)
			result = failedExecution(stage, fmt.Sprintf("stage panicked: %v", r))
		}
	}()

	runner, err := s.agents.CreateAgent(stage, executionID, index)
	if err != nil {
		return failedExecution(stage, fmt.Sprintf("failed to create agent: %v", err))
	}

	chainCtx.CurrentStageName = stage.Name
	result, err = runner.Execute(ctx, chainCtx)
	if err != nil {
		return failedExecution(stage, err.Error())
	}
	if result == nil {
		return failedExecution(stage, "agent returned no result")
	}
	return result
}

func failedExecution(stage config.StageConfig, errMsg string) *agent.ExecutionResult {
	return &agent.ExecutionResult{
		Status:       models.ExecutionStatusFailed,
		AgentName:    stage.Agent,
		StageName:    stage.Name,
		TimestampUs:  models.NowUs(),
		ErrorMessage: errMsg,
	}
}

// createSession persists the pending session row, snapshotting the chain
// definition. History failures are logged, not fatal: the engine runs with
// or without an audit trail.
func (s *Service) createSession(ctx context.Context, a models.Alert, sessionID, apiAlertID, chainID string, chain *config.ChainConfig) {
	req := models.CreateSessionRequest{
		SessionID: sessionID,
		AlertID:   apiAlertID,
		AlertType: a.AlertType,
		AlertData: a.Data,
		AgentType: "chain:" + chainID,
		ChainID:   chainID,
	}
	if chain != nil {
		req.ChainDefinition = chain.Snapshot(chainID)
	}
	if a.Severity != "" || a.Runbook != "" {
		req.SessionMetadata = map[string]any{}
		if a.Severity != "" {
			req.SessionMetadata["severity"] = a.Severity
		}
		if a.Runbook != "" {
			req.SessionMetadata["runbook_url"] = a.Runbook
		}
	}
	if _, err := s.history.CreateSession(ctx, req); err != nil {
		slog.Error("Failed to create session", "session_id", sessionID, "error", err)
	}
}

// failSession closes the session as failed and emits the session.error
// hook. The write uses the background-decoupled history path, so it still
// lands when ctx is already past its deadline.
func (s *Service) failSession(ctx context.Context, sessionID string, a models.Alert, chainID, errMsg string) {
	if err := s.history.UpdateSessionStatus(ctx, sessionID, models.SessionStatusFailed, &errMsg); err != nil {
		slog.Error("Failed to mark session failed", "session_id", sessionID, "error", err)
	}
	s.triggerSession(ctx, hooks.EventSessionError, sessionID, a, chainID, models.SessionStatusFailed, "", errMsg)
}

func (s *Service) triggerSession(ctx context.Context, event, sessionID string, a models.Alert, chainID string, status models.SessionStatus, finalAnalysis, errMsg string) {
	if s.bus == nil {
		return
	}
	s.bus.Trigger(ctx, event, &hooks.Payload{
		SessionID: sessionID,
		Session: &hooks.SessionDetail{
			AlertType:     a.AlertType,
			ChainID:       chainID,
			Status:        status,
			FinalAnalysis: finalAnalysis,
			ErrorMessage:  errMsg,
		},
	})
}

func (s *Service) triggerStage(ctx context.Context, event, sessionID, executionID, stageID string, index int, stage config.StageConfig, status models.ExecutionStatus, errMsg string) {
	if s.bus == nil {
		return
	}
	s.bus.Trigger(ctx, event, &hooks.Payload{
		SessionID:        sessionID,
		StageExecutionID: executionID,
		Stage: &hooks.StageDetail{
			StageID:      stageID,
			StageIndex:   index,
			StageName:    stage.Name,
			Agent:        stage.Agent,
			Status:       status,
			ErrorMessage: errMsg,
		},
	})
}

// updateStage applies a stage execution update, logging failures instead of
// propagating them.
func (s *Service) updateStage(ctx context.Context, sessionID, executionID string, update models.StageExecutionUpdate) {
	if err := s.history.UpdateStageExecution(ctx, executionID, update); err != nil {
		slog.Error("Failed to update stage execution",
			"session_id", sessionID,
			"execution_id", executionID,
			"error", err)
	}
}
