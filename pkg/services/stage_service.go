package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tarsy-bot/tarsy/pkg/database"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

const stageColumns = `execution_id, session_id, stage_id, stage_index, stage_name, agent,
	status, started_at_us, completed_at_us, duration_ms, stage_output, error_message`

// StageService manages stage execution rows.
type StageService struct {
	client *database.Client
}

// NewStageService creates a new StageService.
func NewStageService(client *database.Client) *StageService {
	return &StageService{client: client}
}

// CreateStageExecution inserts a stage execution in status pending.
func (s *StageService) CreateStageExecution(httpCtx context.Context, req models.CreateStageExecutionRequest) (*models.StageExecution, error) {
	if req.ExecutionID == "" {
		return nil, NewValidationError("execution_id", "required")
	}
	if req.SessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	if req.StageName == "" {
		return nil, NewValidationError("stage_name", "required")
	}
	if req.Agent == "" {
		return nil, NewValidationError("agent", "required")
	}
	if req.StageIndex < 0 {
		return nil, NewValidationError("stage_index", "must not be negative")
	}

	// Use background context with timeout for the critical write
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	execution := &models.StageExecution{
		ExecutionID: req.ExecutionID,
		SessionID:   req.SessionID,
		StageID:     req.StageID,
		StageIndex:  req.StageIndex,
		StageName:   req.StageName,
		Agent:       req.Agent,
		Status:      models.ExecutionStatusPending,
	}

	_, err := s.client.DB().ExecContext(ctx, `
		INSERT INTO stage_executions (
			execution_id, session_id, stage_id, stage_index, stage_name, agent, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		execution.ExecutionID, execution.SessionID, execution.StageID,
		execution.StageIndex, execution.StageName, execution.Agent, execution.Status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create stage execution: %w", err)
	}
	return execution, nil
}

// GetStageExecution fetches one stage execution by id.
func (s *StageService) GetStageExecution(ctx context.Context, executionID string) (*models.StageExecution, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM stage_executions WHERE execution_id = $1`, executionID)
	execution, err := scanStageExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get stage execution: %w", err)
	}
	return execution, nil
}

// ListStageExecutions returns all stage executions of a session ordered by
// stage_index.
func (s *StageService) ListStageExecutions(ctx context.Context, sessionID string) ([]*models.StageExecution, error) {
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+stageColumns+` FROM stage_executions WHERE session_id = $1 ORDER BY stage_index ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage executions: %w", err)
	}
	defer rows.Close()

	executions := []*models.StageExecution{}
	for rows.Next() {
		execution, err := scanStageExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage execution: %w", err)
		}
		executions = append(executions, execution)
	}
	return executions, rows.Err()
}

// UpdateStageExecution applies a partial update. Status transitions are
// monotonic (pending → active → completed/failed); attempts to leave a
// terminal state report ErrConcurrentModification. When completed_at_us is
// set and duration_ms is not, the duration is computed from the stored
// started_at_us.
func (s *StageService) UpdateStageExecution(httpCtx context.Context, executionID string, update models.StageExecutionUpdate) error {
	if update.Status != nil && !update.Status.IsValid() {
		return NewValidationError("status", fmt.Sprintf("unknown execution status %q", *update.Status))
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		currentStatus models.ExecutionStatus
		startedAt     sql.NullInt64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT status, started_at_us FROM stage_executions WHERE execution_id = $1 FOR UPDATE`,
		executionID).Scan(&currentStatus, &startedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("stage execution: %w", ErrNotFound)
		}
		return fmt.Errorf("failed to lock stage execution: %w", err)
	}

	if update.Status != nil && *update.Status != currentStatus &&
		!allowedStageTransition(currentStatus, *update.Status) {
		return fmt.Errorf("stage execution %s is %s: %w", executionID, currentStatus, ErrConcurrentModification)
	}

	set, args, err := buildStageUpdateSQL(update, startedAt)
	if err != nil {
		return err
	}
	if set == "" {
		return tx.Commit()
	}
	args = append(args, executionID)

	query := fmt.Sprintf(`UPDATE stage_executions SET %s WHERE execution_id = $%d`,
		set, len(args))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update stage execution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stage execution update: %w", err)
	}
	return nil
}

// allowedStageTransition enforces pending → active → {completed, failed}.
// Skipping active is allowed for stages that fail before starting.
func allowedStageTransition(from, to models.ExecutionStatus) bool {
	switch from {
	case models.ExecutionStatusPending:
		return to == models.ExecutionStatusActive ||
			to == models.ExecutionStatusCompleted ||
			to == models.ExecutionStatusFailed
	case models.ExecutionStatusActive:
		return to == models.ExecutionStatusCompleted || to == models.ExecutionStatusFailed
	default:
		return false
	}
}

// buildStageUpdateSQL renders the SET clause for a partial update. startedAt
// is the stored start time used to derive duration_ms when the caller closes
// the stage without providing one.
func buildStageUpdateSQL(update models.StageExecutionUpdate, startedAt sql.NullInt64) (string, []any, error) {
	var set []string
	var args []any

	add := func(column string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.StartedAtUs != nil {
		add("started_at_us", *update.StartedAtUs)
		startedAt = sql.NullInt64{Int64: *update.StartedAtUs, Valid: true}
	}
	if update.CompletedAtUs != nil {
		add("completed_at_us", *update.CompletedAtUs)
		if update.DurationMs == nil && startedAt.Valid {
			duration := models.DurationMs(startedAt.Int64, *update.CompletedAtUs)
			update.DurationMs = &duration
		}
	}
	if update.DurationMs != nil {
		add("duration_ms", *update.DurationMs)
	}
	if update.StageOutput != nil {
		raw, err := jsonbOrNull(update.StageOutput)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode stage_output: %w", err)
		}
		add("stage_output", raw)
	}
	if update.ErrorMessage != nil {
		add("error_message", *update.ErrorMessage)
	}

	if len(set) == 0 {
		return "", nil, nil
	}

	out := set[0]
	for _, s := range set[1:] {
		out += ", " + s
	}
	return out, args, nil
}

// scanStageExecution reads one row in stageColumns order.
func scanStageExecution(row rowScanner) (*models.StageExecution, error) {
	var (
		execution                        models.StageExecution
		startedAt, completedAt, duration sql.NullInt64
		output                           []byte
		errorMessage                     sql.NullString
	)

	err := row.Scan(
		&execution.ExecutionID, &execution.SessionID, &execution.StageID,
		&execution.StageIndex, &execution.StageName, &execution.Agent,
		&execution.Status, &startedAt, &completedAt, &duration, &output, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalMap(output, &execution.StageOutput); err != nil {
		return nil, fmt.Errorf("failed to decode stage_output: %w", err)
	}

	execution.StartedAtUs = nullInt64(startedAt)
	execution.CompletedAtUs = nullInt64(completedAt)
	execution.DurationMs = nullInt64(duration)
	execution.ErrorMessage = nullString(errorMessage)
	return &execution, nil
}
