package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tarsy-bot/tarsy/pkg/database"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// sessionColumns is the scan order shared by every session query.
const sessionColumns = `session_id, alert_id, alert_type, alert_data, agent_type, chain_id,
	chain_definition, status, started_at_us, completed_at_us, current_stage_index,
	current_stage_id, final_analysis, error_message, session_metadata`

// orphanErrorMessage marks sessions closed by startup recovery after a
// restart left them non-terminal.
const orphanErrorMessage = "Processing interrupted by restart"

// SessionService manages alert session rows.
type SessionService struct {
	client *database.Client
}

// NewSessionService creates a new SessionService.
func NewSessionService(client *database.Client) *SessionService {
	return &SessionService{client: client}
}

// CreateSession inserts a new session in status pending with the chain
// definition snapshot taken at selection time.
func (s *SessionService) CreateSession(httpCtx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	if req.SessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	if req.AlertID == "" {
		return nil, NewValidationError("alert_id", "required")
	}
	if req.AlertType == "" {
		return nil, NewValidationError("alert_type", "required")
	}
	if req.AgentType == "" {
		return nil, NewValidationError("agent_type", "required")
	}
	if req.ChainID == "" {
		return nil, NewValidationError("chain_id", "required")
	}

	// Use background context with timeout for the critical write
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	session := &models.Session{
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
	}

	alertData, err := jsonbOrNull(session.AlertData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode alert_data: %w", err)
	}
	if alertData == nil {
		alertData = []byte(`{}`)
	}
	chainDef, err := jsonbOrNull(session.ChainDefinition)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chain_definition: %w", err)
	}
	metadata, err := jsonbOrNull(session.SessionMetadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session_metadata: %w", err)
	}

	_, err = s.client.DB().ExecContext(ctx, `
		INSERT INTO alert_sessions (
			session_id, alert_id, alert_type, alert_data, agent_type, chain_id,
			chain_definition, status, started_at_us, session_metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		session.SessionID, session.AlertID, session.AlertType, alertData,
		session.AgentType, session.ChainID, chainDef, session.Status,
		session.StartedAtUs, metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// GetSession fetches one session by id.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}

	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM alert_sessions WHERE session_id = $1`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// UpdateSessionStatus transitions a session. Terminal transitions stamp
// completed_at_us and store the error message; non-terminal transitions only
// change the status.
func (s *SessionService) UpdateSessionStatus(httpCtx context.Context, sessionID string, status models.SessionStatus, errorMessage *string) error {
	if !status.IsValid() {
		return NewValidationError("status", fmt.Sprintf("unknown session status %q", status))
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if status.IsTerminal() {
		res, err = s.client.DB().ExecContext(ctx, `
			UPDATE alert_sessions
			SET status = $1, completed_at_us = $2, error_message = $3
			WHERE session_id = $4`,
			status, models.NowUs(), errorMessage, sessionID)
	} else {
		res, err = s.client.DB().ExecContext(ctx, `
			UPDATE alert_sessions SET status = $1 WHERE session_id = $2`,
			status, sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return requireRowUpdated(res, "session")
}

// UpdateSessionCurrentStage records which stage the session is executing.
func (s *SessionService) UpdateSessionCurrentStage(httpCtx context.Context, sessionID string, stageIndex int, stageID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	res, err := s.client.DB().ExecContext(ctx, `
		UPDATE alert_sessions
		SET current_stage_index = $1, current_stage_id = $2
		WHERE session_id = $3`,
		stageIndex, stageID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session current stage: %w", err)
	}
	return requireRowUpdated(res, "session")
}

// SetSessionFinalAnalysis stores the final analysis text.
func (s *SessionService) SetSessionFinalAnalysis(httpCtx context.Context, sessionID string, analysis string) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	res, err := s.client.DB().ExecContext(ctx, `
		UPDATE alert_sessions SET final_analysis = $1 WHERE session_id = $2`,
		analysis, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set final analysis: %w", err)
	}
	return requireRowUpdated(res, "session")
}

// ListSessions returns one page of sessions matching the filters, newest
// first, with the pagination envelope computed from a COUNT over the same
// predicates.
func (s *SessionService) ListSessions(ctx context.Context, filters models.SessionFilters, page models.PageParams) (*models.SessionList, error) {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize < 1 {
		page.PageSize = 20
	}

	where, args := buildSessionFilterSQL(filters)

	var total int
	countQuery := `SELECT COUNT(*) FROM alert_sessions` + where
	if err := s.client.DB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM alert_sessions%s ORDER BY started_at_us DESC LIMIT $%d OFFSET $%d`,
		sessionColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.PageSize, page.Offset())

	rows, err := s.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0, page.PageSize)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return &models.SessionList{
		Sessions:   sessions,
		Pagination: models.NewPagination(page, total),
	}, nil
}

// ListActiveSessions returns the compact projection of all non-terminal
// sessions, oldest first.
func (s *SessionService) ListActiveSessions(ctx context.Context) ([]*models.ActiveSession, error) {
	rows, err := s.client.DB().QueryContext(ctx, `
		SELECT session_id, alert_id, alert_type, chain_id, status, started_at_us,
			current_stage_index, current_stage_id
		FROM alert_sessions
		WHERE status IN ($1, $2)
		ORDER BY started_at_us ASC`,
		models.SessionStatusPending, models.SessionStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	active := []*models.ActiveSession{}
	for rows.Next() {
		var (
			a          models.ActiveSession
			stageIndex sql.NullInt64
			stageID    sql.NullString
		)
		if err := rows.Scan(&a.SessionID, &a.AlertID, &a.AlertType, &a.ChainID,
			&a.Status, &a.StartedAtUs, &stageIndex, &stageID); err != nil {
			return nil, fmt.Errorf("failed to scan active session: %w", err)
		}
		a.CurrentStageIndex = nullInt(stageIndex)
		a.CurrentStageID = nullString(stageID)
		active = append(active, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active sessions: %w", err)
	}
	return active, nil
}

// ListFilterOptions returns the distinct values available for history
// filters plus the fixed presets the dashboard offers.
func (s *SessionService) ListFilterOptions(ctx context.Context) (*models.FilterOptions, error) {
	agentTypes, err := s.distinctColumn(ctx, "agent_type")
	if err != nil {
		return nil, err
	}
	alertTypes, err := s.distinctColumn(ctx, "alert_type")
	if err != nil {
		return nil, err
	}
	statuses, err := s.distinctColumn(ctx, "status")
	if err != nil {
		return nil, err
	}

	return &models.FilterOptions{
		AgentTypes: agentTypes,
		AlertTypes: alertTypes,
		Statuses:   statuses,
		TimeRanges: []models.TimeRange{
			{Label: "Last Hour", Value: "1h"},
			{Label: "Last 4 Hours", Value: "4h"},
			{Label: "Last Day", Value: "1d"},
			{Label: "Last Week", Value: "7d"},
		},
		Pagination: []models.PageSizeOpt{
			{Label: "10 per page", Value: 10},
			{Label: "25 per page", Value: 25},
			{Label: "50 per page", Value: 50},
			{Label: "100 per page", Value: 100},
		},
	}, nil
}

func (s *SessionService) distinctColumn(ctx context.Context, column string) ([]string, error) {
	// column comes from a fixed call-site set, never user input
	rows, err := s.client.DB().QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT %s FROM alert_sessions ORDER BY %s`, column, column))
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct %s: %w", column, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan distinct %s: %w", column, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// CleanupOrphanedSessions fails every session left non-terminal by a
// previous run, closing its in-flight stages as well. Returns the number of
// sessions recovered.
func (s *SessionService) CleanupOrphanedSessions(ctx context.Context) (int, error) {
	now := models.NowUs()

	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start cleanup transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE alert_sessions
		SET status = $1, error_message = $2, completed_at_us = $3
		WHERE status IN ($4, $5)`,
		models.SessionStatusFailed, orphanErrorMessage, now,
		models.SessionStatusPending, models.SessionStatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("failed to fail orphaned sessions: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count orphaned sessions: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stage_executions
		SET status = $1, error_message = $2, completed_at_us = $3
		WHERE status IN ($4, $5)`,
		models.ExecutionStatusFailed, orphanErrorMessage, now,
		models.ExecutionStatusPending, models.ExecutionStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to fail orphaned stage executions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit orphan cleanup: %w", err)
	}
	return int(count), nil
}

// DeleteSessionsOlderThan removes terminal sessions whose processing started
// before the cutoff. Interactions and stages cascade with the session row.
func (s *SessionService) DeleteSessionsOlderThan(ctx context.Context, cutoffUs int64) (int, error) {
	res, err := s.client.DB().ExecContext(ctx, `
		DELETE FROM alert_sessions
		WHERE started_at_us < $1 AND status IN ($2, $3)`,
		cutoffUs, models.SessionStatusCompleted, models.SessionStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return int(count), nil
}

// searchableJSONPaths are the alert_data / session_metadata keys included in
// free-text search.
var searchableJSONPaths = []string{"message", "alertname", "namespace", "pod"}

// buildSessionFilterSQL renders the WHERE clause for ListSessions. Search is
// OR-combined across text columns and selected JSON paths, then AND-ed with
// the structured filters.
func buildSessionFilterSQL(filters models.SessionFilters) (string, []any) {
	var clauses []string
	var args []any

	add := func(format string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(format, len(args)))
	}

	if filters.Status != "" {
		add("status = $%d", filters.Status)
	}
	if filters.AgentType != "" {
		add("agent_type = $%d", filters.AgentType)
	}
	if filters.AlertType != "" {
		add("alert_type = $%d", filters.AlertType)
	}
	if filters.StartDateUs != nil {
		add("started_at_us >= $%d", *filters.StartDateUs)
	}
	if filters.EndDateUs != nil {
		add("started_at_us <= $%d", *filters.EndDateUs)
	}

	if search := strings.TrimSpace(filters.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		n := len(args)
		or := []string{
			fmt.Sprintf("LOWER(COALESCE(error_message, '')) LIKE $%d", n),
			fmt.Sprintf("LOWER(COALESCE(final_analysis, '')) LIKE $%d", n),
			fmt.Sprintf("LOWER(alert_type) LIKE $%d", n),
			fmt.Sprintf("LOWER(agent_type) LIKE $%d", n),
		}
		for _, path := range searchableJSONPaths {
			or = append(or,
				fmt.Sprintf("LOWER(COALESCE(alert_data->>'%s', '')) LIKE $%d", path, n),
				fmt.Sprintf("LOWER(COALESCE(session_metadata->>'%s', '')) LIKE $%d", path, n),
			)
		}
		clauses = append(clauses, "("+strings.Join(or, " OR ")+")")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// scanSession reads one row in sessionColumns order.
func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session                              models.Session
		alertData, chainDef, metadata        []byte
		completedAt, stageIndex              sql.NullInt64
		stageID, finalAnalysis, errorMessage sql.NullString
	)

	err := row.Scan(
		&session.SessionID, &session.AlertID, &session.AlertType, &alertData,
		&session.AgentType, &session.ChainID, &chainDef, &session.Status,
		&session.StartedAtUs, &completedAt, &stageIndex, &stageID,
		&finalAnalysis, &errorMessage, &metadata,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalMap(alertData, &session.AlertData); err != nil {
		return nil, fmt.Errorf("failed to decode alert_data: %w", err)
	}
	if err := unmarshalMap(chainDef, &session.ChainDefinition); err != nil {
		return nil, fmt.Errorf("failed to decode chain_definition: %w", err)
	}
	if err := unmarshalMap(metadata, &session.SessionMetadata); err != nil {
		return nil, fmt.Errorf("failed to decode session_metadata: %w", err)
	}

	session.CompletedAtUs = nullInt64(completedAt)
	session.CurrentStageIndex = nullInt(stageIndex)
	session.CurrentStageID = nullString(stageID)
	session.FinalAnalysis = nullString(finalAnalysis)
	session.ErrorMessage = nullString(errorMessage)
	return &session, nil
}

// requireRowUpdated maps a zero-row update to ErrNotFound.
func requireRowUpdated(res sql.Result, entity string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	return nil
}
