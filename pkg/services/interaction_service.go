package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tarsy-bot/tarsy/pkg/database"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

const llmColumns = `interaction_id, session_id, stage_execution_id, timestamp_us, duration_ms,
	model_name, request_json, response_json, tool_calls, tool_results, token_usage,
	step_description, success, error_message`

const mcpColumns = `communication_id, session_id, stage_execution_id, timestamp_us, duration_ms,
	server_name, communication_type, tool_name, tool_arguments, tool_result, available_tools,
	step_description, success, error_message`

// InteractionService appends LLM and MCP interaction rows. Rows are
// immutable once written; there are no update operations.
type InteractionService struct {
	client *database.Client
}

// NewInteractionService creates a new InteractionService.
func NewInteractionService(client *database.Client) *InteractionService {
	return &InteractionService{client: client}
}

// RecordLLMInteraction appends one LLM interaction. A missing id or
// timestamp is filled in, so hook subscribers can pass payloads through
// unchanged.
func (s *InteractionService) RecordLLMInteraction(httpCtx context.Context, in *models.LLMInteraction) error {
	if in == nil {
		return NewValidationError("interaction", "required")
	}
	if in.SessionID == "" {
		return NewValidationError("session_id", "required")
	}
	if in.InteractionID == "" {
		in.InteractionID = uuid.New().String()
	}
	if in.TimestampUs == 0 {
		in.TimestampUs = models.NowUs()
	}

	// Use background context with timeout for the critical write
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	requestJSON, err := jsonbOrNull(in.RequestJSON)
	if err != nil {
		return fmt.Errorf("failed to encode request_json: %w", err)
	}
	responseJSON, err := jsonbOrNull(in.ResponseJSON)
	if err != nil {
		return fmt.Errorf("failed to encode response_json: %w", err)
	}
	toolCalls, err := jsonbOrNull(in.ToolCalls)
	if err != nil {
		return fmt.Errorf("failed to encode tool_calls: %w", err)
	}
	toolResults, err := jsonbOrNull(in.ToolResults)
	if err != nil {
		return fmt.Errorf("failed to encode tool_results: %w", err)
	}
	var tokenUsage any
	if in.TokenUsage != nil {
		tokenUsage, err = json.Marshal(in.TokenUsage)
		if err != nil {
			return fmt.Errorf("failed to encode token_usage: %w", err)
		}
	}

	_, err = s.client.DB().ExecContext(ctx, `
		INSERT INTO llm_interactions (
			interaction_id, session_id, stage_execution_id, timestamp_us, duration_ms,
			model_name, request_json, response_json, tool_calls, tool_results,
			token_usage, step_description, success, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		in.InteractionID, in.SessionID, in.StageExecutionID, in.TimestampUs,
		in.DurationMs, in.ModelName, requestJSON, responseJSON, toolCalls,
		toolResults, tokenUsage, in.StepDescription, in.Success, in.ErrorMessage,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to record llm interaction: %w", err)
	}
	return nil
}

// RecordMCPInteraction appends one MCP interaction.
func (s *InteractionService) RecordMCPInteraction(httpCtx context.Context, in *models.MCPInteraction) error {
	if in == nil {
		return NewValidationError("interaction", "required")
	}
	if in.SessionID == "" {
		return NewValidationError("session_id", "required")
	}
	if in.ServerName == "" {
		return NewValidationError("server_name", "required")
	}
	if !in.CommunicationType.IsValid() {
		return NewValidationError("communication_type", fmt.Sprintf("unknown type %q", in.CommunicationType))
	}
	if in.CommunicationID == "" {
		in.CommunicationID = uuid.New().String()
	}
	if in.TimestampUs == 0 {
		in.TimestampUs = models.NowUs()
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	toolArguments, err := jsonbOrNull(in.ToolArguments)
	if err != nil {
		return fmt.Errorf("failed to encode tool_arguments: %w", err)
	}
	toolResult, err := jsonbOrNull(in.ToolResult)
	if err != nil {
		return fmt.Errorf("failed to encode tool_result: %w", err)
	}
	availableTools, err := jsonbOrNull(in.AvailableTools)
	if err != nil {
		return fmt.Errorf("failed to encode available_tools: %w", err)
	}

	_, err = s.client.DB().ExecContext(ctx, `
		INSERT INTO mcp_interactions (
			communication_id, session_id, stage_execution_id, timestamp_us, duration_ms,
			server_name, communication_type, tool_name, tool_arguments, tool_result,
			available_tools, step_description, success, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		in.CommunicationID, in.SessionID, in.StageExecutionID, in.TimestampUs,
		in.DurationMs, in.ServerName, in.CommunicationType, in.ToolName,
		toolArguments, toolResult, availableTools, in.StepDescription,
		in.Success, in.ErrorMessage,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to record mcp interaction: %w", err)
	}
	return nil
}

// ListLLMInteractions returns all LLM interactions of a session in
// timestamp order.
func (s *InteractionService) ListLLMInteractions(ctx context.Context, sessionID string) ([]*models.LLMInteraction, error) {
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+llmColumns+` FROM llm_interactions WHERE session_id = $1 ORDER BY timestamp_us ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list llm interactions: %w", err)
	}
	defer rows.Close()

	interactions := []*models.LLMInteraction{}
	for rows.Next() {
		in, err := scanLLMInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan llm interaction: %w", err)
		}
		interactions = append(interactions, in)
	}
	return interactions, rows.Err()
}

// ListMCPInteractions returns all MCP interactions of a session in
// timestamp order.
func (s *InteractionService) ListMCPInteractions(ctx context.Context, sessionID string) ([]*models.MCPInteraction, error) {
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT `+mcpColumns+` FROM mcp_interactions WHERE session_id = $1 ORDER BY timestamp_us ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mcp interactions: %w", err)
	}
	defer rows.Close()

	interactions := []*models.MCPInteraction{}
	for rows.Next() {
		in, err := scanMCPInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mcp interaction: %w", err)
		}
		interactions = append(interactions, in)
	}
	return interactions, rows.Err()
}

func scanLLMInteraction(row rowScanner) (*models.LLMInteraction, error) {
	var (
		in                                    models.LLMInteraction
		stageExecutionID, errorMessage        sql.NullString
		requestJSON, responseJSON, tokenUsage []byte
		toolCalls, toolResults                []byte
	)

	err := row.Scan(
		&in.InteractionID, &in.SessionID, &stageExecutionID, &in.TimestampUs,
		&in.DurationMs, &in.ModelName, &requestJSON, &responseJSON, &toolCalls,
		&toolResults, &tokenUsage, &in.StepDescription, &in.Success, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalMap(requestJSON, &in.RequestJSON); err != nil {
		return nil, fmt.Errorf("failed to decode request_json: %w", err)
	}
	if err := unmarshalMap(responseJSON, &in.ResponseJSON); err != nil {
		return nil, fmt.Errorf("failed to decode response_json: %w", err)
	}
	if err := unmarshalSlice(toolCalls, &in.ToolCalls); err != nil {
		return nil, fmt.Errorf("failed to decode tool_calls: %w", err)
	}
	if err := unmarshalSlice(toolResults, &in.ToolResults); err != nil {
		return nil, fmt.Errorf("failed to decode tool_results: %w", err)
	}
	if len(tokenUsage) > 0 {
		in.TokenUsage = &models.TokenUsage{}
		if err := json.Unmarshal(tokenUsage, in.TokenUsage); err != nil {
			return nil, fmt.Errorf("failed to decode token_usage: %w", err)
		}
	}

	in.StageExecutionID = nullString(stageExecutionID)
	in.ErrorMessage = nullString(errorMessage)
	return &in, nil
}

func scanMCPInteraction(row rowScanner) (*models.MCPInteraction, error) {
	var (
		in                                       models.MCPInteraction
		stageExecutionID, toolName, errorMessage sql.NullString
		toolArguments, toolResult, available     []byte
	)

	err := row.Scan(
		&in.CommunicationID, &in.SessionID, &stageExecutionID, &in.TimestampUs,
		&in.DurationMs, &in.ServerName, &in.CommunicationType, &toolName,
		&toolArguments, &toolResult, &available, &in.StepDescription,
		&in.Success, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalMap(toolArguments, &in.ToolArguments); err != nil {
		return nil, fmt.Errorf("failed to decode tool_arguments: %w", err)
	}
	if err := unmarshalMap(toolResult, &in.ToolResult); err != nil {
		return nil, fmt.Errorf("failed to decode tool_result: %w", err)
	}
	if err := unmarshalSlice(available, &in.AvailableTools); err != nil {
		return nil, fmt.Errorf("failed to decode available_tools: %w", err)
	}

	in.StageExecutionID = nullString(stageExecutionID)
	in.ToolName = nullString(toolName)
	in.ErrorMessage = nullString(errorMessage)
	return &in, nil
}
