package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/hooks"
	"github.com/tarsy-bot/tarsy/pkg/metrics"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// Manager wraps a provider Client with the observability the pipeline needs:
// every call emits llm.pre before the provider is hit and llm.post or
// llm.error after, carrying the interaction as it will be recorded in the
// timeline. Payloads triggered on the bus are never mutated afterwards; the
// post/error payload is a fresh interaction sharing the pre payload's ID.
type Manager struct {
	client   Client
	provider string
	model    string
	bus      *hooks.Bus
}

// NewManager builds the provider client for cfg and wraps it. The bus may be
// nil in tests; hooks are skipped then.
func NewManager(cfg *config.LLMProviderConfig, bus *hooks.Bus) (*Manager, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{
		client:   client,
		provider: string(cfg.Type),
		model:    cfg.Model,
		bus:      bus,
	}, nil
}

// NewManagerWithClient wraps an existing client. Used by tests and by
// callers that construct providers themselves.
func NewManagerWithClient(client Client, provider, model string, bus *hooks.Bus) *Manager {
	return &Manager{client: client, provider: provider, model: model, bus: bus}
}

// Model returns the configured model identifier.
func (m *Manager) Model() string {
	return m.model
}

// Generate performs one LLM call with full audit instrumentation.
func (m *Manager) Generate(ctx context.Context, req *Request) (*Response, error) {
	interactionID := uuid.NewString()
	start := time.Now()
	startUs := models.NowUs()

	pre := m.newInteraction(interactionID, req, startUs)
	m.trigger(ctx, hooks.EventLLMPre, req, pre)

	resp, err := m.client.Generate(ctx, req)
	elapsed := time.Since(start)
	metrics.LLMCallDuration.WithLabelValues(m.provider).Observe(elapsed.Seconds())

	if err != nil {
		outcome, msg := classifyGenerateError(err, elapsed)
		metrics.LLMCalls.WithLabelValues(m.provider, outcome).Inc()

		failed := m.newInteraction(interactionID, req, startUs)
		failed.DurationMs = elapsed.Milliseconds()
		failed.ErrorMessage = &msg
		m.trigger(ctx, hooks.EventLLMError, req, failed)

		slog.Error("LLM call failed",
			"provider", m.provider,
			"model", m.model,
			"session_id", req.SessionID,
			"duration_ms", elapsed.Milliseconds(),
			"error", msg)
		return nil, fmt.Errorf("%s: %w", msg, err)
	}

	metrics.LLMCalls.WithLabelValues(m.provider, "success").Inc()
	metrics.LLMTokens.WithLabelValues(m.provider, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokens.WithLabelValues(m.provider, "completion").Add(float64(resp.Usage.CompletionTokens))

	done := m.newInteraction(interactionID, req, startUs)
	done.DurationMs = elapsed.Milliseconds()
	done.Success = true
	done.ResponseJSON = responseJSON(resp)
	done.ToolCalls = toAnySlice(resp.ToolCalls)
	usage := resp.Usage
	done.TokenUsage = &usage
	m.trigger(ctx, hooks.EventLLMPost, req, done)

	slog.Debug("LLM call completed",
		"provider", m.provider,
		"model", m.model,
		"session_id", req.SessionID,
		"duration_ms", elapsed.Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens,
		"tool_calls", len(resp.ToolCalls))
	return resp, nil
}

// Close releases the underlying provider client.
func (m *Manager) Close() error {
	return m.client.Close()
}

func (m *Manager) newInteraction(id string, req *Request, timestampUs int64) *models.LLMInteraction {
	interaction := &models.LLMInteraction{
		InteractionID:   id,
		SessionID:       req.SessionID,
		TimestampUs:     timestampUs,
		ModelName:       m.model,
		RequestJSON:     m.requestJSON(req),
		StepDescription: req.StepDescription,
	}
	if req.StageExecutionID != "" {
		stageID := req.StageExecutionID
		interaction.StageExecutionID = &stageID
	}
	return interaction
}

func (m *Manager) trigger(ctx context.Context, event string, req *Request, interaction *models.LLMInteraction) {
	if m.bus == nil {
		return
	}
	m.bus.Trigger(ctx, event, &hooks.Payload{
		SessionID:        req.SessionID,
		StageExecutionID: req.StageExecutionID,
		StepDescription:  req.StepDescription,
		TimestampUs:      interaction.TimestampUs,
		LLM:              interaction,
	})
}

func (m *Manager) requestJSON(req *Request) map[string]any {
	out := map[string]any{
		"model":    m.model,
		"provider": m.provider,
		"messages": toAnySlice(req.Messages),
	}
	if len(req.Tools) > 0 {
		names := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			names[i] = t.Name
		}
		out["tools"] = names
	}
	if req.ThinkingLevel != ThinkingOff {
		out["thinking_level"] = string(req.ThinkingLevel)
	}
	return out
}

func responseJSON(resp *Response) map[string]any {
	out := map[string]any{
		"content":     resp.Content,
		"stop_reason": resp.StopReason,
	}
	if resp.ThinkingContent != "" {
		out["thinking_content"] = resp.ThinkingContent
	}
	if resp.ThoughtSignature != "" {
		out["thought_signature"] = resp.ThoughtSignature
	}
	if len(resp.ToolCalls) > 0 {
		out["tool_calls"] = toAnySlice(resp.ToolCalls)
	}
	return out
}

// toAnySlice round-trips a slice through JSON so interaction rows hold plain
// maps rather than package types.
func toAnySlice[T any](items []T) []any {
	if len(items) == 0 {
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	var out []any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// classifyGenerateError maps a provider failure to a metrics outcome and a
// message suitable for the timeline. Deadline errors get a distinct message
// so an iteration that ran out of time reads differently from a provider
// rejection.
func classifyGenerateError(err error, elapsed time.Duration) (outcome, message string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", fmt.Sprintf("LLM call timed out after %s", elapsed.Round(time.Second))
	case errors.Is(err, context.Canceled):
		return "canceled", "LLM call canceled"
	default:
		return "error", fmt.Sprintf("LLM call failed: %v", err)
	}
}
