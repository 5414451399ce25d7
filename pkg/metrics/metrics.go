// Package metrics defines the Prometheus collectors exposed on /metrics.
// Collectors are package-level and registered with the default registry so
// any component can record without carrying a handle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AlertsSubmitted counts alerts accepted for processing.
	AlertsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tarsy_alerts_submitted_total",
		Help: "Alerts accepted and queued for processing.",
	})

	// AlertsDuplicate counts submissions suppressed as duplicates.
	AlertsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tarsy_alerts_duplicate_total",
		Help: "Alert submissions suppressed because an identical alert was in flight.",
	})

	// AlertsProcessed counts finished alert sessions by terminal status.
	AlertsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarsy_alerts_processed_total",
		Help: "Alert sessions that reached a terminal status.",
	}, []string{"status"})

	// StageExecutions counts finished stage executions by terminal status.
	StageExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarsy_stage_executions_total",
		Help: "Stage executions that reached a terminal status.",
	}, []string{"status"})

	// LLMCalls counts LLM calls by provider and outcome.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarsy_llm_calls_total",
		Help: "LLM calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	// LLMTokens counts tokens by provider and kind (prompt, completion).
	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarsy_llm_tokens_total",
		Help: "Tokens consumed by LLM calls.",
	}, []string{"provider", "kind"})

	// LLMCallDuration observes LLM call latency per provider.
	LLMCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tarsy_llm_call_duration_seconds",
		Help:    "LLM call latency.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"provider"})

	// MCPCalls counts tool calls by server and outcome.
	MCPCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarsy_mcp_calls_total",
		Help: "MCP tool calls by server and outcome.",
	}, []string{"server", "outcome"})

	// HookDispatches counts events enqueued to hook subscribers.
	HookDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarsy_hook_dispatches_total",
		Help: "Events enqueued to hook subscribers.",
	}, []string{"event"})

	// HookFailures counts hook handler errors by subscriber.
	HookFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tarsy_hook_failures_total",
		Help: "Hook handler errors by subscriber.",
	}, []string{"subscriber"})

	// HookSubscribersDisabled tracks subscribers auto-disabled after
	// repeated failures.
	HookSubscribersDisabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tarsy_hook_subscribers_disabled",
		Help: "Hook subscribers currently disabled after repeated failures.",
	})

	// ActiveSessions tracks alert sessions currently processing.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tarsy_active_sessions",
		Help: "Alert sessions currently in flight.",
	})

	// WebSocketConnections tracks open dashboard WebSocket connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tarsy_websocket_connections",
		Help: "Open dashboard WebSocket connections.",
	})
)

// Handler returns the HTTP handler that serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
