// Package alert is the top-level orchestrator: it accepts validated alert
// submissions, suppresses duplicates, and drives each accepted alert
// through its chain on a bounded worker pool while recording every
// lifecycle transition through the history service and the hook bus.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/hooks"
	"github.com/tarsy-bot/tarsy/pkg/metrics"
	"github.com/tarsy-bot/tarsy/pkg/models"
	"github.com/tarsy-bot/tarsy/pkg/services"
)

// Session-mapping cache bounds: the dashboard polls alert_id -> session_id
// shortly after submission, so entries only need to outlive the UI's
// interest in a finished alert.
const (
	sessionMappingSize = 10_000
	sessionMappingTTL  = 4 * time.Hour
)

// StageRunner executes one stage against the chain context. Satisfied by
// *agent.BaseAgent.
type StageRunner interface {
	Execute(ctx context.Context, chain *agent.ChainContext) (*agent.ExecutionResult, error)
}

// AgentFactory creates a fresh stage runner per stage execution.
type AgentFactory interface {
	CreateAgent(stage config.StageConfig, stageExecutionID string, stageIndex int) (StageRunner, error)
}

// RunbookResolver fetches runbook content for an alert. Satisfied by
// *runbook.Service.
type RunbookResolver interface {
	Resolve(ctx context.Context, alertRunbookURL string) (string, error)
}

// agentFactoryAdapter narrows *agent.Factory to the AgentFactory seam.
type agentFactoryAdapter struct {
	factory *agent.Factory
}

func (a agentFactoryAdapter) CreateAgent(stage config.StageConfig, stageExecutionID string, stageIndex int) (StageRunner, error) {
	return a.factory.CreateAgent(stage, stageExecutionID, stageIndex)
}

// NewAgentFactoryAdapter wraps the concrete agent factory for the service.
func NewAgentFactoryAdapter(factory *agent.Factory) AgentFactory {
	return agentFactoryAdapter{factory: factory}
}

// Service orchestrates alert processing. Submission is non-blocking: the
// alert is fingerprinted, deduplicated, and handed to a background worker
// bounded by the concurrency semaphore.
type Service struct {
	cfg      *config.Config
	settings *config.Settings
	history  *services.HistoryService
	runbooks RunbookResolver
	agents   AgentFactory
	bus      *hooks.Bus

	sem *semaphore.Weighted

	// processing maps the fingerprint of each in-flight alert to its
	// issued alert ID. Guarded by mu; entries are removed when processing
	// finishes, success or failure.
	mu         sync.Mutex
	processing map[models.AlertKey]string

	// sessionIDs maps api alert IDs to session IDs for the status lookup
	// endpoint. TTL-bounded so finished alerts age out.
	sessionIDs *expirable.LRU[string, string]

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewService creates the orchestrator. The bus may be nil in tests; hook
// emission is skipped then.
func NewService(
	cfg *config.Config,
	settings *config.Settings,
	history *services.HistoryService,
	runbooks RunbookResolver,
	agents AgentFactory,
	bus *hooks.Bus,
) *Service {
	return &Service{
		cfg:        cfg,
		settings:   settings,
		history:    history,
		runbooks:   runbooks,
		agents:     agents,
		bus:        bus,
		sem:        semaphore.NewWeighted(int64(settings.MaxConcurrentAlerts)),
		processing: make(map[models.AlertKey]string),
		sessionIDs: expirable.NewLRU[string, string](sessionMappingSize, nil, sessionMappingTTL),
	}
}

// Submit accepts a validated alert for background processing. Identical
// payloads already in flight are suppressed: the caller gets the original
// alert ID with a duplicate status and no new work is queued.
func (s *Service) Submit(a models.Alert) (string, models.ProcessingStatus, error) {
	if s.closed.Load() {
		return "", "", fmt.Errorf("service is shutting down")
	}

	key, err := models.NewAlertKey(a.AlertType, a.Data)
	if err != nil {
		return "", "", err
	}

	s.mu.Lock()
	if existingID, inFlight := s.processing[key]; inFlight {
		s.mu.Unlock()
		metrics.AlertsDuplicate.Inc()
		slog.Info("Duplicate alert suppressed",
			"alert_type", a.AlertType,
			"alert_id", existingID)
		return existingID, models.ProcessingStatusDuplicate, nil
	}
	alertID := uuid.NewString()
	s.processing[key] = alertID
	s.mu.Unlock()

	metrics.AlertsSubmitted.Inc()
	s.wg.Add(1)
	go s.run(a, alertID, key)

	return alertID, models.ProcessingStatusQueued, nil
}

// run is the per-alert worker: it waits for a concurrency slot, applies the
// processing deadline, and always releases the duplicate-suppression entry
// when done.
func (s *Service) run(a models.Alert, alertID string, key models.AlertKey) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.processing, key)
		s.mu.Unlock()
	}()

	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		slog.Error("Failed to acquire processing slot", "alert_id", alertID, "error", err)
		return
	}
	defer s.sem.Release(1)

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.AlertProcessingTimeout)
	defer cancel()

	outcome := "completed"
	if _, err := s.processAlert(ctx, a, alertID); err != nil {
		outcome = "failed"
		slog.Error("Alert processing failed",
			"alert_id", alertID,
			"alert_type", a.AlertType,
			"error", err)
	}
	metrics.AlertsProcessed.WithLabelValues(outcome).Inc()
}

// SessionIDForAlert resolves the session created for a submitted alert ID.
// Returns false when the alert is unknown or its mapping has expired.
func (s *Service) SessionIDForAlert(apiAlertID string) (string, bool) {
	return s.sessionIDs.Get(apiAlertID)
}

// InFlight returns the number of alerts currently being processed or
// waiting for a slot.
func (s *Service) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processing)
}

// Shutdown stops accepting submissions and waits for in-flight alerts to
// finish, up to the context deadline. Alerts still running afterwards are
// closed out by orphan cleanup on the next startup.
func (s *Service) Shutdown(ctx context.Context) error {
	s.closed.Store(true)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown deadline reached with %d alerts in flight", s.InFlight())
	}
}
