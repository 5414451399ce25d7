// Package cleanup enforces the history retention policy: terminal sessions
// older than the configured retention window are deleted, cascading to their
// stages and interactions.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/services"
)

// Service runs the periodic retention loop. Deletion is idempotent and
// safe to run from multiple replicas.
type Service struct {
	cfg     *config.RetentionConfig
	history *services.HistoryService

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service over the history store.
func NewService(cfg *config.RetentionConfig, history *services.HistoryService) *Service {
	return &Service{
		cfg:     cfg,
		history: history,
	}
}

// Start launches the background cleanup loop. Calling Start on a running
// service is a no-op.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"session_retention_days", s.cfg.SessionRetentionDays,
		"interval", s.cfg.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single retention pass.
func (s *Service) RunOnce(ctx context.Context) {
	retention := time.Duration(s.cfg.SessionRetentionDays) * 24 * time.Hour
	cutoffUs := time.Now().Add(-retention).UnixMicro()

	count, err := s.history.DeleteSessionsOlderThan(ctx, cutoffUs)
	if err != nil {
		slog.Error("Retention: session deletion failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted expired sessions", "count", count)
	}
}
