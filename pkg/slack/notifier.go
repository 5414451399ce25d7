package slack

import (
	"context"
	"time"

	"github.com/tarsy-bot/tarsy/pkg/hooks"
)

// SubscriberName is the name the notifier registers under on the hook bus.
const SubscriberName = "slack-notifier"

// Notifier bridges session lifecycle events to Slack. Registered on the
// hook bus for session.post and session.error; each terminal session posts
// exactly one message.
type Notifier struct {
	service *Service
}

// NewNotifier wraps a Service for hook bus registration. The service may be
// nil (Slack unconfigured); Handle is then a no-op.
func NewNotifier(service *Service) *Notifier {
	return &Notifier{service: service}
}

// EventNames implements hooks.Subscriber.
func (n *Notifier) EventNames() []string {
	return []string{hooks.EventSessionPost, hooks.EventSessionError}
}

// Handle implements hooks.Subscriber. Always returns nil: Slack delivery
// problems are logged by the service and must not trip the bus's
// auto-disable for transient outages.
func (n *Notifier) Handle(ctx context.Context, _ string, payload *hooks.Payload) error {
	if n.service == nil || payload.Session == nil {
		return nil
	}

	detail := payload.Session
	input := NotificationInput{
		SessionID:     payload.SessionID,
		AlertType:     detail.AlertType,
		ChainID:       detail.ChainID,
		Status:        string(detail.Status),
		FinalAnalysis: detail.FinalAnalysis,
		ErrorMessage:  detail.ErrorMessage,
	}
	if detail.CompletedAtUs > detail.StartedAtUs && detail.StartedAtUs > 0 {
		input.Duration = time.Duration(detail.CompletedAtUs-detail.StartedAtUs) * time.Microsecond
	}

	n.service.NotifySessionFinished(ctx, input)
	return nil
}
