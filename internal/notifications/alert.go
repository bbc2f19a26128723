package notifications

import (
	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/domain"
)

// Alerter raises a local, desktop-style alert for a freshly received
// notification. Implementations are best-effort: a returned error is logged
// and swallowed, never propagated to the delivery path.
type Alerter interface {
	Alert(event domain.NotificationEvent) error
}

// LogAlerter writes alerts to the structured log. It stands in where the
// host has no desktop notification integration.
type LogAlerter struct {
	Logger *zap.Logger
}

// Alert logs the notification.
func (a LogAlerter) Alert(event domain.NotificationEvent) error {
	a.Logger.Info("notification",
		zap.String("id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("title", event.Title))
	return nil
}
