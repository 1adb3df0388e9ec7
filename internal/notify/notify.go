// Package notify delivers user notifications to the notification service's
// Kafka topic. Delivery is fire-and-forget with at-least-once semantics; the
// consumer deduplicates on the notification code.
package notify

import (
	"context"
	"log/slog"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
)

// LogSink is the fallback NotificationSink used when no Kafka brokers are
// configured. It only records the notification in the service log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "notify_log"))}
}

// Send logs the notification.
func (s *LogSink) Send(_ context.Context, n domain.Notification) error {
	s.logger.Info("notification (no sink configured)",
		slog.String("user", n.UserKey),
		slog.String("title", n.Title),
		slog.String("code", n.Code),
	)
	return nil
}

// Compile-time interface check.
var _ domain.NotificationSink = (*LogSink)(nil)
