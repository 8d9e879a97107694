// Package notification provides built-in delivery backends for the outbox
// worker.
package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/domain/entity"
)

// LogSink writes notifications to the structured log. It is the default
// backend; deployments with a messaging gateway replace it behind the
// port.NotificationSink interface.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log-backed notification sink
func NewLogSink(logger *zap.Logger) port.NotificationSink {
	return &LogSink{logger: logger}
}

// Deliver emits the notification as a structured log entry
func (s *LogSink) Deliver(ctx context.Context, n *entity.Notification) error {
	s.logger.Info("Notification delivered",
		zap.Int64("id", n.ID),
		zap.String("event_type", n.EventType),
		zap.Int64("invoice_id", n.InvoiceID),
		zap.String("recipient", n.Recipient),
		zap.String("payload", n.Payload))
	return nil
}
