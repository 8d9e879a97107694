package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edusuite/school-billing/internal/application/dispatcher"
	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/domain/entity"
	"github.com/edusuite/school-billing/internal/domain/event"
)

// NotificationService turns domain events into outbox rows. The delivery
// worker drains the outbox through the external sink, so a slow or broken
// sink delays notifications without ever touching a financial transaction.
type NotificationService interface {
	// Register subscribes the service to all billing event types.
	Register(d dispatcher.Dispatcher)

	// HandleEvent persists one event as a pending notification.
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	logger           Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notificationRepo port.NotificationRepository, logger Logger) NotificationService {
	return &notificationServiceImpl{
		notificationRepo: notificationRepo,
		logger:           logger,
	}
}

// Register subscribes the outbox handler for every event type the billing
// core emits.
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeInvoiceIssued,
		event.TypePaymentReceived,
		event.TypeOverdueReminder,
		event.TypeWaiverDecided,
	} {
		d.SubscribeNamed(t, "notification-outbox", s.HandleEvent)
	}
}

// HandleEvent persists the event as a PENDING outbox row.
func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	recipient := evt.GetPayloadString("payer_id")
	if recipient == "" {
		recipient = evt.GetPayloadString("student_id")
	}

	n := &entity.Notification{
		EventType: evt.Type.String(),
		InvoiceID: evt.InvoiceID,
		Recipient: recipient,
		Payload:   string(payload),
		Status:    entity.NotificationStatusPending,
		CreatedAt: evt.Timestamp,
	}
	if err := s.notificationRepo.Create(ctx, n); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	s.logger.Info("Notification enqueued",
		"event_type", evt.Type.String(),
		"invoice_id", evt.InvoiceID,
		"recipient", recipient,
	)
	return nil
}
