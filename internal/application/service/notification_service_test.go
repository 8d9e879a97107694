package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edusuite/school-billing/internal/application/dispatcher"
	"github.com/edusuite/school-billing/internal/domain/entity"
	"github.com/edusuite/school-billing/internal/domain/event"
)

type mockNotificationRepo struct {
	createFunc func(ctx context.Context, n *entity.Notification) error
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, n)
	}
	n.ID = 1
	return nil
}

func (m *mockNotificationRepo) GetPending(ctx context.Context, limit int) ([]*entity.Notification, error) {
	return []*entity.Notification{}, nil
}

func (m *mockNotificationRepo) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return nil
}

func (m *mockNotificationRepo) MarkFailed(ctx context.Context, id int64, attempts int, lastError string) error {
	return nil
}

func TestNotificationService_HandleEvent(t *testing.T) {
	t.Run("enqueues pending outbox row", func(t *testing.T) {
		var stored *entity.Notification
		repo := &mockNotificationRepo{
			createFunc: func(ctx context.Context, n *entity.Notification) error {
				stored = n
				n.ID = 1
				return nil
			},
		}
		service := NewNotificationService(repo, &mockLogger{})

		evt := event.NewEvent(event.TypePaymentReceived, 7, "INV-2026-000007",
			map[string]interface{}{"payer_id": "PAYER-001", "amount": "60000"})

		if err := service.HandleEvent(context.Background(), evt); err != nil {
			t.Fatalf("HandleEvent() error = %v", err)
		}
		if stored == nil {
			t.Fatal("HandleEvent() did not enqueue a notification")
		}
		if stored.Status != entity.NotificationStatusPending {
			t.Errorf("HandleEvent() status = %s, want PENDING", stored.Status)
		}
		if stored.Recipient != "PAYER-001" {
			t.Errorf("HandleEvent() recipient = %q, want PAYER-001", stored.Recipient)
		}
		if stored.InvoiceID != 7 {
			t.Errorf("HandleEvent() invoice_id = %d, want 7", stored.InvoiceID)
		}
	})

	t.Run("falls back to student recipient", func(t *testing.T) {
		var stored *entity.Notification
		repo := &mockNotificationRepo{
			createFunc: func(ctx context.Context, n *entity.Notification) error {
				stored = n
				return nil
			},
		}
		service := NewNotificationService(repo, &mockLogger{})

		evt := event.NewEvent(event.TypeOverdueReminder, 7, "INV-2026-000007",
			map[string]interface{}{"student_id": "STU-001"})

		if err := service.HandleEvent(context.Background(), evt); err != nil {
			t.Fatalf("HandleEvent() error = %v", err)
		}
		if stored.Recipient != "STU-001" {
			t.Errorf("HandleEvent() recipient = %q, want STU-001", stored.Recipient)
		}
	})

	t.Run("repository failure propagates", func(t *testing.T) {
		repo := &mockNotificationRepo{
			createFunc: func(ctx context.Context, n *entity.Notification) error {
				return errors.New("disk full")
			},
		}
		service := NewNotificationService(repo, &mockLogger{})

		evt := event.NewEvent(event.TypeInvoiceIssued, 1, "INV-2026-000001", nil)
		if err := service.HandleEvent(context.Background(), evt); err == nil {
			t.Fatal("HandleEvent() expected error")
		}
	})
}

func TestNotificationService_Register(t *testing.T) {
	d := dispatcher.NewDispatcher()
	defer d.Close()

	service := NewNotificationService(&mockNotificationRepo{}, &mockLogger{})
	service.Register(d)

	for _, typ := range []event.Type{
		event.TypeInvoiceIssued,
		event.TypePaymentReceived,
		event.TypeOverdueReminder,
		event.TypeWaiverDecided,
	} {
		handlers := d.ListHandlers(typ)
		if len(handlers) != 1 || handlers[0].Name != "notification-outbox" {
			t.Errorf("expected outbox handler on %s, got %v", typ, handlers)
		}
	}
}
