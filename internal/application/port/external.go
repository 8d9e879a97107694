package port

import (
	"context"

	"github.com/edusuite/school-billing/internal/domain/entity"
)

// StudentDirectory resolves the narrow student reference the billing core
// needs. Enrollment CRUD lives outside this service.
type StudentDirectory interface {
	GetStudent(ctx context.Context, id string) (*entity.Student, error)
}

// PayerDirectory resolves guardian/payer references.
type PayerDirectory interface {
	GetPayer(ctx context.Context, id string) (*entity.Payer, error)
}

// NotificationSink delivers a notification to the outside world. Delivery
// is fire-and-forget from the ledger's point of view: failures are retried
// by the outbox worker, never propagated into a financial transaction.
type NotificationSink interface {
	Deliver(ctx context.Context, n *entity.Notification) error
}

// ReceiptRenderer produces the downloadable receipt artifact.
type ReceiptRenderer interface {
	Render(receipt *entity.Receipt) ([]byte, error)
}
