package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edusuite/school-billing/internal/domain/entity"
)

// InvoiceRepository defines persistence operations for Invoice
type InvoiceRepository interface {
	Create(ctx context.Context, inv *entity.Invoice) error
	GetByID(ctx context.Context, id int64) (*entity.Invoice, error)
	GetByReference(ctx context.Context, ref string) (*entity.Invoice, error)

	// UpdateAmounts writes amounts and status with an optimistic version
	// check. Returns false (and no error) when the expected version lost
	// against a concurrent writer; the caller reloads and retries.
	UpdateAmounts(ctx context.Context, id int64, paid, total decimal.Decimal, status entity.InvoiceStatus, expectedVersion int64) (bool, error)

	UpdateStatus(ctx context.Context, id int64, status entity.InvoiceStatus, expectedVersion int64) (bool, error)
	UpdateDueDate(ctx context.Context, id int64, dueDate time.Time, expectedVersion int64) (bool, error)
	AddLine(ctx context.Context, line *entity.Line) error
	GetLines(ctx context.Context, invoiceID int64) ([]entity.Line, error)
	ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*entity.Invoice, error)
	ListByStudent(ctx context.Context, studentID string, limit, offset int) ([]*entity.Invoice, error)
}

// PaymentRepository defines persistence operations for Payment
type PaymentRepository interface {
	Create(ctx context.Context, p *entity.Payment) error
	GetByID(ctx context.Context, id int64) (*entity.Payment, error)
	GetByReference(ctx context.Context, ref string) (*entity.Payment, error)

	// UpdateStatus moves a payment between lifecycle states, guarded by the
	// expected current status so two concurrent validations cannot both win.
	UpdateStatus(ctx context.Context, id int64, from, to entity.PaymentStatus, validatedBy, cancelReason string, at time.Time) (bool, error)

	ListByInvoice(ctx context.Context, invoiceID int64) ([]*entity.Payment, error)
	SumValidatedByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	ListValidatedWithoutReceipt(ctx context.Context, limit int) ([]*entity.Payment, error)
}

// WaiverRepository defines persistence operations for Waiver
type WaiverRepository interface {
	Create(ctx context.Context, w *entity.Waiver) error
	GetByID(ctx context.Context, id int64) (*entity.Waiver, error)
	UpdateDecision(ctx context.Context, w *entity.Waiver) (bool, error)
	ListPendingExpired(ctx context.Context, asOf time.Time, limit int) ([]*entity.Waiver, error)
	ListByInvoice(ctx context.Context, invoiceID int64) ([]*entity.Waiver, error)
}

// DiscountRepository defines persistence operations for Discount
type DiscountRepository interface {
	Create(ctx context.Context, d *entity.Discount) error
	GetByID(ctx context.Context, id int64) (*entity.Discount, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*entity.Discount, error)
	ListActive(ctx context.Context, on time.Time) ([]*entity.Discount, error)
}

// ScholarshipRepository defines persistence operations for Scholarship
type ScholarshipRepository interface {
	Create(ctx context.Context, s *entity.Scholarship) error
	GetByID(ctx context.Context, id int64) (*entity.Scholarship, error)
	UpdateStatus(ctx context.Context, id int64, status entity.ScholarshipStatus) error
	ListByStudent(ctx context.Context, studentID string) ([]*entity.Scholarship, error)
}

// ReceiptRepository defines persistence operations for Receipt. Receipts
// are insert-only; there is deliberately no update method.
type ReceiptRepository interface {
	Create(ctx context.Context, r *entity.Receipt) error
	GetByPaymentID(ctx context.Context, paymentID int64) (*entity.Receipt, error)
	GetByReference(ctx context.Context, ref string) (*entity.Receipt, error)
}

// SequenceRepository hands out collision-free reference numbers per
// (document type, year). Next must be a single atomic increment-and-read;
// callers never invoke it more than once per document.
type SequenceRepository interface {
	Next(ctx context.Context, docType string, year int) (int64, error)
}

// NotificationRepository defines persistence operations for the
// notification outbox
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetPending(ctx context.Context, limit int) ([]*entity.Notification, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, attempts int, lastError string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	// WithTransaction executes fn within a transaction. The transaction is
	// committed if fn returns nil, rolled back otherwise. Nested calls
	// reuse the surrounding transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// InTransaction reports whether ctx already carries a transaction.
	// Retry loops must not re-run a unit of work inside a surrounding
	// transaction that has already observed the conflict.
	InTransaction(ctx context.Context) bool
}
