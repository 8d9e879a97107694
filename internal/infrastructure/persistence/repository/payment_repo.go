package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/domain/entity"
	"github.com/edusuite/school-billing/internal/infrastructure/persistence/sqlite"
)

// PaymentRepository implements port.PaymentRepository
type PaymentRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sqlite.DB, logger *zap.Logger) port.PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

const paymentColumns = `id, reference, invoice_id, payer_id, amount, method, status,
	validated_by, validated_at, cancelled_at, cancel_reason, created_at, updated_at`

// Create inserts a new payment row in PENDING
func (r *PaymentRepository) Create(ctx context.Context, p *entity.Payment) error {
	query := `
		INSERT INTO payments (
			reference, invoice_id, payer_id, amount, method, status,
			validated_by, cancel_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, '', '', ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		p.Reference,
		p.InvoiceID,
		p.PayerID,
		p.Amount.String(),
		p.Method.String(),
		p.Status.String(),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create payment", zap.Error(err))
		return fmt.Errorf("failed to create payment: %w", sqlite.MapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID retrieves a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	return r.scanOne(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
}

// GetByReference retrieves a payment by its reference number
func (r *PaymentRepository) GetByReference(ctx context.Context, ref string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = ?`
	return r.scanOne(r.db.Executor(ctx).QueryRowContext(ctx, query, ref))
}

// UpdateStatus moves a payment between lifecycle states. The WHERE clause
// pins the expected current status so two concurrent validations cannot
// both succeed; false means the guard lost.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id int64, from, to entity.PaymentStatus, validatedBy, cancelReason string, at time.Time) (bool, error) {
	var query string
	switch to {
	case entity.PaymentStatusValidated:
		query = `
			UPDATE payments
			SET status = ?, validated_by = ?, validated_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`
	case entity.PaymentStatusCancelled:
		query = `
			UPDATE payments
			SET status = ?, cancel_reason = ?, cancelled_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`
	default:
		return false, fmt.Errorf("%w: unsupported payment transition to %s", entity.ErrValidation, to)
	}

	detail := validatedBy
	if to == entity.PaymentStatusCancelled {
		detail = cancelReason
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, to.String(), detail, at, id, from.String())
	if err != nil {
		r.logger.Error("Failed to update payment status", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to update payment status: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListByInvoice returns all payments recorded against an invoice,
// oldest first
func (r *PaymentRepository) ListByInvoice(ctx context.Context, invoiceID int64) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = ? ORDER BY id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	return r.scanMany(rows)
}

// SumValidatedByInvoice sums the amounts of payments currently VALIDATED.
// Used by invariant checks: the sum must equal the invoice's amount_paid.
func (r *PaymentRepository) SumValidatedByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	query := `SELECT amount FROM payments WHERE invoice_id = ? AND status = 'VALIDATED'`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, invoiceID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum validated payments: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	// Summed in Go so the addition stays exact decimal arithmetic.
	sum := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan payment amount: %w", err)
		}
		d, err := parseAmount(amount)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(d)
	}
	return sum, rows.Err()
}

// ListValidatedWithoutReceipt returns validated payments whose receipt has
// not been issued yet, for the backfill worker
func (r *PaymentRepository) ListValidatedWithoutReceipt(ctx context.Context, limit int) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments p
		WHERE p.status = 'VALIDATED'
			AND NOT EXISTS (SELECT 1 FROM receipts r WHERE r.payment_id = p.id)
		ORDER BY p.validated_at
		LIMIT ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments without receipt: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	return r.scanMany(rows)
}

func (r *PaymentRepository) scanOne(row rowScanner) (*entity.Payment, error) {
	var p entity.Payment
	var amount, method, status string
	var validatedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.Reference,
		&p.InvoiceID,
		&p.PayerID,
		&amount,
		&method,
		&status,
		&p.ValidatedBy,
		&validatedAt,
		&cancelledAt,
		&p.CancelReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment: %w", entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to scan payment", zap.Error(err))
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	if p.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	if p.Method, err = entity.ParsePaymentMethod(method); err != nil {
		return nil, err
	}
	if p.Status, err = entity.ParsePaymentStatus(status); err != nil {
		return nil, err
	}
	if validatedAt.Valid {
		p.ValidatedAt = &validatedAt.Time
	}
	if cancelledAt.Valid {
		p.CancelledAt = &cancelledAt.Time
	}
	return &p, nil
}

func (r *PaymentRepository) scanMany(rows *sql.Rows) ([]*entity.Payment, error) {
	var payments []*entity.Payment
	for rows.Next() {
		p, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
