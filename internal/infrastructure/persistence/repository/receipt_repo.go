package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/domain/entity"
	"github.com/edusuite/school-billing/internal/infrastructure/persistence/sqlite"
)

// ReceiptRepository implements port.ReceiptRepository. Receipts are
// insert-only; there is no update path.
type ReceiptRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *sqlite.DB, logger *zap.Logger) port.ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

const receiptColumns = `id, reference, payment_id, payment_reference, invoice_reference,
	amount, currency, payer_id, payer_name, student_name, issued_by, issued_at,
	verification_token, checksum`

// Create inserts a receipt. The UNIQUE payment_id constraint makes a second
// insert for the same payment fail even if two issuers race.
func (r *ReceiptRepository) Create(ctx context.Context, rec *entity.Receipt) error {
	query := `
		INSERT INTO receipts (
			reference, payment_id, payment_reference, invoice_reference,
			amount, currency, payer_id, payer_name, student_name,
			issued_by, issued_at, verification_token, checksum
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		rec.Reference,
		rec.PaymentID,
		rec.PaymentReference,
		rec.InvoiceReference,
		rec.Amount.String(),
		rec.Currency,
		rec.PayerID,
		rec.PayerName,
		rec.StudentName,
		rec.IssuedBy,
		rec.IssuedAt,
		rec.VerificationToken,
		rec.Checksum,
	)
	if err != nil {
		r.logger.Error("Failed to create receipt", zap.Int64("payment_id", rec.PaymentID), zap.Error(err))
		return fmt.Errorf("failed to create receipt: %w", sqlite.MapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// GetByPaymentID retrieves the receipt issued for a payment
func (r *ReceiptRepository) GetByPaymentID(ctx context.Context, paymentID int64) (*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE payment_id = ?`
	return r.scanOne(r.db.Executor(ctx).QueryRowContext(ctx, query, paymentID))
}

// GetByReference retrieves a receipt by its reference number
func (r *ReceiptRepository) GetByReference(ctx context.Context, ref string) (*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE reference = ?`
	return r.scanOne(r.db.Executor(ctx).QueryRowContext(ctx, query, ref))
}

func (r *ReceiptRepository) scanOne(row rowScanner) (*entity.Receipt, error) {
	var rec entity.Receipt
	var amount string

	err := row.Scan(
		&rec.ID,
		&rec.Reference,
		&rec.PaymentID,
		&rec.PaymentReference,
		&rec.InvoiceReference,
		&amount,
		&rec.Currency,
		&rec.PayerID,
		&rec.PayerName,
		&rec.StudentName,
		&rec.IssuedBy,
		&rec.IssuedAt,
		&rec.VerificationToken,
		&rec.Checksum,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt: %w", entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to scan receipt", zap.Error(err))
		return nil, fmt.Errorf("failed to scan receipt: %w", err)
	}

	if rec.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	return &rec, nil
}
