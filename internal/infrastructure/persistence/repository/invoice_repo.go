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

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sqlite.DB, logger *zap.Logger) port.InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

const invoiceColumns = `id, reference, student_id, issue_date, due_date, currency,
	amount_total, amount_paid, status, version, created_at, updated_at`

// Create inserts a new invoice row
func (r *InvoiceRepository) Create(ctx context.Context, inv *entity.Invoice) error {
	query := `
		INSERT INTO invoices (
			reference, student_id, issue_date, due_date, currency,
			amount_total, amount_paid, status, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		inv.Reference,
		inv.StudentID,
		inv.IssueDate,
		inv.DueDate,
		inv.Currency,
		inv.Total.String(),
		inv.Paid.String(),
		inv.Status.String(),
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", sqlite.MapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	inv.ID = id
	return nil
}

// GetByID retrieves an invoice by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`
	return r.scanOne(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
}

// GetByReference retrieves an invoice by its reference number
func (r *InvoiceRepository) GetByReference(ctx context.Context, ref string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE reference = ?`
	return r.scanOne(r.db.Executor(ctx).QueryRowContext(ctx, query, ref))
}

// UpdateAmounts writes amounts and status guarded by the version column.
// A false return means the expected version lost against a concurrent
// writer and the caller must reload before retrying.
func (r *InvoiceRepository) UpdateAmounts(ctx context.Context, id int64, paid, total decimal.Decimal, status entity.InvoiceStatus, expectedVersion int64) (bool, error) {
	query := `
		UPDATE invoices
		SET amount_paid = ?, amount_total = ?, status = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		paid.String(), total.String(), status.String(), id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to update invoice amounts", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to update invoice amounts: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// UpdateStatus writes the status guarded by the version column
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id int64, status entity.InvoiceStatus, expectedVersion int64) (bool, error) {
	query := `
		UPDATE invoices
		SET status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, status.String(), id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to update invoice status", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to update invoice status: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// UpdateDueDate writes the due date guarded by the version column
func (r *InvoiceRepository) UpdateDueDate(ctx context.Context, id int64, dueDate time.Time, expectedVersion int64) (bool, error) {
	query := `
		UPDATE invoices
		SET due_date = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, dueDate, id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to update invoice due date", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to update invoice due date: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// AddLine inserts an invoice line
func (r *InvoiceRepository) AddLine(ctx context.Context, line *entity.Line) error {
	query := `
		INSERT INTO invoice_lines (
			invoice_id, description, unit_amount, quantity, discount,
			tax_rate, total, adjustment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		line.InvoiceID,
		line.Description,
		line.UnitAmount.String(),
		line.Quantity,
		line.Discount.String(),
		line.TaxRate.String(),
		line.Total.String(),
		boolToInt(line.Adjustment),
		line.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to add invoice line", zap.Int64("invoice_id", line.InvoiceID), zap.Error(err))
		return fmt.Errorf("failed to add invoice line: %w", sqlite.MapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	line.ID = id
	return nil
}

// GetLines retrieves all lines of an invoice in insertion order
func (r *InvoiceRepository) GetLines(ctx context.Context, invoiceID int64) ([]entity.Line, error) {
	query := `
		SELECT id, invoice_id, description, unit_amount, quantity, discount,
			tax_rate, total, adjustment, created_at
		FROM invoice_lines
		WHERE invoice_id = ?
		ORDER BY id
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice lines: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	var lines []entity.Line
	for rows.Next() {
		var line entity.Line
		var unitAmount, discount, taxRate, total string
		var adjustment int

		if err := rows.Scan(
			&line.ID,
			&line.InvoiceID,
			&line.Description,
			&unitAmount,
			&line.Quantity,
			&discount,
			&taxRate,
			&total,
			&adjustment,
			&line.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}

		if line.UnitAmount, err = parseAmount(unitAmount); err != nil {
			return nil, err
		}
		if line.Discount, err = parseAmount(discount); err != nil {
			return nil, err
		}
		if line.TaxRate, err = parseAmount(taxRate); err != nil {
			return nil, err
		}
		if line.Total, err = parseAmount(total); err != nil {
			return nil, err
		}
		line.Adjustment = adjustment != 0
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListOverdue returns non-terminal invoices past their due date that still
// owe money
func (r *InvoiceRepository) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status IN ('ISSUED', 'PARTIALLY_PAID') AND due_date < ?
		ORDER BY due_date
		LIMIT ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue invoices: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	return r.scanMany(rows)
}

// ListByStudent returns a student's invoices, newest first
func (r *InvoiceRepository) ListByStudent(ctx context.Context, studentID string, limit, offset int) ([]*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE student_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, studentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices by student: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	return r.scanMany(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *InvoiceRepository) scanOne(row rowScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	var total, paid, status string

	err := row.Scan(
		&inv.ID,
		&inv.Reference,
		&inv.StudentID,
		&inv.IssueDate,
		&inv.DueDate,
		&inv.Currency,
		&total,
		&paid,
		&status,
		&inv.Version,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice: %w", entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to scan invoice", zap.Error(err))
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}

	if inv.Total, err = parseAmount(total); err != nil {
		return nil, err
	}
	if inv.Paid, err = parseAmount(paid); err != nil {
		return nil, err
	}
	if inv.Status, err = entity.ParseInvoiceStatus(status); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvoiceRepository) scanMany(rows *sql.Rows) ([]*entity.Invoice, error) {
	var invoices []*entity.Invoice
	for rows.Next() {
		inv, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
