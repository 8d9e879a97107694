package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/domain/entity"
	"github.com/edusuite/school-billing/internal/infrastructure/persistence/sqlite"
)

// WaiverRepository implements port.WaiverRepository
type WaiverRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewWaiverRepository creates a new waiver repository
func NewWaiverRepository(db *sqlite.DB, logger *zap.Logger) port.WaiverRepository {
	return &WaiverRepository{
		db:     db,
		logger: logger,
	}
}

const waiverColumns = `id, invoice_id, student_id, kind, reason, requested_amount,
	granted_amount, new_due_date, status, decision_reason, decided_by, decided_at,
	expires_at, created_at`

// Create inserts a new waiver request in PENDING
func (r *WaiverRepository) Create(ctx context.Context, w *entity.Waiver) error {
	query := `
		INSERT INTO waivers (
			invoice_id, student_id, kind, reason, requested_amount,
			granted_amount, new_due_date, status, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		w.InvoiceID,
		w.StudentID,
		string(w.Kind),
		w.Reason,
		w.RequestedAmount.String(),
		w.GrantedAmount.String(),
		w.NewDueDate,
		w.Status.String(),
		w.ExpiresAt,
		w.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create waiver", zap.Error(err))
		return fmt.Errorf("failed to create waiver: %w", sqlite.MapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	w.ID = id
	return nil
}

// GetByID retrieves a waiver by ID
func (r *WaiverRepository) GetByID(ctx context.Context, id int64) (*entity.Waiver, error) {
	query := `SELECT ` + waiverColumns + ` FROM waivers WHERE id = ?`
	return r.scanOne(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
}

// UpdateDecision records the outcome of a waiver. The WHERE clause pins
// status = PENDING so a decision can only land once; false means another
// decision (or the expiry sweep) got there first.
func (r *WaiverRepository) UpdateDecision(ctx context.Context, w *entity.Waiver) (bool, error) {
	query := `
		UPDATE waivers
		SET status = ?, granted_amount = ?, new_due_date = ?,
			decision_reason = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND status = 'PENDING'
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		w.Status.String(),
		w.GrantedAmount.String(),
		w.NewDueDate,
		w.DecisionReason,
		w.DecidedBy,
		w.DecidedAt,
		w.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update waiver decision", zap.Int64("id", w.ID), zap.Error(err))
		return false, fmt.Errorf("failed to update waiver decision: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListPendingExpired returns pending waivers whose expiry date has passed,
// for the expiry sweep
func (r *WaiverRepository) ListPendingExpired(ctx context.Context, asOf time.Time, limit int) ([]*entity.Waiver, error) {
	query := `SELECT ` + waiverColumns + `
		FROM waivers
		WHERE status = 'PENDING' AND expires_at < ?
		ORDER BY expires_at
		LIMIT ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired waivers: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	return r.scanMany(rows)
}

// ListByInvoice returns all waivers filed against an invoice
func (r *WaiverRepository) ListByInvoice(ctx context.Context, invoiceID int64) ([]*entity.Waiver, error) {
	query := `SELECT ` + waiverColumns + ` FROM waivers WHERE invoice_id = ? ORDER BY id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list waivers: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	return r.scanMany(rows)
}

func (r *WaiverRepository) scanOne(row rowScanner) (*entity.Waiver, error) {
	var w entity.Waiver
	var kind, status, requested, granted string
	var newDueDate, decidedAt sql.NullTime

	err := row.Scan(
		&w.ID,
		&w.InvoiceID,
		&w.StudentID,
		&kind,
		&w.Reason,
		&requested,
		&granted,
		&newDueDate,
		&status,
		&w.DecisionReason,
		&w.DecidedBy,
		&decidedAt,
		&w.ExpiresAt,
		&w.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("waiver: %w", entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to scan waiver", zap.Error(err))
		return nil, fmt.Errorf("failed to scan waiver: %w", err)
	}

	if w.Kind, err = entity.ParseWaiverKind(kind); err != nil {
		return nil, err
	}
	if w.Status, err = entity.ParseWaiverStatus(status); err != nil {
		return nil, err
	}
	if w.RequestedAmount, err = parseAmount(requested); err != nil {
		return nil, err
	}
	if w.GrantedAmount, err = parseAmount(granted); err != nil {
		return nil, err
	}
	if newDueDate.Valid {
		w.NewDueDate = &newDueDate.Time
	}
	if decidedAt.Valid {
		w.DecidedAt = &decidedAt.Time
	}
	return &w, nil
}

func (r *WaiverRepository) scanMany(rows *sql.Rows) ([]*entity.Waiver, error) {
	var waivers []*entity.Waiver
	for rows.Next() {
		w, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		waivers = append(waivers, w)
	}
	return waivers, rows.Err()
}
