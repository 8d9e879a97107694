package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/domain/entity"
	"github.com/edusuite/school-billing/internal/infrastructure/persistence/sqlite"
)

// NotificationRepository implements port.NotificationRepository over the
// outbox table
type NotificationRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqlite.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a pending outbox row
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			event_type, invoice_id, recipient, payload, status, attempts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		n.EventType,
		n.InvoiceID,
		n.Recipient,
		n.Payload,
		n.Status,
		n.Attempts,
		n.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification", zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", sqlite.MapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	return nil
}

// GetPending returns undelivered outbox rows, oldest first
func (r *NotificationRepository) GetPending(ctx context.Context, limit int) ([]*entity.Notification, error) {
	query := `
		SELECT id, event_type, invoice_id, recipient, payload, status,
			attempts, last_error, delivered_at, created_at
		FROM notifications
		WHERE status = 'PENDING'
		ORDER BY created_at
		LIMIT ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending notifications: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	var notifications []*entity.Notification
	for rows.Next() {
		var n entity.Notification
		var deliveredAt sql.NullTime
		err := rows.Scan(
			&n.ID,
			&n.EventType,
			&n.InvoiceID,
			&n.Recipient,
			&n.Payload,
			&n.Status,
			&n.Attempts,
			&n.LastError,
			&deliveredAt,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if deliveredAt.Valid {
			n.DeliveredAt = &deliveredAt.Time
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// MarkSent records a successful delivery
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE notifications SET status = 'SENT', delivered_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", sqlite.MapError(err))
	}
	return r.checkAffected(result)
}

// MarkFailed records a delivery attempt that did not succeed. The worker
// keeps the row PENDING until the attempt budget runs out, then parks it
// as FAILED.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, attempts int, lastError string) error {
	status := entity.NotificationStatusPending
	if attempts >= maxDeliveryAttempts {
		status = entity.NotificationStatusFailed
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE notifications SET status = ?, attempts = ?, last_error = ? WHERE id = ?`,
		status, attempts, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", sqlite.MapError(err))
	}
	return r.checkAffected(result)
}

// maxDeliveryAttempts bounds how often the delivery worker retries a row.
const maxDeliveryAttempts = 5

func (r *NotificationRepository) checkAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification: %w", entity.ErrNotFound)
	}
	return nil
}
