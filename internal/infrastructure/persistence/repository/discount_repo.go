package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/domain/entity"
	"github.com/edusuite/school-billing/internal/infrastructure/persistence/sqlite"
)

// DiscountRepository implements port.DiscountRepository
type DiscountRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDiscountRepository creates a new discount repository
func NewDiscountRepository(db *sqlite.DB, logger *zap.Logger) port.DiscountRepository {
	return &DiscountRepository{
		db:     db,
		logger: logger,
	}
}

const discountColumns = `id, label, percentage, fixed_amount, start_date, end_date,
	active, cumulable, created_at`

// Create inserts a new discount rule along with its student target set
func (r *DiscountRepository) Create(ctx context.Context, d *entity.Discount) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		query := `
			INSERT INTO discounts (
				label, percentage, fixed_amount, start_date, end_date,
				active, cumulable, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`

		result, err := r.db.Executor(txCtx).ExecContext(txCtx, query,
			d.Label,
			d.Percentage.String(),
			d.FixedAmount.String(),
			d.StartDate,
			d.EndDate,
			boolToInt(d.Active),
			boolToInt(d.Cumulable),
			d.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create discount", zap.Error(err))
			return fmt.Errorf("failed to create discount: %w", sqlite.MapError(err))
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		d.ID = id

		for _, studentID := range d.StudentIDs {
			_, err := r.db.Executor(txCtx).ExecContext(txCtx,
				`INSERT INTO discount_students (discount_id, student_id) VALUES (?, ?)`,
				d.ID, studentID)
			if err != nil {
				return fmt.Errorf("failed to create discount target: %w", sqlite.MapError(err))
			}
		}
		return nil
	})
}

// GetByID retrieves a discount rule by ID, including its target set
func (r *DiscountRepository) GetByID(ctx context.Context, id int64) (*entity.Discount, error) {
	query := `SELECT ` + discountColumns + ` FROM discounts WHERE id = ?`

	d, err := r.scanOne(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadTargets(ctx, []*entity.Discount{d}); err != nil {
		return nil, err
	}
	return d, nil
}

// GetByIDs retrieves multiple discount rules at once. Missing IDs are an
// error: a payment referencing an unknown rule must not silently skip it.
func (r *DiscountRepository) GetByIDs(ctx context.Context, ids []int64) ([]*entity.Discount, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := `SELECT ` + discountColumns + ` FROM discounts WHERE id IN (` + placeholders + `) ORDER BY id`

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list discounts: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	discounts, err := r.scanMany(rows)
	if err != nil {
		return nil, err
	}
	if len(discounts) != len(ids) {
		return nil, fmt.Errorf("discount: %w", entity.ErrNotFound)
	}
	if err := r.loadTargets(ctx, discounts); err != nil {
		return nil, err
	}
	return discounts, nil
}

// ListActive returns active discount rules whose window covers the date
func (r *DiscountRepository) ListActive(ctx context.Context, on time.Time) ([]*entity.Discount, error) {
	query := `SELECT ` + discountColumns + `
		FROM discounts
		WHERE active = 1
			AND (start_date IS NULL OR start_date <= ?)
			AND (end_date IS NULL OR end_date >= ?)
		ORDER BY id
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, on, on)
	if err != nil {
		return nil, fmt.Errorf("failed to list active discounts: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	discounts, err := r.scanMany(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadTargets(ctx, discounts); err != nil {
		return nil, err
	}
	return discounts, nil
}

func (r *DiscountRepository) loadTargets(ctx context.Context, discounts []*entity.Discount) error {
	for _, d := range discounts {
		rows, err := r.db.Executor(ctx).QueryContext(ctx,
			`SELECT student_id FROM discount_students WHERE discount_id = ? ORDER BY student_id`, d.ID)
		if err != nil {
			return fmt.Errorf("failed to load discount targets: %w", sqlite.MapError(err))
		}

		var targets []string
		for rows.Next() {
			var studentID string
			if err := rows.Scan(&studentID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan discount target: %w", err)
			}
			targets = append(targets, studentID)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		d.StudentIDs = targets
	}
	return nil
}

func (r *DiscountRepository) scanOne(row rowScanner) (*entity.Discount, error) {
	var d entity.Discount
	var percentage, fixedAmount string
	var startDate, endDate sql.NullTime
	var active, cumulable int

	err := row.Scan(
		&d.ID,
		&d.Label,
		&percentage,
		&fixedAmount,
		&startDate,
		&endDate,
		&active,
		&cumulable,
		&d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("discount: %w", entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to scan discount", zap.Error(err))
		return nil, fmt.Errorf("failed to scan discount: %w", err)
	}

	if d.Percentage, err = parseAmount(percentage); err != nil {
		return nil, err
	}
	if d.FixedAmount, err = parseAmount(fixedAmount); err != nil {
		return nil, err
	}
	if startDate.Valid {
		d.StartDate = &startDate.Time
	}
	if endDate.Valid {
		d.EndDate = &endDate.Time
	}
	d.Active = active != 0
	d.Cumulable = cumulable != 0
	return &d, nil
}

func (r *DiscountRepository) scanMany(rows *sql.Rows) ([]*entity.Discount, error) {
	var discounts []*entity.Discount
	for rows.Next() {
		d, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}
	return discounts, rows.Err()
}
