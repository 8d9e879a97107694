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

// ScholarshipRepository implements port.ScholarshipRepository
type ScholarshipRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewScholarshipRepository creates a new scholarship repository
func NewScholarshipRepository(db *sqlite.DB, logger *zap.Logger) port.ScholarshipRepository {
	return &ScholarshipRepository{
		db:     db,
		logger: logger,
	}
}

const scholarshipColumns = `id, student_id, label, percentage, fixed_amount,
	start_date, end_date, status, created_at`

// Create inserts a new scholarship award
func (r *ScholarshipRepository) Create(ctx context.Context, s *entity.Scholarship) error {
	query := `
		INSERT INTO scholarships (
			student_id, label, percentage, fixed_amount,
			start_date, end_date, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		s.StudentID,
		s.Label,
		s.Percentage.String(),
		s.FixedAmount.String(),
		s.StartDate,
		s.EndDate,
		s.Status.String(),
		s.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create scholarship", zap.Error(err))
		return fmt.Errorf("failed to create scholarship: %w", sqlite.MapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	s.ID = id
	return nil
}

// GetByID retrieves a scholarship by ID
func (r *ScholarshipRepository) GetByID(ctx context.Context, id int64) (*entity.Scholarship, error) {
	query := `SELECT ` + scholarshipColumns + ` FROM scholarships WHERE id = ?`
	return r.scanOne(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
}

// UpdateStatus changes a scholarship's own lifecycle status
func (r *ScholarshipRepository) UpdateStatus(ctx context.Context, id int64, status entity.ScholarshipStatus) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE scholarships SET status = ? WHERE id = ?`, status.String(), id)
	if err != nil {
		r.logger.Error("Failed to update scholarship status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update scholarship status: %w", sqlite.MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("scholarship: %w", entity.ErrNotFound)
	}
	return nil
}

// ListByStudent returns all scholarships awarded to a student
func (r *ScholarshipRepository) ListByStudent(ctx context.Context, studentID string) ([]*entity.Scholarship, error) {
	query := `SELECT ` + scholarshipColumns + ` FROM scholarships WHERE student_id = ? ORDER BY id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scholarships: %w", sqlite.MapError(err))
	}
	defer rows.Close()

	var scholarships []*entity.Scholarship
	for rows.Next() {
		s, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		scholarships = append(scholarships, s)
	}
	return scholarships, rows.Err()
}

func (r *ScholarshipRepository) scanOne(row rowScanner) (*entity.Scholarship, error) {
	var s entity.Scholarship
	var percentage, fixedAmount, status string
	var startDate, endDate sql.NullTime

	err := row.Scan(
		&s.ID,
		&s.StudentID,
		&s.Label,
		&percentage,
		&fixedAmount,
		&startDate,
		&endDate,
		&status,
		&s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scholarship: %w", entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to scan scholarship", zap.Error(err))
		return nil, fmt.Errorf("failed to scan scholarship: %w", err)
	}

	if s.Percentage, err = parseAmount(percentage); err != nil {
		return nil, err
	}
	if s.FixedAmount, err = parseAmount(fixedAmount); err != nil {
		return nil, err
	}
	if s.Status, err = entity.ParseScholarshipStatus(status); err != nil {
		return nil, err
	}
	if startDate.Valid {
		s.StartDate = &startDate.Time
	}
	if endDate.Valid {
		s.EndDate = &endDate.Time
	}
	return &s, nil
}
