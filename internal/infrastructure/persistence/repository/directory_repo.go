package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/domain/entity"
	"github.com/edusuite/school-billing/internal/infrastructure/persistence/sqlite"
)

// DirectoryRepository resolves student and payer references against the
// local mirror tables. A deployment fronted by a separate enrollment
// service would swap this for a client of that service; the ports are the
// same either way.
type DirectoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *sqlite.DB, logger *zap.Logger) *DirectoryRepository {
	return &DirectoryRepository{
		db:     db,
		logger: logger,
	}
}

// GetStudent resolves a student reference
func (r *DirectoryRepository) GetStudent(ctx context.Context, id string) (*entity.Student, error) {
	var s entity.Student
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id, name, class_id FROM students WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &s.ClassID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to resolve student", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to resolve student: %w", sqlite.MapError(err))
	}
	return &s, nil
}

// GetPayer resolves a payer reference
func (r *DirectoryRepository) GetPayer(ctx context.Context, id string) (*entity.Payer, error) {
	var p entity.Payer
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id, name, contact FROM payers WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Contact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payer %s: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to resolve payer", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to resolve payer: %w", sqlite.MapError(err))
	}
	return &p, nil
}

// UpsertStudent inserts or refreshes a student mirror row
func (r *DirectoryRepository) UpsertStudent(ctx context.Context, s *entity.Student) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO students (id, name, class_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, class_id = excluded.class_id
	`, s.ID, s.Name, s.ClassID)
	if err != nil {
		return fmt.Errorf("failed to upsert student: %w", sqlite.MapError(err))
	}
	return nil
}

// UpsertPayer inserts or refreshes a payer mirror row
func (r *DirectoryRepository) UpsertPayer(ctx context.Context, p *entity.Payer) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO payers (id, name, contact) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, contact = excluded.contact
	`, p.ID, p.Name, p.Contact)
	if err != nil {
		return fmt.Errorf("failed to upsert payer: %w", sqlite.MapError(err))
	}
	return nil
}
