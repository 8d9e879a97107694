package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edusuite/school-billing/internal/application/port"
	"github.com/edusuite/school-billing/internal/domain/entity"
	"github.com/edusuite/school-billing/internal/infrastructure/persistence/sqlite"
)

// maxSequenceValue is the largest counter value the six digit reference
// format can carry.
const maxSequenceValue = 999999

// SequenceRepository implements port.SequenceRepository
type SequenceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *sqlite.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next atomically increments the counter for (docType, year) and returns
// the new value. The upsert makes allocation a single statement, so two
// concurrent callers can never observe the same value.
func (r *SequenceRepository) Next(ctx context.Context, docType string, year int) (int64, error) {
	query := `
		INSERT INTO sequences (doc_type, year, value) VALUES (?, ?, 1)
		ON CONFLICT(doc_type, year) DO UPDATE SET value = value + 1
		RETURNING value
	`

	var value int64
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, docType, year).Scan(&value)
	if err != nil {
		r.logger.Error("Failed to allocate sequence number",
			zap.String("doc_type", docType),
			zap.Int("year", year),
			zap.Error(err))
		return 0, fmt.Errorf("failed to allocate sequence number: %w", sqlite.MapError(err))
	}

	if value > maxSequenceValue {
		return 0, fmt.Errorf("%w: %s/%d counter reached %d", entity.ErrSequenceExhausted, docType, year, value)
	}
	return value, nil
}
