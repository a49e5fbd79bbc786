package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/brightops/be-ops-approvals/internal/platform/database"
	"github.com/brightops/be-ops-approvals/internal/platform/errors"
)

// SequenceRepository issues per-(entity_type, scope_id) counter values.
//
// The increment is a single INSERT ... ON CONFLICT ... DO UPDATE ...
// RETURNING statement so that concurrent callers are serialized by the row
// lock inside postgres. There is deliberately no read-then-write path: if
// the atomic statement fails the allocation fails.
type SequenceRepository struct {
	db *database.DB
}

// NewSequenceRepository creates a new SequenceRepository.
func NewSequenceRepository(db *database.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// NextValue atomically increments and returns the counter for a key,
// creating the row seeded at 1 on first use.
func (r *SequenceRepository) NextValue(ctx context.Context, entityType, scopeID string) (int64, error) {
	query := `
		INSERT INTO document_sequences (entity_type, scope_id, current_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (entity_type, scope_id)
		DO UPDATE SET current_value = document_sequences.current_value + 1,
		              updated_at    = NOW()
		RETURNING current_value
	`

	var value int64
	if err := r.db.QueryRow(ctx, query, entityType, scopeID).Scan(&value); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "atomic sequence increment failed")
	}
	return value, nil
}

// CurrentValue returns the last issued value for a key without incrementing,
// or 0 when no allocation has happened yet.
func (r *SequenceRepository) CurrentValue(ctx context.Context, entityType, scopeID string) (int64, error) {
	query := `
		SELECT current_value
		FROM document_sequences
		WHERE entity_type = $1 AND scope_id = $2
	`

	var value int64
	err := r.db.QueryRow(ctx, query, entityType, scopeID).Scan(&value)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to read sequence value")
	}
	return value, nil
}
