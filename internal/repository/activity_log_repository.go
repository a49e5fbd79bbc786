package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/brightops/be-ops-approvals/internal/platform/database"
	"github.com/brightops/be-ops-approvals/internal/platform/errors"
)

// ActivityLogRepository appends and reads immutable activity records. Append
// is the only mutation; entries are never updated or deleted.
type ActivityLogRepository struct {
	db *database.DB
}

// NewActivityLogRepository creates a new ActivityLogRepository.
func NewActivityLogRepository(db *database.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Append inserts one activity entry.
func (r *ActivityLogRepository) Append(ctx context.Context, entry *ActivityEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal activity metadata")
		}
	}

	query := `
		INSERT INTO document_activity_log
		    (document_id, activity_type, message, actor_user_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	return r.db.QueryRow(ctx, query,
		entry.DocumentID,
		entry.ActivityType,
		entry.Message,
		entry.ActorUserID,
		metadataJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
}

// GetByDocumentID returns the activity trail for a document oldest-first.
func (r *ActivityLogRepository) GetByDocumentID(ctx context.Context, documentID string) ([]*ActivityEntry, error) {
	query := `
		SELECT id, document_id, activity_type, message, actor_user_id,
		       metadata, created_at
		FROM document_activity_log
		WHERE document_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get activity log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func (r *ActivityLogRepository) scanRows(rows pgx.Rows) ([]*ActivityEntry, error) {
	var entries []*ActivityEntry
	for rows.Next() {
		entry := &ActivityEntry{}
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.DocumentID,
			&entry.ActivityType,
			&entry.Message,
			&entry.ActorUserID,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan activity entry")
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal activity metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
