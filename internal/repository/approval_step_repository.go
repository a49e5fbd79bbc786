package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/brightops/be-ops-approvals/internal/platform/database"
	"github.com/brightops/be-ops-approvals/internal/platform/errors"
)

// ApprovalStepRepository manages a document's sequential approval chain.
// Chain replacement is always delete-then-insert in a single transaction so
// a re-assignment never leaves a union of old and new steps.
type ApprovalStepRepository struct {
	db *database.DB
}

// NewApprovalStepRepository creates a new ApprovalStepRepository.
func NewApprovalStepRepository(db *database.DB) *ApprovalStepRepository {
	return &ApprovalStepRepository{db: db}
}

// ReplaceForDocument deletes any existing steps for the document and inserts
// the new chain atomically. An empty steps slice just clears the chain.
func (r *ApprovalStepRepository) ReplaceForDocument(ctx context.Context, documentID string, steps []*ApprovalStep) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		deleteQuery := `
			DELETE FROM document_approval_steps
			WHERE document_id = $1
		`
		if _, err := tx.Exec(ctx, deleteQuery, documentID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear approval steps")
		}

		insertQuery := `
			INSERT INTO document_approval_steps
			    (document_id, tenant_id, step_index,
			     approver_user_id, rule_id, status)
			VALUES ($1, $2, $3,
			        $4, $5, $6)
			RETURNING id, created_at, updated_at
		`

		for _, step := range steps {
			step.DocumentID = documentID
			err := tx.QueryRow(ctx, insertQuery,
				step.DocumentID,
				step.TenantID,
				step.StepIndex,
				step.ApproverUserID,
				step.RuleID,
				step.Status,
			).Scan(&step.ID, &step.CreatedAt, &step.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert approval step")
			}
		}

		return nil
	})
}

// DeleteForDocument removes all steps for a document.
func (r *ApprovalStepRepository) DeleteForDocument(ctx context.Context, documentID string) error {
	query := `
		DELETE FROM document_approval_steps
		WHERE document_id = $1
	`
	_, err := r.db.Exec(ctx, query, documentID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approval steps")
	}
	return nil
}

// GetByDocumentID returns the chain for a document ordered by step index.
func (r *ApprovalStepRepository) GetByDocumentID(ctx context.Context, documentID string) ([]*ApprovalStep, error) {
	query := `
		SELECT id, document_id, tenant_id, step_index,
		       approver_user_id, rule_id, status,
		       acted_at, action_notes,
		       created_at, updated_at
		FROM document_approval_steps
		WHERE document_id = $1
		ORDER BY step_index ASC
	`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval steps")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetStep returns one step of a document's chain by index.
func (r *ApprovalStepRepository) GetStep(ctx context.Context, documentID string, stepIndex int) (*ApprovalStep, error) {
	query := `
		SELECT id, document_id, tenant_id, step_index,
		       approver_user_id, rule_id, status,
		       acted_at, action_notes,
		       created_at, updated_at
		FROM document_approval_steps
		WHERE document_id = $1 AND step_index = $2
	`

	step, err := r.scanStep(r.db.QueryRow(ctx, query, documentID, stepIndex))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_step", documentID)
	}
	return step, err
}

// GetPendingForUser returns all pending steps awaiting a user within a
// tenant, earliest chain position first.
func (r *ApprovalStepRepository) GetPendingForUser(ctx context.Context, tenantID, userID string) ([]*ApprovalStep, error) {
	query := `
		SELECT id, document_id, tenant_id, step_index,
		       approver_user_id, rule_id, status,
		       acted_at, action_notes,
		       created_at, updated_at
		FROM document_approval_steps
		WHERE tenant_id = $1
		  AND approver_user_id = $2
		  AND status = 'pending'
		ORDER BY created_at ASC, step_index ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending steps")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// UpdateStepAction records the outcome of an approval action on a step. The
// pending-status guard is part of the statement so a raced second action
// fails instead of overwriting the first.
func (r *ApprovalStepRepository) UpdateStepAction(ctx context.Context, id, status string, notes *string) error {
	query := `
		UPDATE document_approval_steps
		SET status       = $2,
		    acted_at     = NOW(),
		    action_notes = $3,
		    updated_at   = NOW()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status, notes).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.Conflict("step not found or not in pending status")
	}
	return err
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type stepScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalStepRepository) scanStep(row stepScanner) (*ApprovalStep, error) {
	s := &ApprovalStep{}
	err := row.Scan(
		&s.ID,
		&s.DocumentID,
		&s.TenantID,
		&s.StepIndex,
		&s.ApproverUserID,
		&s.RuleID,
		&s.Status,
		&s.ActedAt,
		&s.ActionNotes,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *ApprovalStepRepository) scanRows(rows pgx.Rows) ([]*ApprovalStep, error) {
	var steps []*ApprovalStep
	for rows.Next() {
		s, err := r.scanStep(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval step")
		}
		steps = append(steps, s)
	}
	return steps, nil
}
