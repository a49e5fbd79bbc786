package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/brightops/be-ops-approvals/internal/platform/database"
	"github.com/brightops/be-ops-approvals/internal/platform/errors"
)

// CapexRepository persists threshold-approval requests.
//
// All mutations of the approval state go through WithLock, which serializes
// concurrent approvers on the same request via SELECT ... FOR UPDATE. The
// duplicate-approver check and the final status flip therefore happen under
// one row lock, so two approvals arriving at the threshold simultaneously
// cannot both observe the pre-transition state.
type CapexRepository struct {
	db *database.DB
}

// NewCapexRepository creates a new CapexRepository.
func NewCapexRepository(db *database.DB) *CapexRepository {
	return &CapexRepository{db: db}
}

const capexColumns = `
	id, tenant_id, capex_number, title, total_amount, status,
	approvals, approvals_required,
	approved_by, approved_at, rejected_reason,
	created_by, created_at, updated_at
`

// Create inserts a new request in draft state.
func (r *CapexRepository) Create(ctx context.Context, req *CapexRequest) error {
	approvalsJSON, err := json.Marshal(req.Approvals)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approvals")
	}
	if req.Status == "" {
		req.Status = CapexStatusDraft
	}
	if req.ApprovalsRequired == 0 {
		req.ApprovalsRequired = 1
	}

	query := `
		INSERT INTO capex_requests
		    (tenant_id, title, total_amount, status,
		     approvals, approvals_required, created_by)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		req.TenantID,
		req.Title,
		req.TotalAmount,
		req.Status,
		approvalsJSON,
		req.ApprovalsRequired,
		req.CreatedBy,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
}

// GetByID retrieves a request without locking.
func (r *CapexRepository) GetByID(ctx context.Context, id, tenantID string) (*CapexRequest, error) {
	query := `
		SELECT ` + capexColumns + `
		FROM capex_requests
		WHERE id = $1 AND tenant_id = $2
	`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id, tenantID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("capex_request", id)
	}
	return req, err
}

// WithLock loads the request under a row lock, applies fn to it and writes
// the mutated state back, all in one transaction. fn returning an error
// rolls everything back and surfaces that error unchanged.
func (r *CapexRepository) WithLock(ctx context.Context, id, tenantID string, fn func(*CapexRequest) error) (*CapexRequest, error) {
	var result *CapexRequest

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		selectQuery := `
			SELECT ` + capexColumns + `
			FROM capex_requests
			WHERE id = $1 AND tenant_id = $2
			FOR UPDATE
		`

		req, err := r.scanRequest(tx.QueryRow(ctx, selectQuery, id, tenantID))
		if err == pgx.ErrNoRows {
			return errors.NotFound("capex_request", id)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock capex request")
		}

		if err := fn(req); err != nil {
			return err
		}

		approvalsJSON, err := json.Marshal(req.Approvals)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approvals")
		}

		updateQuery := `
			UPDATE capex_requests
			SET capex_number       = $3,
			    status             = $4,
			    approvals          = $5,
			    approvals_required = $6,
			    approved_by        = $7,
			    approved_at        = $8,
			    rejected_reason    = $9,
			    updated_at         = NOW()
			WHERE id = $1 AND tenant_id = $2
			RETURNING updated_at
		`

		err = tx.QueryRow(ctx, updateQuery,
			req.ID,
			req.TenantID,
			req.CapexNumber,
			req.Status,
			approvalsJSON,
			req.ApprovalsRequired,
			req.ApprovedBy,
			req.ApprovedAt,
			req.RejectedReason,
		).Scan(&req.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update capex request")
		}

		result = req
		return nil
	})

	return result, err
}

// ── scan helper ──────────────────────────────────────────────────────────────

type capexScanner interface {
	Scan(dest ...any) error
}

func (r *CapexRepository) scanRequest(row capexScanner) (*CapexRequest, error) {
	req := &CapexRequest{}
	var approvalsJSON []byte

	err := row.Scan(
		&req.ID,
		&req.TenantID,
		&req.CapexNumber,
		&req.Title,
		&req.TotalAmount,
		&req.Status,
		&approvalsJSON,
		&req.ApprovalsRequired,
		&req.ApprovedBy,
		&req.ApprovedAt,
		&req.RejectedReason,
		&req.CreatedBy,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(approvalsJSON) > 0 {
		if err := json.Unmarshal(approvalsJSON, &req.Approvals); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal approvals")
		}
	}
	return req, nil
}
