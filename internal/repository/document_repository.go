package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/brightops/be-ops-approvals/internal/platform/database"
	"github.com/brightops/be-ops-approvals/internal/platform/errors"
)

// DocumentRepository reads and updates the routing-facing view of platform
// documents. Full document CRUD lives with the owning modules; routing only
// needs headers, lines and status transitions.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document header and its lines in one transaction.
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		docQuery := `
			INSERT INTO documents
			    (tenant_id, doc_type, document_number,
			     company_id, supplier_id, total_amount, status, created_by)
			VALUES ($1, $2, $3,
			        $4, $5, $6, $7, $8)
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRow(ctx, docQuery,
			doc.TenantID,
			string(doc.DocType),
			doc.DocumentNumber,
			doc.CompanyID,
			doc.SupplierID,
			doc.TotalAmount,
			doc.Status,
			doc.CreatedBy,
		).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create document")
		}

		lineQuery := `
			INSERT INTO document_lines
			    (document_id, line_number, job_id, cost_code_id,
			     description, amount)
			VALUES ($1, $2, $3, $4,
			        $5, $6)
			RETURNING id, created_at
		`

		for _, line := range doc.Lines {
			line.DocumentID = doc.ID
			err := tx.QueryRow(ctx, lineQuery,
				line.DocumentID,
				line.LineNumber,
				line.JobID,
				line.CostCodeID,
				line.Description,
				line.Amount,
			).Scan(&line.ID, &line.CreatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create document line")
			}
		}

		return nil
	})
}

// GetByID retrieves a document with its lines.
func (r *DocumentRepository) GetByID(ctx context.Context, id, tenantID string) (*Document, error) {
	query := `
		SELECT id, tenant_id, doc_type, document_number,
		       company_id, supplier_id, total_amount, status,
		       created_by, created_at, updated_at
		FROM documents
		WHERE id = $1 AND tenant_id = $2
	`

	doc := &Document{}
	var docType string
	err := r.db.QueryRow(ctx, query, id, tenantID).Scan(
		&doc.ID,
		&doc.TenantID,
		&docType,
		&doc.DocumentNumber,
		&doc.CompanyID,
		&doc.SupplierID,
		&doc.TotalAmount,
		&doc.Status,
		&doc.CreatedBy,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("document", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get document")
	}
	doc.DocType = DocType(docType)

	lines, err := r.getLines(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	doc.Lines = lines
	return doc, nil
}

// ListIDsByStatuses returns document ids in a tenant whose status is in the
// eligible set, for batch re-assignment.
func (r *DocumentRepository) ListIDsByStatuses(ctx context.Context, tenantID string, statuses []string) ([]string, error) {
	query := `
		SELECT id
		FROM documents
		WHERE tenant_id = $1
		  AND status = ANY($2)
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, statuses)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list documents by status")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan document id")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UpdateStatus transitions a document's status.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id, tenantID, status string) error {
	query := `
		UPDATE documents
		SET status     = $3,
		    updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, tenantID, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("document", id)
	}
	return err
}

func (r *DocumentRepository) getLines(ctx context.Context, documentID string) ([]*DocumentLine, error) {
	query := `
		SELECT id, document_id, line_number, job_id, cost_code_id,
		       description, amount, created_at
		FROM document_lines
		WHERE document_id = $1
		ORDER BY line_number ASC
	`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get document lines")
	}
	defer rows.Close()

	var lines []*DocumentLine
	for rows.Next() {
		line := &DocumentLine{}
		err := rows.Scan(
			&line.ID,
			&line.DocumentID,
			&line.LineNumber,
			&line.JobID,
			&line.CostCodeID,
			&line.Description,
			&line.Amount,
			&line.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan document line")
		}
		lines = append(lines, line)
	}
	return lines, nil
}
