package service

import (
	"context"

	"github.com/brightops/be-ops-approvals/internal/platform/errors"
	"github.com/brightops/be-ops-approvals/internal/platform/logger"
	"github.com/brightops/be-ops-approvals/internal/repository"
)

type documentWriter interface {
	documentStore
	Create(ctx context.Context, doc *repository.Document) error
}

// CreateDocumentRequest carries the routing-relevant fields of a new
// document. Amounts are cents.
type CreateDocumentRequest struct {
	TenantID   string                 `json:"tenant_id"`
	DocType    repository.DocType     `json:"doc_type"`
	CompanyID  string                 `json:"company_id"`
	SupplierID string                 `json:"supplier_id"`
	Lines      []*DocumentLineRequest `json:"lines"`
	CreatedBy  string                 `json:"created_by"`
}

// DocumentLineRequest is one line of a new document.
type DocumentLineRequest struct {
	JobID       *string `json:"job_id,omitempty"`
	CostCodeID  *string `json:"cost_code_id,omitempty"`
	Description string  `json:"description"`
	Amount      int64   `json:"amount"`
}

// DocumentService creates documents with allocated display numbers and
// hands them to routing.
type DocumentService struct {
	documents documentWriter
	sequences *SequenceService
	routing   *ApprovalRoutingService
	log       *logger.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(
	documents documentWriter,
	sequences *SequenceService,
	routing *ApprovalRoutingService,
	log *logger.Logger,
) *DocumentService {
	return &DocumentService{
		documents: documents,
		sequences: sequences,
		routing:   routing,
		log:       log,
	}
}

// CreateDocument allocates the document number, persists the document and
// runs routing. The returned AssignResult tells the caller whether the
// document ended up routed, auto-approved or unrouted.
func (s *DocumentService) CreateDocument(ctx context.Context, req *CreateDocumentRequest) (*repository.Document, *AssignResult, error) {
	if req.TenantID == "" {
		return nil, nil, errors.InvalidInput("tenant_id", "tenant id is required")
	}
	if len(req.Lines) == 0 {
		return nil, nil, errors.InvalidInput("lines", "document must have at least 1 line")
	}

	number, err := s.sequences.AllocateForDocType(ctx, req.DocType, req.TenantID)
	if err != nil {
		return nil, nil, err
	}

	doc := &repository.Document{
		TenantID:       req.TenantID,
		DocType:        req.DocType,
		DocumentNumber: number,
		CompanyID:      req.CompanyID,
		SupplierID:     req.SupplierID,
		Status:         repository.DocStatusDraft,
	}
	if req.CreatedBy != "" {
		doc.CreatedBy = &req.CreatedBy
	}

	var total int64
	for i, line := range req.Lines {
		if line.Amount < 0 {
			return nil, nil, errors.InvalidInput("amount", "line amount cannot be negative")
		}
		total += line.Amount
		doc.Lines = append(doc.Lines, &repository.DocumentLine{
			LineNumber:  i + 1,
			JobID:       line.JobID,
			CostCodeID:  line.CostCodeID,
			Description: line.Description,
			Amount:      line.Amount,
		})
	}
	doc.TotalAmount = total

	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, nil, err
	}

	result, err := s.routing.Assign(ctx, doc.ID, doc.TenantID)
	if err != nil {
		return nil, nil, err
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Str("document_number", doc.DocumentNumber).
		Bool("matched", result.Matched).
		Msg("Document created and routed")

	return doc, result, nil
}

// GetDocument returns a document with its lines.
func (s *DocumentService) GetDocument(ctx context.Context, id, tenantID string) (*repository.Document, error) {
	return s.documents.GetByID(ctx, id, tenantID)
}
