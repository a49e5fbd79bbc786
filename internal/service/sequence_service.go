package service

import (
	"context"
	"fmt"

	"github.com/brightops/be-ops-approvals/internal/platform/errors"
	"github.com/brightops/be-ops-approvals/internal/platform/logger"
	"github.com/brightops/be-ops-approvals/internal/repository"
)

// sequenceStore is the atomic counter the allocator rides on. The single
// method contract is deliberate: there is no read-then-write pair to race.
type sequenceStore interface {
	NextValue(ctx context.Context, entityType, scopeID string) (int64, error)
}

// numberFormat is the display format for one document type.
type numberFormat struct {
	prefix    string
	padLength int
}

// docNumberFormats maps document types to their number format.
var docNumberFormats = map[repository.DocType]numberFormat{
	repository.DocTypePurchaseOrder: {prefix: "PO-", padLength: 4},
	repository.DocTypeInvoiceSplit:  {prefix: "INV-", padLength: 4},
	repository.DocTypeCapexRequest:  {prefix: "CAPEX-", padLength: 4},
	repository.DocTypeHireBooking:   {prefix: "HIRE-", padLength: 4},
	repository.DocTypeMailEntry:     {prefix: "MAIL-", padLength: 6},
}

// SequenceService issues formatted document numbers.
type SequenceService struct {
	seq sequenceStore
	log *logger.Logger
}

// NewSequenceService creates a new SequenceService.
func NewSequenceService(seq sequenceStore, log *logger.Logger) *SequenceService {
	return &SequenceService{seq: seq, log: log}
}

// Allocate issues the next number for an (entityType, scopeID) counter and
// formats it as prefix + zero-padded value, e.g. "PO-0042".
func (s *SequenceService) Allocate(ctx context.Context, entityType, scopeID, prefix string, padLength int) (string, error) {
	if entityType == "" {
		return "", errors.InvalidInput("entity_type", "entity type is required")
	}
	if scopeID == "" {
		return "", errors.InvalidInput("scope_id", "scope id is required")
	}

	value, err := s.seq.NextValue(ctx, entityType, scopeID)
	if err != nil {
		return "", err
	}

	number := FormatNumber(prefix, value, padLength)
	s.log.Debug().
		Str("entity_type", entityType).
		Str("scope_id", scopeID).
		Str("number", number).
		Msg("Sequence allocated")

	return number, nil
}

// AllocateForDocType issues a number using the document type's standard
// prefix and padding.
func (s *SequenceService) AllocateForDocType(ctx context.Context, docType repository.DocType, scopeID string) (string, error) {
	format, ok := docNumberFormats[docType]
	if !ok {
		return "", errors.InvalidInput("doc_type", fmt.Sprintf("unknown document type %q", docType))
	}
	return s.Allocate(ctx, string(docType), scopeID, format.prefix, format.padLength)
}

// AllocateMailNumber issues a mail register number as a
// company-code/type-code/sequence triple, e.g. "ACME-INV-000123". The
// counter is scoped per tenant, company and mail type so each register runs
// its own sequence.
func (s *SequenceService) AllocateMailNumber(ctx context.Context, scopeID, companyCode, typeCode string) (string, error) {
	if companyCode == "" {
		return "", errors.InvalidInput("company_code", "company code is required")
	}
	if typeCode == "" {
		return "", errors.InvalidInput("type_code", "type code is required")
	}

	entityType := fmt.Sprintf("mail:%s:%s", companyCode, typeCode)
	value, err := s.seq.NextValue(ctx, entityType, scopeID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%06d", companyCode, typeCode, value), nil
}

// FormatNumber renders a counter value as prefix + zero-padded integer.
// Values wider than padLength keep all their digits.
func FormatNumber(prefix string, value int64, padLength int) string {
	return fmt.Sprintf("%s%0*d", prefix, padLength, value)
}
