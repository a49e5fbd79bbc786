package service

import (
	"context"
	"fmt"
	"time"

	"github.com/brightops/be-ops-approvals/internal/platform/errors"
	"github.com/brightops/be-ops-approvals/internal/platform/logger"
	"github.com/brightops/be-ops-approvals/internal/repository"
)

// capexStore persists threshold-approval requests. WithLock must serialize
// concurrent mutations of the same request.
type capexStore interface {
	Create(ctx context.Context, req *repository.CapexRequest) error
	GetByID(ctx context.Context, id, tenantID string) (*repository.CapexRequest, error)
	WithLock(ctx context.Context, id, tenantID string, fn func(*repository.CapexRequest) error) (*repository.CapexRequest, error)
}

// numberAllocator issues document numbers; satisfied by SequenceService.
type numberAllocator interface {
	AllocateForDocType(ctx context.Context, docType repository.DocType, scopeID string) (string, error)
}

// Specific state errors callers branch on.
var (
	ErrDuplicateApproval   = errors.Conflict("user has already approved this request")
	ErrNotAwaitingApproval = errors.Conflict("request is not awaiting approval")
	ErrNotDraft            = errors.Conflict("request is not in draft state")
)

// Approval count thresholds, in cents.
const (
	threeApproverThreshold = 5_000_000 // strictly above 50,000.00
	twoApproverThreshold   = 500_000   // at or above 5,000.00
)

// RequiredApprovals computes how many distinct sign-offs a request of the
// given total needs. Pure; the result freezes at submission time.
func RequiredApprovals(totalCents int64) int {
	switch {
	case totalCents > threeApproverThreshold:
		return 3
	case totalCents >= twoApproverThreshold:
		return 2
	default:
		return 1
	}
}

// ThresholdApprovalService implements the parallel approval model: a fixed
// number of any-order sign-offs, scaled by monetary size.
type ThresholdApprovalService struct {
	requests  capexStore
	sequences numberAllocator
	activity  activityStore
	publisher eventPublisher
	log       *logger.Logger
}

// NewThresholdApprovalService creates a new ThresholdApprovalService.
func NewThresholdApprovalService(
	requests capexStore,
	sequences numberAllocator,
	activity activityStore,
	publisher eventPublisher,
	log *logger.Logger,
) *ThresholdApprovalService {
	return &ThresholdApprovalService{
		requests:  requests,
		sequences: sequences,
		activity:  activity,
		publisher: publisher,
		log:       log,
	}
}

// CreateDraft creates a new request in draft state.
func (s *ThresholdApprovalService) CreateDraft(ctx context.Context, tenantID, title string, totalAmount int64, createdBy string) (*repository.CapexRequest, error) {
	if title == "" {
		return nil, errors.InvalidInput("title", "title is required")
	}
	if totalAmount <= 0 {
		return nil, errors.InvalidInput("total_amount", "total amount must be positive")
	}

	req := &repository.CapexRequest{
		TenantID:          tenantID,
		Title:             title,
		TotalAmount:       totalAmount,
		Status:            repository.CapexStatusDraft,
		ApprovalsRequired: 1,
	}
	if createdBy != "" {
		req.CreatedBy = &createdBy
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Get returns a request without locking.
func (s *ThresholdApprovalService) Get(ctx context.Context, id, tenantID string) (*repository.CapexRequest, error) {
	return s.requests.GetByID(ctx, id, tenantID)
}

// Submit moves a draft request into the awaiting-approval state, freezing
// approvals_required from the current total and clearing any prior
// approvals. A request number is allocated on first submission.
func (s *ThresholdApprovalService) Submit(ctx context.Context, id, tenantID, submittedBy string) (*repository.CapexRequest, error) {
	req, err := s.requests.WithLock(ctx, id, tenantID, func(req *repository.CapexRequest) error {
		if req.Status != repository.CapexStatusDraft {
			return ErrNotDraft
		}

		if req.CapexNumber == nil {
			number, err := s.sequences.AllocateForDocType(ctx, repository.DocTypeCapexRequest, tenantID)
			if err != nil {
				return err
			}
			req.CapexNumber = &number
		}

		req.Status = repository.CapexStatusSubmitted
		req.ApprovalsRequired = RequiredApprovals(req.TotalAmount)
		req.Approvals = []repository.CapexApproval{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.appendActivity(ctx, req.ID, repository.ActivitySubmitted,
		fmt.Sprintf("submitted for approval; %d approval(s) required", req.ApprovalsRequired),
		submittedBy, map[string]interface{}{"approvals_required": req.ApprovalsRequired})
	s.publish(ctx, "capex_submitted", req.ID, tenantID, submittedBy, map[string]interface{}{
		"approvals_required": req.ApprovalsRequired,
	})

	s.log.Info().
		Str("capex_id", req.ID).
		Int("approvals_required", req.ApprovalsRequired).
		Msg("Capex request submitted")

	return req, nil
}

// AddApproval records one sign-off. The duplicate check, the append and the
// potential transition to approved all happen under the request's row lock,
// so concurrent approvers cannot double-count or double-transition. Returns
// true exactly on the call that reached the required count.
func (s *ThresholdApprovalService) AddApproval(ctx context.Context, id, tenantID, userID, userName string, comments *string) (*repository.CapexRequest, bool, error) {
	fullyApproved := false

	req, err := s.requests.WithLock(ctx, id, tenantID, func(req *repository.CapexRequest) error {
		if req.Status != repository.CapexStatusSubmitted {
			return ErrNotAwaitingApproval
		}
		if req.HasApprovalFrom(userID) {
			return ErrDuplicateApproval
		}

		now := time.Now()
		req.Approvals = append(req.Approvals, repository.CapexApproval{
			UserID:    userID,
			UserName:  userName,
			Level:     len(req.Approvals) + 1,
			Timestamp: now,
			Comments:  comments,
		})

		if len(req.Approvals) >= req.ApprovalsRequired {
			req.Status = repository.CapexStatusApproved
			req.ApprovedBy = &userID
			req.ApprovedAt = &now
			fullyApproved = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	s.appendActivity(ctx, req.ID, repository.ActivityStepApproved,
		fmt.Sprintf("approval %d of %d recorded", len(req.Approvals), req.ApprovalsRequired),
		userID, map[string]interface{}{"level": len(req.Approvals)})

	if fullyApproved {
		s.appendActivity(ctx, req.ID, repository.ActivityApproved, "approval threshold reached", userID, nil)
		s.publish(ctx, "capex_approved", req.ID, tenantID, userID, nil)

		s.log.Info().
			Str("capex_id", req.ID).
			Str("approved_by", userID).
			Msg("Capex request fully approved")
	}

	return req, fullyApproved, nil
}

// Withdraw returns a submitted request to draft, clearing its approvals and
// resetting the required count to the minimum.
func (s *ThresholdApprovalService) Withdraw(ctx context.Context, id, tenantID, userID string) (*repository.CapexRequest, error) {
	req, err := s.requests.WithLock(ctx, id, tenantID, func(req *repository.CapexRequest) error {
		if req.Status != repository.CapexStatusSubmitted {
			return ErrNotAwaitingApproval
		}
		req.Status = repository.CapexStatusDraft
		req.Approvals = []repository.CapexApproval{}
		req.ApprovalsRequired = 1
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.appendActivity(ctx, req.ID, repository.ActivityWithdrawn, "withdrawn from approval", userID, nil)
	return req, nil
}

// Reject terminally rejects a submitted request.
func (s *ThresholdApprovalService) Reject(ctx context.Context, id, tenantID, userID, reason string) (*repository.CapexRequest, error) {
	if reason == "" {
		return nil, errors.InvalidInput("reason", "rejection reason is required")
	}

	req, err := s.requests.WithLock(ctx, id, tenantID, func(req *repository.CapexRequest) error {
		if req.Status != repository.CapexStatusSubmitted {
			return ErrNotAwaitingApproval
		}
		req.Status = repository.CapexStatusRejected
		req.RejectedReason = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.appendActivity(ctx, req.ID, repository.ActivityRejected,
		fmt.Sprintf("rejected: %s", reason), userID,
		map[string]interface{}{"reason": reason})
	s.publish(ctx, "capex_rejected", req.ID, tenantID, userID, map[string]interface{}{
		"reason": reason,
	})

	return req, nil
}

// ── Internal helpers ─────────────────────────────────────────────────────────

func (s *ThresholdApprovalService) appendActivity(ctx context.Context, documentID, activityType, message, actorUserID string, metadata map[string]interface{}) {
	entry := &repository.ActivityEntry{
		DocumentID:   documentID,
		ActivityType: activityType,
		Message:      message,
		Metadata:     metadata,
	}
	if actorUserID != "" {
		entry.ActorUserID = &actorUserID
	}
	if err := s.activity.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("document_id", documentID).
			Str("activity_type", activityType).
			Msg("Failed to write activity log entry")
	}
}

func (s *ThresholdApprovalService) publish(ctx context.Context, eventType, documentID, tenantID, actorID string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishRoutingEvent(ctx, eventType, documentID, tenantID, actorID, payload)
}
