package service

import (
	"context"
	"fmt"

	"github.com/brightops/be-ops-approvals/internal/platform/errors"
	"github.com/brightops/be-ops-approvals/internal/platform/logger"
	"github.com/brightops/be-ops-approvals/internal/repository"
)

// Store contracts the routing service depends on. Declared here so tests can
// substitute in-memory fakes.

type routingRuleStore interface {
	ListActive(ctx context.Context, tenantID string) ([]*repository.RoutingRule, error)
}

type approvalStepStore interface {
	ReplaceForDocument(ctx context.Context, documentID string, steps []*repository.ApprovalStep) error
	DeleteForDocument(ctx context.Context, documentID string) error
	GetByDocumentID(ctx context.Context, documentID string) ([]*repository.ApprovalStep, error)
	GetStep(ctx context.Context, documentID string, stepIndex int) (*repository.ApprovalStep, error)
	GetPendingForUser(ctx context.Context, tenantID, userID string) ([]*repository.ApprovalStep, error)
	UpdateStepAction(ctx context.Context, id, status string, notes *string) error
}

type documentStore interface {
	GetByID(ctx context.Context, id, tenantID string) (*repository.Document, error)
	ListIDsByStatuses(ctx context.Context, tenantID string, statuses []string) ([]string, error)
	UpdateStatus(ctx context.Context, id, tenantID, status string) error
}

type activityStore interface {
	Append(ctx context.Context, entry *repository.ActivityEntry) error
	GetByDocumentID(ctx context.Context, documentID string) ([]*repository.ActivityEntry, error)
}

// eventPublisher pushes routing outcomes to the notification stream.
// Implementations must never fail the calling operation.
type eventPublisher interface {
	PublishRoutingEvent(ctx context.Context, eventType, documentID, tenantID, actorID string, payload map[string]interface{})
}

// AssignResult reports the outcome of a routing decision.
type AssignResult struct {
	Matched       bool   `json:"matched"`
	RuleName      string `json:"rule_name,omitempty"`
	ApproverCount int    `json:"approver_count"`
}

// ApprovalRoutingService materializes sequential approval chains from a
// tenant's routing rules.
type ApprovalRoutingService struct {
	rules     routingRuleStore
	steps     approvalStepStore
	documents documentStore
	activity  activityStore
	publisher eventPublisher
	log       *logger.Logger
}

// NewApprovalRoutingService creates a new ApprovalRoutingService.
func NewApprovalRoutingService(
	rules routingRuleStore,
	steps approvalStepStore,
	documents documentStore,
	activity activityStore,
	publisher eventPublisher,
	log *logger.Logger,
) *ApprovalRoutingService {
	return &ApprovalRoutingService{
		rules:     rules,
		steps:     steps,
		documents: documents,
		activity:  activity,
		publisher: publisher,
		log:       log,
	}
}

// ── Assignment ───────────────────────────────────────────────────────────────

// Assign routes a document: it clears any prior chain, picks the first
// matching active rule and materializes the implied state. Re-running at any
// time leaves exactly the steps of the current match, never a union of old
// and new.
func (s *ApprovalRoutingService) Assign(ctx context.Context, documentID, tenantID string) (*AssignResult, error) {
	doc, err := s.documents.GetByID(ctx, documentID, tenantID)
	if err != nil {
		return nil, err
	}

	// Prior chain goes first so an unmatched or auto-approved outcome also
	// leaves no stale steps behind.
	if err := s.steps.DeleteForDocument(ctx, documentID); err != nil {
		return nil, err
	}

	rules, err := s.rules.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	rule := SelectRule(rules, doc.Context())
	if rule == nil {
		s.appendActivity(ctx, &repository.ActivityEntry{
			DocumentID:   documentID,
			ActivityType: repository.ActivityRuleUnmatched,
			Message:      "no active routing rule matched; document left unrouted",
		})
		return &AssignResult{Matched: false}, nil
	}

	switch outcome := rule.Outcome().(type) {
	case repository.AutoApproveOutcome:
		if err := s.documents.UpdateStatus(ctx, documentID, tenantID, repository.DocStatusApproved); err != nil {
			return nil, err
		}
		s.appendActivity(ctx, &repository.ActivityEntry{
			DocumentID:   documentID,
			ActivityType: repository.ActivityAutoApproved,
			Message:      fmt.Sprintf("auto-approved by rule %q", rule.RuleName),
			Metadata:     map[string]interface{}{"rule_id": rule.ID, "rule_name": rule.RuleName},
		})
		s.publish(ctx, "document_auto_approved", documentID, tenantID, "", map[string]interface{}{
			"rule_name": rule.RuleName,
		})

		s.log.Info().
			Str("document_id", documentID).
			Str("rule_id", rule.ID).
			Msg("Document auto-approved by policy")

		return &AssignResult{Matched: true, RuleName: rule.RuleName, ApproverCount: 0}, nil

	case repository.SequentialApproversOutcome:
		steps := make([]*repository.ApprovalStep, 0, len(outcome.ApproverUserIDs))
		for i, userID := range outcome.ApproverUserIDs {
			steps = append(steps, &repository.ApprovalStep{
				TenantID:       tenantID,
				StepIndex:      i,
				ApproverUserID: userID,
				RuleID:         rule.ID,
				Status:         repository.StepStatusPending,
			})
		}

		if err := s.steps.ReplaceForDocument(ctx, documentID, steps); err != nil {
			return nil, err
		}
		if err := s.documents.UpdateStatus(ctx, documentID, tenantID, repository.DocStatusPendingApproval); err != nil {
			return nil, err
		}

		s.appendActivity(ctx, &repository.ActivityEntry{
			DocumentID:   documentID,
			ActivityType: repository.ActivityRuleMatched,
			Message:      fmt.Sprintf("rule %q matched; %d approval step(s) created", rule.RuleName, len(steps)),
			Metadata: map[string]interface{}{
				"rule_id":    rule.ID,
				"rule_name":  rule.RuleName,
				"step_count": len(steps),
			},
		})
		s.publish(ctx, "approval_required", documentID, tenantID, "", map[string]interface{}{
			"rule_name":  rule.RuleName,
			"step_count": len(steps),
			"approvers":  outcome.ApproverUserIDs,
		})

		s.log.Info().
			Str("document_id", documentID).
			Str("rule_id", rule.ID).
			Int("step_count", len(steps)).
			Msg("Approval chain assigned")

		return &AssignResult{Matched: true, RuleName: rule.RuleName, ApproverCount: len(steps)}, nil
	}

	// Unknown outcome variants fail closed as unmatched.
	return &AssignResult{Matched: false}, nil
}

// ReassignForTenant re-runs Assign on every document in the tenant whose
// status is in the eligible set. Individual failures are logged and skipped;
// the batch never aborts wholesale. Returns the count of documents that
// matched a rule.
func (s *ApprovalRoutingService) ReassignForTenant(ctx context.Context, tenantID string, eligibleStatuses []string) (int, error) {
	ids, err := s.documents.ListIDsByStatuses(ctx, tenantID, eligibleStatuses)
	if err != nil {
		return 0, err
	}

	matched := 0
	for _, id := range ids {
		result, err := s.Assign(ctx, id, tenantID)
		if err != nil {
			s.log.Warn().Err(err).
				Str("document_id", id).
				Str("tenant_id", tenantID).
				Msg("Re-assignment failed for document; continuing batch")
			continue
		}
		if result.Matched {
			matched++
		}
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Int("total", len(ids)).
		Int("matched", matched).
		Msg("Tenant re-assignment complete")

	return matched, nil
}

// ── Step actions ─────────────────────────────────────────────────────────────

// ApproveStep records an approval on one step of the chain. Steps must be
// acted on in index order. Returns true when this approval completed the
// chain and the document transitioned to approved.
func (s *ApprovalRoutingService) ApproveStep(ctx context.Context, documentID, tenantID string, stepIndex int, actedBy string, notes *string) (bool, error) {
	chain, err := s.steps.GetByDocumentID(ctx, documentID)
	if err != nil {
		return false, err
	}

	step, err := s.guardStepAction(chain, stepIndex, actedBy)
	if err != nil {
		return false, err
	}

	if err := s.steps.UpdateStepAction(ctx, step.ID, repository.StepStatusApproved, notes); err != nil {
		return false, err
	}

	s.appendActivity(ctx, &repository.ActivityEntry{
		DocumentID:   documentID,
		ActivityType: repository.ActivityStepApproved,
		Message:      fmt.Sprintf("step %d approved", stepIndex),
		ActorUserID:  &actedBy,
		Metadata:     map[string]interface{}{"step_index": stepIndex},
	})

	// Complete when every other step in the chain is already approved.
	for _, other := range chain {
		if other.StepIndex != stepIndex && other.Status != repository.StepStatusApproved {
			return false, nil
		}
	}

	if err := s.documents.UpdateStatus(ctx, documentID, tenantID, repository.DocStatusApproved); err != nil {
		return false, err
	}
	s.appendActivity(ctx, &repository.ActivityEntry{
		DocumentID:   documentID,
		ActivityType: repository.ActivityApproved,
		Message:      "all approval steps complete",
		ActorUserID:  &actedBy,
	})
	s.publish(ctx, "document_approved", documentID, tenantID, actedBy, nil)

	s.log.Info().
		Str("document_id", documentID).
		Str("acted_by", actedBy).
		Msg("Approval chain complete")

	return true, nil
}

// RejectStep records a rejection, which is terminal for the chain: the
// document transitions to rejected and remaining steps stay untouched.
func (s *ApprovalRoutingService) RejectStep(ctx context.Context, documentID, tenantID string, stepIndex int, actedBy, reason string) error {
	if reason == "" {
		return errors.InvalidInput("reason", "rejection reason is required")
	}

	chain, err := s.steps.GetByDocumentID(ctx, documentID)
	if err != nil {
		return err
	}

	step, err := s.guardStepAction(chain, stepIndex, actedBy)
	if err != nil {
		return err
	}

	if err := s.steps.UpdateStepAction(ctx, step.ID, repository.StepStatusRejected, &reason); err != nil {
		return err
	}
	if err := s.documents.UpdateStatus(ctx, documentID, tenantID, repository.DocStatusRejected); err != nil {
		return err
	}

	s.appendActivity(ctx, &repository.ActivityEntry{
		DocumentID:   documentID,
		ActivityType: repository.ActivityStepRejected,
		Message:      fmt.Sprintf("step %d rejected: %s", stepIndex, reason),
		ActorUserID:  &actedBy,
		Metadata:     map[string]interface{}{"step_index": stepIndex, "reason": reason},
	})
	s.publish(ctx, "document_rejected", documentID, tenantID, actedBy, map[string]interface{}{
		"reason": reason,
	})

	return nil
}

// guardStepAction validates a step action: the step must exist, be pending,
// belong to the acting user, and every earlier step must already be
// approved.
func (s *ApprovalRoutingService) guardStepAction(chain []*repository.ApprovalStep, stepIndex int, actedBy string) (*repository.ApprovalStep, error) {
	var step *repository.ApprovalStep
	for _, candidate := range chain {
		if candidate.StepIndex == stepIndex {
			step = candidate
			break
		}
	}
	if step == nil {
		return nil, errors.NotFound("approval_step", fmt.Sprintf("index %d", stepIndex))
	}
	if step.Status != repository.StepStatusPending {
		return nil, errors.Conflict(fmt.Sprintf("step %d is not pending (status: %s)", stepIndex, step.Status))
	}
	if step.ApproverUserID != actedBy {
		return nil, errors.Unauthorized("user is not the designated approver for this step")
	}
	for _, earlier := range chain {
		if earlier.StepIndex < stepIndex && earlier.Status != repository.StepStatusApproved {
			return nil, errors.Conflict(fmt.Sprintf("step %d cannot be acted on before step %d", stepIndex, earlier.StepIndex))
		}
	}
	return step, nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

// PendingStepsForUser returns the steps currently awaiting a user.
func (s *ApprovalRoutingService) PendingStepsForUser(ctx context.Context, tenantID, userID string) ([]*repository.ApprovalStep, error) {
	return s.steps.GetPendingForUser(ctx, tenantID, userID)
}

// StepsForDocument returns a document's full chain in index order.
func (s *ApprovalRoutingService) StepsForDocument(ctx context.Context, documentID string) ([]*repository.ApprovalStep, error) {
	return s.steps.GetByDocumentID(ctx, documentID)
}

// ActivityForDocument returns the activity trail for a document.
func (s *ApprovalRoutingService) ActivityForDocument(ctx context.Context, documentID string) ([]*repository.ActivityEntry, error) {
	return s.activity.GetByDocumentID(ctx, documentID)
}

// ── Internal helpers ─────────────────────────────────────────────────────────

// appendActivity writes an activity entry, logging a warning on failure. A
// lost audit line never fails the routing operation itself.
func (s *ApprovalRoutingService) appendActivity(ctx context.Context, entry *repository.ActivityEntry) {
	if err := s.activity.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("document_id", entry.DocumentID).
			Str("activity_type", entry.ActivityType).
			Msg("Failed to write activity log entry")
	}
}

func (s *ApprovalRoutingService) publish(ctx context.Context, eventType, documentID, tenantID, actorID string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishRoutingEvent(ctx, eventType, documentID, tenantID, actorID, payload)
}
