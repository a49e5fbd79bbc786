package repository

import (
	"encoding/json"
	"math"
	"time"
)

// ── Domain types for routing and numbering ───────────────────────────────────

// DocType identifies the kind of document a sequence or routing decision
// applies to.
type DocType string

const (
	DocTypePurchaseOrder DocType = "purchase_order"
	DocTypeInvoiceSplit  DocType = "invoice_split"
	DocTypeCapexRequest  DocType = "capex_request"
	DocTypeHireBooking   DocType = "hire_booking"
	DocTypeMailEntry     DocType = "mail_entry"
)

// Document statuses. Routing only reads and writes the subset below; the
// wider purchase/asset lifecycle is owned elsewhere.
const (
	DocStatusDraft           = "draft"
	DocStatusPendingApproval = "pending_approval"
	DocStatusApproved        = "approved"
	DocStatusRejected        = "rejected"
)

// RuleType is the closed set of routing rule kinds.
type RuleType string

const (
	RuleTypeUser        RuleType = "USER"
	RuleTypeCatchAll    RuleType = "USER_CATCH_ALL"
	RuleTypeAutoApprove RuleType = "AUTO_APPROVE"
)

// ConditionField names a document attribute a condition tests.
type ConditionField string

const (
	FieldCompany  ConditionField = "COMPANY"
	FieldAmount   ConditionField = "AMOUNT"
	FieldJob      ConditionField = "JOB"
	FieldSupplier ConditionField = "SUPPLIER"
	FieldGLCode   ConditionField = "GL_CODE"
)

// ConditionOperator is the comparison applied between field and values.
type ConditionOperator string

const (
	OpEquals              ConditionOperator = "EQUALS"
	OpNotEquals           ConditionOperator = "NOT_EQUALS"
	OpGreaterThan         ConditionOperator = "GREATER_THAN"
	OpLessThan            ConditionOperator = "LESS_THAN"
	OpGreaterThanOrEquals ConditionOperator = "GREATER_THAN_OR_EQUALS"
	OpLessThanOrEquals    ConditionOperator = "LESS_THAN_OR_EQUALS"
)

// Condition is one structured routing condition. An empty Values list is
// vacuously true.
type Condition struct {
	Field    ConditionField    `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Values   []string          `json:"values"`
}

// LegacyRange is the historical free-form conditions object, supporting only
// an amount window and a supplier match. Amounts are cents; min is
// inclusive, max is exclusive.
type LegacyRange struct {
	MinAmount  *int64
	MaxAmount  *int64
	SupplierID *string
}

// RuleConditions is the tagged variant for a rule's conditions column,
// resolved once when the rule row is scanned. Exactly one of Structured and
// Legacy is set; both nil means the rule is unconditional.
type RuleConditions struct {
	Structured []Condition
	Legacy     *LegacyRange
}

// IsEmpty reports whether the rule carries no conditions at all.
func (c RuleConditions) IsEmpty() bool {
	return len(c.Structured) == 0 && c.Legacy == nil
}

// legacyConditionsJSON mirrors the ad hoc object shape stored by the
// original admin UI. Amounts are stored in currency units.
type legacyConditionsJSON struct {
	MinAmount  *float64 `json:"minAmount"`
	MaxAmount  *float64 `json:"maxAmount"`
	SupplierID *string  `json:"supplierId"`
}

// UnmarshalJSON sniffs the stored shape: a JSON array decodes as structured
// conditions, an object as the legacy range, and null as unconditional.
func (c *RuleConditions) UnmarshalJSON(data []byte) error {
	*c = RuleConditions{}

	trimmed := firstNonSpace(data)
	switch trimmed {
	case 0, 'n': // empty or null
		return nil
	case '[':
		return json.Unmarshal(data, &c.Structured)
	default:
		var legacy legacyConditionsJSON
		if err := json.Unmarshal(data, &legacy); err != nil {
			return err
		}
		if legacy.MinAmount == nil && legacy.MaxAmount == nil && legacy.SupplierID == nil {
			return nil
		}
		c.Legacy = &LegacyRange{SupplierID: legacy.SupplierID}
		if legacy.MinAmount != nil {
			min := toCents(*legacy.MinAmount)
			c.Legacy.MinAmount = &min
		}
		if legacy.MaxAmount != nil {
			max := toCents(*legacy.MaxAmount)
			c.Legacy.MaxAmount = &max
		}
		return nil
	}
}

// MarshalJSON writes the variant back in its stored shape.
func (c RuleConditions) MarshalJSON() ([]byte, error) {
	switch {
	case c.Legacy != nil:
		legacy := legacyConditionsJSON{SupplierID: c.Legacy.SupplierID}
		if c.Legacy.MinAmount != nil {
			min := float64(*c.Legacy.MinAmount) / 100
			legacy.MinAmount = &min
		}
		if c.Legacy.MaxAmount != nil {
			max := float64(*c.Legacy.MaxAmount) / 100
			legacy.MaxAmount = &max
		}
		return json.Marshal(legacy)
	case c.Structured != nil:
		return json.Marshal(c.Structured)
	default:
		return []byte("null"), nil
	}
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// RoutingRule is a tenant-owned approval routing rule.
type RoutingRule struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenant_id"`
	RuleName        string         `json:"rule_name"`
	RuleType        RuleType       `json:"rule_type"`
	IsActive        bool           `json:"is_active"`
	Priority        int            `json:"priority"` // lower = evaluated first
	Conditions      RuleConditions `json:"conditions"`
	ApproverUserIDs []string       `json:"approver_user_ids"`
	AutoApprove     bool           `json:"auto_approve"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// RuleOutcome is the closed set of routing outcomes for a matched rule.
type RuleOutcome interface{ isRuleOutcome() }

// AutoApproveOutcome marks the document approved by policy; no steps.
type AutoApproveOutcome struct{}

// SequentialApproversOutcome materializes one pending step per user, in order.
type SequentialApproversOutcome struct {
	ApproverUserIDs []string
}

func (AutoApproveOutcome) isRuleOutcome()         {}
func (SequentialApproversOutcome) isRuleOutcome() {}

// Outcome resolves the rule's routing outcome. The auto-approve flag wins
// over the rule type so legacy flag-only rules still short-circuit.
func (r *RoutingRule) Outcome() RuleOutcome {
	if r.RuleType == RuleTypeAutoApprove || r.AutoApprove {
		return AutoApproveOutcome{}
	}
	return SequentialApproversOutcome{ApproverUserIDs: r.ApproverUserIDs}
}

// ApprovalStep is one entry in a document's sequential approval chain.
type ApprovalStep struct {
	ID             string     `json:"id"`
	DocumentID     string     `json:"document_id"`
	TenantID       string     `json:"tenant_id"`
	StepIndex      int        `json:"step_index"` // 0-based execution order
	ApproverUserID string     `json:"approver_user_id"`
	RuleID         string     `json:"rule_id"`
	Status         string     `json:"status"` // pending | approved | rejected
	ActedAt        *time.Time `json:"acted_at,omitempty"`
	ActionNotes    *string    `json:"action_notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Approval step statuses.
const (
	StepStatusPending  = "pending"
	StepStatusApproved = "approved"
	StepStatusRejected = "rejected"
)

// Document is the routing-facing view of a platform document. Monetary
// amounts are cents.
type Document struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	DocType        DocType         `json:"doc_type"`
	DocumentNumber string          `json:"document_number"`
	CompanyID      string          `json:"company_id"`
	SupplierID     string          `json:"supplier_id"`
	TotalAmount    int64           `json:"total_amount"`
	Status         string          `json:"status"`
	CreatedBy      *string         `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Lines          []*DocumentLine `json:"lines,omitempty"`
}

// DocumentLine is one line item; jobs and cost codes are matched by
// membership across all lines, not per line.
type DocumentLine struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	LineNumber  int       `json:"line_number"`
	JobID       *string   `json:"job_id,omitempty"`
	CostCodeID  *string   `json:"cost_code_id,omitempty"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// Context flattens the attributes condition evaluation reads.
func (d *Document) Context() *DocumentContext {
	ctx := &DocumentContext{
		TotalAmount: d.TotalAmount,
		CompanyID:   d.CompanyID,
		SupplierID:  d.SupplierID,
	}
	for _, line := range d.Lines {
		if line.JobID != nil {
			ctx.JobIDs = append(ctx.JobIDs, *line.JobID)
		}
		if line.CostCodeID != nil {
			ctx.CostCodeIDs = append(ctx.CostCodeIDs, *line.CostCodeID)
		}
	}
	return ctx
}

// DocumentContext is what conditions evaluate against.
type DocumentContext struct {
	TotalAmount int64 // cents
	CompanyID   string
	SupplierID  string
	JobIDs      []string
	CostCodeIDs []string
}

// ── Threshold (parallel) approval model ──────────────────────────────────────

// Capex request statuses.
const (
	CapexStatusDraft     = "draft"
	CapexStatusSubmitted = "submitted"
	CapexStatusApproved  = "approved"
	CapexStatusRejected  = "rejected"
)

// CapexApproval is one sign-off on a threshold-approved request.
type CapexApproval struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Level     int       `json:"level"` // 1-based order of arrival
	Timestamp time.Time `json:"timestamp"`
	Comments  *string   `json:"comments,omitempty"`
}

// CapexRequest is a document using the parallel threshold approval model.
// ApprovalsRequired freezes at submission and does not change as approvals
// accrue.
type CapexRequest struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	CapexNumber       *string         `json:"capex_number,omitempty"`
	Title             string          `json:"title"`
	TotalAmount       int64           `json:"total_amount"` // cents
	Status            string          `json:"status"`
	Approvals         []CapexApproval `json:"approvals"`
	ApprovalsRequired int             `json:"approvals_required"`
	ApprovedBy        *string         `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty"`
	RejectedReason    *string         `json:"rejected_reason,omitempty"`
	CreatedBy         *string         `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// HasApprovalFrom reports whether userID already signed off.
func (c *CapexRequest) HasApprovalFrom(userID string) bool {
	for _, a := range c.Approvals {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// ── Activity log ─────────────────────────────────────────────────────────────

// ActivityEntry is one immutable audit record of a routing decision or
// approval action.
type ActivityEntry struct {
	ID           string                 `json:"id"`
	DocumentID   string                 `json:"document_id"`
	ActivityType string                 `json:"activity_type"`
	Message      string                 `json:"message"`
	ActorUserID  *string                `json:"actor_user_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Activity types written by the routing core.
const (
	ActivityRuleMatched   = "approval_rule_matched"
	ActivityRuleUnmatched = "approval_rule_unmatched"
	ActivityAutoApproved  = "auto_approved"
	ActivityStepApproved  = "step_approved"
	ActivityStepRejected  = "step_rejected"
	ActivitySubmitted     = "submitted_for_approval"
	ActivityApproved      = "fully_approved"
	ActivityRejected      = "rejected"
	ActivityWithdrawn     = "withdrawn"
)
