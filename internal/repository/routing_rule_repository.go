package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/brightops/be-ops-approvals/internal/platform/database"
	"github.com/brightops/be-ops-approvals/internal/platform/errors"
)

// RoutingRuleRepository handles CRUD for approval_routing_rules. Routing
// itself only ever calls ListActive; the write operations exist for the
// admin configuration surface.
type RoutingRuleRepository struct {
	db *database.DB
}

// NewRoutingRuleRepository creates a new RoutingRuleRepository.
func NewRoutingRuleRepository(db *database.DB) *RoutingRuleRepository {
	return &RoutingRuleRepository{db: db}
}

// Create inserts a new routing rule.
func (r *RoutingRuleRepository) Create(ctx context.Context, rule *RoutingRule) error {
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal rule conditions")
	}
	approversJSON, err := json.Marshal(rule.ApproverUserIDs)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approver list")
	}

	query := `
		INSERT INTO approval_routing_rules
		    (tenant_id, rule_name, rule_type, is_active,
		     priority, conditions, approver_user_ids, auto_approve)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		rule.TenantID,
		rule.RuleName,
		string(rule.RuleType),
		rule.IsActive,
		rule.Priority,
		conditionsJSON,
		approversJSON,
		rule.AutoApprove,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

// GetByID retrieves a rule by primary key within a tenant.
func (r *RoutingRuleRepository) GetByID(ctx context.Context, id, tenantID string) (*RoutingRule, error) {
	query := `
		SELECT id, tenant_id, rule_name, rule_type, is_active,
		       priority, conditions, approver_user_ids, auto_approve,
		       created_at, updated_at
		FROM approval_routing_rules
		WHERE id = $1 AND tenant_id = $2
	`

	rule, err := r.scanRule(r.db.QueryRow(ctx, query, id, tenantID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("routing_rule", id)
	}
	return rule, err
}

// List returns all rules for a tenant ordered by ascending priority.
func (r *RoutingRuleRepository) List(ctx context.Context, tenantID string, activeOnly bool) ([]*RoutingRule, error) {
	query := `
		SELECT id, tenant_id, rule_name, rule_type, is_active,
		       priority, conditions, approver_user_ids, auto_approve,
		       created_at, updated_at
		FROM approval_routing_rules
		WHERE tenant_id = $1
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY priority ASC, rule_name ASC"

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list routing rules")
	}
	defer rows.Close()

	var rules []*RoutingRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan routing rule")
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ListActive is the routing-facing read: active rules in evaluation order.
func (r *RoutingRuleRepository) ListActive(ctx context.Context, tenantID string) ([]*RoutingRule, error) {
	return r.List(ctx, tenantID, true)
}

// Update persists changes to an existing rule.
func (r *RoutingRuleRepository) Update(ctx context.Context, rule *RoutingRule) error {
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal rule conditions")
	}
	approversJSON, err := json.Marshal(rule.ApproverUserIDs)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approver list")
	}

	query := `
		UPDATE approval_routing_rules
		SET rule_name         = $3,
		    rule_type         = $4,
		    is_active         = $5,
		    priority          = $6,
		    conditions        = $7,
		    approver_user_ids = $8,
		    auto_approve      = $9,
		    updated_at        = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		rule.ID,
		rule.TenantID,
		rule.RuleName,
		string(rule.RuleType),
		rule.IsActive,
		rule.Priority,
		conditionsJSON,
		approversJSON,
		rule.AutoApprove,
	).Scan(&rule.UpdatedAt)

	if err == pgx.ErrNoRows {
		return errors.NotFound("routing_rule", rule.ID)
	}
	return err
}

// Delete removes a routing rule. Steps created from it keep their rule_id
// for provenance; the FK is not enforced against deletes.
func (r *RoutingRuleRepository) Delete(ctx context.Context, id, tenantID string) error {
	query := `
		DELETE FROM approval_routing_rules
		WHERE id = $1 AND tenant_id = $2
	`

	tag, err := r.db.Exec(ctx, query, id, tenantID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete routing rule")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("routing_rule", id)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type ruleScanner interface {
	Scan(dest ...any) error
}

// scanRule decodes a rule row, resolving the conditions column into its
// tagged variant exactly once here so the evaluator never sees raw JSON.
func (r *RoutingRuleRepository) scanRule(row ruleScanner) (*RoutingRule, error) {
	rule := &RoutingRule{}
	var (
		ruleType       string
		conditionsJSON []byte
		approversJSON  []byte
	)

	err := row.Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.RuleName,
		&ruleType,
		&rule.IsActive,
		&rule.Priority,
		&conditionsJSON,
		&approversJSON,
		&rule.AutoApprove,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.RuleType = RuleType(ruleType)
	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal rule conditions")
		}
	}
	if len(approversJSON) > 0 {
		if err := json.Unmarshal(approversJSON, &rule.ApproverUserIDs); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal approver list")
		}
	}
	return rule, nil
}
