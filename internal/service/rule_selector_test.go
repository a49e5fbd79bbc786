package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brightops/be-ops-approvals/internal/repository"
)

func userRule(id string, priority int, conds ...repository.Condition) *repository.RoutingRule {
	return &repository.RoutingRule{
		ID:              id,
		RuleName:        id,
		RuleType:        repository.RuleTypeUser,
		IsActive:        true,
		Priority:        priority,
		Conditions:      repository.RuleConditions{Structured: conds},
		ApproverUserIDs: []string{"approver-1"},
	}
}

func TestSelectRule_PriorityOrder(t *testing.T) {
	doc := &repository.DocumentContext{TotalAmount: 100_000, CompanyID: "co-1"}

	amountCond := repository.Condition{
		Field: repository.FieldAmount, Operator: repository.OpGreaterThan, Values: []string{"500"},
	}

	// Both rules match; the lower priority number wins regardless of slice
	// order.
	rules := []*repository.RoutingRule{
		userRule("rule-b", 20, amountCond),
		userRule("rule-a", 10, amountCond),
	}

	selected := SelectRule(rules, doc)
	assert.NotNil(t, selected)
	assert.Equal(t, "rule-a", selected.ID)
}

func TestSelectRule_FirstMatchNotBestMatch(t *testing.T) {
	doc := &repository.DocumentContext{TotalAmount: 100_000, SupplierID: "sup-1"}

	// The priority-1 rule matches on amount alone; the priority-2 rule is a
	// tighter fit (amount and supplier) but is never reached.
	rules := []*repository.RoutingRule{
		userRule("broad", 1, repository.Condition{
			Field: repository.FieldAmount, Operator: repository.OpGreaterThan, Values: []string{"500"},
		}),
		userRule("specific", 2,
			repository.Condition{Field: repository.FieldAmount, Operator: repository.OpGreaterThan, Values: []string{"500"}},
			repository.Condition{Field: repository.FieldSupplier, Operator: repository.OpEquals, Values: []string{"sup-1"}},
		),
	}

	selected := SelectRule(rules, doc)
	assert.NotNil(t, selected)
	assert.Equal(t, "broad", selected.ID)
}

func TestSelectRule_SkipsInactiveAndNonMatching(t *testing.T) {
	doc := &repository.DocumentContext{TotalAmount: 100, CompanyID: "co-1"}

	inactive := userRule("inactive", 1)
	inactive.IsActive = false

	nonMatching := userRule("wrong-company", 2, repository.Condition{
		Field: repository.FieldCompany, Operator: repository.OpEquals, Values: []string{"co-2"},
	})

	fallback := userRule("fallback", 3)

	selected := SelectRule([]*repository.RoutingRule{inactive, nonMatching, fallback}, doc)
	assert.NotNil(t, selected)
	assert.Equal(t, "fallback", selected.ID)
}

func TestSelectRule_CatchAllMatchesEverything(t *testing.T) {
	doc := &repository.DocumentContext{}

	catchAll := &repository.RoutingRule{
		ID:       "catch-all",
		RuleType: repository.RuleTypeCatchAll,
		IsActive: true,
		Priority: 99,
		// Conditions on a catch-all are ignored.
		Conditions: repository.RuleConditions{Structured: []repository.Condition{
			{Field: repository.FieldCompany, Operator: repository.OpEquals, Values: []string{"nope"}},
		}},
		ApproverUserIDs: []string{"cfo"},
	}

	selected := SelectRule([]*repository.RoutingRule{catchAll}, doc)
	assert.NotNil(t, selected)
	assert.Equal(t, "catch-all", selected.ID)
}

func TestSelectRule_NoMatchReturnsNil(t *testing.T) {
	doc := &repository.DocumentContext{TotalAmount: 100}

	rules := []*repository.RoutingRule{
		userRule("high-value", 1, repository.Condition{
			Field: repository.FieldAmount, Operator: repository.OpGreaterThan, Values: []string{"10000"},
		}),
	}

	assert.Nil(t, SelectRule(rules, doc))
	assert.Nil(t, SelectRule(nil, doc), "empty rule set selects nothing")
}

func TestLegacyRangeMatches(t *testing.T) {
	tests := []struct {
		name   string
		legacy repository.LegacyRange
		doc    repository.DocumentContext
		want   bool
	}{
		{
			"within window",
			repository.LegacyRange{MinAmount: int64Ptr(100_000), MaxAmount: int64Ptr(500_000)},
			repository.DocumentContext{TotalAmount: 250_000},
			true,
		},
		{
			"min is inclusive",
			repository.LegacyRange{MinAmount: int64Ptr(100_000)},
			repository.DocumentContext{TotalAmount: 100_000},
			true,
		},
		{
			"max is exclusive",
			repository.LegacyRange{MaxAmount: int64Ptr(500_000)},
			repository.DocumentContext{TotalAmount: 500_000},
			false,
		},
		{
			"below min",
			repository.LegacyRange{MinAmount: int64Ptr(100_000)},
			repository.DocumentContext{TotalAmount: 99_999},
			false,
		},
		{
			"supplier must match when set",
			repository.LegacyRange{SupplierID: strPtr("sup-1")},
			repository.DocumentContext{SupplierID: "sup-2"},
			false,
		},
		{
			"unset keys do not constrain",
			repository.LegacyRange{},
			repository.DocumentContext{TotalAmount: 1},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, legacyRangeMatches(&tt.legacy, &tt.doc))
		})
	}
}

func TestSelectRule_LegacyConditionsRule(t *testing.T) {
	legacy := &repository.RoutingRule{
		ID:       "legacy",
		RuleType: repository.RuleTypeUser,
		IsActive: true,
		Priority: 1,
		Conditions: repository.RuleConditions{
			Legacy: &repository.LegacyRange{MinAmount: int64Ptr(100_000), MaxAmount: int64Ptr(500_000)},
		},
		ApproverUserIDs: []string{"approver-1"},
	}

	inRange := &repository.DocumentContext{TotalAmount: 100_000}
	outOfRange := &repository.DocumentContext{TotalAmount: 500_000}

	assert.Equal(t, legacy, SelectRule([]*repository.RoutingRule{legacy}, inRange))
	assert.Nil(t, SelectRule([]*repository.RoutingRule{legacy}, outOfRange))
}
