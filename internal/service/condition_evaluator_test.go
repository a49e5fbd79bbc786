package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brightops/be-ops-approvals/internal/repository"
)

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func TestEvaluateCondition_Amount(t *testing.T) {
	doc := &repository.DocumentContext{TotalAmount: 150_000} // 1,500.00

	tests := []struct {
		name     string
		operator repository.ConditionOperator
		value    string
		want     bool
	}{
		{"equals match", repository.OpEquals, "1500", true},
		{"equals mismatch", repository.OpEquals, "1500.01", false},
		{"not equals", repository.OpNotEquals, "1000", true},
		{"greater than true", repository.OpGreaterThan, "1499.99", true},
		{"greater than boundary", repository.OpGreaterThan, "1500", false},
		{"less than true", repository.OpLessThan, "1500.01", true},
		{"less than boundary", repository.OpLessThan, "1500", false},
		{"gte boundary", repository.OpGreaterThanOrEquals, "1500", true},
		{"lte boundary", repository.OpLessThanOrEquals, "1500", true},
		{"non-numeric value fails closed", repository.OpGreaterThan, "lots", false},
		{"unknown operator fails closed", repository.ConditionOperator("BETWEEN"), "1500", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := repository.Condition{
				Field:    repository.FieldAmount,
				Operator: tt.operator,
				Values:   []string{tt.value},
			}
			assert.Equal(t, tt.want, EvaluateCondition(cond, doc))
		})
	}
}

func TestEvaluateCondition_ScalarFields(t *testing.T) {
	doc := &repository.DocumentContext{CompanyID: "co-1", SupplierID: "sup-9"}

	tests := []struct {
		name string
		cond repository.Condition
		want bool
	}{
		{
			"company equals any of values",
			repository.Condition{Field: repository.FieldCompany, Operator: repository.OpEquals, Values: []string{"co-2", "co-1"}},
			true,
		},
		{
			"company equals no match",
			repository.Condition{Field: repository.FieldCompany, Operator: repository.OpEquals, Values: []string{"co-2"}},
			false,
		},
		{
			"company not equals",
			repository.Condition{Field: repository.FieldCompany, Operator: repository.OpNotEquals, Values: []string{"co-2"}},
			true,
		},
		{
			"supplier equals",
			repository.Condition{Field: repository.FieldSupplier, Operator: repository.OpEquals, Values: []string{"sup-9"}},
			true,
		},
		{
			"ordering operator on scalar fails closed",
			repository.Condition{Field: repository.FieldCompany, Operator: repository.OpGreaterThan, Values: []string{"co-1"}},
			false,
		},
		{
			"unknown field fails closed",
			repository.Condition{Field: repository.ConditionField("REGION"), Operator: repository.OpEquals, Values: []string{"north"}},
			false,
		},
		{
			"empty values vacuously true",
			repository.Condition{Field: repository.FieldCompany, Operator: repository.OpEquals, Values: nil},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateCondition(tt.cond, doc))
		})
	}
}

func TestEvaluateCondition_Membership(t *testing.T) {
	doc := &repository.DocumentContext{
		JobIDs:      []string{"job-1", "job-2"},
		CostCodeIDs: []string{"gl-100"},
	}

	tests := []struct {
		name string
		cond repository.Condition
		want bool
	}{
		{
			"job intersects",
			repository.Condition{Field: repository.FieldJob, Operator: repository.OpEquals, Values: []string{"job-2", "job-7"}},
			true,
		},
		{
			"job disjoint",
			repository.Condition{Field: repository.FieldJob, Operator: repository.OpEquals, Values: []string{"job-7"}},
			false,
		},
		{
			"job not equals disjoint",
			repository.Condition{Field: repository.FieldJob, Operator: repository.OpNotEquals, Values: []string{"job-7"}},
			true,
		},
		{
			"gl code intersects",
			repository.Condition{Field: repository.FieldGLCode, Operator: repository.OpEquals, Values: []string{"gl-100"}},
			true,
		},
		{
			"gl code against document with no lines",
			repository.Condition{Field: repository.FieldGLCode, Operator: repository.OpEquals, Values: []string{"gl-100"}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateCondition(tt.cond, doc))
		})
	}

	t.Run("no line references means no intersection", func(t *testing.T) {
		empty := &repository.DocumentContext{}
		cond := repository.Condition{Field: repository.FieldJob, Operator: repository.OpEquals, Values: []string{"job-1"}}
		assert.False(t, EvaluateCondition(cond, empty))
	})
}

func TestEvaluateAll(t *testing.T) {
	doc := &repository.DocumentContext{TotalAmount: 250_000, CompanyID: "co-1"}

	matching := []repository.Condition{
		{Field: repository.FieldAmount, Operator: repository.OpGreaterThan, Values: []string{"1000"}},
		{Field: repository.FieldCompany, Operator: repository.OpEquals, Values: []string{"co-1"}},
	}
	assert.True(t, EvaluateAll(matching, doc))

	oneFails := append(matching, repository.Condition{
		Field: repository.FieldSupplier, Operator: repository.OpEquals, Values: []string{"sup-1"},
	})
	assert.False(t, EvaluateAll(oneFails, doc), "conjunction fails when any condition fails")

	assert.True(t, EvaluateAll(nil, doc), "empty condition list matches everything")
}
