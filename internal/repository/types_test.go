package repository

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleConditions_UnmarshalStructured(t *testing.T) {
	data := []byte(`[
		{"field": "AMOUNT", "operator": "GREATER_THAN", "values": ["5000"]},
		{"field": "COMPANY", "operator": "EQUALS", "values": ["co-1", "co-2"]}
	]`)

	var conds RuleConditions
	require.NoError(t, json.Unmarshal(data, &conds))

	assert.Nil(t, conds.Legacy)
	require.Len(t, conds.Structured, 2)
	assert.Equal(t, FieldAmount, conds.Structured[0].Field)
	assert.Equal(t, OpGreaterThan, conds.Structured[0].Operator)
	assert.Equal(t, []string{"co-1", "co-2"}, conds.Structured[1].Values)
	assert.False(t, conds.IsEmpty())
}

func TestRuleConditions_UnmarshalLegacy(t *testing.T) {
	data := []byte(`{"minAmount": 1000, "maxAmount": 5000.50, "supplierId": "sup-1"}`)

	var conds RuleConditions
	require.NoError(t, json.Unmarshal(data, &conds))

	assert.Nil(t, conds.Structured)
	require.NotNil(t, conds.Legacy)
	require.NotNil(t, conds.Legacy.MinAmount)
	assert.Equal(t, int64(100_000), *conds.Legacy.MinAmount, "currency units convert to cents")
	require.NotNil(t, conds.Legacy.MaxAmount)
	assert.Equal(t, int64(500_050), *conds.Legacy.MaxAmount)
	require.NotNil(t, conds.Legacy.SupplierID)
	assert.Equal(t, "sup-1", *conds.Legacy.SupplierID)
}

func TestRuleConditions_UnmarshalPartialLegacy(t *testing.T) {
	var conds RuleConditions
	require.NoError(t, json.Unmarshal([]byte(`{"minAmount": 250}`), &conds))

	require.NotNil(t, conds.Legacy)
	assert.Equal(t, int64(25_000), *conds.Legacy.MinAmount)
	assert.Nil(t, conds.Legacy.MaxAmount)
	assert.Nil(t, conds.Legacy.SupplierID)
}

func TestRuleConditions_UnmarshalEmptyVariants(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"null", `null`},
		{"empty object", `{}`},
		{"empty array", `[]`},
		{"leading whitespace null", "  \n null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var conds RuleConditions
			require.NoError(t, json.Unmarshal([]byte(tt.data), &conds))
			assert.True(t, conds.IsEmpty())
		})
	}
}

func TestRuleConditions_UnmarshalReplacesPriorValue(t *testing.T) {
	var conds RuleConditions
	require.NoError(t, json.Unmarshal([]byte(`{"minAmount": 100}`), &conds))
	require.NotNil(t, conds.Legacy)

	require.NoError(t, json.Unmarshal([]byte(`[{"field":"AMOUNT","operator":"EQUALS","values":["1"]}]`), &conds))
	assert.Nil(t, conds.Legacy, "re-decoding resets the variant")
	assert.Len(t, conds.Structured, 1)
}

func TestRuleConditions_MarshalRoundTrip(t *testing.T) {
	min := int64(100_000)
	supplier := "sup-1"
	legacy := RuleConditions{Legacy: &LegacyRange{MinAmount: &min, SupplierID: &supplier}}

	data, err := json.Marshal(legacy)
	require.NoError(t, err)

	var decoded RuleConditions
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Legacy)
	assert.Equal(t, min, *decoded.Legacy.MinAmount)
	assert.Equal(t, supplier, *decoded.Legacy.SupplierID)

	empty := RuleConditions{}
	data, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestRoutingRule_Outcome(t *testing.T) {
	sequential := &RoutingRule{
		RuleType:        RuleTypeUser,
		ApproverUserIDs: []string{"alice", "bob"},
	}
	outcome := sequential.Outcome()
	seq, ok := outcome.(SequentialApproversOutcome)
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, seq.ApproverUserIDs)

	autoByType := &RoutingRule{RuleType: RuleTypeAutoApprove}
	_, ok = autoByType.Outcome().(AutoApproveOutcome)
	assert.True(t, ok)

	// The legacy flag short-circuits even on a user rule.
	autoByFlag := &RoutingRule{RuleType: RuleTypeUser, AutoApprove: true, ApproverUserIDs: []string{"alice"}}
	_, ok = autoByFlag.Outcome().(AutoApproveOutcome)
	assert.True(t, ok)
}

func TestDocument_Context(t *testing.T) {
	job1, job2 := "job-1", "job-2"
	gl := "gl-100"
	doc := &Document{
		TotalAmount: 150_000,
		CompanyID:   "co-1",
		SupplierID:  "sup-1",
		Lines: []*DocumentLine{
			{LineNumber: 1, JobID: &job1, CostCodeID: &gl, Amount: 100_000},
			{LineNumber: 2, JobID: &job2, Amount: 40_000},
			{LineNumber: 3, Amount: 10_000},
		},
	}

	ctx := doc.Context()
	assert.Equal(t, int64(150_000), ctx.TotalAmount)
	assert.Equal(t, "co-1", ctx.CompanyID)
	assert.Equal(t, "sup-1", ctx.SupplierID)
	assert.Equal(t, []string{"job-1", "job-2"}, ctx.JobIDs)
	assert.Equal(t, []string{"gl-100"}, ctx.CostCodeIDs)
}

func TestCapexRequest_HasApprovalFrom(t *testing.T) {
	req := &CapexRequest{Approvals: []CapexApproval{
		{UserID: "alice", Level: 1},
	}}

	assert.True(t, req.HasApprovalFrom("alice"))
	assert.False(t, req.HasApprovalFrom("bob"))
	assert.False(t, (&CapexRequest{}).HasApprovalFrom("alice"))
}
