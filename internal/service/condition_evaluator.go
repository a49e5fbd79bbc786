package service

import (
	"math"
	"strconv"

	"github.com/brightops/be-ops-approvals/internal/repository"
)

// Condition evaluation is pure and fails closed: unknown fields, unknown
// operators and malformed numeric values all evaluate to "does not match"
// so one bad rule can never block routing for the rest of the rule set.

// EvaluateCondition returns whether a single structured condition holds for
// the document. A condition with no values is vacuously true.
func EvaluateCondition(cond repository.Condition, doc *repository.DocumentContext) bool {
	if len(cond.Values) == 0 {
		return true
	}

	switch cond.Field {
	case repository.FieldAmount:
		return evaluateAmount(cond.Operator, cond.Values[0], doc.TotalAmount)
	case repository.FieldCompany:
		return evaluateScalar(cond.Operator, cond.Values, doc.CompanyID)
	case repository.FieldSupplier:
		return evaluateScalar(cond.Operator, cond.Values, doc.SupplierID)
	case repository.FieldJob:
		return evaluateMembership(cond.Operator, cond.Values, doc.JobIDs)
	case repository.FieldGLCode:
		return evaluateMembership(cond.Operator, cond.Values, doc.CostCodeIDs)
	}
	return false
}

// EvaluateAll returns whether every condition holds (conjunction). An empty
// list matches everything.
func EvaluateAll(conds []repository.Condition, doc *repository.DocumentContext) bool {
	for _, cond := range conds {
		if !EvaluateCondition(cond, doc) {
			return false
		}
	}
	return true
}

// evaluateAmount compares the document total against a single decimal
// comparison value. A non-numeric value evaluates false.
func evaluateAmount(op repository.ConditionOperator, value string, totalCents int64) bool {
	amount, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return false
	}
	threshold := int64(math.Round(amount * 100))

	switch op {
	case repository.OpEquals:
		return totalCents == threshold
	case repository.OpNotEquals:
		return totalCents != threshold
	case repository.OpGreaterThan:
		return totalCents > threshold
	case repository.OpLessThan:
		return totalCents < threshold
	case repository.OpGreaterThanOrEquals:
		return totalCents >= threshold
	case repository.OpLessThanOrEquals:
		return totalCents <= threshold
	}
	return false
}

// evaluateScalar tests a single-valued document field against the value set.
// Only equality operators are meaningful here; ordering operators fail
// closed.
func evaluateScalar(op repository.ConditionOperator, values []string, fieldValue string) bool {
	switch op {
	case repository.OpEquals:
		return contains(values, fieldValue)
	case repository.OpNotEquals:
		return !contains(values, fieldValue)
	}
	return false
}

// evaluateMembership tests set overlap between the condition values and the
// ids referenced across the document's lines.
func evaluateMembership(op repository.ConditionOperator, values []string, docIDs []string) bool {
	switch op {
	case repository.OpEquals:
		return intersects(values, docIDs)
	case repository.OpNotEquals:
		return !intersects(values, docIDs)
	}
	return false
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func intersects(values, ids []string) bool {
	for _, id := range ids {
		if contains(values, id) {
			return true
		}
	}
	return false
}
