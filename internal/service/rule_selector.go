package service

import (
	"sort"

	"github.com/brightops/be-ops-approvals/internal/repository"
)

// SelectRule evaluates rules in ascending priority order and returns the
// first one that matches the document, or nil when nothing matches. A nil
// result is a valid terminal outcome, not an error: the caller leaves the
// document unrouted.
//
// The input does not need to be pre-sorted; inactive rules are skipped.
func SelectRule(rules []*repository.RoutingRule, doc *repository.DocumentContext) *repository.RoutingRule {
	ordered := make([]*repository.RoutingRule, 0, len(rules))
	for _, rule := range rules {
		if rule.IsActive {
			ordered = append(ordered, rule)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, rule := range ordered {
		if ruleMatches(rule, doc) {
			return rule
		}
	}
	return nil
}

// ruleMatches applies the rule's own matching mode: catch-all and
// unconditional rules always match, legacy ranges compare directly, and
// structured conditions go through the evaluator as a conjunction.
func ruleMatches(rule *repository.RoutingRule, doc *repository.DocumentContext) bool {
	if rule.RuleType == repository.RuleTypeCatchAll {
		return true
	}
	if rule.Conditions.IsEmpty() {
		return true
	}
	if rule.Conditions.Legacy != nil {
		return legacyRangeMatches(rule.Conditions.Legacy, doc)
	}
	return EvaluateAll(rule.Conditions.Structured, doc)
}

// legacyRangeMatches evaluates the historical conditions object: min
// inclusive, max exclusive, supplier by equality. Unset keys do not
// constrain.
func legacyRangeMatches(legacy *repository.LegacyRange, doc *repository.DocumentContext) bool {
	if legacy.MinAmount != nil && doc.TotalAmount < *legacy.MinAmount {
		return false
	}
	if legacy.MaxAmount != nil && doc.TotalAmount >= *legacy.MaxAmount {
		return false
	}
	if legacy.SupplierID != nil && *legacy.SupplierID != doc.SupplierID {
		return false
	}
	return true
}
