// Package plan holds the static entitlement table: the numeric and feature
// limits attached to each subscription plan tier. The table is loaded once
// and never mutated; billing state lives elsewhere.
package plan

import (
	"app/internal/model"
)

// Plan tiers known to the gateway.
const (
	TierFree    = "free"
	TierPro     = "pro"
	TierProPlus = "pro_plus"
)

// Model identifiers accepted from clients and sent upstream.
const (
	ModelGPT41Mini = "gpt-4.1-mini"
	ModelGPT41     = "gpt-4.1"
	ModelGPT5      = "gpt-5"
	ModelGPT52     = "gpt-5.2"
)

// VisionModels is the fixed allow-list of models that accept image input.
var VisionModels = []string{ModelGPT41, ModelGPT5, ModelGPT52}

// IsVisionCapable reports whether the model accepts image input.
func IsVisionCapable(model string) bool {
	for _, m := range VisionModels {
		if m == model {
			return true
		}
	}
	return false
}

// Table maps plan tiers to their entitlements.
type Table struct {
	plans map[string]*model.Entitlement
}

// NewTable builds a table from explicit entitlements, keyed by PlanTier.
// Used by tests to run against synthetic plans.
func NewTable(entitlements ...*model.Entitlement) *Table {
	plans := make(map[string]*model.Entitlement, len(entitlements))
	for _, e := range entitlements {
		plans[e.PlanTier] = e
	}
	return &Table{plans: plans}
}

// Default returns the production plan table.
func Default() *Table {
	return NewTable(
		&model.Entitlement{
			PlanTier:         TierFree,
			TokensPerMonth:   100_000,
			RequestsPerMonth: 200,
			RatePerMinute:    10,
			MaxConcurrent:    2,
			AllowedModels:    []string{ModelGPT41Mini, ModelGPT41},
			PerModelTokenCap: map[string]int64{ModelGPT41: 50_000},
		},
		&model.Entitlement{
			PlanTier:         TierPro,
			TokensPerMonth:   2_000_000,
			RequestsPerMonth: 5_000,
			RatePerMinute:    60,
			MaxConcurrent:    4,
			AllowedModels:    []string{ModelGPT41Mini, ModelGPT41, ModelGPT5},
			PerModelTokenCap: map[string]int64{ModelGPT5: 1_000_000},
			SummaryEnabled:   true,
		},
		&model.Entitlement{
			PlanTier:         TierProPlus,
			TokensPerMonth:   10_000_000,
			RequestsPerMonth: 20_000,
			RatePerMinute:    120,
			MaxConcurrent:    8,
			AllowedModels:    []string{ModelGPT41Mini, ModelGPT41, ModelGPT5, ModelGPT52},
			PerModelTokenCap: map[string]int64{ModelGPT52: 2_000_000},
			SummaryEnabled:   true,
		},
	)
}

// Lookup returns the entitlement for a tier, falling back to the free plan
// when the tier is unknown. Unknown tiers can appear when the subscription
// store references a plan this build does not know yet; degrading to free is
// safer than denying service outright.
func (t *Table) Lookup(tier string) *model.Entitlement {
	if e, ok := t.plans[tier]; ok {
		return e
	}
	return t.plans[TierFree]
}
