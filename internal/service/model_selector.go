package service

import (
	"app/internal/apperr"
	"app/internal/model"
	"app/internal/plan"
)

// Model preference orderings used when the client asks for "auto".
var (
	richestFirst  = []string{plan.ModelGPT52, plan.ModelGPT5, plan.ModelGPT41, plan.ModelGPT41Mini}
	cheapestFirst = []string{plan.ModelGPT41Mini, plan.ModelGPT41, plan.ModelGPT5, plan.ModelGPT52}
)

// PickAutoModel deterministically chooses a model for a plan, mode, and
// usage snapshot. It is a pure function of its inputs: no hidden state,
// identical inputs always yield the identical model.
//
// The candidate list is the plan-and-mode preference ordering concatenated
// with the plan's full allowed list, deduplicated preserving first
// occurrence. Candidates whose per-model token cap is already met are
// skipped; the first survivor wins. If nothing survives, the plan's first
// allowed model is returned so the budget check downstream produces the
// right quota error.
func PickAutoModel(ent *model.Entitlement, mode model.Mode, snap *model.UsageSnapshot) (string, error) {
	if len(ent.AllowedModels) == 0 {
		return "", apperr.PlanRestriction("no models available for plan %s", ent.PlanTier)
	}

	prefs := preferredOrder(ent.PlanTier, mode)
	candidates := dedup(append(append([]string{}, prefs...), ent.AllowedModels...))

	for _, m := range candidates {
		if !ent.Allows(m) {
			continue
		}
		if cap, ok := ent.PerModelTokenCap[m]; ok && snap.ModelTokens(m) >= cap {
			continue
		}
		return m, nil
	}
	return ent.AllowedModels[0], nil
}

// preferredOrder ranks models for a tier and mode: richer models first for
// higher tiers and for summary/insights, cheaper models first for questions.
func preferredOrder(tier string, mode model.Mode) []string {
	switch mode {
	case model.ModeSummary, model.ModeInsights:
		return richestFirst
	case model.ModeQuestions:
		return cheapestFirst
	}
	if tier == plan.TierFree {
		return cheapestFirst
	}
	return richestFirst
}

func dedup(models []string) []string {
	seen := make(map[string]struct{}, len(models))
	out := models[:0]
	for _, m := range models {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
