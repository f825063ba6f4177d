package model

// Mode is the kind of AI generation a client can request.
type Mode string

const (
	ModeReply     Mode = "reply"
	ModeSummary   Mode = "summary"
	ModeInsights  Mode = "insights"
	ModeQuestions Mode = "questions"
)

// Valid reports whether m is one of the supported generation modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeReply, ModeSummary, ModeInsights, ModeQuestions:
		return true
	}
	return false
}

// Entitlement is the set of numeric and feature limits attached to a
// subscription plan tier. Entitlements are immutable and loaded from the
// static plan table, keyed by tier only.
type Entitlement struct {
	PlanTier         string
	TokensPerMonth   int64
	RequestsPerMonth int64
	RatePerMinute    int
	MaxConcurrent    int
	AllowedModels    []string
	PerModelTokenCap map[string]int64

	// SummaryEnabled gates every mode other than reply.
	SummaryEnabled bool
}

// Allows reports whether the plan permits the given model.
func (e *Entitlement) Allows(model string) bool {
	for _, m := range e.AllowedModels {
		if m == model {
			return true
		}
	}
	return false
}
