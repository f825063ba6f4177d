package model

import "time"

// TokenUsage is the upstream-reported token accounting for one generation.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// UsageRecord is one append-only row in the usage ledger.
type UsageRecord struct {
	UserID           string    `db:"user_id" json:"user_id"`
	RequestID        string    `db:"request_id" json:"request_id"`
	SessionID        string    `db:"session_id" json:"session_id,omitempty"`
	Model            string    `db:"model" json:"model"`
	Mode             Mode      `db:"mode" json:"mode"`
	PromptTokens     int64     `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int64     `db:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int64     `db:"total_tokens" json:"total_tokens"`
	Cancelled        bool      `db:"cancelled" json:"cancelled"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// UsageSnapshot aggregates a user's ledger rows over one billing window
// [PeriodStart, PeriodEnd). It is computed on demand and never cached across
// requests, so two concurrent requests may observe the same snapshot.
type UsageSnapshot struct {
	TotalTokens   int64
	TotalRequests int64
	TokensByModel map[string]int64
	PeriodStart   time.Time
	PeriodEnd     time.Time
}

// ModelTokens returns the tokens consumed by one model in this window.
func (s *UsageSnapshot) ModelTokens(model string) int64 {
	if s.TokensByModel == nil {
		return 0
	}
	return s.TokensByModel[model]
}
