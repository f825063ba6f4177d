package repository

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRepository is the gateway's client to the usage ledger: append-only
// writes of per-request usage and aggregate reads over a billing window.
// The ledger itself is owned by the billing system; the gateway only calls
// into it.
type UsageRepository interface {
	// RecordUsage appends one usage row.
	RecordUsage(ctx context.Context, rec *model.UsageRecord) error
	// GetUsageSnapshot aggregates the user's usage over [start, end).
	GetUsageSnapshot(ctx context.Context, userID string, start, end time.Time) (*model.UsageSnapshot, error)
}

type usageRepo struct {
	pool *pgxpool.Pool
}

// NewUsageRepo creates a new UsageRepository.
func NewUsageRepo(pool *pgxpool.Pool) UsageRepository {
	return &usageRepo{pool: pool}
}

func (r *usageRepo) RecordUsage(ctx context.Context, rec *model.UsageRecord) error {
	const q = `
        INSERT INTO ai_usage_events
            (user_id, request_id, session_id, model, mode,
             prompt_tokens, completion_tokens, total_tokens, cancelled)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := r.pool.Exec(ctx, q,
		rec.UserID,
		rec.RequestID,
		rec.SessionID,
		rec.Model,
		string(rec.Mode),
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.TotalTokens,
		rec.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("recording usage for user %s request %s: %w", rec.UserID, rec.RequestID, err)
	}
	return nil
}

func (r *usageRepo) GetUsageSnapshot(ctx context.Context, userID string, start, end time.Time) (*model.UsageSnapshot, error) {
	const q = `
        SELECT model, COUNT(*), COALESCE(SUM(total_tokens), 0)
        FROM ai_usage_events
        WHERE user_id = $1
          AND created_at >= $2
          AND created_at < $3
        GROUP BY model
    `
	rows, err := r.pool.Query(ctx, q, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying usage for user %s: %w", userID, err)
	}
	defer rows.Close()

	snap := &model.UsageSnapshot{
		TokensByModel: make(map[string]int64),
		PeriodStart:   start,
		PeriodEnd:     end,
	}
	for rows.Next() {
		var m string
		var count, tokens int64
		if err := rows.Scan(&m, &count, &tokens); err != nil {
			return nil, fmt.Errorf("scanning usage row for user %s: %w", userID, err)
		}
		snap.TotalRequests += count
		snap.TotalTokens += tokens
		snap.TokensByModel[m] += tokens
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading usage rows for user %s: %w", userID, err)
	}
	return snap, nil
}
