package service

import (
	"context"
	"errors"
	"time"

	"app/internal/model"
	"app/internal/plan"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// EntitlementService resolves an authenticated user to their plan
// entitlement and current billing period.
type EntitlementService interface {
	Resolve(ctx context.Context, userID string) (*model.Entitlement, time.Time, time.Time, error)
}

type entitlementService struct {
	subs   repository.SubscriptionRepository
	plans  *plan.Table
	now    func() time.Time
	logger zerolog.Logger
}

// NewEntitlementService creates an EntitlementService with a scoped logger.
func NewEntitlementService(subs repository.SubscriptionRepository, plans *plan.Table, logger zerolog.Logger) EntitlementService {
	return &entitlementService{
		subs:   subs,
		plans:  plans,
		now:    time.Now,
		logger: logger.With().Str("service", "EntitlementService").Logger(),
	}
}

// Resolve returns the user's entitlement and billing window [start, end).
// Users without an active subscription row get the free plan over the
// current calendar month.
func (s *entitlementService) Resolve(ctx context.Context, userID string) (*model.Entitlement, time.Time, time.Time, error) {
	sub, err := s.subs.GetActiveSubscription(ctx, userID)
	if errors.Is(err, repository.ErrNoSubscription) {
		start, end := calendarMonth(s.now())
		return s.plans.Lookup(plan.TierFree), start, end, nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to resolve subscription")
		return nil, time.Time{}, time.Time{}, err
	}
	return s.plans.Lookup(sub.PlanID), sub.StartsAt, sub.EndsAt, nil
}

func calendarMonth(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
