package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"app/internal/model"
	"app/internal/plan"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

type fakeSubscriptionRepo struct {
	sub *model.UserSubscription
	err error
}

func (f *fakeSubscriptionRepo) GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	return f.sub, f.err
}

func TestResolveWithSubscription(t *testing.T) {
	starts := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	ends := starts.AddDate(0, 1, 0)
	repo := &fakeSubscriptionRepo{sub: &model.UserSubscription{
		UserID:   "u1",
		PlanID:   plan.TierPro,
		StartsAt: starts,
		EndsAt:   ends,
		Status:   "active",
	}}
	svc := NewEntitlementService(repo, plan.Default(), zerolog.Nop())

	ent, start, end, err := svc.Resolve(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if ent.PlanTier != plan.TierPro {
		t.Errorf("PlanTier = %q, want %q", ent.PlanTier, plan.TierPro)
	}
	if !start.Equal(starts) || !end.Equal(ends) {
		t.Errorf("window = [%v, %v), want [%v, %v)", start, end, starts, ends)
	}
}

func TestResolveWithoutSubscription(t *testing.T) {
	repo := &fakeSubscriptionRepo{err: repository.ErrNoSubscription}
	svc := NewEntitlementService(repo, plan.Default(), zerolog.Nop())

	ent, start, end, err := svc.Resolve(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if ent.PlanTier != plan.TierFree {
		t.Errorf("PlanTier = %q, want %q", ent.PlanTier, plan.TierFree)
	}
	if start.Day() != 1 || start.Hour() != 0 {
		t.Errorf("window start %v is not the first of the month", start)
	}
	if !end.Equal(start.AddDate(0, 1, 0)) {
		t.Errorf("window end %v is not one month after %v", end, start)
	}
	now := time.Now().UTC()
	if now.Before(start) || !now.Before(end) {
		t.Errorf("current time %v outside window [%v, %v)", now, start, end)
	}
}

func TestResolveUnknownPlanFallsBackToFree(t *testing.T) {
	repo := &fakeSubscriptionRepo{sub: &model.UserSubscription{
		UserID: "u1",
		PlanID: "legacy_gold",
		Status: "active",
	}}
	svc := NewEntitlementService(repo, plan.Default(), zerolog.Nop())

	ent, _, _, err := svc.Resolve(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if ent.PlanTier != plan.TierFree {
		t.Errorf("PlanTier = %q, want fallback to %q", ent.PlanTier, plan.TierFree)
	}
}

func TestResolveRepositoryError(t *testing.T) {
	repoErr := errors.New("db down")
	svc := NewEntitlementService(&fakeSubscriptionRepo{err: repoErr}, plan.Default(), zerolog.Nop())

	_, _, _, err := svc.Resolve(context.Background(), "u1")
	if !errors.Is(err, repoErr) {
		t.Errorf("err = %v, want %v", err, repoErr)
	}
}
