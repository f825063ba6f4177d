// Package admission gates every AI request before it reaches the paid
// upstream: a fixed-window per-user rate limit, a per-user concurrency
// ceiling, and the monthly budget check against a usage snapshot.
//
// All state is process-local and volatile. It does not survive a restart and
// does not coordinate across gateway instances; a shared store can be swapped
// in behind the same operations later.
package admission

import (
	"sync"
	"time"

	"app/internal/apperr"
	"app/internal/model"

	"github.com/rs/zerolog"
)

const (
	rateWindow = time.Minute

	// gcThreshold is the table size past which stale rate entries are
	// collected opportunistically on the next window reset.
	gcThreshold = 1024
)

type rateState struct {
	windowStart time.Time
	count       int
}

// Controller holds the per-user admission tables. Construct one per process
// (or per test) and share it across connections.
type Controller struct {
	mu       sync.Mutex
	now      func() time.Time
	rates    map[string]*rateState
	inflight map[string]int
	logger   zerolog.Logger
}

// New creates a Controller using the wall clock.
func New(logger zerolog.Logger) *Controller {
	return NewWithClock(logger, time.Now)
}

// NewWithClock creates a Controller with an injected clock for tests.
func NewWithClock(logger zerolog.Logger, now func() time.Time) *Controller {
	return &Controller{
		now:      now,
		rates:    make(map[string]*rateState),
		inflight: make(map[string]int),
		logger:   logger.With().Str("service", "AdmissionController").Logger(),
	}
}

// CheckAndConsumeRate admits or denies one request under the plan's
// per-minute rate. The window is fixed, not sliding: a burst straddling a
// window boundary can admit up to twice the per-minute rate for a moment,
// an accepted approximation.
func (c *Controller) CheckAndConsumeRate(userID string, ent *model.Entitlement) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	st, ok := c.rates[userID]
	if !ok || now.Sub(st.windowStart) >= rateWindow {
		c.collectStaleLocked(now)
		c.rates[userID] = &rateState{windowStart: now, count: 1}
		return nil
	}
	if st.count >= ent.RatePerMinute {
		retryAfter := rateWindow - now.Sub(st.windowStart)
		return apperr.RateLimited(retryAfter)
	}
	st.count++
	return nil
}

// AcquireConcurrency reserves one in-flight slot for the user. The returned
// release func must be called on every exit path; calling it more than once
// is safe and only the first call decrements.
func (c *Controller) AcquireConcurrency(userID string, ent *model.Entitlement) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight[userID] >= ent.MaxConcurrent {
		return nil, apperr.TooManyConcurrent(ent.MaxConcurrent)
	}
	c.inflight[userID]++

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.inflight[userID] <= 1 {
				delete(c.inflight, userID)
			} else {
				c.inflight[userID]--
			}
		})
	}
	return release, nil
}

// CheckMonthlyBudget verifies the usage snapshot against the entitlement:
// global token cap, global request cap, then the per-model cap when the
// model has one configured. The checks are independent; all must pass.
func (c *Controller) CheckMonthlyBudget(snap *model.UsageSnapshot, ent *model.Entitlement, modelName string) error {
	if ent.TokensPerMonth > 0 && snap.TotalTokens >= ent.TokensPerMonth {
		return apperr.QuotaExceeded("monthly token limit of %d reached", ent.TokensPerMonth)
	}
	if ent.RequestsPerMonth > 0 && snap.TotalRequests >= ent.RequestsPerMonth {
		return apperr.QuotaExceeded("monthly request limit of %d reached", ent.RequestsPerMonth)
	}
	if modelName != "" {
		if cap, ok := ent.PerModelTokenCap[modelName]; ok && snap.ModelTokens(modelName) >= cap {
			return apperr.QuotaExceeded("monthly token limit of %d for model %s reached", cap, modelName)
		}
	}
	return nil
}

// InFlight returns the user's current in-flight count.
func (c *Controller) InFlight(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[userID]
}

// collectStaleLocked drops rate entries whose window has fully elapsed.
// Only runs once the table has grown past gcThreshold.
func (c *Controller) collectStaleLocked(now time.Time) {
	if len(c.rates) < gcThreshold {
		return
	}
	collected := 0
	for id, st := range c.rates {
		if now.Sub(st.windowStart) >= rateWindow {
			delete(c.rates, id)
			collected++
		}
	}
	if collected > 0 {
		c.logger.Debug().Int("collected", collected).Msg("Collected stale rate limit entries")
	}
}
