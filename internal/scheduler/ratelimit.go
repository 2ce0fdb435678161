package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maheshrc27/postflow-engine/internal/models"
	"golang.org/x/time/rate"
)

const defaultSpacing = time.Second

// RateLimiter keeps a minimum spacing between outbound calls to each platform.
type RateLimiter struct {
	clock    Clock
	spacings map[string]time.Duration

	mu        sync.Mutex
	platforms map[models.Platform]*platformLimit
}

type platformLimit struct {
	// mu serializes waiters so two calls to one platform never interleave.
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastCall time.Time
}

func NewRateLimiter(spacings map[string]time.Duration, clock Clock) *RateLimiter {
	if clock == nil {
		clock = RealClock()
	}
	return &RateLimiter{
		clock:     clock,
		spacings:  spacings,
		platforms: make(map[models.Platform]*platformLimit),
	}
}

func (r *RateLimiter) limitFor(p models.Platform) *platformLimit {
	r.mu.Lock()
	defer r.mu.Unlock()

	pl, ok := r.platforms[p]
	if !ok {
		spacing, found := r.spacings[string(p)]
		if !found {
			spacing = defaultSpacing
		}
		pl = &platformLimit{limiter: rate.NewLimiter(rate.Every(spacing), 1)}
		r.platforms[p] = pl
	}
	return pl
}

// Wait blocks until a call to p is allowed, then records the call.
func (r *RateLimiter) Wait(ctx context.Context, p models.Platform) error {
	pl := r.limitFor(p)
	pl.mu.Lock()
	defer pl.mu.Unlock()

	now := r.clock.Now()
	res := pl.limiter.ReserveN(now, 1)
	if !res.OK() {
		return fmt.Errorf("rate limit for %s admits no calls", p)
	}

	if delay := res.DelayFrom(now); delay > 0 {
		if err := r.clock.Sleep(ctx, delay); err != nil {
			res.CancelAt(now)
			return err
		}
	}
	pl.lastCall = r.clock.Now()
	return nil
}

// LastCall reports when p was last let through, zero if never.
func (r *RateLimiter) LastCall(p models.Platform) time.Time {
	pl := r.limitFor(p)
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.lastCall
}
