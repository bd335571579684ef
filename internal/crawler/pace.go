package crawler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

const minJitterFloor = 500 * time.Millisecond

// Pacer enforces the inter-request delay for a logical request stream.
// All fetchers that talk to the origin site share one Pacer, so the delay
// holds across static and rendered fetches. On top of the fixed interval a
// random jitter of up to 30% of the base delay is added so the request
// cadence is not perfectly regular.
type Pacer struct {
	limiter *rate.Limiter
	base    time.Duration
}

// NewPacer builds a Pacer with the given base delay between requests.
// A non-positive delay still enforces a small floor.
func NewPacer(delay time.Duration) *Pacer {
	if delay < minJitterFloor {
		delay = minJitterFloor
	}
	return &Pacer{
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		base:    delay,
	}
}

// Wait blocks until the next request slot is available.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait request slot: %w", err)
	}
	jitter := time.Duration(rand.Int63n(int64(p.base)*3/10 + 1))
	if jitter <= 0 {
		return nil
	}
	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait request slot: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
