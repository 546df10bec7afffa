// Package ratelimit implements webhook delivery pacing and the fixed-wait
// handling of HTTP 429 responses.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultWait is the pause applied after a 429 response.
const DefaultWait = 5 * time.Second

// Policy decides how long to wait when the webhook signals rate limiting.
// It is distinct from exponential backoff: the wait is fixed per 429.
type Policy struct {
	Wait time.Duration
}

// NewPolicy returns a Policy with wait, or DefaultWait when wait is not positive.
func NewPolicy(wait time.Duration) Policy {
	if wait <= 0 {
		wait = DefaultWait
	}
	return Policy{Wait: wait}
}

// WaitFor reports whether statusCode is a rate-limit response and how long to pause.
func (p Policy) WaitFor(statusCode int) (time.Duration, bool) {
	if statusCode != http.StatusTooManyRequests {
		return 0, false
	}
	return p.Wait, true
}

// Pacer spaces out consecutive webhook submissions within one run.
type Pacer struct {
	limiter *rate.Limiter
}

// Config holds pacer configuration.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// NewPacer creates a Pacer. A non-positive rate disables pacing.
func NewPacer(cfg Config) *Pacer {
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(r, burst)}
}

// Wait blocks until the next submission may proceed.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}
	return nil
}
