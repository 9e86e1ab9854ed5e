// Package fetch runs upstream calls under the service's rate-limit and concurrency
// discipline: bounded retries on 429 responses, fixed-size batch waves and
// settle-all task groups.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netsummary/internal/metrics"
	"netsummary/internal/upstream"
)

// ErrRetriesExhausted is returned when every attempt was rate limited
var ErrRetriesExhausted = errors.New("retries exhausted")

// jitterFraction is the largest random extension of a backoff delay
const jitterFraction = 0.2

// Call is a single upstream request
type Call func(ctx context.Context) (interface{}, error)

// Retrier retries calls that fail with a rate-limit response
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Sleep waits for d or until ctx is done
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns a value in [0, 1)
	Jitter func() float64

	logger zerolog.Logger
}

// NewRetrier creates a retrier with a real clock
func NewRetrier(maxAttempts int, baseDelay, maxDelay time.Duration) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Retrier{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		Sleep:       sleepContext,
		Jitter:      rand.Float64,
		logger:      log.With().Str("component", "retry").Logger(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delay returns the wait before retry number attempt (0-based)
func (r *Retrier) Delay(attempt int, retryAfter time.Duration) time.Duration {
	d := r.MaxDelay
	if attempt < 32 {
		if exp := r.BaseDelay << uint(attempt); exp > 0 && exp < r.MaxDelay {
			d = exp
		}
	}

	if r.Jitter != nil {
		d += time.Duration(float64(d) * jitterFraction * r.Jitter())
	}
	if d > r.MaxDelay {
		d = r.MaxDelay
	}

	if retryAfter > d {
		d = min(retryAfter, r.MaxDelay)
	}
	return d
}

// Do invokes fn, retrying while it is rate limited and attempts remain. Any other
// error is returned at once.
func (r *Retrier) Do(ctx context.Context, label string, fn Call) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !upstream.IsRateLimited(err) {
			return nil, err
		}
		lastErr = err

		if attempt == r.MaxAttempts-1 {
			break
		}

		delay := r.Delay(attempt, upstream.RetryAfter(err))
		metrics.RetryAttempts.WithLabelValues(label).Inc()
		r.logger.Debug().
			Str("label", label).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Rate limited, backing off")

		if err := r.Sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
	}

	metrics.RetriesExhausted.WithLabelValues(label).Inc()
	return nil, fmt.Errorf("%s: %w after %d attempts: %w", label, ErrRetriesExhausted, r.MaxAttempts, lastErr)
}

// Optional is Do for non-critical call sites: failures are logged and reported
// as absent data.
func (r *Retrier) Optional(ctx context.Context, label string, fn Call) (interface{}, bool) {
	v, err := r.Do(ctx, label, fn)
	if err != nil {
		r.logger.Warn().Err(err).Str("label", label).Msg("Optional fetch failed")
		return nil, false
	}
	return v, true
}
