// Package ratelimit admits or rejects requests per client with a fixed window
// counter kept in a shared expiring store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const keyPrefix = "ratelimit:"

// Window is the state of a client's counter after one admission attempt.
type Window struct {
	Allowed bool
	Count   int64
	ResetIn time.Duration
}

// Counter atomically checks and increments the counter stored at key. A
// missing counter is created with a count of 1 expiring after window; a
// counter below limit is incremented; a counter at limit is left untouched
// and the attempt is rejected.
type Counter interface {
	Hit(ctx context.Context, key string, limit int64, window time.Duration) (Window, error)
}

// Decision is the outcome of Limiter.Allow.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetIn   time.Duration
}

type Limiter struct {
	counter Counter
	limit   int64
	window  time.Duration
	timeout time.Duration
}

func New(counter Counter, limit int64, window, timeout time.Duration) *Limiter {
	return &Limiter{
		counter: counter,
		limit:   limit,
		window:  window,
		timeout: timeout,
	}
}

// Allow consumes one request from the window of clientID. When the counting
// store cannot be reached the request is neither admitted nor rejected:
// Allow returns entity.ErrCacheUnavailable.
func (l *Limiter) Allow(ctx context.Context, clientID string) (Decision, error) {
	const op = "ratelimit.Limiter.Allow"

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	w, err := l.counter.Hit(ctx, keyPrefix+clientID, l.limit, l.window)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Decision{}, fmt.Errorf("%s: %w", op, err)
		}
		return Decision{}, fmt.Errorf("%s: %w: %w", op, entity.ErrCacheUnavailable, err)
	}

	d := Decision{
		Allowed: w.Allowed,
		Limit:   l.limit,
		ResetIn: w.ResetIn,
	}
	if w.Allowed {
		d.Remaining = max(l.limit-w.Count, 0)
	}

	return d, nil
}
