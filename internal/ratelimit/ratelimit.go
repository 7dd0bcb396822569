// Package ratelimit enforces a per-agent request ceiling using a fixed
// window counter in the coordination store, the same counter-with-TTL
// pattern as the daily-spend ledger. Unlike the ledger it does not need a
// check-and-mutate primitive: slight over-admission at a window boundary is
// acceptable here, overspend of budget is not.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/agentpay/agentpay/internal/coord"
)

const rateKeyPrefix = "agentpay:rate:"

// Limiter counts requests per agent in fixed windows.
type Limiter struct {
	store    coord.Store
	requests int
	window   time.Duration
}

// New creates a Limiter allowing requests per window for each agent.
func New(store coord.Store, requests int, window time.Duration) *Limiter {
	return &Limiter{store: store, requests: requests, window: window}
}

// Allow counts one request for the agent and reports whether it is within
// the window's budget, plus the count observed.
func (l *Limiter) Allow(ctx context.Context, agentID string) (bool, int64, error) {
	key := rateKeyPrefix + agentID
	count, err := l.store.IncrBy(ctx, key, 1)
	if err != nil {
		return false, 0, fmt.Errorf("counting request: %w", err)
	}
	if count == 1 {
		if err := l.store.Expire(ctx, key, l.window); err != nil {
			return false, 0, fmt.Errorf("arming window expiry: %w", err)
		}
	}
	return count <= int64(l.requests), count, nil
}

// Limit returns the configured ceiling.
func (l *Limiter) Limit() int { return l.requests }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }
