// Package coord wraps the shared coordination store used for daily-spend
// counters, approval-token state, and rate-limit windows. All cross-process
// atomicity in the system comes from the two check-and-mutate primitives
// defined here; everything else is plain key/value traffic.
package coord

import (
	"context"
	"time"
)

// Store is the coordination-store handle injected into every component that
// needs cross-process atomicity. Redis implements it in production; Memory
// implements it in-process for tests and single-node development.
type Store interface {
	// Get returns the value at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// SetEx stores value at key with the given TTL, overwriting any
	// previous value.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error

	// IncrBy atomically adds n to the integer at key (creating it at 0)
	// and returns the new value.
	IncrBy(ctx context.Context, key string, n int64) (int64, error)

	// DecrBy atomically subtracts n from the integer at key and returns
	// the new value, which may be negative.
	DecrBy(ctx context.Context, key string, n int64) (int64, error)

	// Expire sets the TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL reports the remaining TTL of key. A key with no expiry reports
	// -1; a missing key reports -2, mirroring the store's convention.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Del removes key.
	Del(ctx context.Context, key string) error

	// BoundedIncr atomically increments the integer at key by amount. If
	// the resulting total exceeds limit the increment is rolled back
	// inside the same atomic unit and ok is false; no concurrent caller
	// can observe the transient overshoot. On an accepted increment the
	// key's TTL is set to ttl.
	BoundedIncr(ctx context.Context, key string, amount, limit int64, ttl time.Duration) (ok bool, total int64, err error)

	// CompareAndSwap atomically replaces the value at key with new if the
	// current value equals old, re-arming the TTL. It reports the value
	// observed before the swap, whether the key existed, and whether the
	// swap happened. Exactly one of any set of concurrent callers with
	// the same old value wins.
	CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (prev string, found bool, swapped bool, err error)
}
