package budget

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/agentpay/agentpay/internal/coord"
)

const spendKeyPrefix = "agentpay:spend:"

// Ledger is the per-agent, per-UTC-day spend counter in the coordination
// store. Reserve is the sole authority on whether an amount fits under the
// daily cap; every other read of the counter is advisory.
type Ledger struct {
	store coord.Store
	now   func() time.Time // injectable clock for testing
}

// NewLedger creates a ledger on the given coordination store.
func NewLedger(store coord.Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// spendKey returns the counter key for the agent's current UTC day.
func (l *Ledger) spendKey(agentID string) string {
	return spendKeyPrefix + agentID + ":" + l.now().UTC().Format("2006-01-02")
}

// untilMidnightUTC returns the time remaining until the next UTC midnight,
// which is the counter's TTL so the ledger self-resets daily.
func (l *Ledger) untilMidnightUTC() time.Duration {
	now := l.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	d := midnight.Sub(now)
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Reserve atomically adds amountCents to today's counter. If the new total
// would exceed dailyLimitCents the increment is rolled back within the same
// atomic store operation and ok is false. The counter expires at the next
// UTC midnight.
func (l *Ledger) Reserve(ctx context.Context, agentID string, amountCents, dailyLimitCents int64) (ok bool, newTotal int64, err error) {
	ok, newTotal, err = l.store.BoundedIncr(ctx, l.spendKey(agentID), amountCents, dailyLimitCents, l.untilMidnightUTC())
	if err != nil {
		return false, 0, fmt.Errorf("reserving daily spend: %w", err)
	}
	return ok, newTotal, nil
}

// Release returns a previously reserved amount to the ledger. It is used
// only as compensation when the durable write following a reservation fails.
// A counter driven negative (already reset, or over-released) is clamped to
// zero with its expiry re-armed.
func (l *Ledger) Release(ctx context.Context, agentID string, amountCents int64) (int64, error) {
	key := l.spendKey(agentID)
	newTotal, err := l.store.DecrBy(ctx, key, amountCents)
	if err != nil {
		return 0, fmt.Errorf("releasing daily spend: %w", err)
	}
	if newTotal < 0 {
		if err := l.store.SetEx(ctx, key, "0", l.untilMidnightUTC()); err != nil {
			return 0, fmt.Errorf("clamping daily spend: %w", err)
		}
		return 0, nil
	}
	return newTotal, nil
}

// DailySpend returns today's reserved total for the agent. This is a plain
// read used only for the advisory pre-check in the admission decision; it
// never gates an actual reservation.
func (l *Ledger) DailySpend(ctx context.Context, agentID string) (int64, error) {
	v, ok, err := l.store.Get(ctx, l.spendKey(agentID))
	if err != nil {
		return 0, fmt.Errorf("reading daily spend: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing daily spend %q: %w", v, err)
	}
	return n, nil
}
