package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentpay/agentpay/internal/coord"
)

func newTestLedger(t *testing.T) (*Ledger, *coord.Memory) {
	t.Helper()
	store := coord.NewMemory()
	l := NewLedger(store)
	return l, store
}

func TestReserveWithinLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	ok, total, err := l.Reserve(ctx, "agent-1", 5000, 100000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("reservation within limit should succeed")
	}
	if total != 5000 {
		t.Errorf("total = %d, want 5000", total)
	}

	spend, err := l.DailySpend(ctx, "agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spend != 5000 {
		t.Errorf("daily spend = %d, want 5000", spend)
	}
}

func TestReserveRejectsOverLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	if ok, _, _ := l.Reserve(ctx, "agent-1", 90000, 100000); !ok {
		t.Fatal("first reservation should succeed")
	}

	ok, _, err := l.Reserve(ctx, "agent-1", 20000, 100000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("reservation over limit should be rejected")
	}

	// The rejected attempt must leave no trace on the counter.
	spend, _ := l.DailySpend(ctx, "agent-1")
	if spend != 90000 {
		t.Errorf("daily spend = %d, want 90000", spend)
	}
}

func TestReserveExactlyAtLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	ok, total, err := l.Reserve(ctx, "agent-1", 100000, 100000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || total != 100000 {
		t.Fatalf("reservation filling the cap exactly should succeed, got ok=%v total=%d", ok, total)
	}
}

// Concurrent reservations summing past the cap: at least one must fail and
// the final counter must stay at or under the limit.
func TestReserveConcurrentNeverOverspends(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	const (
		limit   = 100000
		amount  = 15000
		callers = 10 // 10 * 15000 = 150000 > limit
	)

	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, _, err := l.Reserve(ctx, "agent-1", amount, limit)
			if err != nil {
				t.Errorf("reserve error: %v", err)
			}
			results[i] = ok
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, ok := range results {
		if ok {
			accepted++
		}
	}
	// 6 * 15000 = 90000 fits; a 7th would overshoot the cap.
	if accepted != 6 {
		t.Errorf("accepted = %d, want 6", accepted)
	}

	spend, _ := l.DailySpend(ctx, "agent-1")
	if spend > limit {
		t.Errorf("final ledger %d exceeds limit %d", spend, limit)
	}
	if spend != int64(accepted)*amount {
		t.Errorf("ledger %d does not match %d accepted reservations", spend, accepted)
	}
}

func TestReleaseReturnsReservation(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	l.Reserve(ctx, "agent-1", 30000, 100000)
	total, err := l.Release(ctx, "agent-1", 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 20000 {
		t.Errorf("total after release = %d, want 20000", total)
	}
}

func TestReleaseClampsAtZero(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	// Release against a counter that was already reset.
	total, err := l.Release(ctx, "agent-1", 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}

	spend, _ := l.DailySpend(ctx, "agent-1")
	if spend != 0 {
		t.Errorf("daily spend = %d, want 0 after clamp", spend)
	}
}

func TestSpendKeyRollsOverAtMidnight(t *testing.T) {
	ctx := context.Background()
	store := coord.NewMemory()
	l := NewLedger(store)

	day1 := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return day1 }
	store.SetClock(func() time.Time { return day1 })

	if ok, _, _ := l.Reserve(ctx, "agent-1", 40000, 100000); !ok {
		t.Fatal("reservation should succeed")
	}

	// Next day: the counter key changes, so spend starts at zero even
	// before the old key's TTL fires.
	day2 := day1.Add(2 * time.Hour)
	l.now = func() time.Time { return day2 }
	store.SetClock(func() time.Time { return day2 })

	spend, _ := l.DailySpend(ctx, "agent-1")
	if spend != 0 {
		t.Errorf("daily spend after rollover = %d, want 0", spend)
	}
}

func TestReserveSetsExpiryToMidnight(t *testing.T) {
	ctx := context.Background()
	store := coord.NewMemory()
	l := NewLedger(store)

	at := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return at }
	store.SetClock(func() time.Time { return at })

	l.Reserve(ctx, "agent-1", 100, 1000)

	ttl, err := store.TTL(ctx, spendKeyPrefix+"agent-1:2025-03-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl != 6*time.Hour {
		t.Errorf("ttl = %v, want 6h", ttl)
	}
}
