package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentpay/agentpay/internal/auth"
	"github.com/agentpay/agentpay/internal/coord"
)

func TestAllowWithinWindow(t *testing.T) {
	ctx := context.Background()
	l := New(coord.NewMemory(), 3, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(ctx, "agent-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, count, _ := l.Allow(ctx, "agent-1")
	if allowed {
		t.Fatal("4th request should be denied")
	}
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
}

func TestAllowSeparateAgents(t *testing.T) {
	ctx := context.Background()
	l := New(coord.NewMemory(), 1, time.Minute)

	if allowed, _, _ := l.Allow(ctx, "a"); !allowed {
		t.Fatal("first request for agent a should be allowed")
	}
	if allowed, _, _ := l.Allow(ctx, "a"); allowed {
		t.Fatal("second request for agent a should be denied")
	}
	if allowed, _, _ := l.Allow(ctx, "b"); !allowed {
		t.Fatal("agent b has its own window")
	}
}

func TestWindowResets(t *testing.T) {
	ctx := context.Background()
	store := coord.NewMemory()
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return start })

	l := New(store, 1, time.Minute)

	l.Allow(ctx, "agent-1")
	if allowed, _, _ := l.Allow(ctx, "agent-1"); allowed {
		t.Fatal("should be denied within the window")
	}

	store.SetClock(func() time.Time { return start.Add(61 * time.Second) })
	if allowed, _, _ := l.Allow(ctx, "agent-1"); !allowed {
		t.Fatal("should be allowed after the window expires")
	}
}

func TestMiddleware(t *testing.T) {
	l := New(coord.NewMemory(), 1, time.Minute)

	rejected := 0
	handler := Middleware(l, func(_ *http.Request, _ int64) { rejected++ })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	do := func(withAgent bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/payment-request", nil)
		if withAgent {
			ctx := auth.ContextWithAgent(req.Context(), &auth.Agent{ID: "agent-1"})
			req = req.WithContext(ctx)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(true); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}
	rec := do(true)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rejected != 1 {
		t.Errorf("onReject fired %d times, want 1", rejected)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("remaining header = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}

	// No agent in context: middleware passes through.
	if rec := do(false); rec.Code != http.StatusOK {
		t.Fatalf("unauthenticated request status = %d, want 200", rec.Code)
	}
}
