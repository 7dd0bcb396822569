package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentpay/agentpay/internal/coord"
)

func newTestIssuer(t *testing.T) (*Issuer, *coord.Memory) {
	t.Helper()
	store := coord.NewMemory()
	return NewIssuer("test-secret", store, time.Hour), store
}

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer(t)

	token, jti, err := issuer.Issue(ctx, "tx-1", "org-1", ActionApprove)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jti == "" {
		t.Fatal("expected non-empty jti")
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.TransactionID != "tx-1" {
		t.Errorf("transaction id = %q, want tx-1", claims.TransactionID)
	}
	if claims.OrganizationID != "org-1" {
		t.Errorf("organization id = %q, want org-1", claims.OrganizationID)
	}
	if claims.Action != ActionApprove {
		t.Errorf("action = %q, want approve", claims.Action)
	}
	if claims.JTI() != jti {
		t.Errorf("jti = %q, want %q", claims.JTI(), jti)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	ctx := context.Background()
	store := coord.NewMemory()
	issuer := NewIssuer("secret-a", store, time.Hour)
	other := NewIssuer("secret-b", store, time.Hour)

	token, _, err := issuer.Issue(ctx, "tx-1", "org-1", ActionDecline)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	if _, err := issuer.Verify("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer(t)

	issued := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issued }

	token, _, err := issuer.Issue(ctx, "tx-1", "org-1", ActionApprove)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	issuer.now = func() time.Time { return issued.Add(time.Hour + time.Minute) }
	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestConsumeLifecycle(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer(t)

	_, jti, err := issuer.Issue(ctx, "tx-1", "org-1", ActionApprove)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := issuer.Consume(ctx, jti)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateUnused {
		t.Fatalf("first consume = %q, want unused", state)
	}

	state, err = issuer.Consume(ctx, jti)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateUsed {
		t.Fatalf("second consume = %q, want used", state)
	}
}

func TestConsumeMissing(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer(t)

	state, err := issuer.Consume(ctx, "never-issued")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateMissing {
		t.Fatalf("state = %q, want missing", state)
	}
}

func TestConsumeExpiredTokenIsMissing(t *testing.T) {
	ctx := context.Background()
	store := coord.NewMemory()
	issuer := NewIssuer("test-secret", store, time.Hour)

	issued := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issued }
	store.SetClock(func() time.Time { return issued })

	_, jti, err := issuer.Issue(ctx, "tx-1", "org-1", ActionApprove)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	later := issued.Add(2 * time.Hour)
	store.SetClock(func() time.Time { return later })

	state, err := issuer.Consume(ctx, jti)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != StateMissing {
		t.Fatalf("state = %q, want missing after TTL", state)
	}
}

// Two concurrent consumers of the same token: exactly one wins.
func TestConsumeExactlyOnce(t *testing.T) {
	ctx := context.Background()
	issuer, _ := newTestIssuer(t)

	_, jti, err := issuer.Issue(ctx, "tx-1", "org-1", ActionApprove)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	states := make([]State, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := issuer.Consume(ctx, jti)
			if err != nil {
				t.Errorf("consume error: %v", err)
			}
			states[i] = s
		}(i)
	}
	wg.Wait()

	unused, used := 0, 0
	for _, s := range states {
		switch s {
		case StateUnused:
			unused++
		case StateUsed:
			used++
		default:
			t.Errorf("unexpected state %q", s)
		}
	}
	if unused != 1 {
		t.Errorf("winners = %d, want exactly 1", unused)
	}
	if used != callers-1 {
		t.Errorf("replays = %d, want %d", used, callers-1)
	}
}
