package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentpay/agentpay/internal/audit"
	"github.com/agentpay/agentpay/internal/budget"
	"github.com/agentpay/agentpay/internal/txn"
	"github.com/jackc/pgx/v5"
)

// fakeTxnStore is an in-memory TransactionStore with the same optimistic
// update semantics as the Postgres-backed store.
type fakeTxnStore struct {
	mu        sync.Mutex
	txns      map[string]*txn.Transaction
	createErr error
}

func newFakeTxnStore() *fakeTxnStore {
	return &fakeTxnStore{txns: make(map[string]*txn.Transaction)}
}

func (s *fakeTxnStore) add(t *txn.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[t.ID] = t
}

func (s *fakeTxnStore) Create(_ context.Context, in txn.CreateInput) (*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	for _, t := range s.txns {
		if t.AgentID == in.AgentID && t.IdempotencyKey == in.IdempotencyKey {
			return nil, fmt.Errorf("creating transaction: duplicate key")
		}
	}
	t := &txn.Transaction{
		ID:             in.ID,
		AgentID:        in.AgentID,
		OrganizationID: in.OrganizationID,
		AmountCents:    in.AmountCents,
		Currency:       in.Currency,
		Status:         in.Status,
		Purpose:        in.Purpose,
		Context:        in.Context,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	s.txns[t.ID] = t
	return t, nil
}

func (s *fakeTxnStore) GetByID(_ context.Context, id string) (*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("getting transaction by id: %w", pgx.ErrNoRows)
	}
	return t, nil
}

func (s *fakeTxnStore) GetByIdempotencyKey(_ context.Context, agentID, key string) (*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txns {
		if t.AgentID == agentID && t.IdempotencyKey == key {
			return t, nil
		}
	}
	return nil, fmt.Errorf("getting transaction by idempotency key: %w", pgx.ErrNoRows)
}

func (s *fakeTxnStore) UpdateStatus(_ context.Context, id string, from, to txn.Status) (bool, error) {
	if !txn.ValidTransition(from, to) {
		return false, txn.ErrInvalidTransition
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	if to.Terminal() {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	return true, nil
}

func (s *fakeTxnStore) GetForAgent(_ context.Context, id, agentID string) (*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok || t.AgentID != agentID {
		return nil, fmt.Errorf("getting transaction for agent: %w", pgx.ErrNoRows)
	}
	return t, nil
}

func (s *fakeTxnStore) ListByOrganization(_ context.Context, organizationID string, params txn.ListParams) ([]*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*txn.Transaction
	for _, t := range s.txns {
		if t.OrganizationID != organizationID {
			continue
		}
		if params.Status != "" && t.Status != params.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// fakeLimits returns a fixed limits record, or ErrNoLimits when nil.
type fakeLimits struct {
	limits *budget.Limits
	set    []budget.SetLimitsInput
}

func (f *fakeLimits) Get(_ context.Context, _ string) (*budget.Limits, error) {
	if f.limits == nil {
		return nil, budget.ErrNoLimits
	}
	return f.limits, nil
}

func (f *fakeLimits) Set(_ context.Context, in budget.SetLimitsInput) (*budget.Limits, error) {
	f.set = append(f.set, in)
	return &budget.Limits{
		DailyLimitCents:        in.DailyLimitCents,
		PerTxLimitCents:        in.PerTxLimitCents,
		ApprovalThresholdCents: in.ApprovalThresholdCents,
	}, nil
}

// fakeAuditor records entries in memory.
type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *fakeAuditor) AppendBestEffort(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *fakeAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

func (a *fakeAuditor) last() *audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return nil
	}
	return &a.entries[len(a.entries)-1]
}

// fakeQueue records enqueued jobs per queue.
type fakeQueue struct {
	mu         sync.Mutex
	jobs       map[string][]string
	enqueueErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string][]string)}
}

func (q *fakeQueue) Enqueue(_ context.Context, queue, transactionID string) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[queue] = append(q.jobs[queue], transactionID)
	return nil
}

func (q *fakeQueue) count(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs[queue])
}
