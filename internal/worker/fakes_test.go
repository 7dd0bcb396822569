package worker

import (
	"context"
	"fmt"

	"github.com/agentpay/agentpay/internal/approval"
	"github.com/agentpay/agentpay/internal/audit"
	"github.com/agentpay/agentpay/internal/gateway"
	"github.com/agentpay/agentpay/internal/org"
	"github.com/agentpay/agentpay/internal/txn"
	"github.com/jackc/pgx/v5"
)

type fakeTxnStore struct {
	txns       map[string]*txn.Transaction
	processing map[string]string // transaction id -> charge id
}

func newFakeTxnStore(txns ...*txn.Transaction) *fakeTxnStore {
	s := &fakeTxnStore{
		txns:       make(map[string]*txn.Transaction),
		processing: make(map[string]string),
	}
	for _, t := range txns {
		s.txns[t.ID] = t
	}
	return s
}

func (s *fakeTxnStore) GetByID(_ context.Context, id string) (*txn.Transaction, error) {
	t, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("getting transaction by id: %w", pgx.ErrNoRows)
	}
	return t, nil
}

func (s *fakeTxnStore) UpdateStatus(_ context.Context, id string, from, to txn.Status) (bool, error) {
	t, ok := s.txns[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	return true, nil
}

func (s *fakeTxnStore) MarkProcessing(_ context.Context, id, chargeID string) (bool, error) {
	t, ok := s.txns[id]
	if !ok || t.Status != txn.StatusApproved {
		return false, nil
	}
	t.Status = txn.StatusProcessing
	t.StripeChargeID = chargeID
	s.processing[id] = chargeID
	return true, nil
}

type fakeOrgStore struct {
	orgs map[string]*org.Organization
}

func newFakeOrgStore(orgs ...*org.Organization) *fakeOrgStore {
	s := &fakeOrgStore{orgs: make(map[string]*org.Organization)}
	for _, o := range orgs {
		s.orgs[o.ID] = o
	}
	return s
}

func (s *fakeOrgStore) GetByID(_ context.Context, id string) (*org.Organization, error) {
	o, ok := s.orgs[id]
	if !ok {
		return nil, fmt.Errorf("getting organization: %w", pgx.ErrNoRows)
	}
	return o, nil
}

type fakeGateway struct {
	intents []gateway.IntentInput
	err     error
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, in gateway.IntentInput) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.intents = append(g.intents, in)
	return fmt.Sprintf("pi_%d", len(g.intents)), nil
}

type fakeAuditor struct {
	entries []audit.Entry
}

func (a *fakeAuditor) AppendBestEffort(_ context.Context, e audit.Entry) {
	a.entries = append(a.entries, e)
}

type fakeIssuer struct {
	issued []approval.Action
}

func (i *fakeIssuer) Issue(_ context.Context, transactionID, organizationID string, action approval.Action) (string, string, error) {
	i.issued = append(i.issued, action)
	token := fmt.Sprintf("tok-%s-%s", action, transactionID)
	return token, "jti-" + token, nil
}

type fakeMailer struct {
	to       string
	subject  string
	body     string
	sendErr  error
	sent     int
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.to, m.subject, m.body = to, subject, body
	m.sent++
	return nil
}
