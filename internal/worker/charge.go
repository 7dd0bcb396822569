// Package worker holds the background job processors that run behind the
// queues: charge submission to the payment gateway and approval-email
// delivery. Both are written to be safe under at-least-once delivery by
// re-checking the transaction's durable status before acting.
package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/agentpay/agentpay/internal/audit"
	"github.com/agentpay/agentpay/internal/gateway"
	"github.com/agentpay/agentpay/internal/org"
	"github.com/agentpay/agentpay/internal/txn"
	"github.com/jackc/pgx/v5"
)

// TransactionStore is the slice of the transaction store the processors use.
type TransactionStore interface {
	GetByID(ctx context.Context, id string) (*txn.Transaction, error)
	UpdateStatus(ctx context.Context, id string, from, to txn.Status) (bool, error)
	MarkProcessing(ctx context.Context, id, stripeChargeID string) (bool, error)
}

// OrganizationStore resolves the organization a transaction bills against.
type OrganizationStore interface {
	GetByID(ctx context.Context, id string) (*org.Organization, error)
}

// Auditor records audit entries without failing the caller.
type Auditor interface {
	AppendBestEffort(ctx context.Context, e audit.Entry)
}

// ChargeProcessor submits approved transactions to the payment gateway.
type ChargeProcessor struct {
	txns    TransactionStore
	orgs    OrganizationStore
	gateway gateway.Gateway
	auditor Auditor
}

// NewChargeProcessor wires a charge processor.
func NewChargeProcessor(txns TransactionStore, orgs OrganizationStore, gw gateway.Gateway, auditor Auditor) *ChargeProcessor {
	return &ChargeProcessor{txns: txns, orgs: orgs, gateway: gw, auditor: auditor}
}

// Process handles one charge job. A transaction that is no longer approved
// is a stale or redelivered job and is dropped silently. An organization
// with no gateway customer cannot be charged, so the transaction is declined
// and the failure audited. Gateway errors propagate so the queue retries.
func (p *ChargeProcessor) Process(ctx context.Context, transactionID string) error {
	t, err := p.txns.GetByID(ctx, transactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		slog.Warn("charge job for unknown transaction", "transaction_id", transactionID)
		return nil
	}
	if err != nil {
		return err
	}
	if t.Status != txn.StatusApproved {
		return nil
	}

	o, err := p.orgs.GetByID(ctx, t.OrganizationID)
	if err != nil {
		return err
	}
	if o.StripeCustomerID == "" {
		if _, err := p.txns.UpdateStatus(ctx, t.ID, txn.StatusApproved, txn.StatusDeclined); err != nil {
			return err
		}
		p.auditor.AppendBestEffort(ctx, audit.Entry{
			AgentID:       t.AgentID,
			TransactionID: t.ID,
			Action:        "payment.failed",
			Details:       map[string]any{"reason": "no_stripe_customer"},
		})
		return nil
	}

	intentID, err := p.gateway.CreatePaymentIntent(ctx, gateway.IntentInput{
		AmountCents:   t.AmountCents,
		Currency:      t.Currency,
		CustomerID:    o.StripeCustomerID,
		TransactionID: t.ID,
	})
	if err != nil {
		return err
	}

	moved, err := p.txns.MarkProcessing(ctx, t.ID, intentID)
	if err != nil {
		return err
	}
	if !moved {
		// Lost a race with the webhook or a concurrent worker. The intent
		// carries the transaction id in metadata, so reconciliation is
		// possible from the gateway side.
		slog.Warn("charge submitted but transaction no longer approved",
			"transaction_id", t.ID, "intent_id", intentID)
	}
	return nil
}
