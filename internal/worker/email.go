package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/agentpay/agentpay/internal/approval"
	"github.com/agentpay/agentpay/internal/notify"
	"github.com/agentpay/agentpay/internal/txn"
	"github.com/jackc/pgx/v5"
)

// TokenIssuer mints approval tokens for pending transactions.
type TokenIssuer interface {
	Issue(ctx context.Context, transactionID, organizationID string, action approval.Action) (token string, jti string, err error)
}

// EmailProcessor mails the organization admin an approve/decline link pair
// for a pending transaction.
type EmailProcessor struct {
	txns    TransactionStore
	orgs    OrganizationStore
	issuer  TokenIssuer
	mailer  notify.Mailer
	baseURL string
}

// NewEmailProcessor wires an approval-email processor. baseURL is the
// public base of the API, used to build the links.
func NewEmailProcessor(txns TransactionStore, orgs OrganizationStore, issuer TokenIssuer, mailer notify.Mailer, baseURL string) *EmailProcessor {
	return &EmailProcessor{
		txns:    txns,
		orgs:    orgs,
		issuer:  issuer,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Process handles one approval-email job. Transactions that are no longer
// pending were resolved while the job waited and are dropped. An org with no
// admin email has nowhere to send approvals, so the job is dropped with a
// warning rather than retried.
func (p *EmailProcessor) Process(ctx context.Context, transactionID string) error {
	t, err := p.txns.GetByID(ctx, transactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		slog.Warn("approval email job for unknown transaction", "transaction_id", transactionID)
		return nil
	}
	if err != nil {
		return err
	}
	if t.Status != txn.StatusPending {
		return nil
	}

	o, err := p.orgs.GetByID(ctx, t.OrganizationID)
	if err != nil {
		return err
	}
	if o.AdminEmail == "" {
		slog.Warn("organization has no admin email, dropping approval request",
			"organization_id", o.ID, "transaction_id", t.ID)
		return nil
	}

	approveToken, _, err := p.issuer.Issue(ctx, t.ID, t.OrganizationID, approval.ActionApprove)
	if err != nil {
		return err
	}
	declineToken, _, err := p.issuer.Issue(ctx, t.ID, t.OrganizationID, approval.ActionDecline)
	if err != nil {
		return err
	}

	subject, body := notify.ApprovalEmail(
		t.AmountCents,
		t.Purpose,
		p.baseURL+"/v1/approve/"+approveToken,
		p.baseURL+"/v1/decline/"+declineToken,
	)
	return p.mailer.Send(ctx, o.AdminEmail, subject, body)
}
