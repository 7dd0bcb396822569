package api

import (
	"context"

	"github.com/agentpay/agentpay/internal/agent"
	"github.com/agentpay/agentpay/internal/approval"
	"github.com/agentpay/agentpay/internal/audit"
	"github.com/agentpay/agentpay/internal/budget"
	"github.com/agentpay/agentpay/internal/org"
	"github.com/agentpay/agentpay/internal/txn"
)

// The handlers depend on narrow interfaces rather than the concrete stores so
// tests can drive the orchestration paths with in-memory fakes.

// TransactionStore is the slice of the transaction store the handlers use.
type TransactionStore interface {
	Create(ctx context.Context, in txn.CreateInput) (*txn.Transaction, error)
	GetByID(ctx context.Context, id string) (*txn.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, agentID, key string) (*txn.Transaction, error)
	UpdateStatus(ctx context.Context, id string, from, to txn.Status) (bool, error)
	GetForAgent(ctx context.Context, id, agentID string) (*txn.Transaction, error)
	ListByOrganization(ctx context.Context, organizationID string, params txn.ListParams) ([]*txn.Transaction, error)
}

// LimitsProvider resolves and updates an agent's budget limits.
type LimitsProvider interface {
	Get(ctx context.Context, agentID string) (*budget.Limits, error)
	Set(ctx context.Context, in budget.SetLimitsInput) (*budget.Limits, error)
}

// SpendLedger reserves and releases daily spend.
type SpendLedger interface {
	Reserve(ctx context.Context, agentID string, amountCents, dailyLimitCents int64) (bool, int64, error)
	Release(ctx context.Context, agentID string, amountCents int64) (int64, error)
	DailySpend(ctx context.Context, agentID string) (int64, error)
}

// Auditor records audit entries without failing the caller.
type Auditor interface {
	AppendBestEffort(ctx context.Context, e audit.Entry)
}

// Enqueuer hands jobs to the background queues.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, transactionID string) error
}

// TokenConsumer verifies and consumes approval tokens.
type TokenConsumer interface {
	Verify(token string) (*approval.Claims, error)
	Consume(ctx context.Context, jti string) (approval.State, error)
}

// OrganizationStore resolves organizations for dashboard login.
type OrganizationStore interface {
	GetByAdminEmail(ctx context.Context, email string) (*org.Organization, error)
}

// AgentAdmin is the slice of the agent store the dashboard uses.
type AgentAdmin interface {
	Create(ctx context.Context, in agent.CreateAgentInput) (*agent.Agent, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]*agent.Agent, error)
	BelongsTo(ctx context.Context, agentID, organizationID string) (bool, error)
}
