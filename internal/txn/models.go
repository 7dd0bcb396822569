package txn

import "time"

// Transaction is one payment request and its lifecycle.
type Transaction struct {
	ID             string         `json:"id"`
	AgentID        string         `json:"agent_id"`
	OrganizationID string         `json:"organization_id"`
	AmountCents    int64          `json:"amount_cents"`
	Currency       string         `json:"currency"`
	Status         Status         `json:"status"`
	Purpose        string         `json:"purpose,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	StripeChargeID string         `json:"stripe_charge_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// CreateInput holds the fields for inserting a new transaction.
type CreateInput struct {
	ID             string
	AgentID        string
	OrganizationID string
	AmountCents    int64
	Currency       string
	Status         Status
	Purpose        string
	Context        map[string]any
	IdempotencyKey string
}

// ListParams filters an organization's transaction listing.
type ListParams struct {
	Status Status
	Limit  int
}
