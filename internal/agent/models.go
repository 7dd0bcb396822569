package agent

import "time"

// Agent is an automated actor authorized to request payments, scoped to one
// organization. Identity is immutable; IsActive gates admission eligibility.
type Agent struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	APIKeyHash     string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateAgentInput holds the fields required to create a new agent.
type CreateAgentInput struct {
	ID             string
	OrganizationID string
	Name           string
	APIKeyHash     string
}
