package agent

import (
	"context"

	"github.com/agentpay/agentpay/internal/auth"
)

// AuthAdapter adapts Store to the auth.AgentLookup interface.
type AuthAdapter struct {
	store *Store
}

// NewAuthAdapter wraps the given store for use by the auth service.
func NewAuthAdapter(store *Store) *AuthAdapter {
	return &AuthAdapter{store: store}
}

// GetByKeyHash resolves an API key hash to an authenticated agent.
func (a *AuthAdapter) GetByKeyHash(ctx context.Context, hash string) (*auth.Agent, error) {
	ag, err := a.store.GetByKeyHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return &auth.Agent{
		ID:             ag.ID,
		OrganizationID: ag.OrganizationID,
		Name:           ag.Name,
	}, nil
}
