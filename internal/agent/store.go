package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for agents.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an agent store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new active agent and returns the created record.
func (s *Store) Create(ctx context.Context, in CreateAgentInput) (*Agent, error) {
	a := &Agent{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO agents (id, organization_id, name, api_key_hash, is_active)
		 VALUES ($1, $2, $3, $4, true)
		 RETURNING id, organization_id, name, api_key_hash, is_active, created_at`,
		in.ID, in.OrganizationID, in.Name, in.APIKeyHash,
	).Scan(&a.ID, &a.OrganizationID, &a.Name, &a.APIKeyHash, &a.IsActive, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	return a, nil
}

// GetByKeyHash retrieves an active agent by its API key hash, used for
// authentication. Inactive agents do not authenticate.
func (s *Store) GetByKeyHash(ctx context.Context, hash string) (*Agent, error) {
	a := &Agent{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, api_key_hash, is_active, created_at
		 FROM agents WHERE api_key_hash = $1 AND is_active = true`,
		hash,
	).Scan(&a.ID, &a.OrganizationID, &a.Name, &a.APIKeyHash, &a.IsActive, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting agent by key hash: %w", err)
	}
	return a, nil
}

// GetByID retrieves an agent by its primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Agent, error) {
	a := &Agent{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, api_key_hash, is_active, created_at
		 FROM agents WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.OrganizationID, &a.Name, &a.APIKeyHash, &a.IsActive, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting agent by id: %w", err)
	}
	return a, nil
}

// BelongsTo reports whether the agent exists within the organization.
func (s *Store) BelongsTo(ctx context.Context, agentID, organizationID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM agents WHERE id = $1 AND organization_id = $2`,
		agentID, organizationID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking agent ownership: %w", err)
	}
	return true, nil
}

// ListByOrganization returns the organization's agents, newest first.
func (s *Store) ListByOrganization(ctx context.Context, organizationID string) ([]*Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, name, api_key_hash, is_active, created_at
		 FROM agents WHERE organization_id = $1
		 ORDER BY created_at DESC, id DESC`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a := &Agent{}
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.APIKeyHash, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

// SetActive flips the agent's admission eligibility.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE agents SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("updating agent active flag: %w", err)
	}
	return nil
}
