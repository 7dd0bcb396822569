package org

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Organization owns agents and receives approval emails for their pending
// payments.
type Organization struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	AdminEmail       string    `json:"admin_email"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Store provides database operations for organizations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an organization store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetByID retrieves an organization by its primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Organization, error) {
	o := &Organization{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(admin_email, ''), COALESCE(stripe_customer_id, ''), created_at
		 FROM organizations WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.Name, &o.AdminEmail, &o.StripeCustomerID, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting organization by id: %w", err)
	}
	return o, nil
}

// GetByAdminEmail retrieves the organization whose admin owns the given
// email, used by the dashboard magic-link login.
func (s *Store) GetByAdminEmail(ctx context.Context, email string) (*Organization, error) {
	o := &Organization{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(admin_email, ''), COALESCE(stripe_customer_id, ''), created_at
		 FROM organizations WHERE admin_email = $1`,
		email,
	).Scan(&o.ID, &o.Name, &o.AdminEmail, &o.StripeCustomerID, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting organization by admin email: %w", err)
	}
	return o, nil
}

// Create inserts a new organization and returns the created record.
func (s *Store) Create(ctx context.Context, id, name, adminEmail, stripeCustomerID string) (*Organization, error) {
	o := &Organization{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO organizations (id, name, admin_email, stripe_customer_id)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		 RETURNING id, name, COALESCE(admin_email, ''), COALESCE(stripe_customer_id, ''), created_at`,
		id, name, adminEmail, stripeCustomerID,
	).Scan(&o.ID, &o.Name, &o.AdminEmail, &o.StripeCustomerID, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating organization: %w", err)
	}
	return o, nil
}
