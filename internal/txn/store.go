package txn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvalidTransition is returned when a status update names an edge the
// state machine does not permit.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store provides database operations for transactions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a transaction store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const txnColumns = `id, agent_id, organization_id, amount_cents, currency, status,
	COALESCE(purpose, ''), context, idempotency_key, COALESCE(stripe_charge_id, ''),
	created_at, completed_at`

// scanTxn scans one transaction row, handling the JSONB context column.
func scanTxn(scan func(dest ...any) error) (*Transaction, error) {
	t := &Transaction{}
	var contextJSON []byte
	err := scan(&t.ID, &t.AgentID, &t.OrganizationID, &t.AmountCents, &t.Currency,
		&t.Status, &t.Purpose, &contextJSON, &t.IdempotencyKey, &t.StripeChargeID,
		&t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &t.Context); err != nil {
			return nil, fmt.Errorf("unmarshaling context: %w", err)
		}
	}
	return t, nil
}

// Create inserts a new transaction. The unique (agent_id, idempotency_key)
// constraint is the durable dedup anchor; a violation surfaces as an error
// the caller treats as a concurrent duplicate.
func (s *Store) Create(ctx context.Context, in CreateInput) (*Transaction, error) {
	var contextJSON []byte
	if in.Context != nil {
		var err error
		contextJSON, err = json.Marshal(in.Context)
		if err != nil {
			return nil, fmt.Errorf("marshaling context: %w", err)
		}
	}

	t, err := scanTxn(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO transactions (id, agent_id, organization_id, amount_cents, currency, status, purpose, context, idempotency_key)
			 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
			 RETURNING `+txnColumns,
			in.ID, in.AgentID, in.OrganizationID, in.AmountCents, in.Currency,
			in.Status, in.Purpose, contextJSON, in.IdempotencyKey,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating transaction: %w", err)
	}
	return t, nil
}

// GetByID retrieves a transaction by its primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Transaction, error) {
	t, err := scanTxn(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+txnColumns+` FROM transactions WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting transaction by id: %w", err)
	}
	return t, nil
}

// GetByIdempotencyKey resolves a previously admitted request for the same
// agent and client-supplied key. This is the idempotency resolver: a hit is
// returned verbatim and the caller must not re-run admission. A miss returns
// pgx.ErrNoRows wrapped.
func (s *Store) GetByIdempotencyKey(ctx context.Context, agentID, key string) (*Transaction, error) {
	t, err := scanTxn(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+txnColumns+` FROM transactions WHERE agent_id = $1 AND idempotency_key = $2`,
			agentID, key,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting transaction by idempotency key: %w", err)
	}
	return t, nil
}

// UpdateStatus performs an optimistic transition: the row is written only if
// its current status still equals from. It reports whether a row changed, so
// callers can detect losing a race (webhook vs. approval link) without a
// transaction-level lock. Terminal transitions stamp completed_at.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	if !ValidTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	var tag string
	if to.Terminal() {
		tag = `UPDATE transactions SET status = $1, completed_at = now() WHERE id = $2 AND status = $3`
	} else {
		tag = `UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3`
	}
	res, err := s.pool.Exec(ctx, tag, to, id, from)
	if err != nil {
		return false, fmt.Errorf("updating transaction status: %w", err)
	}
	return res.RowsAffected() == 1, nil
}

// MarkProcessing records the gateway charge id and moves approved ->
// processing in one optimistic write.
func (s *Store) MarkProcessing(ctx context.Context, id, stripeChargeID string) (bool, error) {
	res, err := s.pool.Exec(ctx,
		`UPDATE transactions SET status = $1, stripe_charge_id = $2 WHERE id = $3 AND status = $4`,
		StatusProcessing, stripeChargeID, id, StatusApproved,
	)
	if err != nil {
		return false, fmt.Errorf("marking transaction processing: %w", err)
	}
	return res.RowsAffected() == 1, nil
}

// GetForAgent retrieves a transaction only if it belongs to the agent.
func (s *Store) GetForAgent(ctx context.Context, id, agentID string) (*Transaction, error) {
	t, err := scanTxn(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+txnColumns+` FROM transactions WHERE id = $1 AND agent_id = $2`,
			id, agentID,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting transaction for agent: %w", err)
	}
	return t, nil
}

// ListByOrganization returns recent transactions for an organization,
// optionally filtered by status.
func (s *Store) ListByOrganization(ctx context.Context, organizationID string, params ListParams) ([]*Transaction, error) {
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if params.Status != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+txnColumns+` FROM transactions
			 WHERE organization_id = $1 AND status = $2
			 ORDER BY created_at DESC LIMIT $3`,
			organizationID, params.Status, limit,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+txnColumns+` FROM transactions
			 WHERE organization_id = $1
			 ORDER BY created_at DESC LIMIT $2`,
			organizationID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		t, err := scanTxn(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}
	return txns, nil
}
