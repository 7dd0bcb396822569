// Package audit appends security-relevant events to the durable audit log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one audit record. TransactionID is empty for events not tied to a
// transaction (e.g. rate limiting).
type Entry struct {
	AgentID       string
	TransactionID string
	Action        string
	Details       map[string]any
}

// Store appends entries to the audit_logs table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an audit store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append writes one entry.
func (s *Store) Append(ctx context.Context, e Entry) error {
	var details []byte
	if e.Details != nil {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshaling audit details: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, agent_id, transaction_id, action, details)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)`,
		uuid.NewString(), e.AgentID, e.TransactionID, e.Action, details,
	)
	if err != nil {
		return fmt.Errorf("appending audit log: %w", err)
	}
	return nil
}

// AppendBestEffort writes one entry, logging instead of returning on failure.
// Used where secondary bookkeeping must never turn into a primary request
// failure (compensation paths, replay logging).
func (s *Store) AppendBestEffort(ctx context.Context, e Entry) {
	if err := s.Append(ctx, e); err != nil {
		slog.Error("audit append failed", "action", e.Action, "agent_id", e.AgentID, "error", err)
	}
}

// ListByOrganization returns recent audit entries for the dashboard.
func (s *Store) ListByOrganization(ctx context.Context, organizationID string, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT l.id, l.agent_id, COALESCE(l.transaction_id::text, ''), l.action, l.details, l.created_at
		 FROM audit_logs l
		 JOIN agents a ON a.id = l.agent_id
		 WHERE a.organization_id = $1
		 ORDER BY l.created_at DESC LIMIT $2`,
		organizationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit logs: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var (
			id, agentID, transactionID, action string
			details                            []byte
			createdAt                          time.Time
		)
		if err := rows.Scan(&id, &agentID, &transactionID, &action, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		entry := map[string]any{
			"id":         id,
			"agent_id":   agentID,
			"action":     action,
			"created_at": createdAt,
		}
		if transactionID != "" {
			entry["transaction_id"] = transactionID
		}
		if len(details) > 0 {
			var d map[string]any
			if err := json.Unmarshal(details, &d); err == nil {
				entry["details"] = d
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}
	return out, nil
}
