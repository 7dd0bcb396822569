package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentpay/agentpay/internal/coord"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const limitsCachePrefix = "agentpay:budget:"

// ErrNoLimits is returned when an agent has no budget_limits record.
var ErrNoLimits = errors.New("no budget limits configured for agent")

// LimitsStore reads and writes per-agent budget limits. Reads go through a
// short-TTL cache in the coordination store to keep the hot admission path
// off the database; the staleness window equals the cache TTL.
type LimitsStore struct {
	pool     *pgxpool.Pool
	cache    coord.Store
	cacheTTL time.Duration
}

// NewLimitsStore creates a limits store backed by the given pool and cache.
func NewLimitsStore(pool *pgxpool.Pool, cache coord.Store, cacheTTL time.Duration) *LimitsStore {
	return &LimitsStore{pool: pool, cache: cache, cacheTTL: cacheTTL}
}

// Get returns the agent's limits, from cache when fresh. It returns
// ErrNoLimits when the agent has no record.
func (s *LimitsStore) Get(ctx context.Context, agentID string) (*Limits, error) {
	cacheKey := limitsCachePrefix + agentID

	if cached, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
		var l Limits
		if jsonErr := json.Unmarshal([]byte(cached), &l); jsonErr == nil {
			return &l, nil
		}
		// Unparseable cache entries fall through to the database.
	}

	l := &Limits{}
	err := s.pool.QueryRow(ctx,
		`SELECT daily_limit_cents, per_tx_limit_cents, approval_threshold_cents
		 FROM budget_limits WHERE agent_id = $1`,
		agentID,
	).Scan(&l.DailyLimitCents, &l.PerTxLimitCents, &l.ApprovalThresholdCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoLimits
	}
	if err != nil {
		return nil, fmt.Errorf("getting budget limits: %w", err)
	}

	if data, jsonErr := json.Marshal(l); jsonErr == nil {
		// Cache failures only cost the next read a DB round trip.
		_ = s.cache.SetEx(ctx, cacheKey, string(data), s.cacheTTL)
	}
	return l, nil
}

// Set upserts the agent's limits and drops the cache entry so the change is
// visible immediately rather than after the TTL.
func (s *LimitsStore) Set(ctx context.Context, in SetLimitsInput) (*Limits, error) {
	l := &Limits{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO budget_limits (agent_id, daily_limit_cents, per_tx_limit_cents, approval_threshold_cents)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (agent_id)
		 DO UPDATE SET daily_limit_cents = EXCLUDED.daily_limit_cents,
		               per_tx_limit_cents = EXCLUDED.per_tx_limit_cents,
		               approval_threshold_cents = EXCLUDED.approval_threshold_cents
		 RETURNING daily_limit_cents, per_tx_limit_cents, approval_threshold_cents`,
		in.AgentID, in.DailyLimitCents, in.PerTxLimitCents, in.ApprovalThresholdCents,
	).Scan(&l.DailyLimitCents, &l.PerTxLimitCents, &l.ApprovalThresholdCents)
	if err != nil {
		return nil, fmt.Errorf("upserting budget limits: %w", err)
	}

	_ = s.cache.Del(ctx, limitsCachePrefix+in.AgentID)
	return l, nil
}
