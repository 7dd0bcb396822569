package budget

// Limits holds the per-agent spending caps, in cents. Exactly one record
// exists per agent; an agent without a record cannot spend at all.
type Limits struct {
	DailyLimitCents        int64 `json:"daily_limit_cents"`
	PerTxLimitCents        int64 `json:"per_tx_limit_cents"`
	ApprovalThresholdCents int64 `json:"approval_threshold_cents"`
}

// SetLimitsInput holds the fields for creating or replacing an agent's limits.
type SetLimitsInput struct {
	AgentID                string `json:"agent_id"`
	DailyLimitCents        int64  `json:"daily_limit_cents"`
	PerTxLimitCents        int64  `json:"per_tx_limit_cents"`
	ApprovalThresholdCents int64  `json:"approval_threshold_cents"`
}
