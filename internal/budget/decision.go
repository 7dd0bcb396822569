package budget

// Reason classifies why an admission request was rejected.
type Reason string

const (
	ReasonNoLimits      Reason = "no_limits"
	ReasonPerTxExceeded Reason = "per_tx_exceeded"
	ReasonDailyExceeded Reason = "daily_exceeded"
)

// Decision is the outcome of classifying a requested amount against an
// agent's limits and current daily spend.
type Decision struct {
	OK bool
	// Reason is set when OK is false.
	Reason Reason
	// AutoApprove is set when OK is true: true means the amount is at or
	// under the approval threshold, false means human approval is needed.
	AutoApprove bool
	// DailyLimitCents is carried through for the subsequent reservation.
	DailyLimitCents int64
}

// Check classifies a requested amount. It is a pure function: the daily-spend
// comparison here is only a fast-path rejection to avoid pointless
// reservation attempts, and the atomic ledger reservation remains the sole
// authority on acceptance.
func Check(limits *Limits, currentDailySpendCents, amountCents int64) Decision {
	if limits == nil {
		return Decision{Reason: ReasonNoLimits}
	}
	if amountCents > limits.PerTxLimitCents {
		return Decision{Reason: ReasonPerTxExceeded}
	}
	if currentDailySpendCents+amountCents > limits.DailyLimitCents {
		return Decision{Reason: ReasonDailyExceeded}
	}
	return Decision{
		OK:              true,
		AutoApprove:     amountCents <= limits.ApprovalThresholdCents,
		DailyLimitCents: limits.DailyLimitCents,
	}
}
