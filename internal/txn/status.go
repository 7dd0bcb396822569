package txn

// Status is a transaction's lifecycle state.
type Status string

const (
	// StatusPending awaits a human approval decision.
	StatusPending Status = "pending"
	// StatusApproved is admitted (auto or via link) with budget reserved.
	StatusApproved Status = "approved"
	// StatusProcessing has a charge submitted to the payment gateway.
	StatusProcessing Status = "processing"
	// StatusCompleted is terminal: the charge settled.
	StatusCompleted Status = "completed"
	// StatusDeclined is terminal: declined by a human, the gateway, or a
	// failed charge.
	StatusDeclined Status = "declined"
)

// Terminal reports whether no further transition is permitted out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDeclined
}

// transitions enumerates the permitted state machine edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusDeclined},
	StatusApproved:   {StatusProcessing, StatusDeclined},
	StatusProcessing: {StatusCompleted, StatusDeclined},
}

// ValidTransition reports whether from -> to is a permitted edge.
func ValidTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
