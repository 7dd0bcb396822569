package txn

import "testing"

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusDeclined, true},
		{StatusApproved, StatusProcessing, true},
		{StatusApproved, StatusDeclined, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusDeclined, true},

		{StatusPending, StatusProcessing, false},
		{StatusPending, StatusCompleted, false},
		{StatusApproved, StatusPending, false},
		{StatusApproved, StatusCompleted, false},
		{StatusCompleted, StatusDeclined, false},
		{StatusCompleted, StatusPending, false},
		{StatusDeclined, StatusApproved, false},
		{StatusDeclined, StatusCompleted, false},
	}

	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusDeclined} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusApproved, StatusProcessing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
