package notify

import (
	"strings"
	"testing"
)

func TestDollars(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{100, "$1.00"},
		{12345, "$123.45"},
		{100000, "$1000.00"},
	}
	for _, tt := range tests {
		if got := Dollars(tt.cents); got != tt.want {
			t.Errorf("Dollars(%d) = %s, want %s", tt.cents, got, tt.want)
		}
	}
}

func TestApprovalEmail(t *testing.T) {
	subject, body := ApprovalEmail(12345, "gpu hours",
		"http://api/v1/approve/tok-a", "http://api/v1/decline/tok-d")

	if !strings.Contains(subject, "$123.45") {
		t.Errorf("subject = %q", subject)
	}
	for _, want := range []string{"$123.45", "gpu hours", "http://api/v1/approve/tok-a", "http://api/v1/decline/tok-d"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestApprovalEmailWithoutPurpose(t *testing.T) {
	_, body := ApprovalEmail(500, "", "http://a", "http://d")
	if !strings.Contains(body, "(not given)") {
		t.Errorf("body = %q", body)
	}
}

func TestLoginEmail(t *testing.T) {
	subject, body := LoginEmail("Example Org", "http://api/v1/dashboard/magic-login?token=tok")
	if !strings.Contains(subject, "Sign in") {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "Example Org") || !strings.Contains(body, "magic-login?token=tok") {
		t.Errorf("body = %q", body)
	}
}
