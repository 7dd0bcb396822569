// Package approval implements the single-use, time-bounded credentials that
// gate human approval of pending transactions. A token is a signed JWT whose
// jti doubles as the key of a one-shot state flag in the coordination store;
// the signature proves the link is genuine, the flag makes it single-use.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentpay/agentpay/internal/coord"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenKeyPrefix = "agentpay:approval_token:"

// Action is the decision a token carries.
type Action string

const (
	ActionApprove Action = "approve"
	ActionDecline Action = "decline"
)

// State is the store-side lifecycle state of a token's jti.
type State string

const (
	// StateUnused means this call won the consumption race.
	StateUnused State = "unused"
	// StateUsed means the token was consumed earlier (a replay).
	StateUsed State = "used"
	// StateMissing covers both never-issued and naturally expired tokens.
	StateMissing State = "missing"
)

// ErrInvalidToken is returned by Verify for any token that fails signature,
// expiry, or shape checks. The distinction is deliberately not surfaced.
var ErrInvalidToken = errors.New("invalid or expired approval token")

// Claims is the payload embedded in an approval token.
type Claims struct {
	jwt.RegisteredClaims
	TransactionID  string `json:"transaction_id"`
	OrganizationID string `json:"organization_id"`
	Action         Action `json:"action"`
}

// JTI returns the token's unique id, the consumption key in the store.
func (c *Claims) JTI() string {
	return c.ID
}

// Issuer mints, verifies, and consumes approval tokens.
type Issuer struct {
	secret []byte
	store  coord.Store
	ttl    time.Duration
	now    func() time.Time // injectable clock for testing
}

// NewIssuer creates an Issuer signing with secret and recording token state
// in store. ttl is the validity window of issued tokens.
func NewIssuer(secret string, store coord.Store, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		store:  store,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a signed token authorizing the given action on a transaction
// and records its jti as unused in the store with a matching TTL. The two
// tokens of a pending transaction carry independent jtis; whichever is
// consumed first wins and the other is caught later by the transaction's
// pending pre-state check.
func (i *Issuer) Issue(ctx context.Context, transactionID, organizationID string, action Action) (token string, jti string, err error) {
	now := i.now().UTC()
	jti = uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		TransactionID:  transactionID,
		OrganizationID: organizationID,
		Action:         action,
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("signing approval token: %w", err)
	}

	if err := i.store.SetEx(ctx, tokenKeyPrefix+jti, string(StateUnused), i.ttl); err != nil {
		return "", "", fmt.Errorf("recording approval token state: %w", err)
	}
	return token, jti, nil
}

// Verify validates the token's signature and expiry and returns its claims.
// It does not consult the store; consumption is a separate step. Failure is
// terminal, an invalid or expired token can never become valid.
func (i *Issuer) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Consume atomically flips the jti's state from unused to used and reports
// the state observed. Exactly one of any set of concurrent callers sees
// StateUnused; the rest see StateUsed. StateMissing means the token was
// never issued or has expired.
func (i *Issuer) Consume(ctx context.Context, jti string) (State, error) {
	prev, found, swapped, err := i.store.CompareAndSwap(ctx, tokenKeyPrefix+jti, string(StateUnused), string(StateUsed), i.ttl)
	if err != nil {
		return StateMissing, fmt.Errorf("consuming approval token: %w", err)
	}
	switch {
	case !found:
		return StateMissing, nil
	case swapped:
		return StateUnused, nil
	default:
		_ = prev // anything but "unused" is a replay
		return StateUsed, nil
	}
}
