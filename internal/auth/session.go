package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session identifies a logged-in dashboard admin for one organization.
type Session struct {
	OrganizationID string
	Email          string
}

// ErrInvalidSession is returned for any session token that fails validation.
var ErrInvalidSession = errors.New("invalid or expired session")

type sessionClaims struct {
	jwt.RegisteredClaims
	OrganizationID string `json:"org_id"`
	Email          string `json:"email"`
}

// SessionManager issues and verifies dashboard session tokens. Login tokens
// (emailed magic links) use the same signing key but carry a jti that the
// caller marks single-use in the coordination store.
type SessionManager struct {
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time // injectable clock for testing
}

// NewSessionManager creates a manager signing with secret.
func NewSessionManager(secret string, sessionTTL time.Duration) *SessionManager {
	return &SessionManager{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// IssueSession mints a session token for the organization admin.
func (m *SessionManager) IssueSession(organizationID, email string) (string, error) {
	now := m.now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.sessionTTL)),
		},
		OrganizationID: organizationID,
		Email:          email,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return token, nil
}

// IssueLoginToken mints a short-lived single-use login token and returns it
// with its jti, which the caller records as unused in the coordination store.
func (m *SessionManager) IssueLoginToken(organizationID, email string, ttl time.Duration) (token string, jti string, err error) {
	now := m.now().UTC()
	jti = uuid.NewString()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		OrganizationID: organizationID,
		Email:          email,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("signing login token: %w", err)
	}
	return token, jti, nil
}

// Verify validates a session token.
func (m *SessionManager) Verify(token string) (*Session, error) {
	claims, err := m.parse(token)
	if err != nil {
		return nil, err
	}
	return &Session{OrganizationID: claims.OrganizationID, Email: claims.Email}, nil
}

// VerifyLoginToken validates a login token and returns the session it grants
// plus the jti to consume.
func (m *SessionManager) VerifyLoginToken(token string) (*Session, string, error) {
	claims, err := m.parse(token)
	if err != nil {
		return nil, "", err
	}
	if claims.ID == "" {
		return nil, "", ErrInvalidSession
	}
	return &Session{OrganizationID: claims.OrganizationID, Email: claims.Email}, claims.ID, nil
}

func (m *SessionManager) parse(token string) (*sessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		return nil, ErrInvalidSession
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
