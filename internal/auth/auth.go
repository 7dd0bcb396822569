package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Agent is the authenticated caller attached to a request.
type Agent struct {
	ID             string
	OrganizationID string
	Name           string
}

// AgentLookup is the interface for resolving API key hashes to agents.
type AgentLookup interface {
	GetByKeyHash(ctx context.Context, hash string) (*Agent, error)
}

// Service provides authentication operations backed by an agent store.
type Service struct {
	store AgentLookup
}

// NewService creates a new authentication service.
func NewService(store AgentLookup) *Service {
	return &Service{store: store}
}

// GenerateAPIKey creates a new API key with the "agentpay_" prefix followed
// by 32 URL-safe random characters. It returns the key's hash and the full
// plaintext key; the plaintext is shown to the caller exactly once.
func GenerateAPIKey() (hash string, plaintext string, err error) {
	b := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}

	plaintext = "agentpay_" + base64.RawURLEncoding.EncodeToString(b)
	return HashKey(plaintext), plaintext, nil
}

// HashKey returns the hex-encoded SHA-256 hash of the given plaintext key.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
