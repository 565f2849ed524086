package agentapi

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// AgentToken is a long-lived credential an operator issues to an agent so
// it can authenticate against the coordinator's HTTP surface.
type AgentToken struct {
	Token     string
	Agent     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TokenManager issues and validates agent tokens, generalized from the
// teacher's join-token manager: same random-32-byte/expiry/validate shape,
// renamed from "join token" to "agent token" since agents authenticate
// with a long-lived operator-issued token rather than a short-lived
// cluster-join token.
type TokenManager struct {
	mu     sync.RWMutex
	tokens map[string]*AgentToken
}

// NewTokenManager returns an empty token manager.
func NewTokenManager() *TokenManager {
	return &TokenManager{tokens: make(map[string]*AgentToken)}
}

// Issue mints a new token for agent, valid for ttl.
func (tm *TokenManager) Issue(agent string, ttl time.Duration) (*AgentToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	at := &AgentToken{
		Token:     hex.EncodeToString(raw),
		Agent:     agent,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	tm.mu.Lock()
	tm.tokens[at.Token] = at
	tm.mu.Unlock()

	return at, nil
}

// Validate resolves a bearer token to its owning agent name.
func (tm *TokenManager) Validate(token string) (string, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	at, ok := tm.tokens[token]
	if !ok {
		return "", fmt.Errorf("invalid token")
	}
	if time.Now().After(at.ExpiresAt) {
		return "", fmt.Errorf("token expired")
	}
	return at.Agent, nil
}

// Revoke invalidates a token immediately.
func (tm *TokenManager) Revoke(token string) {
	tm.mu.Lock()
	delete(tm.tokens, token)
	tm.mu.Unlock()
}
