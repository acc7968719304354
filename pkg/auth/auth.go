package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// APIKey holds the bcrypt hash of the status endpoint token.
// Verified tokens are remembered so scrapes do not pay bcrypt on every request.
type APIKey struct {
	hash []byte

	mu       sync.RWMutex
	verified map[string]time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewAPIKey hashes token for later comparison
func NewAPIKey(token string) (*APIKey, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash token: %w", err)
	}
	return &APIKey{
		hash:     hash,
		verified: make(map[string]time.Time),
		ttl:      5 * time.Minute,
		now:      time.Now,
	}, nil
}

// GenerateToken returns a random URL-safe token suitable for status.token
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Validate checks token against the stored hash
func (k *APIKey) Validate(token string) error {
	if token == "" {
		return ErrMissingToken
	}

	k.mu.RLock()
	until, ok := k.verified[token]
	k.mu.RUnlock()
	if ok && k.now().Before(until) {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(k.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}

	k.mu.Lock()
	k.verified[token] = k.now().Add(k.ttl)
	k.mu.Unlock()
	return nil
}

// ValidateHeader checks an Authorization header of the form "Bearer <token>"
func (k *APIKey) ValidateHeader(header string) error {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ErrMissingToken
	}
	return k.Validate(strings.TrimSpace(token))
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
