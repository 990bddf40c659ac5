// Package auth checks the shared operator key that guards the HTTP API.
// Only a bcrypt hash of the key is ever configured.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingKey = errors.New("missing api key")
	ErrInvalidKey = errors.New("invalid api key")
)

type KeyVerifier struct {
	hash []byte

	// bcrypt is slow on purpose; the last accepted key skips it.
	mu       sync.Mutex
	accepted string
}

// NewKeyVerifier parses a bcrypt hash. An empty hash yields a verifier that
// accepts every request.
func NewKeyVerifier(hash string) (*KeyVerifier, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return &KeyVerifier{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("parse api key hash: %w", err)
	}
	return &KeyVerifier{hash: []byte(hash)}, nil
}

func (v *KeyVerifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

func (v *KeyVerifier) Verify(key string) error {
	if !v.Enabled() {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissingKey
	}
	v.mu.Lock()
	hit := v.accepted != "" && v.accepted == key
	v.mu.Unlock()
	if hit {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		return ErrInvalidKey
	}
	v.mu.Lock()
	v.accepted = key
	v.mu.Unlock()
	return nil
}

// HashKey produces the value for SOUTHBAG_API_KEY_HASH.
func HashKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}
