package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(hash)
}

func TestVerifier(t *testing.T) {
	v, err := NewKeyVerifier(mustHash(t, "hunter2"))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if !v.Enabled() {
		t.Fatalf("verifier disabled")
	}
	if err := v.Verify("hunter2"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	// second call takes the cached path
	if err := v.Verify(" hunter2 "); err != nil {
		t.Fatalf("verify cached: %v", err)
	}
	if err := v.Verify("hunter3"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
	if err := v.Verify(""); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected missing key, got %v", err)
	}
}

func TestEmptyHashDisablesAuth(t *testing.T) {
	v, err := NewKeyVerifier("  ")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if v.Enabled() {
		t.Fatalf("expected disabled verifier")
	}
	if err := v.Verify(""); err != nil {
		t.Fatalf("disabled verifier rejected: %v", err)
	}
}

func TestRejectsGarbageHash(t *testing.T) {
	if _, err := NewKeyVerifier("not-a-bcrypt-hash"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestHashKeyRoundTrip(t *testing.T) {
	hash, err := HashKey("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	v, err := NewKeyVerifier(hash)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if err := v.Verify("s3cret"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := HashKey(" "); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected missing key, got %v", err)
	}
}
