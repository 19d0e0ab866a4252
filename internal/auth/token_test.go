package auth

import (
	"testing"
	"time"

	"github.com/spec-kit/triage-portal/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	user := &domain.User{ID: "user-42", Role: domain.RoleAdmin}

	signed, meta, err := tm.GenerateToken(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if meta.ExpiresAt.Sub(meta.IssuedAt) != 5*time.Minute {
		t.Fatalf("unexpected ttl: %v", meta.ExpiresAt.Sub(meta.IssuedAt))
	}

	claims, err := tm.ParseToken(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SubjectID != "user-42" || claims.Role != domain.RoleAdmin || claims.ID != meta.ID {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	signed, _, err := NewTokenManager("one", 5).GenerateToken(&domain.User{ID: "u"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewTokenManager("two", 5).ParseToken(signed); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	signed, _, err := tm.GenerateToken(&domain.User{ID: "u"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := tm.ParseToken(signed); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2", 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := ComparePassword(hash, "hunter2"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := ComparePassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("short"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := ValidatePassword("long enough"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
