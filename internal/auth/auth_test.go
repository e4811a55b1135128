package auth

import (
	"errors"
	"testing"
	"time"
)

func TestUserTokenRoundTrip(t *testing.T) {
	svc := NewService("secret", time.Hour)
	token, err := svc.GenerateToken("u1", "alice", false)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" || claims.IsAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestOperatorTokenScopes(t *testing.T) {
	svc := NewService("secret", time.Hour)
	token, err := svc.GenerateOperatorToken("ops", []string{ScopeRatingsRecompute}, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := svc.RequireScope(token, ScopeRatingsRecompute); err != nil {
		t.Fatalf("expected scope to be granted: %v", err)
	}
	if _, err := svc.RequireScope(token, ScopeStatsRecompute); !errors.Is(err, ErrMissingScope) {
		t.Fatalf("expected missing scope, got %v", err)
	}
}

func TestValidateRejectsForeignSecretAndExpiry(t *testing.T) {
	token, _ := NewService("one", time.Hour).GenerateToken("u1", "alice", true)
	if _, err := NewService("two", time.Hour).ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	expired, _ := NewService("one", time.Hour).GenerateOperatorToken("ops", nil, -time.Minute)
	if _, err := NewService("one", time.Hour).ValidateToken(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestSecretHashing(t *testing.T) {
	hash, err := HashSecret("scorer-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckSecret("scorer-secret", hash) {
		t.Fatal("expected secret to match")
	}
	if CheckSecret("other", hash) || CheckSecret("", hash) || CheckSecret("x", "") {
		t.Fatal("expected mismatches to fail")
	}
}

func TestRandomTokenLength(t *testing.T) {
	for _, n := range []int{22, 32} {
		tok, err := RandomToken(n)
		if err != nil {
			t.Fatalf("random: %v", err)
		}
		if len(tok) != n {
			t.Fatalf("expected %d chars, got %d", n, len(tok))
		}
	}
	a, _ := RandomToken(22)
	b, _ := RandomToken(22)
	if a == b {
		t.Fatal("expected distinct tokens")
	}
}
