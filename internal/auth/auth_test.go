package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ValentinBorsan/SapereHub/internal/session"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Issue(session.Identity{ID: "u1", Role: session.RoleModerator, Name: "Dan"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id.ID != "u1" || id.Role != session.RoleModerator || id.Name != "Dan" {
		t.Errorf("Unexpected identity: %+v", id)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a").Issue(session.Identity{ID: "u1", Role: session.RoleMember}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := NewVerifier("secret-b").Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Issue(session.Identity{ID: "u1", Role: session.RoleMember}, -time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyRejectsEmpty(t *testing.T) {
	if _, err := NewVerifier("test-secret").Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("Expected ErrMissingToken, got %v", err)
	}
}

func TestVerifyDefaultsRoleToMember(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Issue(session.Identity{ID: "u1", Name: "Radu"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id.Role != session.RoleMember {
		t.Errorf("Role = %s, want member", id.Role)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc", nil)
	if got := TokenFromRequest(r); got != "abc" {
		t.Errorf("Query token = %q, want abc", got)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	if got := TokenFromRequest(r); got != "xyz" {
		t.Errorf("Header token = %q, want xyz", got)
	}

	r = httptest.NewRequest("GET", "/ws", nil)
	if got := TokenFromRequest(r); got != "" {
		t.Errorf("Expected empty token, got %q", got)
	}
}
