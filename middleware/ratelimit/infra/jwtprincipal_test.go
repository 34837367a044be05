package infra

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTPrincipal_ClaimReadsNameIdentifierDirectly(t *testing.T) {
	p := NewJWTPrincipal(jwt.MapClaims{"nameid": "user-42"})

	got, ok := p.Claim("nameid")
	if !ok || got != "user-42" {
		t.Fatalf("expected nameid claim %q, got %q ok=%v", "user-42", got, ok)
	}
}

func TestJWTPrincipal_ClaimFallsBackToUidAlias(t *testing.T) {
	p := NewJWTPrincipal(jwt.MapClaims{"uid": "user-99"})

	got, ok := p.Claim("nameid")
	if !ok || got != "user-99" {
		t.Fatalf("expected nameid lookup to fall back to uid and return %q, got %q ok=%v", "user-99", got, ok)
	}
}

func TestJWTPrincipal_ClaimPrefersNameidOverUidWhenBothPresent(t *testing.T) {
	p := NewJWTPrincipal(jwt.MapClaims{"nameid": "user-direct", "uid": "user-alias"})

	got, ok := p.Claim("nameid")
	if !ok || got != "user-direct" {
		t.Fatalf("expected direct nameid claim to win, got %q ok=%v", got, ok)
	}
}

func TestJWTPrincipal_ClaimMissingReturnsFalse(t *testing.T) {
	p := NewJWTPrincipal(jwt.MapClaims{"sub": "someone"})

	if _, ok := p.Claim("nameid"); ok {
		t.Fatalf("expected no nameid/uid claim to be present")
	}
}

func TestJWTPrincipal_IsAuthenticatedReflectsNonEmptyClaims(t *testing.T) {
	if NewJWTPrincipal(jwt.MapClaims{}).IsAuthenticated() {
		t.Fatalf("expected empty claims to report unauthenticated")
	}
	if !NewJWTPrincipal(jwt.MapClaims{"sub": "x"}).IsAuthenticated() {
		t.Fatalf("expected non-empty claims to report authenticated")
	}
}
