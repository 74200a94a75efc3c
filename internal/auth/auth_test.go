package auth

import (
	"context"
	"testing"
	"time"
)

func withSecret(t *testing.T) {
	t.Helper()
	t.Setenv("LEXHUB_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidateToken(t *testing.T) {
	withSecret(t)

	token, err := GenerateToken("user-1", []string{"Client", "client", " "}, TokenTypeAccess, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject=%q, want user-1", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "client" {
		t.Fatalf("roles=%v, want [client]", claims.Roles)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Fatalf("token_type=%q, want access", claims.TokenType)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	withSecret(t)

	token, err := GenerateToken("user-1", []string{"client"}, TokenTypeAccess, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenPair(t *testing.T) {
	withSecret(t)

	pair, err := GenerateTokenPair("user-1", []string{"lawyer"}, time.Minute, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	access, err := ParseAndValidate(pair.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	refresh, err := ParseAndValidate(pair.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	if access.TokenType != TokenTypeAccess || refresh.TokenType != TokenTypeRefresh {
		t.Fatalf("token types: access=%q refresh=%q", access.TokenType, refresh.TokenType)
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("LEXHUB_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("user-1", []string{"client"}, TokenTypeAccess, time.Minute); err == nil {
		t.Fatal("expected error with no secret configured")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := ContextWithUser(context.Background(), "user-7", []string{"Lawyer"})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("UserIDFromContext=%q,%v", id, ok)
	}
	if !HasRole(ctx, "lawyer") {
		t.Fatal("expected lawyer role in context")
	}
	if HasRole(ctx, "admin") {
		t.Fatal("unexpected admin role in context")
	}
}
