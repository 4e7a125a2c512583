package auth

import (
	"testing"
	"time"
)

const testSecret = "super-secret-test-key"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("user-123", "admin", testSecret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Errorf("UserID: got %q, want user-123", claims.UserID)
	}
	if claims.Role != "admin" {
		t.Errorf("Role: got %q, want admin", claims.Role)
	}
}

func TestParseToken_InvalidSecret(t *testing.T) {
	token, err := GenerateToken("user-abc", "user", testSecret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseToken(token, "wrong-secret"); err == nil {
		t.Fatal("expected error for invalid secret, got nil")
	}
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateTokenAt("user-abc", "user", testSecret, time.Now().Add(-TokenDuration-time.Minute))
	if err != nil {
		t.Fatalf("GenerateTokenAt: %v", err)
	}
	if _, err := ParseToken(token, testSecret); err == nil {
		t.Fatal("expected error for expired token, got nil")
	}
}

func TestParseToken_Malformed(t *testing.T) {
	if _, err := ParseToken("not.a.real.token", testSecret); err == nil {
		t.Fatal("expected error for malformed token, got nil")
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Error("matching password rejected")
	}
	if CheckPassword(hash, "battery staple") {
		t.Error("wrong password accepted")
	}
}
