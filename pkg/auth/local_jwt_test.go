package auth

import (
	"strings"
	"testing"
	"time"
)

func newTestAuth(t *testing.T) *LocalJWTAuth {
	t.Helper()
	a, err := NewLocalJWTAuth("test-secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create auth: %v", err)
	}
	return a
}

func TestGenerateAndVerifyTokens(t *testing.T) {
	a := newTestAuth(t)

	access, refresh, err := a.GenerateTokens("user-1", "a@example.com", "patient")
	if err != nil {
		t.Fatalf("GenerateTokens failed: %v", err)
	}

	user, err := a.VerifyAccessToken(access)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if user.ID != "user-1" || user.Email != "a@example.com" || user.Role != "patient" {
		t.Errorf("Unexpected user %+v", user)
	}

	claims, err := a.VerifyRefreshToken(refresh)
	if err != nil {
		t.Fatalf("VerifyRefreshToken failed: %v", err)
	}
	if claims.UserID != "user-1" || claims.TokenID == "" {
		t.Errorf("Unexpected refresh claims %+v", claims)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	a := newTestAuth(t)
	access, refresh, _ := a.GenerateTokens("user-1", "a@example.com", "patient")

	if _, err := a.VerifyAccessToken(refresh); err == nil {
		t.Error("Expected refresh token to be rejected as access token")
	}
	if _, err := a.VerifyRefreshToken(access); err == nil {
		t.Error("Expected access token to be rejected as refresh token")
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	a := newTestAuth(t)
	other, _ := NewLocalJWTAuth("other-secret", time.Minute, time.Hour)
	access, _, _ := other.GenerateTokens("user-1", "a@example.com", "patient")

	if _, err := a.VerifyAccessToken(access); err == nil {
		t.Fatal("Expected token signed with another key to be rejected")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	a, _ := NewLocalJWTAuth("test-secret", -time.Minute, time.Hour)
	access, _, _ := a.GenerateTokens("user-1", "a@example.com", "patient")

	if _, err := a.VerifyAccessToken(access); err == nil {
		t.Fatal("Expected expired token to be rejected")
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse 1")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(hash, "argon2id$") {
		t.Errorf("Unexpected hash format %q", hash)
	}

	if ok, err := VerifyPassword(hash, "correct horse 1"); err != nil || !ok {
		t.Errorf("Expected password to verify, got %v %v", ok, err)
	}
	if ok, _ := VerifyPassword(hash, "wrong horse 1"); ok {
		t.Error("Expected wrong password to fail")
	}
	if _, err := VerifyPassword("bcrypt$abc", "x"); err == nil {
		t.Error("Expected error for unknown hash format")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		valid    bool
	}{
		{"short1", false},
		{"longenoughbutnodigit", false},
		{"1234567890", false},
		{"patient2025", true},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err == nil) != tt.valid {
			t.Errorf("ValidatePassword(%q): expected valid=%v, got %v", tt.password, tt.valid, err)
		}
	}
}

func TestExtractToken(t *testing.T) {
	if token, err := ExtractToken("Bearer abc"); err != nil || token != "abc" {
		t.Errorf("Expected abc, got %q %v", token, err)
	}
	for _, header := range []string{"", "Basic abc", "Bearer "} {
		if _, err := ExtractToken(header); err == nil {
			t.Errorf("Expected error for %q", header)
		}
	}
}
