package crypto

import (
	"strings"
	"testing"
)

func newTestService(t *testing.T) *EncryptionService {
	t.Helper()
	key, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	svc, err := NewEncryptionService(key)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return svc
}

func TestNewEncryptionServiceRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "not-hex", strings.Repeat("ab", 16)} {
		if _, err := NewEncryptionService(key); err == nil {
			t.Errorf("Expected error for key %q", key)
		}
	}
}

func TestEncryptDecryptString(t *testing.T) {
	svc := newTestService(t)

	sealed, err := svc.EncryptString("user-1", "I have a fever")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if strings.Contains(sealed, "fever") {
		t.Error("Expected ciphertext not to contain plaintext")
	}

	plain, err := svc.DecryptString("user-1", sealed)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plain != "I have a fever" {
		t.Errorf("Expected round trip, got %q", plain)
	}
}

func TestDecryptWithOtherUserFails(t *testing.T) {
	svc := newTestService(t)

	sealed, _ := svc.EncryptString("user-1", "private")
	if _, err := svc.DecryptString("user-2", sealed); err == nil {
		t.Fatal("Expected decryption with another user's key to fail")
	}
}

func TestEmptyValues(t *testing.T) {
	svc := newTestService(t)

	if sealed, err := svc.EncryptString("user-1", ""); err != nil || sealed != "" {
		t.Errorf("Expected empty ciphertext, got %q %v", sealed, err)
	}
	if plain, err := svc.DecryptString("user-1", ""); err != nil || plain != "" {
		t.Errorf("Expected empty plaintext, got %q %v", plain, err)
	}
	if _, err := svc.EncryptString("", "x"); err == nil {
		t.Error("Expected error without user id")
	}
}
