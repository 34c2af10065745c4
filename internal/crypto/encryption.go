package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyInfo = "mobilespo-conversation-encryption"

// EncryptionService encrypts conversation text at rest with a per-user key
// derived from a single master key
type EncryptionService struct {
	masterKey []byte
}

// NewEncryptionService creates a new encryption service with the given master key.
// masterKeyHex must be 32 bytes hex-encoded (64 characters).
func NewEncryptionService(masterKeyHex string) (*EncryptionService, error) {
	if masterKeyHex == "" {
		return nil, errors.New("encryption master key is required")
	}

	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid master key format (must be hex): %w", err)
	}

	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes (64 hex characters), got %d bytes", len(masterKey))
	}

	return &EncryptionService{masterKey: masterKey}, nil
}

// DeriveUserKey derives the AES-256 key for userID with HKDF-SHA256
func (e *EncryptionService) DeriveUserKey(userID string) ([]byte, error) {
	if userID == "" {
		return nil, errors.New("user ID is required for key derivation")
	}

	reader := hkdf.New(sha256.New, e.masterKey, []byte(userID), []byte(keyInfo))

	userKey := make([]byte, 32)
	if _, err := io.ReadFull(reader, userKey); err != nil {
		return nil, fmt.Errorf("failed to derive user key: %w", err)
	}

	return userKey, nil
}

func (e *EncryptionService) aead(userID string) (cipher.AEAD, error) {
	userKey, err := e.DeriveUserKey(userID)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(userKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptString seals plaintext with AES-256-GCM and returns base64 of
// nonce||ciphertext. Empty input encrypts to "".
func (e *EncryptionService) EncryptString(userID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := e.aead(userID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString
func (e *EncryptionService) DecryptString(userID, ciphertextB64 string) (string, error) {
	if ciphertextB64 == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	gcm, err := e.aead(userID)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// GenerateMasterKey generates a new random hex-encoded master key
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
