package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"
)

const issuer = "mobilespo"

// Token types carried in the "typ" claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// User represents an authenticated user
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ExtractToken extracts the JWT token from an Authorization header value.
// Supports "Bearer <token>" format.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}

	return token, nil
}

// LocalJWTAuth issues and verifies HS256 access and refresh tokens
type LocalJWTAuth struct {
	SecretKey          []byte
	AccessTokenExpiry  time.Duration // Default: 15 minutes
	RefreshTokenExpiry time.Duration // Default: 7 days
}

// NewLocalJWTAuth creates a new local JWT auth instance
func NewLocalJWTAuth(secretKey string, accessExpiry, refreshExpiry time.Duration) (*LocalJWTAuth, error) {
	if secretKey == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}

	if accessExpiry == 0 {
		accessExpiry = 15 * time.Minute
	}

	if refreshExpiry == 0 {
		refreshExpiry = 7 * 24 * time.Hour
	}

	return &LocalJWTAuth{
		SecretKey:          []byte(secretKey),
		AccessTokenExpiry:  accessExpiry,
		RefreshTokenExpiry: refreshExpiry,
	}, nil
}

// JWTClaims represents the JWT token claims
type JWTClaims struct {
	UserID    string `json:"sub"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	TokenID   string `json:"jti,omitempty"` // refresh tokens only
	jwt.RegisteredClaims
}

// GenerateTokens generates both access and refresh tokens
func (a *LocalJWTAuth) GenerateTokens(userID, email, role string) (accessToken, refreshToken string, err error) {
	accessToken, err = a.sign(userID, email, role, TokenTypeAccess, "", a.AccessTokenExpiry)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	tokenID, err := generateTokenID()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate token ID: %w", err)
	}

	refreshToken, err = a.sign(userID, email, role, TokenTypeRefresh, tokenID, a.RefreshTokenExpiry)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return accessToken, refreshToken, nil
}

func (a *LocalJWTAuth) sign(userID, email, role, tokenType, tokenID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenType: tokenType,
		TokenID:   tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.SecretKey)
}

func (a *LocalJWTAuth) parse(tokenString, tokenType string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.SecretKey, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s token: %w", tokenType, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid %s token", tokenType)
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("expected %s token, got %q", tokenType, claims.TokenType)
	}
	return claims, nil
}

// VerifyAccessToken verifies an access token and returns the user
func (a *LocalJWTAuth) VerifyAccessToken(tokenString string) (*User, error) {
	claims, err := a.parse(tokenString, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return &User{ID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

// VerifyRefreshToken verifies a refresh token and returns its claims
func (a *LocalJWTAuth) VerifyRefreshToken(tokenString string) (*JWTClaims, error) {
	return a.parse(tokenString, TokenTypeRefresh)
}

// Argon2 password hashing parameters (OWASP recommended)
const (
	argon2Time      = 3         // Number of iterations
	argon2Memory    = 64 * 1024 // 64MB
	argon2Threads   = 4
	argon2KeyLength = 32
	saltLength      = 16
)

// HashPassword hashes a password using Argon2id.
// Format: argon2id$<salt>$<hash>, both raw base64.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLength)

	return fmt.Sprintf("argon2id$%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifyPassword verifies a password against an Argon2id hash
func VerifyPassword(hashedPassword, password string) (bool, error) {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 3 || parts[0] != "argon2id" {
		return false, errors.New("invalid hash format")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	actualHash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, uint32(len(expectedHash)))

	return subtle.ConstantTimeCompare(actualHash, expectedHash) == 1, nil
}

// generateTokenID generates a random token ID for refresh tokens
func generateTokenID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ValidatePassword checks if password meets requirements: at least 8
// characters with at least one letter and one digit
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	var hasLetter, hasNumber bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasNumber = true
		}
	}

	if !hasLetter {
		return errors.New("password must contain at least one letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	return nil
}
