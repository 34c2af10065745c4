package handlers

import (
	"context"
	"errors"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mobilespo/internal/models"
	"mobilespo/internal/services"
	"mobilespo/internal/ussd"
	"mobilespo/pkg/auth"
)

// AccountStore is the user persistence used by authentication
type AccountStore interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	RecordLogin(ctx context.Context, userID primitive.ObjectID) error
	RecordFailedLogin(ctx context.Context, user *models.User) error
}

var validGenders = map[string]bool{
	"male":              true,
	"female":            true,
	"other":             true,
	"prefer_not_to_say": true,
}

// AuthHandler handles registration, login and token refresh
type AuthHandler struct {
	users   AccountStore
	jwtAuth *auth.LocalJWTAuth
	audit   AuditRecorder
	now     func() time.Time
}

// NewAuthHandler creates a new auth handler. audit may be nil.
func NewAuthHandler(users AccountStore, jwtAuth *auth.LocalJWTAuth, audit AuditRecorder) *AuthHandler {
	return &AuthHandler{
		users:   users,
		jwtAuth: jwtAuth,
		audit:   audit,
		now:     time.Now,
	}
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) record(ctx context.Context, event string, metadata map[string]interface{}) {
	if h.audit != nil {
		metadata["category"] = "authentication"
		h.audit.Record(ctx, event, metadata)
	}
}

func (h *AuthHandler) unavailable(c *fiber.Ctx) error {
	return errorResponse(c, fiber.StatusServiceUnavailable, "Authentication service unavailable")
}

// validate checks the registration fields and returns the parsed birth date
func (r *RegisterRequest) validate() (time.Time, []string) {
	var problems []string

	if _, err := mail.ParseAddress(r.Email); err != nil || !strings.Contains(r.Email, "@") {
		problems = append(problems, "Valid email is required")
	}
	if err := auth.ValidatePassword(r.Password); err != nil {
		problems = append(problems, err.Error())
	}
	if strings.TrimSpace(r.FirstName) == "" {
		problems = append(problems, "First name is required")
	}
	if strings.TrimSpace(r.LastName) == "" {
		problems = append(problems, "Last name is required")
	}

	dob, err := time.Parse("2006-01-02", r.DateOfBirth)
	if err != nil {
		dob, err = time.Parse(time.RFC3339, r.DateOfBirth)
	}
	if err != nil {
		problems = append(problems, "Valid date of birth is required")
	}

	if !validGenders[r.Gender] {
		problems = append(problems, "Gender must be one of male, female, other, prefer_not_to_say")
	}

	return dob, problems
}

func (h *AuthHandler) tokenResponse(c *fiber.Ctx, status int, message string, user *models.User) error {
	accessToken, refreshToken, err := h.jwtAuth.GenerateTokens(user.ID.Hex(), user.Email, user.Role)
	if err != nil {
		log.Printf("❌ [AUTH] Failed to generate tokens: %v", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to generate tokens")
	}

	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data": fiber.Map{
			"token":        accessToken,
			"refreshToken": refreshToken,
			"expiresIn":    int(h.jwtAuth.AccessTokenExpiry.Seconds()),
			"user":         user.ToResponse(),
		},
	})
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	if h.users == nil || h.jwtAuth == nil {
		return h.unavailable(c)
	}

	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return validationFailed(c, "Invalid request body")
	}

	dob, problems := req.validate()
	if len(problems) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Validation failed",
			"errors":  problems,
		})
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("❌ [AUTH] Failed to hash password: %v", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Registration failed")
	}

	now := h.now().UTC()
	user := &models.User{
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         "patient",
		CreatedAt:    now,
		LastLoginAt:  now,
		Profile: models.UserProfile{
			FirstName:   strings.TrimSpace(req.FirstName),
			LastName:    strings.TrimSpace(req.LastName),
			DateOfBirth: &dob,
			Gender:      req.Gender,
		},
		Settings: models.UserSettings{
			Language:             models.LanguageEnglish,
			NotificationsEnabled: true,
		},
	}
	if req.PhoneNumber != "" {
		user.Profile.PhoneNumber = ussd.NormalizePhone(req.PhoneNumber)
	}

	if err := h.users.CreateUser(c.UserContext(), user); err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			return errorResponse(c, fiber.StatusConflict, "User already exists with this email")
		}
		log.Printf("❌ [AUTH] Failed to create user: %v", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Registration failed")
	}

	h.record(c.UserContext(), "user_registered", map[string]interface{}{
		"userId": user.ID.Hex(),
		"ip":     c.IP(),
	})

	return h.tokenResponse(c, fiber.StatusCreated, "User registered successfully", user)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	if h.users == nil || h.jwtAuth == nil {
		return h.unavailable(c)
	}

	var req LoginRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
		return validationFailed(c, "Email and password are required")
	}

	ctx := c.UserContext()
	user, err := h.users.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, services.ErrUserNotFound) {
		h.record(ctx, "login_failed", map[string]interface{}{"reason": "unknown_email", "ip": c.IP()})
		return errorResponse(c, fiber.StatusUnauthorized, "Invalid credentials")
	}
	if err != nil {
		log.Printf("❌ [AUTH] Failed to look up user: %v", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Login failed")
	}

	if user.IsLocked(h.now()) {
		h.record(ctx, "login_failed", map[string]interface{}{"userId": user.ID.Hex(), "reason": "locked", "ip": c.IP()})
		return errorResponse(c, fiber.StatusLocked, "Account temporarily locked due to too many failed login attempts")
	}

	valid, err := auth.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil || !valid {
		if err := h.users.RecordFailedLogin(ctx, user); err != nil {
			log.Printf("⚠️  [AUTH] Failed to record failed login: %v", err)
		}
		h.record(ctx, "login_failed", map[string]interface{}{"userId": user.ID.Hex(), "reason": "bad_password", "ip": c.IP()})
		return errorResponse(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	if err := h.users.RecordLogin(ctx, user.ID); err != nil {
		log.Printf("⚠️  [AUTH] Failed to record login: %v", err)
	}
	h.record(ctx, "user_login", map[string]interface{}{"userId": user.ID.Hex(), "ip": c.IP()})

	return h.tokenResponse(c, fiber.StatusOK, "Login successful", user)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	if h.users == nil || h.jwtAuth == nil {
		return h.unavailable(c)
	}

	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return validationFailed(c, "Refresh token is required")
	}

	claims, err := h.jwtAuth.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		return errorResponse(c, fiber.StatusUnauthorized, "Invalid or expired refresh token")
	}

	user, err := h.users.GetUserByID(c.UserContext(), claims.UserID)
	if err != nil {
		return errorResponse(c, fiber.StatusUnauthorized, "Invalid or expired refresh token")
	}

	return h.tokenResponse(c, fiber.StatusOK, "Token refreshed", user)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	if h.users == nil {
		return h.unavailable(c)
	}
	userID := c.Locals("user_id").(string)

	user, err := h.users.GetUserByID(c.UserContext(), userID)
	if errors.Is(err, services.ErrUserNotFound) {
		return errorResponse(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		log.Printf("❌ [AUTH] Failed to load user %s: %v", userID, err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to fetch user")
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"user": user.ToResponse()}})
}
