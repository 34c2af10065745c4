package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"mobilespo/internal/logging"
	"mobilespo/internal/models"
	"mobilespo/internal/services"
)

// HealthProfileStore reads and updates a user's medical history
type HealthProfileStore interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	UpdateHealthProfile(ctx context.Context, userID string, req *models.UpdateHealthProfileRequest) (*models.HealthProfile, error)
}

// HealthProfileHandler serves /api/v1/health/profile
type HealthProfileHandler struct {
	users HealthProfileStore
	audit AuditRecorder
}

// NewHealthProfileHandler creates a new health profile handler. audit may be nil.
func NewHealthProfileHandler(users HealthProfileStore, audit AuditRecorder) *HealthProfileHandler {
	return &HealthProfileHandler{users: users, audit: audit}
}

// Get returns the caller's health profile
func (h *HealthProfileHandler) Get(c *fiber.Ctx) error {
	if h.users == nil {
		return errorResponse(c, fiber.StatusServiceUnavailable, "Health profiles are not available")
	}
	userID := c.Locals("user_id").(string)

	user, err := h.users.GetUserByID(c.UserContext(), userID)
	if errors.Is(err, services.ErrUserNotFound) {
		return errorResponse(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		logging.WithUser(userID).Error("failed to load health profile", "error", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to fetch health profile")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"healthProfile": user.HealthProfile},
	})
}

// Update replaces the sections present in the request body
func (h *HealthProfileHandler) Update(c *fiber.Ctx) error {
	if h.users == nil {
		return errorResponse(c, fiber.StatusServiceUnavailable, "Health profiles are not available")
	}
	userID := c.Locals("user_id").(string)

	var req models.UpdateHealthProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return validationFailed(c, "Invalid request body")
	}
	if problem := validateHealthProfile(&req); problem != "" {
		return validationFailed(c, problem)
	}

	profile, err := h.users.UpdateHealthProfile(c.UserContext(), userID, &req)
	if errors.Is(err, services.ErrUserNotFound) {
		return errorResponse(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		logging.WithUser(userID).Error("failed to update health profile", "error", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to update health profile")
	}

	if h.audit != nil {
		h.audit.Record(c.UserContext(), "health_profile_updated", map[string]interface{}{
			"category":          "health_data",
			"userId":            userID,
			"conditions":        req.Conditions != nil,
			"medications":       req.Medications != nil,
			"allergies":         req.Allergies != nil,
			"emergencyContacts": req.EmergencyContacts != nil,
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Health profile updated successfully",
		"data":    fiber.Map{"healthProfile": profile},
	})
}

func validateHealthProfile(req *models.UpdateHealthProfileRequest) string {
	for _, c := range req.Conditions {
		if strings.TrimSpace(c.Name) == "" {
			return "Condition name is required"
		}
	}
	for _, m := range req.Medications {
		if strings.TrimSpace(m.Name) == "" {
			return "Medication name is required"
		}
	}
	for _, a := range req.Allergies {
		if strings.TrimSpace(a.Allergen) == "" {
			return "Allergen is required"
		}
	}
	for _, p := range req.EmergencyContacts {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.PhoneNumber) == "" {
			return "Emergency contacts need a name and phone number"
		}
	}
	return ""
}
