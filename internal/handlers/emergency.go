package handlers

import (
	"github.com/gofiber/fiber/v2"

	"mobilespo/internal/models"
)

// EmergencyHandler serves the public hotline directory
type EmergencyHandler struct {
	resources models.EmergencyResources
}

// NewEmergencyHandler creates a new emergency handler
func NewEmergencyHandler(resources models.EmergencyResources) *EmergencyHandler {
	return &EmergencyHandler{resources: resources}
}

// Resources handles GET /api/v1/emergency/resources
func (h *EmergencyHandler) Resources(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.resources,
	})
}
