package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"mobilespo/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	connManager *services.ConnectionManager
	version     string
	environment string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(connManager *services.ConnectionManager, version, environment string) *HealthHandler {
	return &HealthHandler{
		connManager: connManager,
		version:     version,
		environment: environment,
	}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     h.version,
		"environment": h.environment,
		"connections": h.connManager.Count(),
	})
}
