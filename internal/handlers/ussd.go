package handlers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"mobilespo/internal/logging"
	"mobilespo/internal/models"
	"mobilespo/internal/services"
	"mobilespo/internal/ussd"
)

// USSDMachine processes one gateway turn
type USSDMachine interface {
	Handle(ctx context.Context, phoneNumber, text, sessionID string) models.UssdResponse
}

// USSDSessions is the part of the session store used outside the dialog
type USSDSessions interface {
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.UssdSessionStats, error)
}

const ussdServiceVersion = "1.0.0"

var supportedLanguages = []string{"English", "Afrikaans", "isiZulu", "Sesotho", "isiXhosa"}

// USSDHandler serves the telecom gateway endpoints
type USSDHandler struct {
	machine    USSDMachine
	sessions   USSDSessions
	production bool
}

// NewUSSDHandler creates a new USSD handler
func NewUSSDHandler(machine USSDMachine, sessions USSDSessions, production bool) *USSDHandler {
	return &USSDHandler{
		machine:    machine,
		sessions:   sessions,
		production: production,
	}
}

// Gateway handles POST /api/v1/ussd/gateway
func (h *USSDHandler) Gateway(c *fiber.Ctx) error {
	var req models.UssdRequest
	err := c.BodyParser(&req)
	req.SessionID = strings.TrimSpace(req.SessionID)
	phone := ussd.NormalizePhone(req.PhoneNumber)
	// a number without digits normalizes to a bare "+"
	if err != nil || phone == "+" || req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.NewUssdResponse(
			models.UssdResponseError,
			"Missing required fields: phoneNumber and sessionId",
		))
	}

	logger := logging.WithSession(req.SessionID, phone)
	logger.Info("ussd gateway request", "textLength", len(req.Text), "ip", c.IP())

	resp := h.machine.Handle(c.UserContext(), phone, req.Text, req.SessionID)
	services.GetMetrics().RecordUssdRequest(resp.Type)

	logger.Info("ussd gateway response",
		"type", resp.Type,
		"continueSession", resp.ContinueSession,
		"messageLength", len(resp.Message),
	)
	return c.JSON(resp)
}

// Status handles GET /api/v1/ussd/status
func (h *USSDHandler) Status(c *fiber.Ctx) error {
	activeSessions := 0
	if stats, err := h.sessions.Stats(c.UserContext()); err != nil {
		log.Printf("⚠️  [USSD] Failed to read session stats: %v", err)
	} else {
		activeSessions = stats.Active
	}

	return c.JSON(fiber.Map{
		"status":             "operational",
		"service":            "USSD Gateway",
		"version":            ussdServiceVersion,
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"supportedLanguages": supportedLanguages,
		"features": []string{
			"Health Chat",
			"Emergency Support",
			"Appointment Booking",
			"Health Tips",
			"Multi-language Support",
		},
		"activeSessions": activeSessions,
	})
}

// Webhook handles POST /api/v1/ussd/webhook. Providers report session
// lifecycle here; ended and timed-out sessions are dropped immediately
// instead of waiting for expiry.
func (h *USSDHandler) Webhook(c *fiber.Ctx) error {
	var event models.UssdWebhookEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid webhook payload",
		})
	}

	logger := logging.WithSession(event.SessionID, event.PhoneNumber)
	logger.Info("ussd webhook received", "event", event.Event)

	switch event.Event {
	case "session_started":
		return c.JSON(fiber.Map{"status": "acknowledged"})
	case "session_ended", "timeout":
		if event.SessionID != "" {
			if err := h.sessions.Delete(c.UserContext(), event.SessionID); err != nil {
				logger.Error("failed to drop ussd session", "error", err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"status":  "error",
					"message": "Webhook processing failed",
				})
			}
		}
		return c.JSON(fiber.Map{"status": "acknowledged"})
	default:
		return c.JSON(fiber.Map{"status": "unknown_event"})
	}
}

// Analytics handles GET /api/v1/ussd/analytics with the live distribution
// of sessions by state and language
func (h *USSDHandler) Analytics(c *fiber.Ctx) error {
	stats, err := h.sessions.Stats(c.UserContext())
	if err != nil {
		log.Printf("❌ [USSD] Failed to compute analytics: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to compute analytics",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"activeSessions":       stats.Active,
			"stateDistribution":    stats.ByState,
			"languageDistribution": stats.ByLanguage,
			"timestamp":            time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Test handles POST /api/v1/ussd/test. It runs a turn with defaults for
// missing fields and echoes a debug block. Not available in production.
func (h *USSDHandler) Test(c *fiber.Ctx) error {
	if h.production {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Not found",
		})
	}

	req := models.UssdRequest{PhoneNumber: "+27123456789", SessionID: "test_session"}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid request body",
			})
		}
	}
	if req.PhoneNumber == "" {
		req.PhoneNumber = "+27123456789"
	}
	if req.SessionID == "" {
		req.SessionID = "test_session"
	}

	resp := h.machine.Handle(c.UserContext(), req.PhoneNumber, req.Text, req.SessionID)

	return c.JSON(fiber.Map{
		"message":         resp.Message,
		"continueSession": resp.ContinueSession,
		"type":            resp.Type,
		"debug": fiber.Map{
			"phoneNumber": req.PhoneNumber,
			"text":        req.Text,
			"sessionId":   req.SessionID,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		},
	})
}
