package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mobilespo/internal/logging"
	"mobilespo/internal/models"
	"mobilespo/internal/services"
)

const (
	maxChatMessageRunes = 1000
	maxFeedbackRunes    = 500
	defaultPageSize     = 20
	maxPageSize         = 100
)

// HealthAssistant answers free-text health questions
type HealthAssistant interface {
	ProcessQuery(ctx context.Context, message string, history []models.ChatTurn, patient models.PatientContext) (*models.HealthQueryResult, error)
}

// EmergencyEscalator activates the emergency response for a flagged message
type EmergencyEscalator interface {
	HandleResponse(ctx context.Context, recipient string, channel models.NotificationChannel, text string, level models.EmergencyLevel) (*models.EmergencyResponse, error)
}

// ConversationStore persists chat threads
type ConversationStore interface {
	SaveExchange(ctx context.Context, userID, conversationID, userMessage, reply string, meta *models.MessageMetadata) (*models.Conversation, error)
	Get(ctx context.Context, userID, conversationID string) (*models.Conversation, error)
	History(ctx context.Context, userID, conversationID string, limit int) ([]models.ChatTurn, error)
	List(ctx context.Context, userID string, page, limit int) ([]models.ConversationSummary, error)
	Count(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, conversationID string) error
	AddFeedback(ctx context.Context, userID, conversationID, messageID string, rating int, comment string) error
}

// UserLookup loads a user for patient context
type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// AuditRecorder records audit events without failing the caller
type AuditRecorder interface {
	Record(ctx context.Context, event string, metadata map[string]interface{})
}

// ChatHandler serves the health chat endpoints
type ChatHandler struct {
	assistant     HealthAssistant
	escalator     EmergencyEscalator
	conversations ConversationStore // nil when MongoDB is not configured
	users         UserLookup        // nil when MongoDB is not configured
	audit         AuditRecorder
	resources     models.EmergencyResources
	historyLimit  int
}

// NewChatHandler creates a new chat handler. conversations, users and audit may be nil.
func NewChatHandler(
	assistant HealthAssistant,
	escalator EmergencyEscalator,
	conversations ConversationStore,
	users UserLookup,
	audit AuditRecorder,
	resources models.EmergencyResources,
	historyLimit int,
) *ChatHandler {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ChatHandler{
		assistant:     assistant,
		escalator:     escalator,
		conversations: conversations,
		users:         users,
		audit:         audit,
		resources:     resources,
		historyLimit:  historyLimit,
	}
}

func validationFailed(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Validation failed",
		"errors":  []string{message},
	})
}

func errorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// parseChatMessage trims the message and checks its length in characters.
// A non-empty problem describes why the request is invalid.
func parseChatMessage(c *fiber.Ctx) (req models.ChatMessageRequest, problem string) {
	if err := c.BodyParser(&req); err != nil {
		return req, "Invalid request body"
	}
	req.Message = strings.TrimSpace(req.Message)
	if n := utf8.RuneCountInString(req.Message); n < 1 || n > maxChatMessageRunes {
		return req, "Message must be between 1 and 1000 characters"
	}
	if req.ConversationID != "" && !primitive.IsValidObjectID(req.ConversationID) {
		return req, "Invalid conversation ID"
	}
	return req, ""
}

func (h *ChatHandler) emergencyBlock(level models.EmergencyLevel) fiber.Map {
	return fiber.Map{
		"level":     level,
		"resources": h.resources,
	}
}

// Test handles POST /api/v1/chat/test. No authentication, no history, no
// persistence and no escalation; emergencies are only logged.
func (h *ChatHandler) Test(c *fiber.Ctx) error {
	req, problem := parseChatMessage(c)
	if problem != "" {
		return validationFailed(c, problem)
	}

	result, err := h.assistant.ProcessQuery(c.UserContext(), req.Message, nil, models.PatientContext{Interface: "chat"})
	if err != nil {
		logging.WithUser("anonymous").Error("test health query failed", "error", err)
		services.GetMetrics().RecordChatError("assistant")
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to process message")
	}

	if result.IsEmergency {
		logging.Emergency(nil).Warn("emergency detected in test query", "level", result.EmergencyLevel)
	}

	data := fiber.Map{
		"message":         result.Response,
		"confidence":      result.Confidence,
		"medicalTopics":   result.MedicalTopics,
		"recommendations": result.Recommendations,
		"disclaimers":     result.Disclaimers,
		"isEmergency":     result.IsEmergency,
		"emergencyLevel":  result.EmergencyLevel,
		"timestamp":       result.Timestamp,
	}
	if result.IsEmergency {
		data["emergency"] = h.emergencyBlock(result.EmergencyLevel)
	}

	return c.JSON(fiber.Map{"success": true, "data": data})
}

// SendMessage handles POST /api/v1/chat/message. Flagged messages are
// escalated on the realtime channel before the reply is returned.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	start := time.Now()
	userID := c.Locals("user_id").(string)
	logger := logging.WithUser(userID)
	ctx := c.UserContext()

	req, problem := parseChatMessage(c)
	if problem != "" {
		return validationFailed(c, problem)
	}

	services.GetMetrics().RecordChatRequest()

	var (
		history []models.ChatTurn
		err     error
	)
	if h.conversations != nil && req.ConversationID != "" {
		history, err = h.conversations.History(ctx, userID, req.ConversationID, h.historyLimit)
		if errors.Is(err, services.ErrConversationNotFound) {
			return errorResponse(c, fiber.StatusNotFound, "Conversation not found")
		}
		if err != nil {
			logger.Error("failed to load conversation history", "error", err)
			services.GetMetrics().RecordChatError("history")
			return errorResponse(c, fiber.StatusInternalServerError, "Failed to process message")
		}
	}

	result, err := h.assistant.ProcessQuery(ctx, req.Message, history, h.patientContext(ctx, userID))
	if err != nil {
		logger.Error("health query failed", "error", err)
		services.GetMetrics().RecordChatError("assistant")
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to process message")
	}

	if result.IsEmergency {
		logging.Emergency(logger).Warn("emergency detected in chat", "level", result.EmergencyLevel)
		if h.escalator != nil {
			if _, err := h.escalator.HandleResponse(ctx, userID, models.ChannelRealtime, req.Message, result.EmergencyLevel); err != nil {
				logging.Emergency(logger).Error("emergency escalation failed", "level", result.EmergencyLevel, "error", err)
			}
		}
	}

	data := fiber.Map{
		"message":         result.Response,
		"confidence":      result.Confidence,
		"medicalTopics":   result.MedicalTopics,
		"recommendations": result.Recommendations,
		"disclaimers":     result.Disclaimers,
		"isEmergency":     result.IsEmergency,
		"timestamp":       result.Timestamp,
	}
	if result.IsEmergency {
		data["emergency"] = h.emergencyBlock(result.EmergencyLevel)
	}

	if h.conversations != nil {
		conv, err := h.conversations.SaveExchange(ctx, userID, req.ConversationID, req.Message, result.Response, &models.MessageMetadata{
			Confidence:      result.Confidence,
			MedicalTopics:   result.MedicalTopics,
			IsEmergency:     result.IsEmergency,
			EmergencyLevel:  result.EmergencyLevel,
			Recommendations: result.Recommendations,
		})
		if err != nil {
			// the reply (and any emergency block) still reaches the user
			logger.Error("failed to save conversation", "error", err)
			services.GetMetrics().RecordChatError("persistence")
		} else {
			data["conversationId"] = conv.ID.Hex()
		}
	}

	services.GetMetrics().RecordChatLatency(time.Since(start).Seconds())
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func (h *ChatHandler) patientContext(ctx context.Context, userID string) models.PatientContext {
	if h.users == nil {
		return models.PatientContext{Interface: "chat"}
	}
	user, err := h.users.GetUserByID(ctx, userID)
	if err != nil {
		logging.WithUser(userID).Warn("patient context unavailable", "error", err)
		return models.PatientContext{Interface: "chat"}
	}
	return user.PatientContext(time.Now())
}

// hasStore writes a 503 and reports false when history is not configured
func (h *ChatHandler) hasStore(c *fiber.Ctx) (bool, error) {
	if h.conversations == nil {
		return false, errorResponse(c, fiber.StatusServiceUnavailable, "Conversation history is not available")
	}
	return true, nil
}

// ListConversations handles GET /api/v1/chat/conversations?page&limit
func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	if ok, err := h.hasStore(c); !ok {
		return err
	}
	userID := c.Locals("user_id").(string)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(defaultPageSize)))
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}

	conversations, err := h.conversations.List(c.UserContext(), userID, page, limit)
	if err != nil {
		logging.WithUser(userID).Error("failed to list conversations", "error", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to fetch conversations")
	}
	total, err := h.conversations.Count(c.UserContext(), userID)
	if err != nil {
		logging.WithUser(userID).Error("failed to count conversations", "error", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to fetch conversations")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"conversations": conversations,
			"pagination": fiber.Map{
				"page":  page,
				"limit": limit,
				"total": total,
			},
		},
	})
}

// GetConversation handles GET /api/v1/chat/conversation/:id
func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	if ok, err := h.hasStore(c); !ok {
		return err
	}
	userID := c.Locals("user_id").(string)

	conv, err := h.conversations.Get(c.UserContext(), userID, c.Params("id"))
	if errors.Is(err, services.ErrConversationNotFound) {
		return errorResponse(c, fiber.StatusNotFound, "Conversation not found")
	}
	if err != nil {
		logging.WithUser(userID).Error("failed to get conversation", "error", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to fetch conversation")
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"conversation": conv}})
}

// DeleteConversation handles DELETE /api/v1/chat/conversation/:id
func (h *ChatHandler) DeleteConversation(c *fiber.Ctx) error {
	if ok, err := h.hasStore(c); !ok {
		return err
	}
	userID := c.Locals("user_id").(string)

	err := h.conversations.Delete(c.UserContext(), userID, c.Params("id"))
	if errors.Is(err, services.ErrConversationNotFound) {
		return errorResponse(c, fiber.StatusNotFound, "Conversation not found")
	}
	if err != nil {
		logging.WithUser(userID).Error("failed to delete conversation", "error", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to delete conversation")
	}

	return c.JSON(fiber.Map{"success": true, "message": "Conversation deleted successfully"})
}

// Feedback handles POST /api/v1/chat/feedback
func (h *ChatHandler) Feedback(c *fiber.Ctx) error {
	if ok, err := h.hasStore(c); !ok {
		return err
	}
	userID := c.Locals("user_id").(string)

	var req models.ChatFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return validationFailed(c, "Invalid request body")
	}
	switch {
	case !primitive.IsValidObjectID(req.ConversationID):
		return validationFailed(c, "Invalid conversation ID")
	case !primitive.IsValidObjectID(req.MessageID):
		return validationFailed(c, "Invalid message ID")
	case req.Rating < 1 || req.Rating > 5:
		return validationFailed(c, "Rating must be between 1 and 5")
	case utf8.RuneCountInString(req.Feedback) > maxFeedbackRunes:
		return validationFailed(c, "Feedback must be at most 500 characters")
	}

	err := h.conversations.AddFeedback(c.UserContext(), userID, req.ConversationID, req.MessageID, req.Rating, req.Feedback)
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		return errorResponse(c, fiber.StatusNotFound, "Conversation not found")
	case errors.Is(err, services.ErrMessageNotFound):
		return errorResponse(c, fiber.StatusNotFound, "Message not found")
	case err != nil:
		logging.WithUser(userID).Error("failed to save feedback", "error", err)
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to submit feedback")
	}

	if h.audit != nil {
		h.audit.Record(c.UserContext(), "chat_feedback", map[string]interface{}{
			"category":       "feedback",
			"userId":         userID,
			"conversationId": req.ConversationID,
			"messageId":      req.MessageID,
			"rating":         req.Rating,
			"hasComment":     req.Feedback != "",
		})
	}

	return c.JSON(fiber.Map{"success": true, "message": "Feedback submitted successfully"})
}
