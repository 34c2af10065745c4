package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"mobilespo/internal/medical"
	"mobilespo/internal/middleware"
	"mobilespo/internal/models"
	"mobilespo/internal/services"
	"mobilespo/internal/ussd"
)

var testResources = models.EmergencyResources{
	Crisis:    models.EmergencyResource{Name: "Crisis Helpline", Number: "0800 567 567", Available: "24/7"},
	Suicide:   models.EmergencyResource{Name: "Suicide Prevention Lifeline", Number: "0800 12 13 14", Available: "24/7"},
	Emergency: models.EmergencyResource{Name: "Emergency Services", Number: "10177", Available: "24/7"},
	SMS:       models.EmergencyResource{Name: "SMS Counseling", Number: "31393", Available: "24/7"},
}

type escalation struct {
	recipient string
	channel   models.NotificationChannel
	level     models.EmergencyLevel
}

type recordingEscalator struct {
	mu    sync.Mutex
	calls []escalation
}

func (e *recordingEscalator) HandleResponse(ctx context.Context, recipient string, channel models.NotificationChannel, text string, level models.EmergencyLevel) (*models.EmergencyResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, escalation{recipient: recipient, channel: channel, level: level})
	return &models.EmergencyResponse{UserID: recipient, Level: level}, nil
}

func (e *recordingEscalator) Calls() []escalation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]escalation(nil), e.calls...)
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("Failed to decode %s: %v", body, err)
	}
}

func postJSON(t *testing.T, app *fiber.App, target, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest("POST", target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	return resp
}

func withUser(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}
}

type ussdTestApp struct {
	app       *fiber.App
	store     *ussd.MemoryStore
	escalator *recordingEscalator
}

func setupUSSDApp(t *testing.T, production bool) *ussdTestApp {
	t.Helper()

	locales, err := ussd.LoadLocales()
	if err != nil {
		t.Fatalf("Failed to load locales: %v", err)
	}

	store := ussd.NewMemoryStore(300 * time.Second)
	escalator := &recordingEscalator{}
	machine := ussd.NewMachine(store, locales, medical.NewAssistant(10), escalator, testResources)
	handler := NewUSSDHandler(machine, store, production)

	app := fiber.New()
	group := app.Group("/api/v1/ussd")
	group.Post("/gateway", middleware.USSDRateLimiter(20, time.Minute), handler.Gateway)
	group.Get("/status", handler.Status)
	group.Post("/webhook", handler.Webhook)
	group.Get("/analytics", handler.Analytics)
	group.Post("/test", handler.Test)

	return &ussdTestApp{app: app, store: store, escalator: escalator}
}

func (a *ussdTestApp) gateway(t *testing.T, phone, text, sessionID string) models.UssdResponse {
	t.Helper()
	body, _ := json.Marshal(models.UssdRequest{PhoneNumber: phone, Text: text, SessionID: sessionID})
	resp := postJSON(t, a.app, "/api/v1/ussd/gateway", string(body))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var out models.UssdResponse
	decodeBody(t, resp, &out)
	return out
}

func TestUSSDGatewayMissingFields(t *testing.T) {
	a := setupUSSDApp(t, false)

	for _, body := range []string{
		`{"text":"1","sessionId":"s1"}`,
		`{"phoneNumber":"0821234567","text":"1"}`,
		`{}`,
		`{"phoneNumber":"abc","text":"1","sessionId":"s1"}`,
		`{"phoneNumber":" ","text":"1","sessionId":"s1"}`,
		`{"phoneNumber":"0821234567","text":"1","sessionId":"   "}`,
	} {
		resp := postJSON(t, a.app, "/api/v1/ussd/gateway", body)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("Body %s: expected 400, got %d", body, resp.StatusCode)
			continue
		}
		var out models.UssdResponse
		decodeBody(t, resp, &out)
		if out.ContinueSession || out.Type != models.UssdResponseError {
			t.Errorf("Body %s: expected terminal error response, got %+v", body, out)
		}
	}

	stats, err := a.store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}
	if stats.Active != 0 {
		t.Errorf("Expected rejected requests to create no sessions, got %d", stats.Active)
	}
}

func TestUSSDGatewayDialog(t *testing.T) {
	a := setupUSSDApp(t, false)

	menu := a.gateway(t, "0821234567", "", "dialog-1")
	if menu.Type != models.UssdResponseMenu || !menu.ContinueSession {
		t.Fatalf("Expected continuing menu, got %+v", menu)
	}
	if !strings.Contains(menu.Message, "Mobile Spo") {
		t.Errorf("Expected main menu text, got %q", menu.Message)
	}

	prompt := a.gateway(t, "0821234567", "1", "dialog-1")
	if prompt.Type != models.UssdResponseInput || !prompt.ContinueSession {
		t.Fatalf("Expected input prompt, got %+v", prompt)
	}

	reply := a.gateway(t, "0821234567", "I have a headache", "dialog-1")
	if reply.Type != models.UssdResponseInput {
		t.Errorf("Expected chat reply to keep session open, got %+v", reply)
	}
	if len(a.escalator.Calls()) != 0 {
		t.Errorf("Expected no escalation for ordinary question")
	}
}

func TestUSSDGatewayEmergencyEscalatesToNormalizedPhone(t *testing.T) {
	a := setupUSSDApp(t, false)

	a.gateway(t, "082 123 4567", "1", "dialog-2")
	resp := a.gateway(t, "082 123 4567", "I want to kill myself", "dialog-2")

	if resp.ContinueSession || resp.Type != models.UssdResponseEnd {
		t.Errorf("Expected terminal emergency response, got %+v", resp)
	}
	if !strings.Contains(resp.Message, "10177") {
		t.Errorf("Expected emergency number in response, got %q", resp.Message)
	}

	calls := a.escalator.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 escalation, got %d", len(calls))
	}
	if calls[0].recipient != "+27821234567" {
		t.Errorf("Expected normalized recipient, got %q", calls[0].recipient)
	}
	if calls[0].channel != models.ChannelSMS || calls[0].level != models.EmergencyCritical {
		t.Errorf("Expected critical sms escalation, got %+v", calls[0])
	}
}

func TestUSSDGatewayAcceptsFormBody(t *testing.T) {
	a := setupUSSDApp(t, false)

	req := httptest.NewRequest("POST", "/api/v1/ussd/gateway",
		strings.NewReader("phoneNumber=0821234567&text=&sessionId=form-1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.app.Test(req)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	session, ok, err := a.store.Get(context.Background(), "form-1")
	if err != nil || !ok {
		t.Fatalf("Expected session to be stored, ok=%v err=%v", ok, err)
	}
	if session.PhoneNumber != "+27821234567" {
		t.Errorf("Expected normalized phone, got %q", session.PhoneNumber)
	}
}

func TestUSSDGatewayRateLimit(t *testing.T) {
	a := setupUSSDApp(t, false)

	body := `{"phoneNumber":"0821234567","text":"","sessionId":"busy"}`
	for i := 0; i < 20; i++ {
		if resp := postJSON(t, a.app, "/api/v1/ussd/gateway", body); resp.StatusCode != fiber.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}

	resp := postJSON(t, a.app, "/api/v1/ussd/gateway", body)
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("Expected 429 on 21st request, got %d", resp.StatusCode)
	}
	var out models.UssdResponse
	decodeBody(t, resp, &out)
	if out.ContinueSession {
		t.Error("Expected rate-limited response to end the session")
	}
}

func TestUSSDWebhookDropsEndedSession(t *testing.T) {
	a := setupUSSDApp(t, false)
	a.gateway(t, "0821234567", "1", "ending")

	resp := postJSON(t, a.app, "/api/v1/ussd/webhook", `{"event":"session_ended","sessionId":"ending"}`)
	var out map[string]string
	decodeBody(t, resp, &out)
	if out["status"] != "acknowledged" {
		t.Errorf("Expected acknowledged, got %v", out)
	}

	if _, ok, _ := a.store.Get(context.Background(), "ending"); ok {
		t.Error("Expected session to be removed after session_ended")
	}

	resp = postJSON(t, a.app, "/api/v1/ussd/webhook", `{"event":"something_else","sessionId":"x"}`)
	decodeBody(t, resp, &out)
	if out["status"] != "unknown_event" {
		t.Errorf("Expected unknown_event, got %v", out)
	}
}

func TestUSSDStatusAndAnalytics(t *testing.T) {
	a := setupUSSDApp(t, false)
	a.gateway(t, "0821234567", "", "a1")
	a.gateway(t, "0831234567", "1", "a2")

	resp, err := a.app.Test(httptest.NewRequest("GET", "/api/v1/ussd/status", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	var status struct {
		Status         string   `json:"status"`
		Languages      []string `json:"supportedLanguages"`
		ActiveSessions int      `json:"activeSessions"`
	}
	decodeBody(t, resp, &status)
	if status.Status != "operational" || len(status.Languages) != 5 || status.ActiveSessions != 2 {
		t.Errorf("Unexpected status: %+v", status)
	}

	resp, err = a.app.Test(httptest.NewRequest("GET", "/api/v1/ussd/analytics", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	var analytics struct {
		Data struct {
			ActiveSessions int                      `json:"activeSessions"`
			States         map[models.UssdState]int `json:"stateDistribution"`
		} `json:"data"`
	}
	decodeBody(t, resp, &analytics)
	if analytics.Data.ActiveSessions != 2 {
		t.Errorf("Expected 2 active sessions, got %d", analytics.Data.ActiveSessions)
	}
	if analytics.Data.States[models.StateHealthChat] != 1 || analytics.Data.States[models.StateMainMenu] != 1 {
		t.Errorf("Unexpected state distribution: %v", analytics.Data.States)
	}
}

func TestUSSDTestEndpoint(t *testing.T) {
	a := setupUSSDApp(t, false)
	resp := postJSON(t, a.app, "/api/v1/ussd/test", `{}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Type  models.UssdResponseType `json:"type"`
		Debug map[string]string       `json:"debug"`
	}
	decodeBody(t, resp, &out)
	if out.Type != models.UssdResponseMenu || out.Debug["sessionId"] != "test_session" {
		t.Errorf("Unexpected test response: %+v", out)
	}

	prod := setupUSSDApp(t, true)
	if resp := postJSON(t, prod.app, "/api/v1/ussd/test", `{}`); resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected 404 in production, got %d", resp.StatusCode)
	}
}

type chatTestApp struct {
	app       *fiber.App
	escalator *recordingEscalator
}

func setupChatApp(t *testing.T) *chatTestApp {
	t.Helper()
	escalator := &recordingEscalator{}
	handler := NewChatHandler(medical.NewAssistant(10), escalator, nil, nil, nil, testResources, 50)

	app := fiber.New()
	app.Post("/api/v1/chat/test", handler.Test)
	app.Post("/api/v1/chat/message", withUser("user-42"), handler.SendMessage)
	app.Get("/api/v1/chat/conversations", withUser("user-42"), handler.ListConversations)
	app.Get("/api/v1/chat/conversation/:id", withUser("user-42"), handler.GetConversation)
	app.Delete("/api/v1/chat/conversation/:id", withUser("user-42"), handler.DeleteConversation)
	app.Post("/api/v1/chat/feedback", withUser("user-42"), handler.Feedback)
	return &chatTestApp{app: app, escalator: escalator}
}

type chatResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Message        string                `json:"message"`
		IsEmergency    bool                  `json:"isEmergency"`
		EmergencyLevel models.EmergencyLevel `json:"emergencyLevel"`
		Disclaimers    []string              `json:"disclaimers"`
		Emergency      *struct {
			Level     models.EmergencyLevel     `json:"level"`
			Resources models.EmergencyResources `json:"resources"`
		} `json:"emergency"`
	} `json:"data"`
}

func TestChatTestEndpointFlagsEmergency(t *testing.T) {
	a := setupChatApp(t)

	resp := postJSON(t, a.app, "/api/v1/chat/test", `{"message":"I want to end my life"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var out chatResponse
	decodeBody(t, resp, &out)

	if !out.Data.IsEmergency || out.Data.EmergencyLevel != models.EmergencyCritical {
		t.Errorf("Expected critical emergency, got %+v", out.Data)
	}
	if out.Data.Emergency == nil || out.Data.Emergency.Resources.Emergency.Number != "10177" {
		t.Fatalf("Expected emergency block with resources, got %+v", out.Data.Emergency)
	}
	if len(out.Data.Disclaimers) != 4 {
		t.Errorf("Expected 4 disclaimers, got %d", len(out.Data.Disclaimers))
	}
	if len(a.escalator.Calls()) != 0 {
		t.Error("Expected test endpoint not to escalate")
	}
}

func TestChatTestEndpointNoEmergencyBlock(t *testing.T) {
	a := setupChatApp(t)

	resp := postJSON(t, a.app, "/api/v1/chat/test", `{"message":"How much sleep do I need?"}`)
	var out chatResponse
	decodeBody(t, resp, &out)
	if out.Data.IsEmergency || out.Data.Emergency != nil {
		t.Errorf("Expected no emergency block, got %+v", out.Data)
	}
}

func TestChatMessageValidation(t *testing.T) {
	a := setupChatApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty", `{"message":""}`},
		{"whitespace", `{"message":"   "}`},
		{"too long", `{"message":"` + strings.Repeat("a", 1001) + `"}`},
		{"bad conversation id", `{"message":"hello","conversationId":"nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, a.app, "/api/v1/chat/message", tt.body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
		})
	}

	// 1000 multi-byte characters are within the limit
	resp := postJSON(t, a.app, "/api/v1/chat/message", `{"message":"`+strings.Repeat("é", 1000)+`"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected 1000 characters to be accepted, got %d", resp.StatusCode)
	}
}

func TestChatMessageEscalatesOnRealtimeChannel(t *testing.T) {
	a := setupChatApp(t)

	resp := postJSON(t, a.app, "/api/v1/chat/message", `{"message":"I have chest pain and can't breathe"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var out chatResponse
	decodeBody(t, resp, &out)
	if out.Data.Emergency == nil || out.Data.Emergency.Level != models.EmergencyHigh {
		t.Fatalf("Expected high emergency block, got %+v", out.Data.Emergency)
	}

	calls := a.escalator.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 escalation, got %d", len(calls))
	}
	if calls[0].recipient != "user-42" || calls[0].channel != models.ChannelRealtime {
		t.Errorf("Expected realtime escalation for user-42, got %+v", calls[0])
	}
}

func TestChatConversationsWithoutStore(t *testing.T) {
	a := setupChatApp(t)
	id := "507f1f77bcf86cd799439011"

	requests := []*http.Request{
		httptest.NewRequest("GET", "/api/v1/chat/conversations", nil),
		httptest.NewRequest("GET", "/api/v1/chat/conversation/"+id, nil),
		httptest.NewRequest("DELETE", "/api/v1/chat/conversation/"+id, nil),
		httptest.NewRequest("POST", "/api/v1/chat/feedback",
			strings.NewReader(`{"conversationId":"`+id+`","messageId":"`+id+`","rating":5}`)),
	}

	for _, req := range requests {
		req.Header.Set("Content-Type", "application/json")
		resp, err := a.app.Test(req)
		if err != nil {
			t.Fatalf("%s %s: failed to send request: %v", req.Method, req.URL.Path, err)
		}
		if resp.StatusCode != fiber.StatusServiceUnavailable {
			t.Errorf("%s %s: expected 503 without a conversation store, got %d", req.Method, req.URL.Path, resp.StatusCode)
			continue
		}

		var out struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		decodeBody(t, resp, &out)
		if out.Success || out.Message != "Conversation history is not available" {
			t.Errorf("%s %s: unexpected body %+v", req.Method, req.URL.Path, out)
		}
	}
}

func TestEmergencyResources(t *testing.T) {
	app := fiber.New()
	app.Get("/api/v1/emergency/resources", NewEmergencyHandler(testResources).Resources)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/emergency/resources", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	var out struct {
		Success bool                      `json:"success"`
		Data    models.EmergencyResources `json:"data"`
	}
	decodeBody(t, resp, &out)
	if !out.Success || out.Data.Crisis.Number != "0800 567 567" || out.Data.SMS.Number != "31393" {
		t.Errorf("Unexpected resources: %+v", out)
	}
}

// TestHealthHandler tests the health check endpoint
func TestHealthHandler(t *testing.T) {
	app := fiber.New()
	app.Get("/health", NewHealthHandler(services.NewConnectionManager(), "1.0.0", "test").Handle)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var out map[string]interface{}
	decodeBody(t, resp, &out)
	if out["status"] != "healthy" || out["environment"] != "test" {
		t.Errorf("Unexpected health body: %v", out)
	}
	if out["connections"].(float64) != 0 {
		t.Errorf("Expected 0 connections, got %v", out["connections"])
	}
}
