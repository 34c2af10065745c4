package ussd

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime/debug"
	"strings"
	"time"

	"mobilespo/internal/logging"
	"mobilespo/internal/models"
)

const (
	chatFooter = "\n\n0. Back to menu\n*. Ask another question"
	tipsFooter = "\n\n0. Back to menu\n*. Another tip"

	maxReplyRunes       = 140
	truncatedReplyRunes = 137

	maxInputHistory = 50

	// contextLastQuestion holds the previous health_chat question for follow-ups
	contextLastQuestion = "lastQuestion"
)

// staticEmergencyInfo is shown when the locale table itself is unusable
const staticEmergencyInfo = "🚨 EMERGENCY CONTACTS:\nCrisis: {crisis}\nEmergency: {emergency}\nSuicide Prevention: {suicide}\nSMS Support: {sms}"

const staticServiceError = "Service temporarily unavailable. Please try again later. For emergencies call {emergency}."

// HealthAssistant answers free-text health questions
type HealthAssistant interface {
	ProcessQuery(ctx context.Context, message string, history []models.ChatTurn, patient models.PatientContext) (*models.HealthQueryResult, error)
}

// Escalator activates the emergency response for a detected emergency
type Escalator interface {
	HandleResponse(ctx context.Context, recipient string, channel models.NotificationChannel, text string, level models.EmergencyLevel) (*models.EmergencyResponse, error)
}

type stateHandler func(ctx context.Context, session *models.UssdSession, input string) (models.UssdResponse, error)

type menuOption func(session *models.UssdSession) models.UssdResponse

// Machine drives USSD dialogs. Each turn loads (or creates) the session,
// dispatches on its state and saves it back.
type Machine struct {
	store     Store
	locales   *Locales
	assistant HealthAssistant
	escalator Escalator
	fill      *strings.Replacer
	intn      func(n int) int
	now       func() time.Time

	handlers map[models.UssdState]stateHandler
	options  map[string]menuOption
}

// MachineOption customises a Machine
type MachineOption func(*Machine)

// WithRandom overrides the tip picker
func WithRandom(intn func(n int) int) MachineOption {
	return func(m *Machine) {
		m.intn = intn
	}
}

// WithMachineClock overrides the clock used for session activity
func WithMachineClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

// NewMachine wires the state machine. escalator may be nil, in which case
// emergencies are shown to the caller without side effects.
func NewMachine(store Store, locales *Locales, assistant HealthAssistant, escalator Escalator, resources models.EmergencyResources, opts ...MachineOption) *Machine {
	m := &Machine{
		store:     store,
		locales:   locales,
		assistant: assistant,
		escalator: escalator,
		fill: strings.NewReplacer(
			"{crisis}", resources.Crisis.Number,
			"{emergency}", resources.Emergency.Number,
			"{suicide}", resources.Suicide.Number,
			"{sms}", resources.SMS.Number,
		),
		intn: rand.Intn,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.handlers = map[models.UssdState]stateHandler{
		models.StateMainMenu:           m.handleMainMenu,
		models.StateLanguageSelection:  m.handleLanguageSelection,
		models.StateHealthChat:         m.handleHealthChat,
		models.StateEmergency:          m.handleEmergency,
		models.StateAppointmentBooking: m.handleAppointment,
		models.StateHealthTips:         m.handleHealthTips,
	}

	m.options = map[string]menuOption{
		"1": func(s *models.UssdSession) models.UssdResponse {
			s.State = models.StateHealthChat
			return models.NewUssdResponse(models.UssdResponseInput, m.render(s, "health_chat_prompt"))
		},
		"2": func(s *models.UssdSession) models.UssdResponse {
			s.State = models.StateEmergency
			return m.emergencyResponse(s.Language)
		},
		"3": func(s *models.UssdSession) models.UssdResponse {
			s.State = models.StateAppointmentBooking
			return models.NewUssdResponse(models.UssdResponseMenu, m.render(s, "appointment_menu"))
		},
		"4": func(s *models.UssdSession) models.UssdResponse {
			s.State = models.StateHealthTips
			return models.NewUssdResponse(models.UssdResponseInput, m.randomTip(s.Language)+tipsFooter)
		},
		"5": func(s *models.UssdSession) models.UssdResponse {
			s.State = models.StateLanguageSelection
			return models.NewUssdResponse(models.UssdResponseMenu, m.render(s, "language_menu"))
		},
		"0": func(s *models.UssdSession) models.UssdResponse {
			return models.NewUssdResponse(models.UssdResponseEnd, m.render(s, "goodbye"))
		},
	}

	return m
}

// Handle processes one gateway turn. It never panics and never returns an
// error: failures become a terminal error response.
func (m *Machine) Handle(ctx context.Context, phoneNumber, text, sessionID string) (resp models.UssdResponse) {
	logger := logging.WithSession(sessionID, phoneNumber)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("ussd turn panicked", "panic", r, "stack", string(debug.Stack()))
			m.discard(ctx, sessionID, logger)
			resp = m.ErrorResponse()
		}
	}()

	session, err := m.loadSession(ctx, sessionID, phoneNumber)
	if err != nil {
		logger.Error("failed to load ussd session", "error", err)
		return m.ErrorResponse()
	}

	session.LastActivity = m.now()
	session.InputHistory = append(session.InputHistory, text)
	if len(session.InputHistory) > maxInputHistory {
		session.InputHistory = session.InputHistory[len(session.InputHistory)-maxInputHistory:]
	}

	input := strings.TrimSpace(text)
	if input == "" {
		resp = m.mainMenu(session)
	} else {
		handler, ok := m.handlers[session.State]
		if !ok {
			logger.Warn("unknown ussd state, resetting", "state", session.State)
			handler = m.handleMainMenu
			session.State = models.StateMainMenu
		}

		resp, err = handler(ctx, session, input)
		if err != nil {
			logger.Error("ussd state handler failed", "state", session.State, "error", err)
			m.discard(ctx, sessionID, logger)
			return m.ErrorResponse()
		}
	}

	if err := m.store.Save(ctx, session); err != nil {
		logger.Error("failed to save ussd session", "error", err)
		return m.ErrorResponse()
	}

	logger.Debug("ussd turn handled", "state", session.State, "type", resp.Type)
	return resp
}

// ErrorResponse is the generic terminal response for processing failures. It
// always carries the emergency services number.
func (m *Machine) ErrorResponse() models.UssdResponse {
	text := m.locales.Render(models.LanguageEnglish, "service_error")
	if text == Unavailable {
		text = staticServiceError
	}
	return models.NewUssdResponse(models.UssdResponseError, m.fill.Replace(text))
}

// EmergencyInfo returns the localized hotline block
func (m *Machine) EmergencyInfo(language models.Language) string {
	text := m.locales.Render(language, "emergency_info")
	if text == Unavailable {
		text = staticEmergencyInfo
	}
	return m.fill.Replace(text)
}

func (m *Machine) loadSession(ctx context.Context, sessionID, phoneNumber string) (*models.UssdSession, error) {
	session, ok, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ok {
		return session, nil
	}
	return m.store.Create(ctx, sessionID, phoneNumber)
}

func (m *Machine) discard(ctx context.Context, sessionID string, logger *slog.Logger) {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		logger.Warn("failed to discard ussd session", "error", err)
	}
}

func (m *Machine) render(session *models.UssdSession, key string) string {
	return m.locales.Render(session.Language, key)
}

func (m *Machine) mainMenu(session *models.UssdSession) models.UssdResponse {
	session.State = models.StateMainMenu
	return models.NewUssdResponse(models.UssdResponseMenu, m.render(session, "main_menu"))
}

func (m *Machine) emergencyResponse(language models.Language) models.UssdResponse {
	return models.NewUssdResponse(models.UssdResponseEnd, m.EmergencyInfo(language))
}

func (m *Machine) randomTip(language models.Language) string {
	tips := m.locales.Tips(language)
	if len(tips) == 0 {
		return Unavailable
	}
	return tips[m.intn(len(tips))]
}

func (m *Machine) handleMainMenu(_ context.Context, session *models.UssdSession, input string) (models.UssdResponse, error) {
	if option, ok := m.options[input]; ok {
		return option(session), nil
	}

	session.State = models.StateMainMenu
	message := m.render(session, "invalid_option") + "\n\n" + m.render(session, "main_menu")
	return models.NewUssdResponse(models.UssdResponseMenu, message), nil
}

func (m *Machine) handleLanguageSelection(_ context.Context, session *models.UssdSession, input string) (models.UssdResponse, error) {
	language, ok := models.LanguageCodes[input]
	if !ok {
		message := m.locales.Render(models.LanguageEnglish, "invalid_selection") + "\n\n" +
			m.locales.Render(models.LanguageEnglish, "language_menu")
		return models.NewUssdResponse(models.UssdResponseMenu, message), nil
	}

	session.Language = language
	session.State = models.StateMainMenu
	message := m.render(session, "language_changed") + "\n\n" + m.render(session, "main_menu")
	return models.NewUssdResponse(models.UssdResponseMenu, message), nil
}

func (m *Machine) handleHealthChat(ctx context.Context, session *models.UssdSession, input string) (models.UssdResponse, error) {
	if input == "0" {
		return m.mainMenu(session), nil
	}

	var history []models.ChatTurn
	if last := session.Context[contextLastQuestion]; last != "" {
		history = []models.ChatTurn{{Role: "user", Content: last}}
	}

	result, err := m.assistant.ProcessQuery(ctx, input, history, models.PatientContext{
		Language:  session.Language,
		Interface: "ussd",
	})
	if err != nil {
		return models.UssdResponse{}, fmt.Errorf("health query failed: %w", err)
	}

	if result.IsEmergency {
		session.State = models.StateEmergency
		m.escalate(ctx, session, input, result.EmergencyLevel)
		return m.emergencyResponse(session.Language), nil
	}

	session.Context[contextLastQuestion] = input
	return models.NewUssdResponse(models.UssdResponseInput, TruncateReply(result.Response)+chatFooter), nil
}

// escalate runs the emergency side effects. The caller still gets the
// hotline block when escalation fails.
func (m *Machine) escalate(ctx context.Context, session *models.UssdSession, input string, level models.EmergencyLevel) {
	logger := logging.Emergency(logging.WithSession(session.ID, session.PhoneNumber))
	logger.Warn("emergency detected in ussd chat", "level", level)

	if m.escalator == nil {
		return
	}
	if _, err := m.escalator.HandleResponse(ctx, session.PhoneNumber, models.ChannelSMS, input, level); err != nil {
		logger.Error("emergency escalation failed", "level", level, "error", err)
	}
}

func (m *Machine) handleEmergency(_ context.Context, session *models.UssdSession, _ string) (models.UssdResponse, error) {
	return m.emergencyResponse(session.Language), nil
}

func (m *Machine) handleAppointment(_ context.Context, session *models.UssdSession, input string) (models.UssdResponse, error) {
	if input == "0" {
		return m.mainMenu(session), nil
	}
	return models.NewUssdResponse(models.UssdResponseEnd, m.render(session, "appointment_info")), nil
}

func (m *Machine) handleHealthTips(_ context.Context, session *models.UssdSession, input string) (models.UssdResponse, error) {
	if input == "0" {
		return m.mainMenu(session), nil
	}
	return models.NewUssdResponse(models.UssdResponseInput, m.randomTip(session.Language)+tipsFooter), nil
}

// TruncateReply shortens replies longer than 140 characters to 137
// characters plus "...". Characters are counted as runes.
func TruncateReply(reply string) string {
	runes := []rune(reply)
	if len(runes) <= maxReplyRunes {
		return reply
	}
	return string(runes[:truncatedReplyRunes]) + "..."
}
