package models

import "time"

// UssdState is the sole discriminator of how the next USSD input is interpreted
type UssdState string

const (
	StateMainMenu           UssdState = "main_menu"
	StateLanguageSelection  UssdState = "language_selection"
	StateHealthChat         UssdState = "health_chat"
	StateEmergency          UssdState = "emergency"
	StateAppointmentBooking UssdState = "appointment_booking"
	StateHealthTips         UssdState = "health_tips"
)

// UssdStates lists every dialog state in menu order
var UssdStates = []UssdState{
	StateMainMenu,
	StateLanguageSelection,
	StateHealthChat,
	StateEmergency,
	StateAppointmentBooking,
	StateHealthTips,
}

// Valid reports whether s is one of the known dialog states
func (s UssdState) Valid() bool {
	for _, state := range UssdStates {
		if s == state {
			return true
		}
	}
	return false
}

// Language selects the localized template table
type Language string

const (
	LanguageEnglish   Language = "english"
	LanguageAfrikaans Language = "afrikaans"
	LanguageIsiZulu   Language = "isizulu"
	LanguageSesotho   Language = "sesotho"
	LanguageIsiXhosa  Language = "isixhosa"
)

// LanguageCodes maps the language menu digits to languages
var LanguageCodes = map[string]Language{
	"1": LanguageEnglish,
	"2": LanguageAfrikaans,
	"3": LanguageIsiZulu,
	"4": LanguageSesotho,
	"5": LanguageIsiXhosa,
}

// UssdSession is one feature-phone dialog, keyed by the gateway session id
type UssdSession struct {
	ID           string            `json:"id"`
	PhoneNumber  string            `json:"phoneNumber"`
	Language     Language          `json:"language"`
	State        UssdState         `json:"state"`
	Context      map[string]string `json:"context"`
	InputHistory []string          `json:"inputHistory"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
}

// NewUssdSession creates a session in the main menu with English templates
func NewUssdSession(id, phoneNumber string, now time.Time) *UssdSession {
	return &UssdSession{
		ID:           id,
		PhoneNumber:  phoneNumber,
		Language:     LanguageEnglish,
		State:        StateMainMenu,
		Context:      make(map[string]string),
		InputHistory: make([]string, 0, 8),
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Expired reports whether the session has been idle for at least timeout
func (s *UssdSession) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity) >= timeout
}

// Clone returns a deep copy so stored sessions are never shared with callers
func (s *UssdSession) Clone() *UssdSession {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Context = make(map[string]string, len(s.Context))
	for k, v := range s.Context {
		clone.Context[k] = v
	}
	clone.InputHistory = append([]string(nil), s.InputHistory...)
	return &clone
}

// UssdResponseType tells the gateway whether to keep the dialog open
type UssdResponseType string

const (
	UssdResponseMenu  UssdResponseType = "menu"
	UssdResponseInput UssdResponseType = "input"
	UssdResponseEnd   UssdResponseType = "end"
	UssdResponseError UssdResponseType = "error"
)

// UssdResponse is the payload returned to the telecom gateway
type UssdResponse struct {
	Message         string           `json:"message"`
	ContinueSession bool             `json:"continueSession"`
	Type            UssdResponseType `json:"type"`
}

// NewUssdResponse builds a response whose ContinueSession flag follows its type
func NewUssdResponse(responseType UssdResponseType, message string) UssdResponse {
	return UssdResponse{
		Message:         message,
		ContinueSession: responseType == UssdResponseMenu || responseType == UssdResponseInput,
		Type:            responseType,
	}
}

// UssdRequest is the gateway request body. Providers post either JSON or form data.
type UssdRequest struct {
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
	Text        string `json:"text" form:"text"`
	SessionID   string `json:"sessionId" form:"sessionId"`
}

// UssdWebhookEvent is a provider callback about session lifecycle
type UssdWebhookEvent struct {
	Event       string                 `json:"event"`
	SessionID   string                 `json:"sessionId"`
	PhoneNumber string                 `json:"phoneNumber"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// UssdSessionStats is a snapshot of live sessions held by a store
type UssdSessionStats struct {
	Active     int               `json:"activeSessions"`
	ByState    map[UssdState]int `json:"byState"`
	ByLanguage map[Language]int  `json:"byLanguage"`
}

// NewUssdSessionStats returns empty stats with initialized maps
func NewUssdSessionStats() *UssdSessionStats {
	return &UssdSessionStats{
		ByState:    make(map[UssdState]int),
		ByLanguage: make(map[Language]int),
	}
}

// Add counts one live session
func (s *UssdSessionStats) Add(session *UssdSession) {
	s.Active++
	s.ByState[session.State]++
	s.ByLanguage[session.Language]++
}
