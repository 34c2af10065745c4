package ussd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mobilespo/internal/medical"
	"mobilespo/internal/models"
)

var testResources = models.EmergencyResources{
	Crisis:    models.EmergencyResource{Name: "Crisis Helpline", Number: "0800 567 567"},
	Suicide:   models.EmergencyResource{Name: "Suicide Prevention", Number: "0800 12 13 14"},
	Emergency: models.EmergencyResource{Name: "Emergency Services", Number: "10177"},
	SMS:       models.EmergencyResource{Name: "SMS Counseling", Number: "31393"},
}

type stubAssistant struct {
	result *models.HealthQueryResult
	err    error
	panics bool
}

func (a *stubAssistant) ProcessQuery(ctx context.Context, message string, history []models.ChatTurn, patient models.PatientContext) (*models.HealthQueryResult, error) {
	if a.panics {
		panic("classifier exploded")
	}
	return a.result, a.err
}

type recordingEscalator struct {
	recipients []string
	channels   []models.NotificationChannel
	levels     []models.EmergencyLevel
	err        error
	panics     bool
}

func (e *recordingEscalator) HandleResponse(ctx context.Context, recipient string, channel models.NotificationChannel, text string, level models.EmergencyLevel) (*models.EmergencyResponse, error) {
	if e.panics {
		panic("escalation exploded")
	}
	e.recipients = append(e.recipients, recipient)
	e.channels = append(e.channels, channel)
	e.levels = append(e.levels, level)
	return &models.EmergencyResponse{Level: level}, e.err
}

type failingStore struct {
	Store
}

func (failingStore) Get(context.Context, string) (*models.UssdSession, bool, error) {
	return nil, false, errors.New("redis down")
}

type testMachine struct {
	*Machine
	store     *MemoryStore
	clock     *fakeClock
	escalator *recordingEscalator
}

func newTestMachine(t *testing.T, assistant HealthAssistant) *testMachine {
	t.Helper()
	clock := newFakeClock()
	store := NewMemoryStore(300*time.Second, WithStoreClock(clock.Now))
	escalator := &recordingEscalator{}
	if assistant == nil {
		assistant = medical.NewAssistant(10)
	}
	m := NewMachine(store, mustLocales(t), assistant, escalator, testResources,
		WithMachineClock(clock.Now), WithRandom(func(int) int { return 0 }))
	return &testMachine{Machine: m, store: store, clock: clock, escalator: escalator}
}

func (tm *testMachine) state(t *testing.T, sessionID string) models.UssdState {
	t.Helper()
	session, ok, err := tm.store.Get(context.Background(), sessionID)
	if err != nil || !ok {
		t.Fatalf("Expected stored session %s, ok=%v err=%v", sessionID, ok, err)
	}
	return session.State
}

const testPhone = "+27821234567"

func TestEveryStateHasHandler(t *testing.T) {
	tm := newTestMachine(t, nil)
	for _, state := range models.UssdStates {
		if _, ok := tm.handlers[state]; !ok {
			t.Errorf("No handler registered for state %s", state)
		}
	}
	if len(tm.handlers) != len(models.UssdStates) {
		t.Errorf("Expected %d handlers, got %d", len(models.UssdStates), len(tm.handlers))
	}
}

func TestMenuRoundTrip(t *testing.T) {
	tm := newTestMachine(t, nil)
	ctx := context.Background()

	resp := tm.Handle(ctx, testPhone, "", "s1")
	if resp.Type != models.UssdResponseMenu || !resp.ContinueSession {
		t.Fatalf("Expected continuing menu, got %+v", resp)
	}
	if !strings.HasPrefix(resp.Message, "🏥 Mobile Spo Health Assistant") {
		t.Errorf("Expected main menu, got %q", resp.Message)
	}

	resp = tm.Handle(ctx, testPhone, "1", "s1")
	if resp.Type != models.UssdResponseInput || tm.state(t, "s1") != models.StateHealthChat {
		t.Fatalf("Expected health_chat input, got %+v in %s", resp, tm.state(t, "s1"))
	}

	resp = tm.Handle(ctx, testPhone, "0", "s1")
	if resp.Type != models.UssdResponseMenu || tm.state(t, "s1") != models.StateMainMenu {
		t.Fatalf("Expected main menu after 0, got %+v in %s", resp, tm.state(t, "s1"))
	}
}

func TestInvalidOptionKeepsMainMenu(t *testing.T) {
	tm := newTestMachine(t, nil)
	ctx := context.Background()

	tm.Handle(ctx, testPhone, "", "s1")
	resp := tm.Handle(ctx, testPhone, "9", "s1")

	if tm.state(t, "s1") != models.StateMainMenu {
		t.Errorf("Expected main_menu, got %s", tm.state(t, "s1"))
	}
	if !strings.Contains(resp.Message, "Invalid option") || !strings.Contains(resp.Message, "1. Health Chat") {
		t.Errorf("Expected invalid notice and menu, got %q", resp.Message)
	}
	if !resp.ContinueSession {
		t.Error("Expected session to continue")
	}
}

func TestMainMenuTerminalOptions(t *testing.T) {
	tm := newTestMachine(t, nil)
	ctx := context.Background()

	resp := tm.Handle(ctx, testPhone, "2", "s1")
	if resp.Type != models.UssdResponseEnd || resp.ContinueSession {
		t.Fatalf("Expected terminal emergency block, got %+v", resp)
	}
	for _, number := range []string{"0800 567 567", "10177", "0800 12 13 14", "31393"} {
		if !strings.Contains(resp.Message, number) {
			t.Errorf("Expected emergency block to contain %s, got %q", number, resp.Message)
		}
	}
	if len(tm.escalator.levels) != 0 {
		t.Error("Expected the emergency menu not to escalate")
	}

	resp = tm.Handle(ctx, testPhone, "0", "s2")
	if resp.Type != models.UssdResponseEnd || !strings.Contains(resp.Message, "Stay healthy") {
		t.Errorf("Expected goodbye, got %+v", resp)
	}
}

func TestLanguageChange(t *testing.T) {
	tm := newTestMachine(t, nil)
	ctx := context.Background()

	tm.Handle(ctx, testPhone, "5", "s1")
	if tm.state(t, "s1") != models.StateLanguageSelection {
		t.Fatalf("Expected language_selection, got %s", tm.state(t, "s1"))
	}

	resp := tm.Handle(ctx, testPhone, "7", "s1")
	if !strings.HasPrefix(resp.Message, "Invalid selection. Please try again.") || !strings.Contains(resp.Message, "5. isiXhosa") {
		t.Errorf("Expected invalid selection with language list, got %q", resp.Message)
	}
	if tm.state(t, "s1") != models.StateLanguageSelection {
		t.Errorf("Expected to stay in language_selection, got %s", tm.state(t, "s1"))
	}

	resp = tm.Handle(ctx, testPhone, "2", "s1")
	if resp.Type != models.UssdResponseMenu || !strings.Contains(resp.Message, "Gesondheidsassistent") {
		t.Errorf("Expected Afrikaans main menu, got %q", resp.Message)
	}
	session, _, _ := tm.store.Get(ctx, "s1")
	if session.Language != models.LanguageAfrikaans || session.State != models.StateMainMenu {
		t.Errorf("Expected afrikaans/main_menu, got %s/%s", session.Language, session.State)
	}
}

func TestHealthChatTruncatesReply(t *testing.T) {
	long := strings.Repeat("é", 200)
	tm := newTestMachine(t, &stubAssistant{result: &models.HealthQueryResult{Response: long}})
	ctx := context.Background()

	tm.Handle(ctx, testPhone, "1", "s1")
	resp := tm.Handle(ctx, testPhone, "my head hurts", "s1")

	expected := strings.Repeat("é", 137) + "..." + chatFooter
	if resp.Message != expected {
		t.Errorf("Unexpected truncated message: %q", resp.Message)
	}
	if resp.Type != models.UssdResponseInput || tm.state(t, "s1") != models.StateHealthChat {
		t.Errorf("Expected to stay in health_chat with input, got %+v", resp)
	}
}

func TestTruncateReply(t *testing.T) {
	exact := strings.Repeat("a", 140)
	if got := TruncateReply(exact); got != exact {
		t.Errorf("Expected 140-character reply unchanged")
	}
	if got := TruncateReply(exact + "b"); got != strings.Repeat("a", 137)+"..." {
		t.Errorf("Expected truncation, got %q", got)
	}
}

func TestHealthChatEmergencyShortCircuits(t *testing.T) {
	tm := newTestMachine(t, nil)
	ctx := context.Background()

	tm.Handle(ctx, testPhone, "1", "s1")
	resp := tm.Handle(ctx, testPhone, "I want to kill myself", "s1")

	if resp.Type != models.UssdResponseEnd || resp.ContinueSession {
		t.Fatalf("Expected terminal emergency response, got %+v", resp)
	}
	if !strings.Contains(resp.Message, "EMERGENCY CONTACTS") || strings.Contains(resp.Message, "Ask another question") {
		t.Errorf("Expected emergency block without chat reply, got %q", resp.Message)
	}
	if tm.state(t, "s1") != models.StateEmergency {
		t.Errorf("Expected emergency state, got %s", tm.state(t, "s1"))
	}

	if len(tm.escalator.levels) != 1 || tm.escalator.levels[0] != models.EmergencyCritical {
		t.Fatalf("Expected one critical escalation, got %v", tm.escalator.levels)
	}
	if tm.escalator.recipients[0] != testPhone || tm.escalator.channels[0] != models.ChannelSMS {
		t.Errorf("Expected sms escalation to caller, got %s/%s", tm.escalator.recipients[0], tm.escalator.channels[0])
	}

	resp = tm.Handle(ctx, testPhone, "hello?", "s1")
	if resp.Type != models.UssdResponseEnd || !strings.Contains(resp.Message, "10177") {
		t.Errorf("Expected emergency block again, got %+v", resp)
	}
}

func TestHealthChatEscalationFailureStillShowsHotlines(t *testing.T) {
	tm := newTestMachine(t, nil)
	tm.escalator.err = errors.New("sms gateway down")
	ctx := context.Background()

	tm.Handle(ctx, testPhone, "1", "s1")
	resp := tm.Handle(ctx, testPhone, "I have chest pain", "s1")

	if resp.Type != models.UssdResponseEnd || !strings.Contains(resp.Message, "0800 567 567") {
		t.Errorf("Expected emergency block despite escalation failure, got %+v", resp)
	}
}

func TestProcessingFailuresBecomeErrorResponse(t *testing.T) {
	tests := []struct {
		name      string
		assistant *stubAssistant
		escalate  bool
	}{
		{"assistant error", &stubAssistant{err: errors.New("boom")}, false},
		{"assistant panic", &stubAssistant{panics: true}, false},
		{"escalation panic", &stubAssistant{result: &models.HealthQueryResult{IsEmergency: true, EmergencyLevel: models.EmergencyHigh}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := newTestMachine(t, tt.assistant)
			tm.escalator.panics = tt.escalate
			ctx := context.Background()

			tm.Handle(ctx, testPhone, "1", "s1")
			resp := tm.Handle(ctx, testPhone, "question", "s1")

			if resp.Type != models.UssdResponseError || resp.ContinueSession {
				t.Fatalf("Expected terminal error, got %+v", resp)
			}
			if !strings.HasPrefix(resp.Message, "Service temporarily unavailable") || !strings.Contains(resp.Message, "10177") {
				t.Errorf("Unexpected error message %q", resp.Message)
			}
			if _, ok, _ := tm.store.Get(ctx, "s1"); ok {
				t.Error("Expected failed session to be discarded")
			}
		})
	}
}

func TestStoreFailureBecomesErrorResponse(t *testing.T) {
	m := NewMachine(failingStore{}, mustLocales(t), medical.NewAssistant(10), nil, testResources)

	resp := m.Handle(context.Background(), testPhone, "", "s1")
	if resp.Type != models.UssdResponseError || resp.ContinueSession {
		t.Errorf("Expected terminal error, got %+v", resp)
	}
}

func TestExpiredSessionStartsFresh(t *testing.T) {
	tm := newTestMachine(t, nil)
	ctx := context.Background()

	tm.Handle(ctx, testPhone, "1", "s1")
	if tm.state(t, "s1") != models.StateHealthChat {
		t.Fatalf("Expected health_chat, got %s", tm.state(t, "s1"))
	}

	tm.clock.Advance(301 * time.Second)
	resp := tm.Handle(ctx, testPhone, "", "s1")

	if resp.Type != models.UssdResponseMenu || !strings.HasPrefix(resp.Message, "🏥 Mobile Spo Health Assistant") {
		t.Errorf("Expected fresh main menu, got %+v", resp)
	}
	session, _, _ := tm.store.Get(ctx, "s1")
	if session.State != models.StateMainMenu || len(session.InputHistory) != 1 {
		t.Errorf("Expected new session with one turn, got %s with history %v", session.State, session.InputHistory)
	}
}

func TestEveryTurnRecordsActivity(t *testing.T) {
	tm := newTestMachine(t, nil)
	ctx := context.Background()

	tm.Handle(ctx, testPhone, "", "s1")
	tm.clock.Advance(10 * time.Second)
	tm.Handle(ctx, testPhone, "9", "s1")

	session, _, _ := tm.store.Get(ctx, "s1")
	if len(session.InputHistory) != 2 || session.InputHistory[1] != "9" {
		t.Errorf("Expected two recorded inputs, got %v", session.InputHistory)
	}
	if !session.LastActivity.Equal(tm.clock.Now()) {
		t.Errorf("Expected last activity %v, got %v", tm.clock.Now(), session.LastActivity)
	}
}

func TestAppointmentFlow(t *testing.T) {
	tm := newTestMachine(t, nil)
	ctx := context.Background()

	resp := tm.Handle(ctx, testPhone, "3", "s1")
	if resp.Type != models.UssdResponseMenu || !strings.Contains(resp.Message, "Appointments") {
		t.Fatalf("Expected appointment menu, got %+v", resp)
	}

	tm.Handle(ctx, testPhone, "0", "s1")
	if tm.state(t, "s1") != models.StateMainMenu {
		t.Errorf("Expected main_menu after 0, got %s", tm.state(t, "s1"))
	}

	tm.Handle(ctx, testPhone, "3", "s1")
	resp = tm.Handle(ctx, testPhone, "1", "s1")
	if resp.Type != models.UssdResponseEnd || !strings.Contains(resp.Message, "APPOINTMENT BOOKING") {
		t.Errorf("Expected appointment info, got %+v", resp)
	}
}

func TestHealthTips(t *testing.T) {
	tm := newTestMachine(t, nil)
	ctx := context.Background()

	resp := tm.Handle(ctx, testPhone, "4", "s1")
	first := mustLocales(t).Tips(models.LanguageEnglish)[0]
	if resp.Type != models.UssdResponseInput || resp.Message != first+tipsFooter {
		t.Errorf("Expected first tip with footer, got %+v", resp)
	}

	resp = tm.Handle(ctx, testPhone, "*", "s1")
	if resp.Message != first+tipsFooter || tm.state(t, "s1") != models.StateHealthTips {
		t.Errorf("Expected another tip in health_tips, got %+v", resp)
	}

	tm.Handle(ctx, testPhone, "0", "s1")
	if tm.state(t, "s1") != models.StateMainMenu {
		t.Errorf("Expected main_menu, got %s", tm.state(t, "s1"))
	}
}
