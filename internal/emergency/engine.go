package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mobilespo/internal/config"
	"mobilespo/internal/logging"
	"mobilespo/internal/models"
)

// ErrNoEmergency is returned when escalation is requested for level none or an unknown level
var ErrNoEmergency = errors.New("no emergency to escalate")

// Notifier delivers a notification on one channel. Failures are reported in
// the outcome, never as a panic or error.
type Notifier interface {
	Notify(ctx context.Context, recipient string, channel models.NotificationChannel, n models.Notification) models.NotificationOutcome
}

// AuditSink records audit events. Implementations must not fail the caller.
type AuditSink interface {
	Record(ctx context.Context, event string, metadata map[string]interface{})
}

// Engine builds action plans for detected emergencies and performs the
// notification and audit side effects before returning.
type Engine struct {
	notifier  Notifier
	audit     AuditSink
	resources models.EmergencyResources
	timeout   time.Duration
	fanout    []models.NotificationChannel
	observe   func(level models.EmergencyLevel, channel models.NotificationChannel)
	now       func() time.Time
}

// EngineOption customises an Engine
type EngineOption func(*Engine)

// WithFanout adds channels that receive every escalation in addition to the
// caller's channel (e.g. the care-team event bus).
func WithFanout(channels ...models.NotificationChannel) EngineOption {
	return func(e *Engine) {
		e.fanout = append(e.fanout, channels...)
	}
}

// WithObserver registers a callback invoked once per escalation, before any
// notification is attempted
func WithObserver(fn func(level models.EmergencyLevel, channel models.NotificationChannel)) EngineOption {
	return func(e *Engine) {
		e.observe = fn
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an escalation engine. notifier and audit may be nil.
func NewEngine(cfg *config.Config, notifier Notifier, audit AuditSink, opts ...EngineOption) *Engine {
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	e := &Engine{
		notifier:  notifier,
		audit:     audit,
		resources: Resources(cfg),
		timeout:   timeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resources returns the hotline block used in every plan
func (e *Engine) Resources() models.EmergencyResources {
	return e.resources
}

// HandleResponse builds the action plan for level, writes the audit record
// and notifies recipient on channel (plus any fanout channels). Each delivery
// is bounded by the configured timeout; delivery failures are logged and
// reported in the returned plan but never fail the call.
func (e *Engine) HandleResponse(ctx context.Context, recipient string, channel models.NotificationChannel, text string, level models.EmergencyLevel) (*models.EmergencyResponse, error) {
	actions := ActionPlan(level, e.resources)
	if actions == nil {
		return nil, fmt.Errorf("%w: level %q", ErrNoEmergency, level)
	}

	logger := logging.Emergency(nil).With("recipient", logging.MaskPhone(recipient), "level", level)

	response := &models.EmergencyResponse{
		UserID:    recipient,
		Level:     level,
		Timestamp: e.now().UTC(),
		Resources: e.resources,
		Actions:   actions,
	}

	if e.observe != nil {
		e.observe(level, channel)
	}

	if e.audit != nil {
		e.audit.Record(ctx, "emergency_detected", map[string]interface{}{
			"category":      "emergency",
			"recipient":     recipient,
			"level":         string(level),
			"channel":       string(channel),
			"action":        "auto_response",
			"messageLength": len(text),
		})
	}

	if e.notifier != nil {
		notification := e.notificationFor(response)
		for _, ch := range e.channelsFor(channel) {
			outcome := e.deliver(ctx, recipient, ch, notification)
			response.Notifications = append(response.Notifications, outcome)
			if !outcome.Delivered {
				logger.Warn("emergency notification not delivered", "channel", ch, "error", outcome.Error)
			}
		}
	}

	logger.Warn("emergency response activated", "actions", len(actions))
	return response, nil
}

func (e *Engine) deliver(ctx context.Context, recipient string, channel models.NotificationChannel, n models.Notification) (outcome models.NotificationOutcome) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			outcome = models.NotificationOutcome{
				Channel:   channel,
				Delivered: false,
				Error:     fmt.Sprintf("notifier panic: %v", r),
				Timestamp: start,
			}
		}
	}()

	notifyCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.notifier.Notify(notifyCtx, recipient, channel, n)
}

func (e *Engine) channelsFor(primary models.NotificationChannel) []models.NotificationChannel {
	channels := []models.NotificationChannel{primary}
	for _, ch := range e.fanout {
		if ch != primary {
			channels = append(channels, ch)
		}
	}
	return channels
}

func (e *Engine) notificationFor(response *models.EmergencyResponse) models.Notification {
	return models.Notification{
		Event: "emergency_detected",
		Title: "Emergency support activated",
		Body:  smsText(response.Level, e.resources),
		Data: map[string]interface{}{
			"level":     string(response.Level),
			"message":   "Emergency support resources have been activated",
			"actions":   response.Actions,
			"resources": response.Resources,
			"timestamp": response.Timestamp.Format(time.RFC3339),
		},
	}
}

// smsText is the short plain-text form of a plan, sized for a single SMS
func smsText(level models.EmergencyLevel, res models.EmergencyResources) string {
	switch level {
	case models.EmergencyCritical:
		return fmt.Sprintf("Mobile Spo: You are not alone. Call %s now, or the Suicide Prevention Lifeline %s (24/7).",
			res.Emergency.Number, res.Suicide.Number)
	case models.EmergencyHigh:
		return fmt.Sprintf("Mobile Spo: We are concerned about you. Crisis Helpline %s, or SMS \"Hi\" to %s (24/7).",
			res.Crisis.Number, res.SMS.Number)
	default:
		return fmt.Sprintf("Mobile Spo: Help is available. Crisis Helpline %s (24/7).", res.Crisis.Number)
	}
}
