package models

import "time"

// NotificationChannel names a delivery path for outbound notifications
type NotificationChannel string

const (
	ChannelRealtime NotificationChannel = "realtime"  // websocket, fanned out over redis pub/sub
	ChannelSMS      NotificationChannel = "sms"       // twilio
	ChannelEventBus NotificationChannel = "event_bus" // nats, consumed by care-team integrations
)

// Notification is a message addressed to a user id or phone number
type Notification struct {
	Event string                 `json:"event"`
	Title string                 `json:"title,omitempty"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// NotificationOutcome is the logged result of one delivery attempt
type NotificationOutcome struct {
	Channel   NotificationChannel `json:"channel"`
	Delivered bool                `json:"delivered"`
	Error     string              `json:"error,omitempty"`
	LatencyMs int64               `json:"latencyMs"`
	Timestamp time.Time           `json:"timestamp"`
}
