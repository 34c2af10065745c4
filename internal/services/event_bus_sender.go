package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"mobilespo/internal/models"
)

// EventBusSender publishes emergency events to NATS for care-team consumers
type EventBusSender struct {
	conn    *nats.Conn
	subject string
}

// EmergencyEvent is the message published on the event bus
type EmergencyEvent struct {
	Event     string                 `json:"event"`
	Recipient string                 `json:"recipient"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEventBusSender connects to NATS
func NewEventBusSender(url, subject string) (*EventBusSender, error) {
	conn, err := nats.Connect(url,
		nats.Name("mobilespo"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Printf("✅ Connected to NATS server: %s", url)
	return &EventBusSender{conn: conn, subject: subject}, nil
}

// Subject returns the subject an event of the given level is published on
func (s *EventBusSender) Subject(level string) string {
	if level == "" {
		return s.subject
	}
	return s.subject + "." + level
}

func (s *EventBusSender) Send(ctx context.Context, recipient string, n models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(EmergencyEvent{
		Event:     n.Event,
		Recipient: recipient,
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	level, _ := n.Data["level"].(string)
	if err := s.conn.Publish(s.Subject(level), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close drains and closes the NATS connection
func (s *EventBusSender) Close() error {
	if s.conn != nil {
		if err := s.conn.Drain(); err != nil {
			s.conn.Close()
			return err
		}
		log.Println("NATS connection closed")
	}
	return nil
}
