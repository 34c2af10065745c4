package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"mobilespo/internal/logging"
	"mobilespo/internal/models"
)

// Sender delivers a notification on a single channel
type Sender interface {
	Send(ctx context.Context, recipient string, n models.Notification) error
}

// NotificationService routes notifications to per-channel senders. It never
// returns an error: failures are logged, counted and reported in the outcome.
type NotificationService struct {
	senders map[models.NotificationChannel]Sender
	now     func() time.Time
}

// NewNotificationService creates a service with no channels registered
func NewNotificationService() *NotificationService {
	return &NotificationService{
		senders: make(map[models.NotificationChannel]Sender),
		now:     time.Now,
	}
}

// Register attaches sender to channel, replacing any previous sender
func (s *NotificationService) Register(channel models.NotificationChannel, sender Sender) {
	s.senders[channel] = sender
	log.Printf("📣 [NOTIFY] Registered %s channel", channel)
}

// Notify delivers n to recipient on channel
func (s *NotificationService) Notify(ctx context.Context, recipient string, channel models.NotificationChannel, n models.Notification) models.NotificationOutcome {
	start := s.now()
	outcome := models.NotificationOutcome{
		Channel:   channel,
		Timestamp: start.UTC(),
	}

	sender, ok := s.senders[channel]
	if !ok {
		outcome.Error = fmt.Sprintf("no sender registered for channel %s", channel)
	} else if err := sender.Send(ctx, recipient, n); err != nil {
		outcome.Error = err.Error()
	} else {
		outcome.Delivered = true
	}
	outcome.LatencyMs = s.now().Sub(start).Milliseconds()

	GetMetrics().RecordNotification(channel, outcome.Delivered)

	if outcome.Delivered {
		log.Printf("📣 [NOTIFY] %s delivered to %s (%dms)", channel, logging.MaskPhone(recipient), outcome.LatencyMs)
	} else {
		log.Printf("⚠️  [NOTIFY] %s to %s failed: %s", channel, logging.MaskPhone(recipient), outcome.Error)
	}
	return outcome
}

// RealtimeSender pushes notifications to the recipient's websocket
// connections on this instance and publishes them for other instances
type RealtimeSender struct {
	connManager *ConnectionManager
	pubsub      *PubSubService
}

// NewRealtimeSender creates a realtime sender. pubsub may be nil for a
// single-instance deployment.
func NewRealtimeSender(connManager *ConnectionManager, pubsub *PubSubService) *RealtimeSender {
	return &RealtimeSender{connManager: connManager, pubsub: pubsub}
}

func (s *RealtimeSender) Send(ctx context.Context, userID string, n models.Notification) error {
	local := s.connManager.SendToUser(userID, NotificationMessage(n.Event, n.Body, n.Data))

	if s.pubsub != nil {
		if err := s.pubsub.PublishToUser(ctx, userID, n.Event, notificationPayload(n)); err != nil {
			if local == 0 {
				return fmt.Errorf("failed to publish realtime event: %w", err)
			}
			log.Printf("⚠️  [NOTIFY] Realtime publish failed, delivered locally only: %v", err)
		}
		return nil
	}

	if local == 0 {
		return fmt.Errorf("user %s has no open notification connection", userID)
	}
	return nil
}

// DeliverRemote forwards a pub/sub message from another instance to local connections
func (s *RealtimeSender) DeliverRemote(_ string, message *PubSubMessage) {
	body, _ := message.Payload["body"].(string)
	data, _ := message.Payload["data"].(map[string]interface{})
	s.connManager.SendToUser(message.UserID, NotificationMessage(message.Type, body, data))
}

// NotificationMessage builds the websocket frame for an event
func NotificationMessage(event, content string, payload map[string]interface{}) models.ServerMessage {
	return models.ServerMessage{
		Type:      "notification",
		Event:     event,
		Content:   content,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

func notificationPayload(n models.Notification) map[string]interface{} {
	return map[string]interface{}{
		"title": n.Title,
		"body":  n.Body,
		"data":  n.Data,
	}
}
