package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Publisher is the slice of Redis the pub/sub service needs
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub
}

// PubSubService manages Redis pub/sub so realtime notifications reach users
// connected to other instances
type PubSubService struct {
	redis      Publisher
	pubsub     *redis.PubSub
	handlers   map[string][]MessageHandler
	mu         sync.RWMutex
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
}

// MessageHandler is a callback for handling pub/sub messages
type MessageHandler func(channel string, message *PubSubMessage)

// PubSubMessage represents a message sent via pub/sub
type PubSubMessage struct {
	Type       string                 `json:"type"`       // e.g. "emergency_detected"
	UserID     string                 `json:"userId"`     // Target user ID
	InstanceID string                 `json:"instanceId"` // Source instance ID
	Payload    map[string]interface{} `json:"payload"`
}

// NewPubSubService creates a new pub/sub service
func NewPubSubService(redisService Publisher, instanceID string) *PubSubService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PubSubService{
		redis:      redisService,
		handlers:   make(map[string][]MessageHandler),
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Subscribe registers handler for channels matching pattern
func (s *PubSubService) Subscribe(pattern string, handler MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[pattern] = append(s.handlers[pattern], handler)
	log.Printf("📡 [PUBSUB] Subscribed to pattern: %s", pattern)
}

// Start begins listening for user events
func (s *PubSubService) Start() error {
	s.pubsub = s.redis.PSubscribe(s.ctx, "user:*:events")

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go s.processMessages()

	log.Printf("✅ [PUBSUB] Started listening for messages (instance: %s)", s.instanceID)
	return nil
}

func (s *PubSubService) processMessages() {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

// dispatch decodes one message and runs the matching handlers
func (s *PubSubService) dispatch(channel string, data []byte) {
	var message PubSubMessage
	if err := json.Unmarshal(data, &message); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to unmarshal message: %v", err)
		return
	}

	// Skip messages from this instance (already delivered locally)
	if message.InstanceID == s.instanceID {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for pattern, handlers := range s.handlers {
		if matchPattern(pattern, channel) {
			for _, handler := range handlers {
				handler(channel, &message)
			}
		}
	}
}

// UserChannel returns the pub/sub channel for a user's events
func UserChannel(userID string) string {
	return "user:" + userID + ":events"
}

// PublishToUser publishes a message to a user's channel
func (s *PubSubService) PublishToUser(ctx context.Context, userID string, msgType string, payload map[string]interface{}) error {
	message := &PubSubMessage{
		Type:       msgType,
		UserID:     userID,
		InstanceID: s.instanceID,
		Payload:    payload,
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	return s.redis.Publish(ctx, UserChannel(userID), data)
}

// Stop stops the pub/sub service
func (s *PubSubService) Stop() error {
	s.cancel()
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}

// matchPattern checks if a channel matches a pattern where "*" matches one
// ":"-separated segment
func matchPattern(pattern, channel string) bool {
	if pattern == channel {
		return true
	}

	patternParts := strings.Split(pattern, ":")
	channelParts := strings.Split(channel, ":")

	if len(patternParts) != len(channelParts) {
		return false
	}

	for i, part := range patternParts {
		if part != "*" && part != channelParts[i] {
			return false
		}
	}

	return true
}
