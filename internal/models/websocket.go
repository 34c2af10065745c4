package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type string `json:"type"` // "ping"
}

// ServerMessage represents a message pushed to the client
type ServerMessage struct {
	Type      string                 `json:"type"` // "connected", "pong", "notification", "error"
	Event     string                 `json:"event,omitempty"`
	Content   string                 `json:"content,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// UserConnection represents a single notification WebSocket
type UserConnection struct {
	ConnID    string
	UserID    string // User ID from authentication
	ClientIP  string
	Conn      *websocket.Conn
	CreatedAt time.Time
	WriteChan chan ServerMessage
	StopChan  chan bool
	Mutex     sync.Mutex
	closed    bool
}

// SafeSend sends a message to WriteChan safely, returning false if the channel is closed
func (uc *UserConnection) SafeSend(msg ServerMessage) bool {
	uc.Mutex.Lock()
	if uc.closed {
		uc.Mutex.Unlock()
		return false
	}
	uc.Mutex.Unlock()

	// send on a channel closed by ConnectionManager.Remove panics
	defer func() {
		if r := recover(); r != nil {
			uc.Mutex.Lock()
			uc.closed = true
			uc.Mutex.Unlock()
		}
	}()

	select {
	case uc.WriteChan <- msg:
		return true
	default:
		return false
	}
}

// MarkClosed marks the connection as closed
func (uc *UserConnection) MarkClosed() {
	uc.Mutex.Lock()
	uc.closed = true
	uc.Mutex.Unlock()
}

// IsClosed returns true if the connection has been marked as closed
func (uc *UserConnection) IsClosed() bool {
	uc.Mutex.Lock()
	defer uc.Mutex.Unlock()
	return uc.closed
}
