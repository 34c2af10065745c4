package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"mobilespo/internal/models"
	"mobilespo/internal/services"
)

const (
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
)

// NotificationWebSocketHandler serves /ws/notifications. Each authenticated
// connection joins its user's room implicitly and receives realtime events
// such as emergency_detected.
type NotificationWebSocketHandler struct {
	connManager *services.ConnectionManager
}

// NewNotificationWebSocketHandler creates a new notification WebSocket handler
func NewNotificationWebSocketHandler(connManager *services.ConnectionManager) *NotificationWebSocketHandler {
	return &NotificationWebSocketHandler{connManager: connManager}
}

// Handle handles a new WebSocket connection
func (h *NotificationWebSocketHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()
	userID, _ := c.Locals("user_id").(string)
	clientIP, _ := c.Locals("client_ip").(string)

	done := make(chan struct{})

	userConn := &models.UserConnection{
		ConnID:    connID,
		UserID:    userID,
		ClientIP:  clientIP,
		Conn:      c,
		CreatedAt: time.Now(),
		WriteChan: make(chan models.ServerMessage, 32),
		StopChan:  make(chan bool, 1),
	}

	h.connManager.Add(userConn)
	services.GetMetrics().RecordWebSocketConnect()
	defer func() {
		close(done)
		h.connManager.Remove(connID)
		services.GetMetrics().RecordWebSocketDisconnect()
	}()

	c.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	go h.pingLoop(userConn, done)
	go h.writeLoop(userConn)

	userConn.SafeSend(models.ServerMessage{
		Type:      "connected",
		Content:   "Connected to notifications",
		Timestamp: time.Now().UTC(),
	})

	h.readLoop(userConn)
}

// pingLoop keeps idle connections alive through proxies
func (h *NotificationWebSocketHandler) pingLoop(userConn *models.UserConnection, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			userConn.Mutex.Lock()
			err := userConn.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			userConn.Mutex.Unlock()
			if err != nil {
				log.Printf("⚠️ Ping failed for %s: %v", userConn.ConnID, err)
				return
			}
		}
	}
}

// writeLoop drains WriteChan until ConnectionManager.Remove closes it
func (h *NotificationWebSocketHandler) writeLoop(userConn *models.UserConnection) {
	for msg := range userConn.WriteChan {
		userConn.Mutex.Lock()
		err := userConn.Conn.WriteJSON(msg)
		userConn.Mutex.Unlock()
		if err != nil {
			log.Printf("❌ WebSocket write error for %s: %v", userConn.ConnID, err)
			return
		}
	}
}

// readLoop answers client heartbeats; the channel is otherwise push-only
func (h *NotificationWebSocketHandler) readLoop(userConn *models.UserConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in readLoop: %v", r)
		}
	}()

	for {
		_, msg, err := userConn.Conn.ReadMessage()
		if err != nil {
			log.Printf("🔌 WebSocket closed for %s: %v", userConn.ConnID, err)
			return
		}
		userConn.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var clientMsg models.ClientMessage
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			userConn.SafeSend(models.ServerMessage{
				Type:      "error",
				Content:   "Invalid message format",
				Timestamp: time.Now().UTC(),
			})
			continue
		}

		switch clientMsg.Type {
		case "ping":
			userConn.SafeSend(models.ServerMessage{Type: "pong", Timestamp: time.Now().UTC()})
		default:
			log.Printf("⚠️  Unknown message type: %s", clientMsg.Type)
		}
	}
}
