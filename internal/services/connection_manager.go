package services

import (
	"log"
	"sync"

	"mobilespo/internal/models"
)

// ConnectionManager manages all active WebSocket connections, indexed by
// connection id and by user
type ConnectionManager struct {
	connections map[string]*models.UserConnection
	byUser      map[string]map[string]*models.UserConnection
	mutex       sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*models.UserConnection),
		byUser:      make(map[string]map[string]*models.UserConnection),
	}
}

// Add adds a new connection
func (cm *ConnectionManager) Add(conn *models.UserConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.connections[conn.ConnID] = conn

	userConns, ok := cm.byUser[conn.UserID]
	if !ok {
		userConns = make(map[string]*models.UserConnection)
		cm.byUser[conn.UserID] = userConns
	}
	userConns[conn.ConnID] = conn

	log.Printf("✅ Connection added: %s (Total: %d)", conn.ConnID, len(cm.connections))
}

// Remove removes a connection and closes its channels
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	conn, exists := cm.connections[connID]
	if !exists {
		return
	}

	conn.MarkClosed()
	close(conn.WriteChan)
	close(conn.StopChan)
	delete(cm.connections, connID)

	if userConns, ok := cm.byUser[conn.UserID]; ok {
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(cm.byUser, conn.UserID)
		}
	}

	log.Printf("❌ Connection removed: %s (Total: %d)", connID, len(cm.connections))
}

// Get retrieves a connection by ID
func (cm *ConnectionManager) Get(connID string) (*models.UserConnection, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	conn, exists := cm.connections[connID]
	return conn, exists
}

// Count returns the number of active connections
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// SendToUser queues msg on every connection of userID and returns how many
// connections accepted it
func (cm *ConnectionManager) SendToUser(userID string, msg models.ServerMessage) int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	sent := 0
	for _, conn := range cm.byUser[userID] {
		if conn.SafeSend(msg) {
			sent++
		}
	}
	return sent
}
