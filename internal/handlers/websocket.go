package handlers

import (
	"encoding/json"
	"log"
	"time"

	"nexispulse/internal/models"
	"nexispulse/internal/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	readDeadline = 90 * time.Second
	pingInterval = 30 * time.Second
)

// WebSocketHandler handles live telemetry subscriptions
type WebSocketHandler struct {
	connManager *services.ConnectionManager
	metrics     *services.Metrics
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(connManager *services.ConnectionManager, metrics *services.Metrics) *WebSocketHandler {
	return &WebSocketHandler{connManager: connManager, metrics: metrics}
}

// Handle handles a new WebSocket connection. The authenticated user is
// auto-subscribed to their own stream; additional subscriptions arrive as
// client messages.
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
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
		WriteChan: make(chan models.ServerMessage, 100),
		StopChan:  make(chan bool, 1),
	}
	userConn.Subscribe(userID)

	h.connManager.Add(userConn)
	if h.metrics != nil {
		h.metrics.RecordWebSocketConnect()
	}
	defer func() {
		close(done)
		h.connManager.Remove(connID)
		if h.metrics != nil {
			h.metrics.RecordWebSocketDisconnect()
		}
	}()

	c.SetReadDeadline(time.Now().Add(readDeadline))
	c.SetPongHandler(func(appData string) error {
		c.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(userConn, done)
	go h.writeLoop(userConn)

	h.readLoop(userConn)
}

// pingLoop sends periodic pings to keep the connection alive.
func (h *WebSocketHandler) pingLoop(userConn *models.UserConnection, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
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

// writeLoop drains WriteChan onto the socket. Exits when the channel closes
// or a write fails.
func (h *WebSocketHandler) writeLoop(userConn *models.UserConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in writeLoop for %s: %v", userConn.ConnID, r)
		}
	}()

	for msg := range userConn.WriteChan {
		if err := userConn.Conn.WriteJSON(msg); err != nil {
			log.Printf("⚠️ WebSocket write error for %s: %v", userConn.ConnID, err)
			return
		}
		if h.metrics != nil {
			h.metrics.RecordWebSocketMessage(msg.Type, "outbound")
		}
	}
}

// readLoop handles incoming messages from the client.
func (h *WebSocketHandler) readLoop(userConn *models.UserConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in readLoop: %v", r)
		}
	}()

	for {
		_, msg, err := userConn.Conn.ReadMessage()
		if err != nil {
			log.Printf("❌ WebSocket read error for %s: %v", userConn.ConnID, err)
			break
		}
		userConn.Conn.SetReadDeadline(time.Now().Add(readDeadline))

		var clientMsg models.ClientMessage
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			log.Printf("⚠️  Invalid message format from %s: %v", userConn.ConnID, err)
			userConn.SafeSend(models.ServerMessage{
				Type:         "error",
				ErrorMessage: "Invalid message format",
			})
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWebSocketMessage(clientMsg.Type, "inbound")
		}

		switch clientMsg.Type {
		case "ping":
			userConn.SafeSend(models.ServerMessage{Type: "pong"})
		case "subscribe":
			h.handleSubscribe(userConn, clientMsg)
		case "unsubscribe":
			if clientMsg.UserID != "" {
				userConn.Unsubscribe(clientMsg.UserID)
			}
		default:
			log.Printf("⚠️  Unknown message type: %s", clientMsg.Type)
		}
	}
}

// handleSubscribe adds a subscription. A connection may only watch its own
// stream unless it carries an elevated role.
func (h *WebSocketHandler) handleSubscribe(userConn *models.UserConnection, clientMsg models.ClientMessage) {
	target := clientMsg.UserID
	if target == "" {
		target = userConn.UserID
	}

	role, _ := userConn.Conn.Locals("user_role").(string)
	if target != userConn.UserID && role != "admin" && role != "clinician" {
		userConn.SafeSend(models.ServerMessage{
			Type:         "error",
			ErrorMessage: "Not authorized to subscribe to this user",
		})
		return
	}

	userConn.Subscribe(target)
	log.Printf("📡 Connection %s subscribed to user %s", userConn.ConnID, target)
}
