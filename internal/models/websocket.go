package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// ClientMessage represents a message from a connected client.
type ClientMessage struct {
	Type   string `json:"type"` // "subscribe", "unsubscribe", "ping"
	UserID string `json:"user_id,omitempty"`
}

// ServerMessage represents a message pushed to a connected client.
// Delivery is fire-and-forget: a slow or closed connection drops messages,
// it never backpressures the pipeline.
type ServerMessage struct {
	Type         string             `json:"type"` // "snapshot", "alert", "episode", "pong", "error"
	UserID       string             `json:"user_id,omitempty"`
	Snapshot     *AnalyticsSnapshot `json:"snapshot,omitempty"`
	Alerts       []Alert            `json:"alerts,omitempty"`
	Episode      *Episode           `json:"episode,omitempty"`
	ErrorMessage string             `json:"message,omitempty"`
}

// UserConnection represents a single WebSocket connection.
type UserConnection struct {
	ConnID        string
	UserID        string
	ClientIP      string
	Conn          *websocket.Conn
	Subscriptions map[string]bool // userIDs this connection wants updates for
	CreatedAt     time.Time
	WriteChan     chan ServerMessage
	StopChan      chan bool
	Mutex         sync.Mutex
	closed        bool
}

// SafeSend sends a message to WriteChan safely, returning false if the
// channel is closed or the buffer is full (message dropped, not queued).
func (uc *UserConnection) SafeSend(msg ServerMessage) bool {
	uc.Mutex.Lock()
	if uc.closed {
		uc.Mutex.Unlock()
		return false
	}
	uc.Mutex.Unlock()

	// Recover from send on a channel closed between the check and the send.
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

// SubscribedTo reports whether this connection wants updates for a user.
func (uc *UserConnection) SubscribedTo(userID string) bool {
	uc.Mutex.Lock()
	defer uc.Mutex.Unlock()
	if uc.Subscriptions == nil {
		return uc.UserID == userID
	}
	return uc.Subscriptions[userID]
}

// Subscribe registers interest in a user's updates.
func (uc *UserConnection) Subscribe(userID string) {
	uc.Mutex.Lock()
	defer uc.Mutex.Unlock()
	if uc.Subscriptions == nil {
		uc.Subscriptions = make(map[string]bool)
	}
	uc.Subscriptions[userID] = true
}

// Unsubscribe removes interest in a user's updates.
func (uc *UserConnection) Unsubscribe(userID string) {
	uc.Mutex.Lock()
	defer uc.Mutex.Unlock()
	delete(uc.Subscriptions, userID)
}

// MarkClosed marks the connection as closed.
func (uc *UserConnection) MarkClosed() {
	uc.Mutex.Lock()
	uc.closed = true
	uc.Mutex.Unlock()
}

// IsClosed returns true if the connection has been marked as closed.
func (uc *UserConnection) IsClosed() bool {
	uc.Mutex.Lock()
	defer uc.Mutex.Unlock()
	return uc.closed
}
