package services

import (
	"testing"
	"time"

	"nexispulse/internal/models"
)

func newTestConnection(connID, userID string) *models.UserConnection {
	return &models.UserConnection{
		ConnID:    connID,
		UserID:    userID,
		CreatedAt: time.Now(),
		WriteChan: make(chan models.ServerMessage, 4),
		StopChan:  make(chan bool, 1),
	}
}

func TestConnectionManager_AddRemove(t *testing.T) {
	cm := NewConnectionManager()

	conn := newTestConnection("c1", "u1")
	cm.Add(conn)
	if cm.Count() != 1 {
		t.Fatalf("count = %d, want 1", cm.Count())
	}
	if got, ok := cm.Get("c1"); !ok || got != conn {
		t.Error("Get should return the added connection")
	}

	cm.Remove("c1")
	if cm.Count() != 0 {
		t.Errorf("count = %d after remove, want 0", cm.Count())
	}
	if !conn.IsClosed() {
		t.Error("removed connection should be marked closed")
	}
	// Removing twice must not panic on the already-closed channels.
	cm.Remove("c1")
}

func TestConnectionManager_ForUserFollowsSubscriptions(t *testing.T) {
	cm := NewConnectionManager()

	own := newTestConnection("c1", "u1")
	own.Subscribe("u1")
	watcher := newTestConnection("c2", "clinician-1")
	watcher.Subscribe("u1")
	other := newTestConnection("c3", "u2")
	other.Subscribe("u2")
	cm.Add(own)
	cm.Add(watcher)
	cm.Add(other)

	if got := len(cm.ForUser("u1")); got != 2 {
		t.Errorf("ForUser(u1) = %d connections, want 2", got)
	}

	watcher.Unsubscribe("u1")
	if got := len(cm.ForUser("u1")); got != 1 {
		t.Errorf("ForUser(u1) after unsubscribe = %d, want 1", got)
	}
}

func TestSafeSend_DropsInsteadOfBlocking(t *testing.T) {
	conn := newTestConnection("c1", "u1")

	// Fill the buffer.
	for i := 0; i < cap(conn.WriteChan); i++ {
		if !conn.SafeSend(models.ServerMessage{Type: "snapshot"}) {
			t.Fatalf("send %d should succeed", i)
		}
	}
	if conn.SafeSend(models.ServerMessage{Type: "snapshot"}) {
		t.Error("send into a full buffer should drop, not block")
	}

	conn.MarkClosed()
	if conn.SafeSend(models.ServerMessage{Type: "snapshot"}) {
		t.Error("send on a closed connection should fail")
	}
}
