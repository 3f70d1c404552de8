package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"nexispulse/internal/models"

	"github.com/redis/go-redis/v9"
)

// BroadcastService fans pipeline output (snapshots, alerts, episodes) out to
// local WebSocket subscribers and republishes it over Redis so subscribers
// connected to other instances receive it too. Delivery is fire-and-forget:
// a full client buffer drops the message, it never blocks the pipeline.
type BroadcastService struct {
	redis       *RedisService
	connections *ConnectionManager
	pubsub      *redis.PubSub
	instanceID  string
	ctx         context.Context
	cancel      context.CancelFunc
}

// broadcastEnvelope is the cross-instance wire format.
type broadcastEnvelope struct {
	InstanceID string               `json:"instanceId"`
	Message    models.ServerMessage `json:"message"`
}

// NewBroadcastService creates a broadcast service. instanceID must be unique
// per process so an instance can skip its own republished messages.
func NewBroadcastService(redisService *RedisService, connections *ConnectionManager, instanceID string) *BroadcastService {
	ctx, cancel := context.WithCancel(context.Background())
	return &BroadcastService{
		redis:       redisService,
		connections: connections,
		instanceID:  instanceID,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins listening for telemetry published by other instances.
func (s *BroadcastService) Start() error {
	s.pubsub = s.redis.Client().PSubscribe(s.ctx, "telemetry:user:*")

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		return err
	}

	go s.processMessages()

	log.Printf("✅ [BROADCAST] Listening for cross-instance telemetry (instance: %s)", s.instanceID)
	return nil
}

// Stop stops the cross-instance listener.
func (s *BroadcastService) Stop() error {
	s.cancel()
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}

// Snapshot broadcasts a fresh analytics snapshot for a user.
func (s *BroadcastService) Snapshot(ctx context.Context, userID string, snapshot *models.AnalyticsSnapshot) {
	s.broadcast(ctx, userID, models.ServerMessage{
		Type:     "snapshot",
		UserID:   userID,
		Snapshot: snapshot,
	})
}

// Alerts broadcasts fired alerts for a user.
func (s *BroadcastService) Alerts(ctx context.Context, userID string, alerts []models.Alert) {
	if len(alerts) == 0 {
		return
	}
	s.broadcast(ctx, userID, models.ServerMessage{
		Type:   "alert",
		UserID: userID,
		Alerts: alerts,
	})
}

// Episode broadcasts a detected episode for a user.
func (s *BroadcastService) Episode(ctx context.Context, userID string, episode *models.Episode) {
	s.broadcast(ctx, userID, models.ServerMessage{
		Type:    "episode",
		UserID:  userID,
		Episode: episode,
	})
}

// broadcast delivers locally, then republishes for other instances.
func (s *BroadcastService) broadcast(ctx context.Context, userID string, msg models.ServerMessage) {
	s.deliverLocal(userID, msg)

	envelope := broadcastEnvelope{InstanceID: s.instanceID, Message: msg}
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("⚠️ [BROADCAST] Failed to marshal message for user %s: %v", userID, err)
		return
	}
	if err := s.redis.Publish(ctx, "telemetry:user:"+userID, data); err != nil {
		log.Printf("⚠️ [BROADCAST] Failed to publish for user %s: %v", userID, err)
	}
}

// deliverLocal pushes a message to every local connection subscribed to the
// user. Dropped sends are counted, not retried.
func (s *BroadcastService) deliverLocal(userID string, msg models.ServerMessage) {
	dropped := 0
	for _, conn := range s.connections.ForUser(userID) {
		if !conn.SafeSend(msg) {
			dropped++
		}
	}
	if dropped > 0 {
		log.Printf("⚠️ [BROADCAST] Dropped %s message for %d slow connection(s) (user %s)", msg.Type, dropped, userID)
	}
}

// processMessages handles telemetry republished by other instances.
func (s *BroadcastService) processMessages() {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleRemote(msg)
		}
	}
}

func (s *BroadcastService) handleRemote(msg *redis.Message) {
	var envelope broadcastEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
		log.Printf("⚠️ [BROADCAST] Failed to unmarshal remote message: %v", err)
		return
	}

	// Skip messages from this instance (avoid loops)
	if envelope.InstanceID == s.instanceID {
		return
	}

	userID := userFromChannel(msg.Channel)
	if userID == "" {
		return
	}
	s.deliverLocal(userID, envelope.Message)
}

// userFromChannel extracts the user ID from "telemetry:user:<id>".
func userFromChannel(channel string) string {
	const prefix = "telemetry:user:"
	if !strings.HasPrefix(channel, prefix) {
		return ""
	}
	return strings.TrimPrefix(channel, prefix)
}
