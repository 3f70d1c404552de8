package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"nexispulse/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrOverflowEmpty signals there is nothing queued for any user.
var ErrOverflowEmpty = errors.New("overflow queue empty")

const overflowKeyPrefix = "overflow:samples:"

// OverflowService is the bounded-TTL deferral queue. When admission control
// saturates, validated samples land here instead of the batch path and are
// drained back into the pipeline once capacity returns. Samples expire after
// the configured TTL: deferral is bounded, not durable.
type OverflowService struct {
	redis *RedisService
	ttl   time.Duration
}

// NewOverflowService creates an overflow queue with the given entry TTL.
func NewOverflowService(redisService *RedisService, ttl time.Duration) *OverflowService {
	return &OverflowService{redis: redisService, ttl: ttl}
}

// Enqueue defers a validated sample for a user. The per-user queue's TTL is
// refreshed on every push.
func (s *OverflowService) Enqueue(ctx context.Context, userID string, sample *models.BiometricSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal overflow sample: %w", err)
	}

	key := overflowKeyPrefix + userID
	if err := s.redis.LPush(ctx, key, data); err != nil {
		return fmt.Errorf("failed to enqueue overflow sample: %w", err)
	}
	if err := s.redis.Expire(ctx, key, s.ttl); err != nil {
		log.Printf("⚠️ [OVERFLOW] Failed to set TTL on %s: %v", key, err)
	}
	return nil
}

// Dequeue pops the oldest deferred sample for a user. Returns
// ErrOverflowEmpty when the user's queue is empty or expired.
func (s *OverflowService) Dequeue(ctx context.Context, userID string) (*models.BiometricSample, error) {
	raw, err := s.redis.RPop(ctx, overflowKeyPrefix+userID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOverflowEmpty
		}
		return nil, fmt.Errorf("failed to dequeue overflow sample: %w", err)
	}

	var sample models.BiometricSample
	if err := json.Unmarshal([]byte(raw), &sample); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overflow sample: %w", err)
	}
	return &sample, nil
}

// Len returns the number of deferred samples for a user.
func (s *OverflowService) Len(ctx context.Context, userID string) (int64, error) {
	return s.redis.LLen(ctx, overflowKeyPrefix+userID)
}
