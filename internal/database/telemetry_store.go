package database

import (
	"context"
	"fmt"
	"time"

	"nexispulse/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TelemetryStore is the durable sink for sample batches, episodes, and
// alerts. The orchestrator appends; the retention job deletes; the patterns
// endpoint reads.
type TelemetryStore struct {
	db *MongoDB
}

// NewTelemetryStore creates the durable store over a MongoDB connection.
func NewTelemetryStore(db *MongoDB) *TelemetryStore {
	return &TelemetryStore{db: db}
}

// AppendBatch writes one flushed batch of samples. Writes are unordered so a
// single bad document does not abort the rest of the batch.
func (s *TelemetryStore) AppendBatch(ctx context.Context, samples []*models.BiometricSample) error {
	if len(samples) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(samples))
	for _, sample := range samples {
		docs = append(docs, sample)
	}

	opts := options.InsertMany().SetOrdered(false)
	if _, err := s.db.Collection(CollectionSamples).InsertMany(ctx, docs, opts); err != nil {
		return fmt.Errorf("failed to append sample batch: %w", err)
	}
	return nil
}

// InsertEpisodes persists detected episodes.
func (s *TelemetryStore) InsertEpisodes(ctx context.Context, episodes []*models.Episode) error {
	if len(episodes) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(episodes))
	for _, ep := range episodes {
		docs = append(docs, ep)
	}

	if _, err := s.db.Collection(CollectionEpisodes).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert episodes: %w", err)
	}
	return nil
}

// InsertAlerts persists fired alerts.
func (s *TelemetryStore) InsertAlerts(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(alerts))
	for i := range alerts {
		docs = append(docs, alerts[i])
	}

	if _, err := s.db.Collection(CollectionAlerts).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert alerts: %w", err)
	}
	return nil
}

// EpisodesInRange returns a user's episodes starting within [from, to),
// newest first.
func (s *TelemetryStore) EpisodesInRange(ctx context.Context, userID string, from, to time.Time) ([]*models.Episode, error) {
	filter := bson.M{
		"userId":    userID,
		"startTime": bson.M{"$gte": from, "$lt": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "startTime", Value: -1}})

	cursor, err := s.db.Collection(CollectionEpisodes).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer cursor.Close(ctx)

	var episodes []*models.Episode
	if err := cursor.All(ctx, &episodes); err != nil {
		return nil, fmt.Errorf("failed to decode episodes: %w", err)
	}
	return episodes, nil
}

// RecentAlerts returns a user's most recent alerts, newest first.
func (s *TelemetryStore) RecentAlerts(ctx context.Context, userID string, limit int64) ([]models.Alert, error) {
	filter := bson.M{"userId": userID}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.db.Collection(CollectionAlerts).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []models.Alert
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return alerts, nil
}

// DeleteSamplesOlderThan removes samples past retention. Returns the number
// of documents removed.
func (s *TelemetryStore) DeleteSamplesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Collection(CollectionSamples).DeleteMany(ctx, bson.M{
		"timestamp": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired samples: %w", err)
	}
	return res.DeletedCount, nil
}

// DeleteEpisodesOlderThan removes episodes past retention. Returns the number
// of documents removed.
func (s *TelemetryStore) DeleteEpisodesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Collection(CollectionEpisodes).DeleteMany(ctx, bson.M{
		"startTime": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired episodes: %w", err)
	}
	return res.DeletedCount, nil
}
