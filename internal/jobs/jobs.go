package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"nexispulse/internal/database"
	"nexispulse/internal/pipeline"
	"nexispulse/internal/window"

	"github.com/go-co-op/gocron/v2"
)

const (
	windowEvictionInterval = 10 * time.Minute
	windowIdleThreshold    = 30 * time.Minute
	retentionInterval      = 1 * time.Hour
	healthReportInterval   = 1 * time.Hour
)

// Service runs the background maintenance jobs: idle window eviction,
// storage retention sweeps, and the periodic health report.
type Service struct {
	scheduler gocron.Scheduler

	windows          *window.Store
	store            *database.TelemetryStore
	orchestrator     *pipeline.Orchestrator
	sampleRetention  time.Duration
	episodeRetention time.Duration
}

// NewService creates the jobs service.
func NewService(windows *window.Store, store *database.TelemetryStore, orchestrator *pipeline.Orchestrator, sampleRetention, episodeRetention time.Duration) (*Service, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Service{
		scheduler:        scheduler,
		windows:          windows,
		store:            store,
		orchestrator:     orchestrator,
		sampleRetention:  sampleRetention,
		episodeRetention: episodeRetention,
	}, nil
}

// Start registers and launches all jobs.
func (s *Service) Start() error {
	log.Println("⏰ Starting background jobs...")

	if _, err := s.scheduler.NewJob(
		gocron.DurationJob(windowEvictionInterval),
		gocron.NewTask(s.evictIdleWindows),
	); err != nil {
		return fmt.Errorf("failed to register window eviction job: %w", err)
	}

	if s.store != nil {
		if _, err := s.scheduler.NewJob(
			gocron.DurationJob(retentionInterval),
			gocron.NewTask(s.sweepRetention),
		); err != nil {
			return fmt.Errorf("failed to register retention job: %w", err)
		}
	}

	if _, err := s.scheduler.NewJob(
		gocron.DurationJob(healthReportInterval),
		gocron.NewTask(s.reportHealth),
	); err != nil {
		return fmt.Errorf("failed to register health report job: %w", err)
	}

	s.scheduler.Start()
	log.Println("✅ Background jobs started")
	return nil
}

// Stop shuts the scheduler down.
func (s *Service) Stop() error {
	log.Println("⏹️ Stopping background jobs...")
	return s.scheduler.Shutdown()
}

// evictIdleWindows drops per-user windows with no recent inserts so a user
// who stops streaming does not pin memory forever.
func (s *Service) evictIdleWindows() {
	if n := s.windows.EvictIdle(windowIdleThreshold); n > 0 {
		log.Printf("🧹 [JOBS] Evicted %d idle window(s)", n)
	}
}

// sweepRetention deletes samples and episodes past their retention periods.
func (s *Service) sweepRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now()
	samples, err := s.store.DeleteSamplesOlderThan(ctx, now.Add(-s.sampleRetention))
	if err != nil {
		log.Printf("⚠️ [JOBS] Sample retention sweep failed: %v", err)
	}
	episodes, err := s.store.DeleteEpisodesOlderThan(ctx, now.Add(-s.episodeRetention))
	if err != nil {
		log.Printf("⚠️ [JOBS] Episode retention sweep failed: %v", err)
	}
	if samples > 0 || episodes > 0 {
		log.Printf("🧹 [JOBS] Retention sweep removed %d sample(s), %d episode(s)", samples, episodes)
	}
}

// reportHealth logs the scored pipeline health once an hour.
func (s *Service) reportHealth() {
	h := s.orchestrator.Health()
	stats := s.orchestrator.Stats()
	log.Printf("💓 [JOBS] Pipeline health: %s (score %d, error rate %.3f, processed %d, overflowed %d)",
		h.Status, h.Score, h.ErrorRate, stats.Processed, stats.Overflowed)
}
