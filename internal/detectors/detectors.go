package detectors

import (
	"log"

	"nexispulse/internal/models"
)

// Detector is an episode-emitting stream detector. Process is called once
// per validated sample, in arrival order per user, with the user's current
// window as read-only context. Flush closes any open state at stream end.
type Detector interface {
	Name() string
	Process(sample *models.BiometricSample, window []*models.BiometricSample) []*models.Episode
	Flush(userID string) []*models.Episode
}

// Runner executes a detector set with per-detector isolation: one detector
// panicking never aborts the others, the pipeline, or storage.
type Runner struct {
	detectors []Detector
}

// NewRunner creates a runner over the given detectors.
func NewRunner(detectors ...Detector) *Runner {
	return &Runner{detectors: detectors}
}

// Process runs every detector against the sample, collecting emitted
// episodes. Panics are contained per detector and logged.
func (r *Runner) Process(sample *models.BiometricSample, window []*models.BiometricSample) []*models.Episode {
	var episodes []*models.Episode
	for _, d := range r.detectors {
		episodes = append(episodes, r.runOne(d, sample, window)...)
	}
	return episodes
}

func (r *Runner) runOne(d Detector, sample *models.BiometricSample, window []*models.BiometricSample) (episodes []*models.Episode) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("❌ [DETECTOR] %s panicked for user %s: %v (pipeline continues)",
				d.Name(), sample.UserID, rec)
			episodes = nil
		}
	}()
	return d.Process(sample, window)
}

// Flush drains all detectors for a user, applying the same isolation.
func (r *Runner) Flush(userID string) []*models.Episode {
	var episodes []*models.Episode
	for _, d := range r.detectors {
		episodes = append(episodes, r.flushOne(d, userID)...)
	}
	return episodes
}

func (r *Runner) flushOne(d Detector, userID string) (episodes []*models.Episode) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("❌ [DETECTOR] %s panicked during flush for user %s: %v", d.Name(), userID, rec)
			episodes = nil
		}
	}()
	return d.Flush(userID)
}
