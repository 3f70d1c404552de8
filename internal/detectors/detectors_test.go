package detectors

import (
	"testing"
	"time"

	"nexispulse/internal/models"
)

// stubDetector is a scriptable detector for runner tests.
type stubDetector struct {
	name     string
	episodes []*models.Episode
	panics   bool
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) Process(_ *models.BiometricSample, _ []*models.BiometricSample) []*models.Episode {
	if d.panics {
		panic("detector bug")
	}
	return d.episodes
}

func (d *stubDetector) Flush(_ string) []*models.Episode {
	if d.panics {
		panic("detector bug")
	}
	return d.episodes
}

func TestRunner_PanicIsolation(t *testing.T) {
	episode := &models.Episode{
		Type:      models.EpisodeHyperfocus,
		UserID:    "u1",
		StartTime: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
	}
	// The panicking detector runs first so isolation, not ordering, is what
	// keeps the healthy one alive.
	r := NewRunner(
		&stubDetector{name: "broken", panics: true},
		&stubDetector{name: "healthy", episodes: []*models.Episode{episode}},
	)

	sample := &models.BiometricSample{UserID: "u1", SessionID: "s1"}
	episodes := r.Process(sample, nil)
	if len(episodes) != 1 || episodes[0] != episode {
		t.Fatalf("got %d episodes, want the healthy detector's one", len(episodes))
	}

	episodes = r.Flush("u1")
	if len(episodes) != 1 || episodes[0] != episode {
		t.Fatalf("flush got %d episodes, want the healthy detector's one", len(episodes))
	}
}

func TestRunner_EmptyAndNilDetectors(t *testing.T) {
	r := NewRunner()
	if got := r.Process(&models.BiometricSample{UserID: "u1"}, nil); got != nil {
		t.Errorf("empty runner emitted %d episodes", len(got))
	}
	if got := r.Flush("u1"); got != nil {
		t.Errorf("empty runner flush emitted %d episodes", len(got))
	}
}
