package detectors

import (
	"testing"
	"time"

	"nexispulse/internal/config"
	"nexispulse/internal/models"
)

func newHyperfocusDetector() *HyperfocusDetector {
	return NewHyperfocusDetector(config.NewThresholdStore(config.DefaultThresholds()))
}

// focusSample scores exactly at the detection threshold: sustained attention
// (+3), productive load (+2), low stress (+1).
func focusSample(ts time.Time) *models.BiometricSample {
	return &models.BiometricSample{
		UserID:         "u1",
		SessionID:      "s1",
		Timestamp:      ts,
		HeartRate:      70,
		HRV:            50,
		AttentionLevel: 90,
		CognitiveLoad:  75,
		StressLevel:    30,
	}
}

func breakSample(ts time.Time) *models.BiometricSample {
	s := focusSample(ts)
	s.AttentionLevel = 20
	s.CognitiveLoad = 30
	return s
}

func TestHyperfocus_SustainedRunEmitsOneEpisode(t *testing.T) {
	d := newHyperfocusDetector()
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	// 16 minutes of 30s-spaced focus samples, then one break.
	var episodes []*models.Episode
	for i := 0; i <= 32; i++ {
		ts := base.Add(time.Duration(i) * 30 * time.Second)
		episodes = append(episodes, d.Process(focusSample(ts), nil)...)
	}
	if len(episodes) != 0 {
		t.Fatalf("episode emitted before the run ended: %d", len(episodes))
	}

	episodes = d.Process(breakSample(base.Add(17*time.Minute)), nil)
	if len(episodes) != 1 {
		t.Fatalf("got %d episodes, want 1", len(episodes))
	}

	ep := episodes[0]
	if ep.Type != models.EpisodeHyperfocus {
		t.Errorf("type = %s, want hyperfocus", ep.Type)
	}
	if ep.Duration != 16*time.Minute {
		t.Errorf("duration = %s, want 16m", ep.Duration)
	}
	if ep.AvgAttention != 90 {
		t.Errorf("avg attention = %f, want 90", ep.AvgAttention)
	}
	if ep.UserID != "u1" || ep.SessionID != "s1" {
		t.Errorf("identity = %s/%s, want u1/s1", ep.UserID, ep.SessionID)
	}
	if ep.Trigger == "" {
		t.Error("trigger should be inferred")
	}
}

func TestHyperfocus_ShortRunEmitsNothing(t *testing.T) {
	d := newHyperfocusDetector()
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	// 10 minutes is under the minimum episode duration.
	var episodes []*models.Episode
	for i := 0; i <= 20; i++ {
		ts := base.Add(time.Duration(i) * 30 * time.Second)
		episodes = append(episodes, d.Process(focusSample(ts), nil)...)
	}
	episodes = append(episodes, d.Process(breakSample(base.Add(11*time.Minute)), nil)...)

	if len(episodes) != 0 {
		t.Errorf("got %d episodes from a 10m run, want 0", len(episodes))
	}
}

func TestHyperfocus_SubThresholdNeverOpens(t *testing.T) {
	d := newHyperfocusDetector()
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	// Attention alone scores 3, below the threshold of 6.
	for i := 0; i <= 40; i++ {
		s := focusSample(base.Add(time.Duration(i) * 30 * time.Second))
		s.CognitiveLoad = 30
		s.StressLevel = 70
		if eps := d.Process(s, nil); len(eps) != 0 {
			t.Fatalf("sub-threshold samples opened an episode at i=%d", i)
		}
	}
	if eps := d.Flush("u1"); len(eps) != 0 {
		t.Errorf("flush emitted %d episodes, want 0", len(eps))
	}
}

func TestHyperfocus_FlushClosesOpenEpisode(t *testing.T) {
	d := newHyperfocusDetector()
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	for i := 0; i <= 40; i++ {
		d.Process(focusSample(base.Add(time.Duration(i)*30*time.Second)), nil)
	}

	episodes := d.Flush("u1")
	if len(episodes) != 1 {
		t.Fatalf("flush returned %d episodes, want 1", len(episodes))
	}
	if episodes[0].Duration != 20*time.Minute {
		t.Errorf("duration = %s, want 20m", episodes[0].Duration)
	}

	// Flush is terminal for the open state.
	if eps := d.Flush("u1"); len(eps) != 0 {
		t.Errorf("second flush emitted %d episodes, want 0", len(eps))
	}
}

func TestHyperfocus_StableHeartRateLiftsBorderlineScore(t *testing.T) {
	d := newHyperfocusDetector()
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	// One point short of the threshold without the heart rate indicator.
	window := []*models.BiometricSample{
		{HeartRate: 70}, {HeartRate: 71}, {HeartRate: 70}, {HeartRate: 69}, {HeartRate: 70},
	}
	var episodes []*models.Episode
	for i := 0; i <= 32; i++ {
		s := focusSample(base.Add(time.Duration(i) * 30 * time.Second))
		s.StressLevel = 70 // drops the low-stress point
		episodes = append(episodes, d.Process(s, window)...)
	}
	episodes = append(episodes, d.Flush("u1")...)

	if len(episodes) != 1 {
		t.Errorf("stable heart rate should carry the score over the threshold, got %d episodes", len(episodes))
	}
}

func TestHeartRateLocallyStable(t *testing.T) {
	stable := []*models.BiometricSample{
		{HeartRate: 70}, {HeartRate: 72}, {HeartRate: 71}, {HeartRate: 70}, {HeartRate: 71},
	}
	if !heartRateLocallyStable(stable) {
		t.Error("tight spread should be stable")
	}

	jumpy := []*models.BiometricSample{
		{HeartRate: 60}, {HeartRate: 90}, {HeartRate: 65}, {HeartRate: 95}, {HeartRate: 70},
	}
	if heartRateLocallyStable(jumpy) {
		t.Error("wide spread should not be stable")
	}

	if heartRateLocallyStable(stable[:1]) {
		t.Error("a single sample carries no stability signal")
	}
}

func TestHyperfocus_TriggerStressResponse(t *testing.T) {
	d := newHyperfocusDetector()
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	// Stressful lead-in, then a focus run.
	for i := 0; i < 5; i++ {
		s := breakSample(base.Add(time.Duration(i) * 30 * time.Second))
		s.StressLevel = 80
		d.Process(s, nil)
	}
	start := base.Add(5 * 30 * time.Second)
	for i := 0; i <= 32; i++ {
		d.Process(focusSample(start.Add(time.Duration(i)*30*time.Second)), nil)
	}

	episodes := d.Flush("u1")
	if len(episodes) != 1 {
		t.Fatalf("got %d episodes, want 1", len(episodes))
	}
	if episodes[0].Trigger != models.TriggerStressResponse {
		t.Errorf("trigger = %s, want stress_response", episodes[0].Trigger)
	}
}
