package analytics

import (
	"fmt"
	"time"

	"nexispulse/internal/config"
	"nexispulse/internal/models"

	cache "github.com/patrickmn/go-cache"
)

// Calculator derives analytics snapshots from window contents. The analysis
// functions are pure; the only state is the short-TTL snapshot cache backing
// CurrentAnalytics reads.
type Calculator struct {
	thresholds    *config.ThresholdStore
	snapshotCache *cache.Cache // userID -> *models.AnalyticsSnapshot
}

// NewCalculator creates a calculator whose CurrentAnalytics reads are served
// from a cache with the given TTL.
func NewCalculator(thresholds *config.ThresholdStore, snapshotTTL time.Duration) *Calculator {
	return &Calculator{
		thresholds:    thresholds,
		snapshotCache: cache.New(snapshotTTL, 2*snapshotTTL),
	}
}

// Analyze computes a fresh snapshot from the user's retained samples and
// caches it. The sample slice is a read-only view: it is never mutated.
func (c *Calculator) Analyze(userID string, samples []*models.BiometricSample) *models.AnalyticsSnapshot {
	t := c.thresholds.Get()
	now := time.Now()

	snapshot := &models.AnalyticsSnapshot{
		UserID:        userID,
		CognitiveLoad: AnalyzeCognitiveLoad(samples, now, t),
		Attention:     AnalyzeAttention(samples, t),
		Stress:        AnalyzeStress(samples, t),
		SampleCount:   len(samples),
		Timestamp:     now,
	}
	snapshot.OptimalState = AnalyzeOptimalState(samples)
	snapshot.Predictions = Predict(samples, t)
	snapshot.Recommendations = Recommend(samples)

	c.snapshotCache.Set(userID, snapshot, cache.DefaultExpiration)
	return snapshot
}

// CurrentAnalytics returns the most recent cached snapshot for a user, or
// nil when none is fresh enough.
func (c *Calculator) CurrentAnalytics(userID string) *models.AnalyticsSnapshot {
	if v, ok := c.snapshotCache.Get(userID); ok {
		return v.(*models.AnalyticsSnapshot)
	}
	return nil
}

// AnalyzeCognitiveLoad summarizes the last minute of cognitive load.
// Sustainability starts at 1.0 and is deducted for high averages and an
// increasing trend, floored at 0.
func AnalyzeCognitiveLoad(samples []*models.BiometricSample, now time.Time, t config.Thresholds) models.CognitiveLoadAnalysis {
	cutoff := now.Add(-60 * time.Second)
	var loads []float64
	for _, s := range samples {
		if s.Timestamp.After(cutoff) {
			loads = append(loads, s.CognitiveLoad)
		}
	}

	avg := Mean(loads)
	sustainability := 1.0
	if avg > 80 {
		sustainability -= 0.3
	}
	if avg > 90 {
		sustainability -= 0.4
	}
	trend := Trend(loads, t.TrendSensitivity)
	if trend == models.TrendIncreasing {
		sustainability -= 0.2
	}
	if sustainability < 0 {
		sustainability = 0
	}

	return models.CognitiveLoadAnalysis{
		Average:             avg,
		Peak:                Max(loads),
		Trend:               trend,
		SustainabilityScore: sustainability,
	}
}

// AnalyzeAttention summarizes attention over the retained window (the window
// itself is already bounded to 5 minutes). Distraction events are
// adjacent-sample drops of more than 20 points.
func AnalyzeAttention(samples []*models.BiometricSample, t config.Thresholds) models.AttentionAnalysis {
	attn := make([]float64, len(samples))
	loads := make([]float64, len(samples))
	for i, s := range samples {
		attn[i] = s.AttentionLevel
		loads[i] = s.CognitiveLoad
	}

	distractions := 0
	for i := 1; i < len(attn); i++ {
		if attn[i-1]-attn[i] > 20 {
			distractions++
		}
	}

	avgAttn := Mean(attn)
	avgLoad := Mean(loads)
	stability := Stability(attn)

	// Load contributes most when near the productive sweet spot of 70.
	loadScore := 1.0 - abs(avgLoad-70)/30
	if loadScore < 0 {
		loadScore = 0
	}
	focusQuality := 0.4*(avgAttn/100) + 0.3*stability + 0.3*loadScore

	return models.AttentionAnalysis{
		Average:           avgAttn,
		Trend:             Trend(attn, t.TrendSensitivity),
		Stability:         stability,
		DistractionEvents: distractions,
		FocusQuality:      focusQuality,
	}
}

// AnalyzeStress classifies the stress series and measures recovery runs
// (stress dropping from above 70 to below 50). When no recovery run is
// observed the configured default applies.
func AnalyzeStress(samples []*models.BiometricSample, t config.Thresholds) models.StressAnalysis {
	stress := make([]float64, len(samples))
	for i, s := range samples {
		stress[i] = s.StressLevel
	}

	avg := Mean(stress)
	peak := Max(stress)

	pattern := models.StressBaseline
	switch {
	case avg > 70:
		pattern = models.StressSustainedHigh
	case exceedFraction(stress, 80) > 0.2:
		pattern = models.StressEpisodic
	case Stability(stress) < 0.5:
		pattern = models.StressCyclic
	}

	recovery := measureRecovery(samples)
	if recovery == 0 {
		recovery = t.StressRecovery
	}

	return models.StressAnalysis{
		Average:      avg,
		Peak:         peak,
		Pattern:      pattern,
		RecoveryTime: recovery,
	}
}

// measureRecovery returns the mean duration of runs where stress drops from
// above 70 to below 50, or 0 when none completed.
func measureRecovery(samples []*models.BiometricSample) time.Duration {
	var total time.Duration
	count := 0
	var runStart time.Time
	inRun := false

	for _, s := range samples {
		switch {
		case !inRun && s.StressLevel > 70:
			inRun = true
			runStart = s.Timestamp
		case inRun && s.StressLevel < 50:
			total += s.Timestamp.Sub(runStart)
			count++
			inRun = false
		}
	}

	if count == 0 {
		return 0
	}
	return total / time.Duration(count)
}

// AnalyzeOptimalState scores proximity to a flow state. Optimal requires
// both the flow score and the productivity score above 0.7.
func AnalyzeOptimalState(samples []*models.BiometricSample) models.OptimalState {
	var attn, loads, stress []float64
	for _, s := range samples {
		attn = append(attn, s.AttentionLevel)
		loads = append(loads, s.CognitiveLoad)
		stress = append(stress, s.StressLevel)
	}
	avgAttn := Mean(attn)
	avgLoad := Mean(loads)
	avgStress := Mean(stress)

	flow := 0.4*minF(1, avgAttn/80) +
		0.4*(1-abs(avgLoad-65)/35) +
		0.2*maxF(0, 1-avgStress/40)
	flow = Clamp(flow, 0, 1)

	productivity := ProductivityScore(avgAttn, avgLoad, avgStress)

	return models.OptimalState{
		FlowScore:         flow,
		ProductivityScore: productivity,
		IsOptimal:         flow > 0.7 && productivity > 0.7,
	}
}

// ProductivityScore blends attention engagement, proximity to the productive
// load band, and low stress into a single 0-1 score. Shared with the
// hyperfocus detector's episode scoring.
func ProductivityScore(avgAttn, avgLoad, avgStress float64) float64 {
	loadFit := 1 - abs(avgLoad-70)/30
	if loadFit < 0 {
		loadFit = 0
	}
	score := 0.5*loadFit + 0.3*(avgAttn/100) + 0.2*(1-avgStress/100)
	return Clamp(score, 0, 1)
}

// Predict linearly extrapolates the latest sample by a trend multiplier.
// Confidence is the fixed configured constant: callers must not treat it as
// statistically derived.
func Predict(samples []*models.BiometricSample, t config.Thresholds) []models.Prediction {
	if len(samples) == 0 {
		return nil
	}
	latest := samples[len(samples)-1]

	metrics := []struct {
		name   string
		values func(*models.BiometricSample) float64
	}{
		{"cognitive_load", func(s *models.BiometricSample) float64 { return s.CognitiveLoad }},
		{"attention_level", func(s *models.BiometricSample) float64 { return s.AttentionLevel }},
		{"stress_level", func(s *models.BiometricSample) float64 { return s.StressLevel }},
	}

	preds := make([]models.Prediction, 0, len(metrics))
	for _, m := range metrics {
		series := make([]float64, len(samples))
		for i, s := range samples {
			series[i] = m.values(s)
		}

		multiplier := 1.0
		switch Trend(series, t.TrendSensitivity) {
		case models.TrendIncreasing:
			multiplier = 1.1
		case models.TrendDecreasing:
			multiplier = 0.9
		}

		preds = append(preds, models.Prediction{
			Metric:     m.name,
			Predicted:  Clamp(m.values(latest)*multiplier, 0, 100),
			Confidence: t.PredictionConfidence,
		})
	}
	return preds
}

// Recommend emits deterministic threshold-keyed suggestions in rule order.
// Callers sort by priority if they need a ranking.
func Recommend(samples []*models.BiometricSample) []models.Recommendation {
	if len(samples) == 0 {
		return nil
	}
	latest := samples[len(samples)-1]

	var recs []models.Recommendation
	if latest.CognitiveLoad > 85 {
		recs = append(recs, models.Recommendation{
			Type:     "break",
			Message:  fmt.Sprintf("Cognitive load at %.0f: take a short break", latest.CognitiveLoad),
			Priority: 3,
		})
	}
	if latest.AttentionLevel < 50 {
		recs = append(recs, models.Recommendation{
			Type:     "environment",
			Message:  "Attention is low: consider changing your environment",
			Priority: 2,
		})
	}
	if latest.StressLevel > 70 {
		recs = append(recs, models.Recommendation{
			Type:     "breathing",
			Message:  fmt.Sprintf("Stress at %.0f: try a breathing exercise", latest.StressLevel),
			Priority: 3,
		})
	}
	if latest.CognitiveLoad < 30 && latest.AttentionLevel > 70 {
		recs = append(recs, models.Recommendation{
			Type:     "task_switch",
			Message:  "Spare capacity available: a good moment for a demanding task",
			Priority: 1,
		})
	}
	return recs
}

func exceedFraction(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if v > threshold {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
