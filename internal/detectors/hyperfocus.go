package detectors

import (
	"log"
	"sync"
	"time"

	"nexispulse/internal/analytics"
	"nexispulse/internal/config"
	"nexispulse/internal/models"
)

const (
	// Score weights for the per-sample hyperfocus indicators. The maximum
	// attainable score is 11.
	scoreSustainedAttention = 3
	scoreProductiveLoad     = 2
	scoreLowStress          = 1
	scoreStableHeartRate    = 1
	scoreLowHRVVariability  = 1
	scoreSameContext        = 2
	scoreTimeDistortion     = 1
	scoreReducedSensory     = 1

	// Runs of prior samples needed before context/time indicators count.
	contextRunLength        = 5
	timeDistortionRunLength = 10

	// Heart rate is locally stable when the recent spread stays inside this.
	heartRateStableStdDev = 5.0
	lowHRVVariability     = 10.0

	// Pre-episode history kept per user for trigger inference.
	preEpisodeWindow = 15 * time.Minute

	// Quality blend weights.
	qualityProductivityWeight = 0.4
	qualityDurationWeight     = 0.25
	qualityStressWeight       = 0.2
	qualityHRVWeight          = 0.15
	qualityDurationNorm       = 2 * time.Hour
)

// hyperfocusState is the per-user detector state. Access is serialized by
// the pipeline's per-user ordering guarantee.
type hyperfocusState struct {
	focused        bool
	episodeStart   time.Time
	episodeSamples []*models.BiometricSample

	contextRun   int // consecutive samples with the same contextID
	lastContext  string
	attentionRun int // consecutive samples with sustained attention

	// Rolling pre-episode history, pruned to preEpisodeWindow.
	history []*models.BiometricSample
}

// HyperfocusDetector is a windowed state machine over each user's ordered
// sample stream. It opens an episode window when the per-sample score
// reaches the detection threshold and emits an Episode when a window at
// least the minimum duration closes.
type HyperfocusDetector struct {
	thresholds *config.ThresholdStore
	mu         sync.Mutex
	states     map[string]*hyperfocusState
}

// NewHyperfocusDetector creates a hyperfocus detector.
func NewHyperfocusDetector(thresholds *config.ThresholdStore) *HyperfocusDetector {
	return &HyperfocusDetector{
		thresholds: thresholds,
		states:     make(map[string]*hyperfocusState),
	}
}

// Name implements Detector.
func (d *HyperfocusDetector) Name() string { return "hyperfocus" }

func (d *HyperfocusDetector) stateFor(userID string) *hyperfocusState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[userID]
	if !ok {
		st = &hyperfocusState{}
		d.states[userID] = st
	}
	return st
}

// Process scores one sample and advances the user's state machine. It
// returns a closed Episode when a qualifying focus window just ended,
// otherwise nil.
func (d *HyperfocusDetector) Process(sample *models.BiometricSample, window []*models.BiometricSample) []*models.Episode {
	t := d.thresholds.Get()
	st := d.stateFor(sample.UserID)

	score := d.score(sample, window, st, t)
	focusedNow := score >= t.DetectionThreshold

	var episodes []*models.Episode
	switch {
	case focusedNow && !st.focused:
		// unfocused -> focused: open an episode window
		st.focused = true
		st.episodeStart = sample.Timestamp
		st.episodeSamples = st.episodeSamples[:0]
		st.episodeSamples = append(st.episodeSamples, sample)

	case focusedNow && st.focused:
		st.episodeSamples = append(st.episodeSamples, sample)

	case !focusedNow && st.focused:
		// focused -> unfocused: close and evaluate
		if ep := d.closeEpisode(st, t); ep != nil {
			episodes = append(episodes, ep)
		}
		st.focused = false
		st.episodeSamples = nil
	}

	// Track runs and history after the transition so the next sample sees
	// updated counters.
	d.advanceRuns(sample, st, t)
	st.history = append(st.history, sample)
	pruneHistory(&st.history, sample.Timestamp.Add(-preEpisodeWindow))

	return episodes
}

// Flush closes a still-open episode at stream end, applying the same
// minimum-duration rule. Call on shutdown or session end.
func (d *HyperfocusDetector) Flush(userID string) []*models.Episode {
	t := d.thresholds.Get()
	st := d.stateFor(userID)

	if !st.focused {
		return nil
	}
	var episodes []*models.Episode
	if ep := d.closeEpisode(st, t); ep != nil {
		episodes = append(episodes, ep)
	}
	st.focused = false
	st.episodeSamples = nil
	return episodes
}

// score rates one sample 0-11 from the weighted indicators.
func (d *HyperfocusDetector) score(sample *models.BiometricSample, window []*models.BiometricSample, st *hyperfocusState, t config.Thresholds) int {
	score := 0

	if sample.AttentionLevel > t.SustainedAttention {
		score += scoreSustainedAttention
	}
	if sample.CognitiveLoad > t.HyperfocusLoadLow && sample.CognitiveLoad < t.HyperfocusLoadHigh {
		score += scoreProductiveLoad
	}
	if sample.StressLevel < 60 {
		score += scoreLowStress
	}
	if heartRateLocallyStable(window) {
		score += scoreStableHeartRate
	}
	if sample.HRVVariability != nil && *sample.HRVVariability < lowHRVVariability {
		score += scoreLowHRVVariability
	}
	if sample.ContextID != "" && sample.ContextID == st.lastContext && st.contextRun >= contextRunLength {
		score += scoreSameContext
	}
	// Time distortion proxy: a long unbroken run of sustained attention.
	if st.attentionRun >= timeDistortionRunLength {
		score += scoreTimeDistortion
	}
	// Reduced sensory responsiveness: a loud environment with no stress
	// reaction suggests the user has tuned it out.
	if sample.EnvironmentalSound != nil && *sample.EnvironmentalSound > 70 && sample.StressLevel < 40 {
		score += scoreReducedSensory
	}

	return score
}

func (d *HyperfocusDetector) advanceRuns(sample *models.BiometricSample, st *hyperfocusState, t config.Thresholds) {
	if sample.ContextID != "" && sample.ContextID == st.lastContext {
		st.contextRun++
	} else {
		st.contextRun = 0
		st.lastContext = sample.ContextID
	}

	if sample.AttentionLevel > t.SustainedAttention {
		st.attentionRun++
	} else {
		st.attentionRun = 0
	}
}

// closeEpisode evaluates the open window against the minimum-duration rule
// and builds the Episode when it qualifies.
func (d *HyperfocusDetector) closeEpisode(st *hyperfocusState, t config.Thresholds) *models.Episode {
	if len(st.episodeSamples) == 0 {
		return nil
	}

	start := st.episodeStart
	end := st.episodeSamples[len(st.episodeSamples)-1].Timestamp
	duration := end.Sub(start)
	if duration < t.MinEpisodeDuration {
		return nil
	}

	var attn, loads, stress, hrvVar []float64
	for _, s := range st.episodeSamples {
		attn = append(attn, s.AttentionLevel)
		loads = append(loads, s.CognitiveLoad)
		stress = append(stress, s.StressLevel)
		if s.HRVVariability != nil {
			hrvVar = append(hrvVar, *s.HRVVariability)
		}
	}
	avgAttn := analytics.Mean(attn)
	avgLoad := analytics.Mean(loads)
	avgStress := analytics.Mean(stress)

	productivity := analytics.ProductivityScore(avgAttn, avgLoad, avgStress)
	quality := episodeQuality(productivity, duration, avgStress, hrvVar)
	first := st.episodeSamples[0]

	ep := &models.Episode{
		Type:              models.EpisodeHyperfocus,
		UserID:            first.UserID,
		SessionID:         first.SessionID,
		StartTime:         start,
		EndTime:           end,
		Duration:          duration,
		AvgAttention:      avgAttn,
		AvgCognitiveLoad:  avgLoad,
		AvgStress:         avgStress,
		Trigger:           inferTrigger(st.history, start, first.ContextID),
		ProductivityScore: productivity,
		QualityScore:      quality,
		CreatedAt:         time.Now(),
	}

	log.Printf("🎯 [HYPERFOCUS] Episode closed for user %s: %s, quality %.2f, trigger %s",
		first.UserID, duration.Round(time.Second), quality, ep.Trigger)
	return ep
}

// episodeQuality blends productivity, duration normalized to 2 hours,
// inverse stress, and HRV stability.
func episodeQuality(productivity float64, duration time.Duration, avgStress float64, hrvVar []float64) float64 {
	durationNorm := float64(duration) / float64(qualityDurationNorm)
	if durationNorm > 1 {
		durationNorm = 1
	}

	hrvStability := 1.0
	if len(hrvVar) > 0 {
		hrvStability = analytics.Clamp(1-analytics.Mean(hrvVar)/50, 0, 1)
	}

	return qualityProductivityWeight*productivity +
		qualityDurationWeight*durationNorm +
		qualityStressWeight*(1-avgStress/100) +
		qualityHRVWeight*hrvStability
}

// inferTrigger inspects the pre-episode history to explain what led into the
// focus window.
func inferTrigger(history []*models.BiometricSample, episodeStart time.Time, episodeContext string) models.HyperfocusTrigger {
	var pre []*models.BiometricSample
	for _, s := range history {
		if s.Timestamp.Before(episodeStart) {
			pre = append(pre, s)
		}
	}
	if len(pre) < 2 {
		return models.TriggerGradualBuildup
	}

	var stress, attn []float64
	contextMatches := 0
	for _, s := range pre {
		stress = append(stress, s.StressLevel)
		attn = append(attn, s.AttentionLevel)
		if episodeContext != "" && s.ContextID == episodeContext {
			contextMatches++
		}
	}

	switch {
	case analytics.Mean(stress) > 65:
		return models.TriggerStressResponse
	case attn[0] < 40 && attn[len(attn)-1] > 70:
		return models.TriggerAttentionRecovery
	case float64(contextMatches)/float64(len(pre)) > 0.8:
		return models.TriggerDominantContext
	default:
		return models.TriggerGradualBuildup
	}
}

// heartRateLocallyStable checks the spread of the most recent heart rates.
func heartRateLocallyStable(window []*models.BiometricSample) bool {
	const lookback = 5
	if len(window) < 2 {
		return false
	}
	start := len(window) - lookback
	if start < 0 {
		start = 0
	}
	var rates []float64
	for _, s := range window[start:] {
		rates = append(rates, s.HeartRate)
	}
	return analytics.StdDev(rates) < heartRateStableStdDev
}

func pruneHistory(history *[]*models.BiometricSample, cutoff time.Time) {
	h := *history
	i := 0
	for i < len(h) && h[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		kept := make([]*models.BiometricSample, len(h)-i)
		copy(kept, h[i:])
		*history = kept
	}
}
