package detectors

import (
	"log"
	"sync"
	"time"

	"nexispulse/internal/analytics"
	"nexispulse/internal/config"
	"nexispulse/internal/models"
)

// Environmental trigger thresholds. A reading past these counts as a trigger
// for the overload condition.
const (
	triggerSoundLevel  = 85.0    // dB
	triggerLightLevel  = 10000.0 // lux
	triggerTemperature = 32.0    // celsius
	triggerMotionLevel = 80.0

	// Recovery criteria measured forward from episode close.
	recoveryStress    = 50.0
	recoveryAttention = 60.0
)

type overloadPhase int

const (
	phaseIdle overloadPhase = iota
	phaseActive
	phaseRecovering
)

// overloadState is the per-user run-length state. The recovering phase holds
// the closed episode until recovery is observed or the analysis window caps.
type overloadState struct {
	phase          overloadPhase
	episodeSamples []*models.BiometricSample
	triggers       map[string]bool

	pending  *models.Episode // closed, awaiting recovery measurement
	closedAt time.Time
}

// SensoryOverloadDetector recognizes sustained sensory overload runs:
// high stress with collapsed attention, or extreme load with an
// environmental trigger present.
type SensoryOverloadDetector struct {
	thresholds *config.ThresholdStore
	mu         sync.Mutex
	states     map[string]*overloadState
}

// NewSensoryOverloadDetector creates a sensory overload detector.
func NewSensoryOverloadDetector(thresholds *config.ThresholdStore) *SensoryOverloadDetector {
	return &SensoryOverloadDetector{
		thresholds: thresholds,
		states:     make(map[string]*overloadState),
	}
}

// Name implements Detector.
func (d *SensoryOverloadDetector) Name() string { return "sensory_overload" }

func (d *SensoryOverloadDetector) stateFor(userID string) *overloadState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[userID]
	if !ok {
		st = &overloadState{triggers: make(map[string]bool)}
		d.states[userID] = st
	}
	return st
}

// Process advances the user's overload state machine. A closed episode is
// emitted once its recovery time is known (recovery observed or the
// recovery-analysis window exceeded).
func (d *SensoryOverloadDetector) Process(sample *models.BiometricSample, _ []*models.BiometricSample) []*models.Episode {
	t := d.thresholds.Get()
	st := d.stateFor(sample.UserID)

	var episodes []*models.Episode

	// A pending episode is waiting on recovery measurement regardless of
	// whether a new overload run starts.
	if st.phase == phaseRecovering {
		if ep := d.resolveRecovery(st, sample, t); ep != nil {
			episodes = append(episodes, ep)
		}
	}

	active := overloadCondition(sample, t, st.triggers)
	switch {
	case active && st.phase != phaseActive:
		st.phase = phaseActive
		st.episodeSamples = st.episodeSamples[:0]
		st.episodeSamples = append(st.episodeSamples, sample)

	case active && st.phase == phaseActive:
		st.episodeSamples = append(st.episodeSamples, sample)

	case !active && st.phase == phaseActive:
		st.pending = d.closeEpisode(st)
		st.closedAt = sample.Timestamp
		st.phase = phaseRecovering
		if st.pending == nil {
			st.phase = phaseIdle
		}
		// The sample that ended the run may itself satisfy recovery.
		if st.phase == phaseRecovering {
			if ep := d.resolveRecovery(st, sample, t); ep != nil {
				episodes = append(episodes, ep)
			}
		}
	}

	return episodes
}

// Flush emits any episode still open or awaiting recovery at stream end.
func (d *SensoryOverloadDetector) Flush(userID string) []*models.Episode {
	st := d.stateFor(userID)

	var episodes []*models.Episode
	if st.phase == phaseActive {
		if ep := d.closeEpisode(st); ep != nil {
			// No forward samples exist: recovery is unobserved.
			episodes = append(episodes, ep)
		}
	}
	if st.phase == phaseRecovering && st.pending != nil {
		episodes = append(episodes, st.pending)
	}
	st.phase = phaseIdle
	st.pending = nil
	st.episodeSamples = nil
	clear(st.triggers)
	return episodes
}

// overloadCondition is the run condition:
// (stress>80 AND attention<30) OR (load>90 AND environmental trigger present).
// Observed triggers accumulate into the state's trigger set.
func overloadCondition(s *models.BiometricSample, t config.Thresholds, triggers map[string]bool) bool {
	envTrigger := false
	if s.EnvironmentalSound != nil && *s.EnvironmentalSound > triggerSoundLevel {
		triggers["sound"] = true
		envTrigger = true
	}
	if s.LightLevel != nil && *s.LightLevel > triggerLightLevel {
		triggers["light"] = true
		envTrigger = true
	}
	if s.Temperature != nil && *s.Temperature > triggerTemperature {
		triggers["temperature"] = true
		envTrigger = true
	}
	if s.MotionLevel != nil && *s.MotionLevel > triggerMotionLevel {
		triggers["motion"] = true
		envTrigger = true
	}

	if s.StressLevel > t.OverloadStress && s.AttentionLevel < t.OverloadAttention {
		return true
	}
	return s.CognitiveLoad > t.OverloadLoad && envTrigger
}

// resolveRecovery checks a forward sample against the recovery criteria and
// emits the pending episode when recovery is observed or the analysis window
// is exceeded.
func (d *SensoryOverloadDetector) resolveRecovery(st *overloadState, sample *models.BiometricSample, t config.Thresholds) *models.Episode {
	if st.pending == nil {
		st.phase = phaseIdle
		return nil
	}

	elapsed := sample.Timestamp.Sub(st.closedAt)
	recovered := sample.StressLevel <= recoveryStress && sample.AttentionLevel >= recoveryAttention

	if !recovered && elapsed < t.RecoveryWindow {
		return nil
	}

	ep := st.pending
	if recovered {
		ep.RecoveryTime = elapsed
	} else {
		ep.RecoveryTime = t.RecoveryWindow
	}
	st.pending = nil
	st.phase = phaseIdle

	log.Printf("🚨 [OVERLOAD] Episode emitted for user %s: severity %s (%.1f), recovery %s",
		ep.UserID, ep.Severity, ep.SeverityScore, ep.RecoveryTime.Round(time.Second))
	return ep
}

// closeEpisode builds the episode from the accumulated run. Severity is
// scored from peak stress, trough attention, duration, and HRV impact, then
// bucketed.
func (d *SensoryOverloadDetector) closeEpisode(st *overloadState) *models.Episode {
	if len(st.episodeSamples) == 0 {
		return nil
	}

	first := st.episodeSamples[0]
	last := st.episodeSamples[len(st.episodeSamples)-1]
	duration := last.Timestamp.Sub(first.Timestamp)

	var attn, loads, stress, hrv []float64
	for _, s := range st.episodeSamples {
		attn = append(attn, s.AttentionLevel)
		loads = append(loads, s.CognitiveLoad)
		stress = append(stress, s.StressLevel)
		hrv = append(hrv, s.HRV)
	}

	peakStress := analytics.Max(stress)
	troughAttention := analytics.Min(attn)
	severity := severityScore(peakStress, troughAttention, duration, hrv)

	triggers := make([]string, 0, len(st.triggers))
	for name := range st.triggers {
		triggers = append(triggers, name)
	}
	clear(st.triggers)
	st.episodeSamples = nil

	return &models.Episode{
		Type:             models.EpisodeSensoryOverload,
		UserID:           first.UserID,
		SessionID:        first.SessionID,
		StartTime:        first.Timestamp,
		EndTime:          last.Timestamp,
		Duration:         duration,
		AvgAttention:     analytics.Mean(attn),
		AvgCognitiveLoad: analytics.Mean(loads),
		AvgStress:        analytics.Mean(stress),
		PeakStress:       peakStress,
		TroughAttention:  troughAttention,
		SeverityScore:    severity,
		Severity:         bucketSeverity(severity),
		Triggers:         triggers,
		CreatedAt:        time.Now(),
	}
}

// severityScore is unbounded above: extreme readings and long durations keep
// adding. Bucketing happens separately.
func severityScore(peakStress, troughAttention float64, duration time.Duration, hrv []float64) float64 {
	score := 0.0

	// Peak stress above the 80 floor: up to 4 points.
	score += (peakStress - 80) / 5
	// Attention collapse below 30: up to 3 points.
	score += (30 - troughAttention) / 10
	// Duration: one point per 5 minutes.
	score += duration.Minutes() / 5
	// HRV impact: suppressed HRV under load indicates autonomic strain.
	if avg := analytics.Mean(hrv); avg > 0 && avg < 20 {
		score += (20 - avg) / 10
	}

	if score < 0 {
		score = 0
	}
	return score
}

func bucketSeverity(score float64) models.OverloadSeverity {
	switch {
	case score >= 8:
		return models.SeveritySevere
	case score >= 5:
		return models.SeverityModerate
	default:
		return models.SeverityMild
	}
}
