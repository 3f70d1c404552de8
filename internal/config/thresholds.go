package config

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Canonical detection thresholds. Detectors and the analytics calculator
// read these through a ThresholdStore so a YAML reload swaps the whole set
// atomically.
const (
	DefaultSustainedAttention   = 85.0 // attention level counted as "sustained"
	DefaultHyperfocusLoadLow    = 60.0 // productive load band lower bound
	DefaultHyperfocusLoadHigh   = 95.0 // productive load band upper bound
	DefaultDetectionThreshold   = 6    // hyperfocus score needed to be "focused"
	DefaultMinEpisodeDuration   = 15 * time.Minute
	DefaultOverloadStress       = 80.0
	DefaultOverloadAttention    = 30.0
	DefaultOverloadLoad         = 90.0
	DefaultRecoveryWindow       = 30 * time.Minute
	DefaultTrendSensitivity     = 5.0
	DefaultPredictionConfidence = 0.7
	DefaultStressRecovery       = 10 * time.Minute // assumed recovery when none observed
)

// Thresholds is the tunable detection configuration. Zero-valued fields fall
// back to the canonical defaults on load.
type Thresholds struct {
	SustainedAttention   float64
	HyperfocusLoadLow    float64
	HyperfocusLoadHigh   float64
	DetectionThreshold   int
	MinEpisodeDuration   time.Duration
	OverloadStress       float64
	OverloadAttention    float64
	OverloadLoad         float64
	RecoveryWindow       time.Duration
	TrendSensitivity     float64
	PredictionConfidence float64
	StressRecovery       time.Duration
}

// yamlDuration accepts Go duration strings ("15m", "90s") in the thresholds
// file.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = yamlDuration(parsed)
	return nil
}

// thresholdsFile is the YAML shape of the overrides file.
type thresholdsFile struct {
	SustainedAttention   float64      `yaml:"sustained_attention"`
	HyperfocusLoadLow    float64      `yaml:"hyperfocus_load_low"`
	HyperfocusLoadHigh   float64      `yaml:"hyperfocus_load_high"`
	DetectionThreshold   int          `yaml:"detection_threshold"`
	MinEpisodeDuration   yamlDuration `yaml:"min_episode_duration"`
	OverloadStress       float64      `yaml:"overload_stress"`
	OverloadAttention    float64      `yaml:"overload_attention"`
	OverloadLoad         float64      `yaml:"overload_load"`
	RecoveryWindow       yamlDuration `yaml:"recovery_window"`
	TrendSensitivity     float64      `yaml:"trend_sensitivity"`
	PredictionConfidence float64      `yaml:"prediction_confidence"`
	StressRecovery       yamlDuration `yaml:"stress_recovery"`
}

func (f thresholdsFile) overrides() Thresholds {
	return Thresholds{
		SustainedAttention:   f.SustainedAttention,
		HyperfocusLoadLow:    f.HyperfocusLoadLow,
		HyperfocusLoadHigh:   f.HyperfocusLoadHigh,
		DetectionThreshold:   f.DetectionThreshold,
		MinEpisodeDuration:   time.Duration(f.MinEpisodeDuration),
		OverloadStress:       f.OverloadStress,
		OverloadAttention:    f.OverloadAttention,
		OverloadLoad:         f.OverloadLoad,
		RecoveryWindow:       time.Duration(f.RecoveryWindow),
		TrendSensitivity:     f.TrendSensitivity,
		PredictionConfidence: f.PredictionConfidence,
		StressRecovery:       time.Duration(f.StressRecovery),
	}
}

// DefaultThresholds returns the canonical threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SustainedAttention:   DefaultSustainedAttention,
		HyperfocusLoadLow:    DefaultHyperfocusLoadLow,
		HyperfocusLoadHigh:   DefaultHyperfocusLoadHigh,
		DetectionThreshold:   DefaultDetectionThreshold,
		MinEpisodeDuration:   DefaultMinEpisodeDuration,
		OverloadStress:       DefaultOverloadStress,
		OverloadAttention:    DefaultOverloadAttention,
		OverloadLoad:         DefaultOverloadLoad,
		RecoveryWindow:       DefaultRecoveryWindow,
		TrendSensitivity:     DefaultTrendSensitivity,
		PredictionConfidence: DefaultPredictionConfidence,
		StressRecovery:       DefaultStressRecovery,
	}
}

// LoadThresholds reads the YAML thresholds file, filling unset fields from
// the canonical defaults. A missing file is not an error: defaults apply.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, fmt.Errorf("failed to read thresholds file: %w", err)
	}

	var file thresholdsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return t, fmt.Errorf("failed to parse thresholds YAML: %w", err)
	}

	mergeThresholds(&t, file.overrides())
	return t, nil
}

func mergeThresholds(base *Thresholds, o Thresholds) {
	if o.SustainedAttention > 0 {
		base.SustainedAttention = o.SustainedAttention
	}
	if o.HyperfocusLoadLow > 0 {
		base.HyperfocusLoadLow = o.HyperfocusLoadLow
	}
	if o.HyperfocusLoadHigh > 0 {
		base.HyperfocusLoadHigh = o.HyperfocusLoadHigh
	}
	if o.DetectionThreshold > 0 {
		base.DetectionThreshold = o.DetectionThreshold
	}
	if o.MinEpisodeDuration > 0 {
		base.MinEpisodeDuration = o.MinEpisodeDuration
	}
	if o.OverloadStress > 0 {
		base.OverloadStress = o.OverloadStress
	}
	if o.OverloadAttention > 0 {
		base.OverloadAttention = o.OverloadAttention
	}
	if o.OverloadLoad > 0 {
		base.OverloadLoad = o.OverloadLoad
	}
	if o.RecoveryWindow > 0 {
		base.RecoveryWindow = o.RecoveryWindow
	}
	if o.TrendSensitivity > 0 {
		base.TrendSensitivity = o.TrendSensitivity
	}
	if o.PredictionConfidence > 0 {
		base.PredictionConfidence = o.PredictionConfidence
	}
	if o.StressRecovery > 0 {
		base.StressRecovery = o.StressRecovery
	}
}

// ThresholdStore holds the active threshold set. Readers get a consistent
// snapshot; a reload swaps the whole set in one atomic store.
type ThresholdStore struct {
	current atomic.Pointer[Thresholds]
}

// NewThresholdStore creates a store seeded with the given thresholds.
func NewThresholdStore(t Thresholds) *ThresholdStore {
	s := &ThresholdStore{}
	s.current.Store(&t)
	return s
}

// Get returns the active threshold set.
func (s *ThresholdStore) Get() Thresholds {
	return *s.current.Load()
}

// Reload re-reads the thresholds file and swaps the active set. On parse
// failure the previous set stays active.
func (s *ThresholdStore) Reload(path string) error {
	t, err := LoadThresholds(path)
	if err != nil {
		return err
	}
	s.current.Store(&t)
	log.Printf("🔄 [CONFIG] Thresholds reloaded from %s", path)
	return nil
}
