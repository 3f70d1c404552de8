package validation

import (
	"fmt"
	"time"

	"nexispulse/internal/models"
)

// Physiological acceptance ranges. Values outside these bounds are either
// rejected (required fields) or clamped by Sanitize (lenient mode).
const (
	MinHeartRate = 30.0
	MaxHeartRate = 250.0
	MinHRV       = 0.0
	MaxHRV       = 200.0
	MinPercent   = 0.0
	MaxPercent   = 100.0

	MinSkinTemperature = 20.0 // celsius
	MaxSkinTemperature = 45.0
	MinRespiratoryRate = 4.0 // breaths per minute
	MaxRespiratoryRate = 60.0
	MinOxygenSaturation = 50.0
	MaxOxygenSaturation = 100.0
	MinSoundLevel       = 0.0 // dB
	MaxSoundLevel       = 140.0
	MinLightLevel       = 0.0 // lux
	MaxLightLevel       = 100000.0
	MinAmbientTemp      = -40.0
	MaxAmbientTemp      = 60.0

	MaxFutureSkew = 60 * time.Second
	MaxPastSkew   = 24 * time.Hour

	MaxMetadataValueLen = 256
)

// metadataAllowList enumerates the metadata keys Sanitize keeps. Everything
// else is stripped.
var metadataAllowList = map[string]bool{
	"source":       true,
	"firmware":     true,
	"app_version":  true,
	"activity":     true,
	"location":     true,
	"posture":      true,
	"sample_rate":  true,
	"battery":      true,
}

// Result is the outcome of validating one sample. On success Sanitized holds
// a new clamped copy; the input sample is never mutated.
type Result struct {
	OK        bool
	Sanitized *models.BiometricSample
	Err       error
	Warnings  []string
}

// Error is a validation failure. Never retried, surfaced to the caller
// immediately.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid sample: %s %s", e.Field, e.Reason)
}

// Validator performs structural and physiological-range checks on samples.
type Validator struct {
	strict bool
	now    func() time.Time // injectable clock for tests
}

// NewValidator creates a validator. In strict mode contradictory
// physiological combinations are rejected; in lenient mode they become
// warnings and the sanitized sample is accepted.
func NewValidator(strict bool) *Validator {
	return &Validator{strict: strict, now: time.Now}
}

// SetClock overrides the validator's clock. Tests only.
func (v *Validator) SetClock(now func() time.Time) {
	v.now = now
}

// Validate checks one sample and, on acceptance, returns a sanitized copy.
func (v *Validator) Validate(sample *models.BiometricSample) Result {
	if sample == nil {
		return reject("sample", "is nil")
	}
	if sample.UserID == "" {
		return reject("userId", "is required")
	}
	if sample.SessionID == "" {
		return reject("sessionId", "is required")
	}
	if sample.Timestamp.IsZero() {
		return reject("timestamp", "is required")
	}

	now := v.now()
	if sample.Timestamp.After(now.Add(MaxFutureSkew)) {
		return reject("timestamp", fmt.Sprintf("more than %s in the future", MaxFutureSkew))
	}
	if sample.Timestamp.Before(now.Add(-MaxPastSkew)) {
		return reject("timestamp", fmt.Sprintf("more than %s in the past", MaxPastSkew))
	}

	if sample.HeartRate < MinHeartRate || sample.HeartRate > MaxHeartRate {
		return reject("heartRate", fmt.Sprintf("out of range [%.0f, %.0f]: %.1f", MinHeartRate, MaxHeartRate, sample.HeartRate))
	}
	if sample.HRV < MinHRV || sample.HRV > MaxHRV {
		return reject("hrv", fmt.Sprintf("out of range [%.0f, %.0f]: %.1f", MinHRV, MaxHRV, sample.HRV))
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"cognitiveLoad", sample.CognitiveLoad},
		{"attentionLevel", sample.AttentionLevel},
		{"stressLevel", sample.StressLevel},
	} {
		if f.value < MinPercent || f.value > MaxPercent {
			return reject(f.name, fmt.Sprintf("out of range [0, 100]: %.1f", f.value))
		}
	}

	// Optional fields are only checked when present.
	if err := checkOptional("hrvVariability", sample.HRVVariability, 0, MaxHRV); err != nil {
		return Result{Err: err}
	}
	if err := checkOptional("respiratoryRate", sample.RespiratoryRate, MinRespiratoryRate, MaxRespiratoryRate); err != nil {
		return Result{Err: err}
	}
	if err := checkOptional("oxygenSaturation", sample.OxygenSaturation, MinOxygenSaturation, MaxOxygenSaturation); err != nil {
		return Result{Err: err}
	}
	if err := checkOptional("environmentalSound", sample.EnvironmentalSound, MinSoundLevel, MaxSoundLevel); err != nil {
		return Result{Err: err}
	}
	if err := checkOptional("lightLevel", sample.LightLevel, MinLightLevel, MaxLightLevel); err != nil {
		return Result{Err: err}
	}
	if err := checkOptional("temperature", sample.Temperature, MinAmbientTemp, MaxAmbientTemp); err != nil {
		return Result{Err: err}
	}

	var warnings []string
	if w := plausibilityWarnings(sample); len(w) > 0 {
		if v.strict {
			return reject("sample", w[0])
		}
		warnings = w
	}

	if sample.SkinTemperature != 0 &&
		(sample.SkinTemperature < MinSkinTemperature || sample.SkinTemperature > MaxSkinTemperature) {
		if v.strict {
			return reject("skinTemperature", fmt.Sprintf("out of range [%.0f, %.0f]: %.1f", MinSkinTemperature, MaxSkinTemperature, sample.SkinTemperature))
		}
		warnings = append(warnings, fmt.Sprintf("skinTemperature %.1f clamped into [%.0f, %.0f]", sample.SkinTemperature, MinSkinTemperature, MaxSkinTemperature))
	}

	return Result{
		OK:        true,
		Sanitized: v.Sanitize(sample),
		Warnings:  warnings,
	}
}

// plausibilityWarnings flags contradictory physiological combinations.
func plausibilityWarnings(s *models.BiometricSample) []string {
	var w []string
	if s.StressLevel > 80 && s.HeartRate < 60 {
		w = append(w, fmt.Sprintf("implausible: stressLevel %.0f with heartRate %.0f", s.StressLevel, s.HeartRate))
	}
	if s.StressLevel < 20 && s.HeartRate > 160 {
		w = append(w, fmt.Sprintf("implausible: stressLevel %.0f with heartRate %.0f", s.StressLevel, s.HeartRate))
	}
	if s.AttentionLevel > 90 && s.CognitiveLoad < 5 {
		w = append(w, fmt.Sprintf("implausible: attentionLevel %.0f with cognitiveLoad %.0f", s.AttentionLevel, s.CognitiveLoad))
	}
	return w
}

// Sanitize clamps all numeric fields into their valid ranges, strips metadata
// keys outside the allow-list, and truncates long string values. It returns a
// new sample; the input is untouched. Sanitizing an already-sanitized sample
// is a no-op.
func (v *Validator) Sanitize(sample *models.BiometricSample) *models.BiometricSample {
	s := sample.Clone()

	s.HeartRate = clamp(s.HeartRate, MinHeartRate, MaxHeartRate)
	s.HRV = clamp(s.HRV, MinHRV, MaxHRV)
	s.CognitiveLoad = clamp(s.CognitiveLoad, MinPercent, MaxPercent)
	s.AttentionLevel = clamp(s.AttentionLevel, MinPercent, MaxPercent)
	s.StressLevel = clamp(s.StressLevel, MinPercent, MaxPercent)
	if s.SkinTemperature != 0 {
		s.SkinTemperature = clamp(s.SkinTemperature, MinSkinTemperature, MaxSkinTemperature)
	}

	clampOptional(s.HRVVariability, 0, MaxHRV)
	clampOptional(s.RespiratoryRate, MinRespiratoryRate, MaxRespiratoryRate)
	clampOptional(s.OxygenSaturation, MinOxygenSaturation, MaxOxygenSaturation)
	clampOptional(s.EnvironmentalSound, MinSoundLevel, MaxSoundLevel)
	clampOptional(s.LightLevel, MinLightLevel, MaxLightLevel)
	clampOptional(s.Temperature, MinAmbientTemp, MaxAmbientTemp)

	if s.Metadata != nil {
		cleaned := make(map[string]string, len(s.Metadata))
		for k, val := range s.Metadata {
			if !metadataAllowList[k] {
				continue
			}
			if len(val) > MaxMetadataValueLen {
				val = val[:MaxMetadataValueLen]
			}
			cleaned[k] = val
		}
		if len(cleaned) == 0 {
			s.Metadata = nil
		} else {
			s.Metadata = cleaned
		}
	}

	return s
}

func checkOptional(field string, p *float64, min, max float64) error {
	if p == nil {
		return nil
	}
	if *p < min || *p > max {
		return &Error{Field: field, Reason: fmt.Sprintf("out of range [%.0f, %.0f]: %.1f", min, max, *p)}
	}
	return nil
}

func clampOptional(p *float64, min, max float64) {
	if p == nil {
		return
	}
	*p = clamp(*p, min, max)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func reject(field, reason string) Result {
	return Result{Err: &Error{Field: field, Reason: reason}}
}
