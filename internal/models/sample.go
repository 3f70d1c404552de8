package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BiometricSample is a single reading from a user's sensor set.
// Samples are immutable once created: validation produces a sanitized copy,
// it never mutates the original.
type BiometricSample struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
	UserID    string             `bson:"userId" json:"user_id"`
	SessionID string             `bson:"sessionId" json:"session_id"`

	// Physiological readings
	HeartRate       float64  `bson:"heartRate" json:"heart_rate"`
	HRV             float64  `bson:"hrv" json:"hrv"` // RMSSD, milliseconds
	HRVVariability  *float64 `bson:"hrvVariability,omitempty" json:"hrv_variability,omitempty"`
	SkinTemperature float64  `bson:"skinTemperature" json:"skin_temperature"`
	RespiratoryRate *float64 `bson:"respiratoryRate,omitempty" json:"respiratory_rate,omitempty"`
	OxygenSaturation *float64 `bson:"oxygenSaturation,omitempty" json:"oxygen_saturation,omitempty"`

	// Cognitive scores, all 0-100
	CognitiveLoad  float64 `bson:"cognitiveLoad" json:"cognitive_load"`
	AttentionLevel float64 `bson:"attentionLevel" json:"attention_level"`
	StressLevel    float64 `bson:"stressLevel" json:"stress_level"`

	// Environmental readings (optional, sensor dependent)
	EnvironmentalSound *float64 `bson:"environmentalSound,omitempty" json:"environmental_sound,omitempty"` // dB
	LightLevel         *float64 `bson:"lightLevel,omitempty" json:"light_level,omitempty"`                 // lux
	Temperature        *float64 `bson:"temperature,omitempty" json:"temperature,omitempty"`                // celsius
	MotionLevel        *float64 `bson:"motionLevel,omitempty" json:"motion_level,omitempty"`

	// Task/context tracking
	ContextID string `bson:"contextId,omitempty" json:"context_id,omitempty"`
	DeviceID  string `bson:"deviceId,omitempty" json:"device_id,omitempty"`

	Metadata map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// Clone returns a deep copy of the sample. Optional fields are re-pointed so
// the copy shares no mutable state with the original.
func (s *BiometricSample) Clone() *BiometricSample {
	c := *s
	c.HRVVariability = clonePtr(s.HRVVariability)
	c.RespiratoryRate = clonePtr(s.RespiratoryRate)
	c.OxygenSaturation = clonePtr(s.OxygenSaturation)
	c.EnvironmentalSound = clonePtr(s.EnvironmentalSound)
	c.LightLevel = clonePtr(s.LightLevel)
	c.Temperature = clonePtr(s.Temperature)
	c.MotionLevel = clonePtr(s.MotionLevel)
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ProcessingResult is what Ingest returns to the caller for one sample.
type ProcessingResult struct {
	Success         bool               `json:"success"`
	SanitizedSample *BiometricSample   `json:"sanitized_sample,omitempty"`
	Analytics       *AnalyticsSnapshot `json:"analytics,omitempty"`
	Alerts          []Alert            `json:"alerts,omitempty"`
	Overflowed      bool               `json:"overflowed,omitempty"` // deferred to the overflow queue, not lost
	Warnings        []string           `json:"warnings,omitempty"`
	Error           string             `json:"error,omitempty"`
}
