package embeddings

import (
	"nexispulse/internal/models"
)

// Dim is the embedding width, matching the transformer models downstream
// consumers fine-tune on.
const Dim = 768

// featuresPerSample is the fixed per-sample feature count below.
const featuresPerSample = 12

// Build flattens a telemetry window into a fixed-width cognitive state
// vector. Features are laid out per sample in stream order and the result is
// truncated or zero-padded to Dim, so roughly the last minute of a 1 Hz
// stream fits before truncation.
func Build(samples []*models.BiometricSample) []float32 {
	vec := make([]float32, Dim)
	if len(samples) == 0 {
		return vec
	}

	i := 0
	for _, s := range samples {
		if i+featuresPerSample > Dim {
			break
		}

		// Physiological
		vec[i+0] = float32(s.HeartRate)
		vec[i+1] = float32(s.HRV)
		vec[i+2] = float32(s.SkinTemperature)
		vec[i+3] = float32(optional(s.RespiratoryRate))
		vec[i+4] = float32(optional(s.HRVVariability))

		// Cognitive
		vec[i+5] = float32(s.AttentionLevel)
		vec[i+6] = float32(s.CognitiveLoad)
		vec[i+7] = float32(s.StressLevel)

		// Environmental and temporal context, normalized where unbounded
		vec[i+8] = float32(s.Timestamp.Hour()) / 24.0
		vec[i+9] = float32(s.Timestamp.Weekday()) / 7.0
		vec[i+10] = float32(optional(s.LightLevel))
		vec[i+11] = float32(optional(s.EnvironmentalSound))

		i += featuresPerSample
	}

	return vec
}

func optional(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
