package models

import "time"

// TrendDirection classifies the movement of a metric over a window.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// StressPattern classifies the shape of a user's stress series.
type StressPattern string

const (
	StressSustainedHigh StressPattern = "sustained_high"
	StressEpisodic      StressPattern = "episodic"
	StressCyclic        StressPattern = "cyclic"
	StressBaseline      StressPattern = "baseline"
)

// CognitiveLoadAnalysis summarizes the last minute of cognitive load.
type CognitiveLoadAnalysis struct {
	Average             float64        `json:"average"`
	Peak                float64        `json:"peak"`
	Trend               TrendDirection `json:"trend"`
	SustainabilityScore float64        `json:"sustainability_score"` // 0-1, how long the current load can be held
}

// AttentionAnalysis summarizes attention over the retained window.
type AttentionAnalysis struct {
	Average           float64        `json:"average"`
	Trend             TrendDirection `json:"trend"`
	Stability         float64        `json:"stability"` // 0-1
	DistractionEvents int            `json:"distraction_events"`
	FocusQuality      float64        `json:"focus_quality"` // 0-1
}

// StressAnalysis summarizes stress over the retained window.
type StressAnalysis struct {
	Average      float64       `json:"average"`
	Peak         float64       `json:"peak"`
	Pattern      StressPattern `json:"pattern"`
	RecoveryTime time.Duration `json:"recovery_time"` // mean observed recovery, or the default
}

// OptimalState scores how close the user is to a flow state.
type OptimalState struct {
	FlowScore         float64 `json:"flow_score"`         // 0-1
	ProductivityScore float64 `json:"productivity_score"` // 0-1
	IsOptimal         bool    `json:"is_optimal"`
}

// Prediction is a short-horizon linear extrapolation of one metric.
// Confidence is a fixed configured constant, not statistically derived;
// callers must not over-interpret it.
type Prediction struct {
	Metric     string  `json:"metric"`
	Predicted  float64 `json:"predicted"`
	Confidence float64 `json:"confidence"`
}

// Recommendation is a deterministic, threshold-keyed suggestion.
type Recommendation struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Priority int    `json:"priority"` // higher is more urgent; emitted in rule order, not sorted
}

// AnalyticsSnapshot is the derived view of one user's window, recomputed on
// every insertion. It is transient: cached briefly for reads, never persisted.
type AnalyticsSnapshot struct {
	UserID          string                `json:"user_id"`
	CognitiveLoad   CognitiveLoadAnalysis `json:"cognitive_load"`
	Attention       AttentionAnalysis     `json:"attention"`
	Stress          StressAnalysis        `json:"stress"`
	OptimalState    OptimalState          `json:"optimal_state"`
	Predictions     []Prediction          `json:"predictions"`
	Recommendations []Recommendation      `json:"recommendations"`
	SampleCount     int                   `json:"sample_count"`
	Timestamp       time.Time             `json:"timestamp"`
}
