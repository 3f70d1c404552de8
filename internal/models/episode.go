package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EpisodeType identifies which detector emitted an episode.
type EpisodeType string

const (
	EpisodeHyperfocus      EpisodeType = "hyperfocus"
	EpisodeSensoryOverload EpisodeType = "sensory_overload"
)

// HyperfocusTrigger is the inferred cause of a hyperfocus episode, determined
// by inspecting the pre-episode window.
type HyperfocusTrigger string

const (
	TriggerStressResponse    HyperfocusTrigger = "stress_response"
	TriggerAttentionRecovery HyperfocusTrigger = "attention_recovery"
	TriggerDominantContext   HyperfocusTrigger = "dominant_context"
	TriggerGradualBuildup    HyperfocusTrigger = "gradual_buildup"
)

// OverloadSeverity buckets a sensory overload severity score.
type OverloadSeverity string

const (
	SeverityMild     OverloadSeverity = "mild"     // score < 5
	SeverityModerate OverloadSeverity = "moderate" // 5 <= score < 8
	SeveritySevere   OverloadSeverity = "severe"   // score >= 8
)

// Episode is a closed interval of sustained state (hyperfocus or sensory
// overload). Immutable once emitted; retained only by the durable store.
type Episode struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Type      EpisodeType        `bson:"type" json:"type"`
	UserID    string             `bson:"userId" json:"user_id"`
	SessionID string             `bson:"sessionId,omitempty" json:"session_id,omitempty"`
	StartTime time.Time          `bson:"startTime" json:"start_time"`
	EndTime   time.Time          `bson:"endTime" json:"end_time"`
	Duration  time.Duration      `bson:"duration" json:"duration"`

	// Aggregates over the episode's samples
	AvgAttention     float64 `bson:"avgAttention" json:"avg_attention"`
	AvgCognitiveLoad float64 `bson:"avgCognitiveLoad" json:"avg_cognitive_load"`
	AvgStress        float64 `bson:"avgStress" json:"avg_stress"`
	PeakStress       float64 `bson:"peakStress,omitempty" json:"peak_stress,omitempty"`
	TroughAttention  float64 `bson:"troughAttention,omitempty" json:"trough_attention,omitempty"`

	// Hyperfocus fields
	Trigger           HyperfocusTrigger `bson:"trigger,omitempty" json:"trigger,omitempty"`
	ProductivityScore float64           `bson:"productivityScore,omitempty" json:"productivity_score,omitempty"`
	QualityScore      float64           `bson:"qualityScore,omitempty" json:"quality_score,omitempty"`

	// Sensory overload fields
	SeverityScore float64          `bson:"severityScore,omitempty" json:"severity_score,omitempty"`
	Severity      OverloadSeverity `bson:"severity,omitempty" json:"severity,omitempty"`
	Triggers      []string         `bson:"triggers,omitempty" json:"triggers,omitempty"` // environmental trigger names

	// Time from episode close until recovery criteria were met, capped at the
	// recovery-analysis window. Zero when never observed.
	RecoveryTime time.Duration `bson:"recoveryTime,omitempty" json:"recovery_time,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// ContextSwitch is one detected contextId change between adjacent samples.
type ContextSwitch struct {
	Timestamp   time.Time `json:"timestamp"`
	FromContext string    `json:"from_context"`
	ToContext   string    `json:"to_context"`
	Cost        float64   `json:"cost"` // weighted attention/load/stress penalty
}

// SwitchRateClass classifies the hourly context-switch rate.
type SwitchRateClass string

const (
	SwitchRateChaotic SwitchRateClass = "chaotic" // > 20/h
	SwitchRateHigh    SwitchRateClass = "high"    // > 10/h
	SwitchRateNormal  SwitchRateClass = "normal"  // > 3/h
	SwitchRateLow     SwitchRateClass = "low"
)

// ContextSwitchReport aggregates switching behavior over the retained stream.
type ContextSwitchReport struct {
	Switches       []ContextSwitch `json:"switches"`
	TotalSwitches  int             `json:"total_switches"`
	HourlyRate     float64         `json:"hourly_rate"`
	RateClass      SwitchRateClass `json:"rate_class"`
	AvgCost        float64         `json:"avg_cost"`
	OptimalWindows []int           `json:"optimal_windows"` // 3 hours-of-day with lowest mean cost
}

// ExecutiveFunctionReport is a composite of five independently computed
// sub-scores, each 0-1.
type ExecutiveFunctionReport struct {
	PlanningEfficiency   float64 `json:"planning_efficiency"`
	InhibitionControl    float64 `json:"inhibition_control"`
	CognitiveFlexibility float64 `json:"cognitive_flexibility"`
	ProcessingSpeed      float64 `json:"processing_speed"`
	WorkingMemoryLoad    float64 `json:"working_memory_load"`
	OverallScore         float64 `json:"overall_score"`
}
