package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AlertSeverity ranks how urgent an alert is.
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertCondition decides whether a rule fires for one sample and its
// freshly computed snapshot.
type AlertCondition func(sample *BiometricSample, snapshot *AnalyticsSnapshot) bool

// AlertRule is static configuration: the condition, severity, and the
// minimum interval between repeated firings. The per-rule last-fired
// timestamp is the only mutable state and lives in the collector.
type AlertRule struct {
	ID        string
	Name      string
	Severity  AlertSeverity
	Cooldown  time.Duration
	Condition AlertCondition `json:"-" bson:"-"`
}

// Alert is an immutable event emitted when a rule fires outside its cooldown.
type Alert struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	RuleID    string             `bson:"ruleId" json:"rule_id"`
	RuleName  string             `bson:"ruleName" json:"rule_name"`
	Severity  AlertSeverity      `bson:"severity" json:"severity"`
	UserID    string             `bson:"userId" json:"user_id"`
	Message   string             `bson:"message" json:"message"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}
