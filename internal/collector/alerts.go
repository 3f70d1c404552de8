package collector

import (
	"fmt"
	"log"
	"sync"
	"time"

	"nexispulse/internal/models"
)

// Default alert rule cooldowns.
const (
	cooldownCriticalLoad    = 5 * time.Minute
	cooldownSustainedStress = 15 * time.Minute
	cooldownExtremeHR       = 2 * time.Minute
	cooldownMismatch        = 10 * time.Minute
)

// Alerter evaluates alert rules against each sample and its snapshot. Rules
// are static configuration; the only mutable per-rule state is the last
// firing time, keyed per rule per user so one user's alert storm never
// silences another's.
type Alerter struct {
	rules []models.AlertRule

	mu        sync.Mutex
	lastFired map[string]time.Time // "ruleID:userID" -> last firing
	now       func() time.Time
}

// NewAlerter creates an alerter with the given rules. Use DefaultRules for
// the standard set.
func NewAlerter(rules []models.AlertRule) *Alerter {
	return &Alerter{
		rules:     rules,
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetClock overrides the alerter's clock. Tests only.
func (a *Alerter) SetClock(now func() time.Time) {
	a.now = now
}

// DefaultRules returns the standard rule set.
func DefaultRules() []models.AlertRule {
	return []models.AlertRule{
		{
			ID:       "critical-cognitive-overload",
			Name:     "Critical cognitive overload",
			Severity: models.AlertSeverityCritical,
			Cooldown: cooldownCriticalLoad,
			Condition: func(s *models.BiometricSample, _ *models.AnalyticsSnapshot) bool {
				return s.CognitiveLoad > 95
			},
		},
		{
			ID:       "sustained-high-stress",
			Name:     "Sustained high stress pattern",
			Severity: models.AlertSeverityWarning,
			Cooldown: cooldownSustainedStress,
			Condition: func(_ *models.BiometricSample, snap *models.AnalyticsSnapshot) bool {
				return snap != nil && snap.Stress.Pattern == models.StressSustainedHigh
			},
		},
		{
			ID:       "extreme-heart-rate",
			Name:     "Extreme heart rate",
			Severity: models.AlertSeverityCritical,
			Cooldown: cooldownExtremeHR,
			Condition: func(s *models.BiometricSample, _ *models.AnalyticsSnapshot) bool {
				return s.HeartRate < 40 || s.HeartRate > 180
			},
		},
		{
			ID:       "attention-load-mismatch",
			Name:     "Attention/cognitive mismatch",
			Severity: models.AlertSeverityWarning,
			Cooldown: cooldownMismatch,
			Condition: func(s *models.BiometricSample, _ *models.AnalyticsSnapshot) bool {
				return s.AttentionLevel < 30 && s.CognitiveLoad > 80
			},
		},
	}
}

// Evaluate runs every rule against the sample and snapshot. A rule firing
// inside its cooldown is suppressed even if its condition still holds. A
// rule whose condition panics is skipped; the remaining rules still run.
func (a *Alerter) Evaluate(sample *models.BiometricSample, snapshot *models.AnalyticsSnapshot) []models.Alert {
	now := a.now()
	var alerts []models.Alert

	for i := range a.rules {
		rule := &a.rules[i]
		fired := a.safeCondition(rule, sample, snapshot)
		if !fired {
			continue
		}

		key := rule.ID + ":" + sample.UserID
		a.mu.Lock()
		last, seen := a.lastFired[key]
		if seen && now.Sub(last) < rule.Cooldown {
			a.mu.Unlock()
			continue
		}
		a.lastFired[key] = now
		a.mu.Unlock()

		alerts = append(alerts, models.Alert{
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			Severity:  rule.Severity,
			UserID:    sample.UserID,
			Message:   fmt.Sprintf("%s for user %s", rule.Name, sample.UserID),
			Timestamp: now,
		})
		log.Printf("🔔 [ALERT] %s fired for user %s (severity %s, cooldown %s)",
			rule.ID, sample.UserID, rule.Severity, rule.Cooldown)
	}

	return alerts
}

// safeCondition evaluates one rule, containing panics so a broken rule
// cannot prevent the others from running.
func (a *Alerter) safeCondition(rule *models.AlertRule, sample *models.BiometricSample, snapshot *models.AnalyticsSnapshot) (fired bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("⚠️ [ALERT] Rule %s panicked: %v (skipped)", rule.ID, rec)
			fired = false
		}
	}()
	if rule.Condition == nil {
		return false
	}
	return rule.Condition(sample, snapshot)
}
