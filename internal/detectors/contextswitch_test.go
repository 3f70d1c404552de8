package detectors

import (
	"testing"
	"time"

	"nexispulse/internal/models"
)

func contextSample(ts time.Time, contextID string, attn, load, stress float64) *models.BiometricSample {
	return &models.BiometricSample{
		UserID:         "u1",
		SessionID:      "s1",
		Timestamp:      ts,
		HeartRate:      70,
		HRV:            50,
		ContextID:      contextID,
		AttentionLevel: attn,
		CognitiveLoad:  load,
		StressLevel:    stress,
	}
}

func TestSwitchCost_WeightsAndClamp(t *testing.T) {
	prev := contextSample(time.Time{}, "a", 80, 50, 30)
	cur := contextSample(time.Time{}, "b", 60, 60, 40)

	// 0.4*20 attention drop + 0.3*10 load rise + 0.3*10 stress rise.
	if got := SwitchCost(prev, cur); got != 14 {
		t.Errorf("cost = %f, want 14", got)
	}

	// A switch that improved every metric costs nothing.
	improved := contextSample(time.Time{}, "b", 90, 40, 20)
	if got := SwitchCost(prev, improved); got != 0 {
		t.Errorf("improving switch cost = %f, want 0", got)
	}
}

func TestContextSwitch_CountsOnlyRealTransitions(t *testing.T) {
	a := NewContextSwitchAnalyzer()
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	samples := []*models.BiometricSample{
		contextSample(base, "coding", 80, 60, 30),
		contextSample(base.Add(10*time.Minute), "coding", 80, 60, 30),
		contextSample(base.Add(20*time.Minute), "email", 60, 70, 40),
		contextSample(base.Add(30*time.Minute), "", 60, 70, 40), // unknown context
		contextSample(base.Add(40*time.Minute), "email", 60, 70, 40),
		contextSample(base.Add(50*time.Minute), "coding", 75, 60, 30),
	}

	report := a.Analyze("u1", samples)
	if report.TotalSwitches != 2 {
		t.Fatalf("total switches = %d, want 2 (same-context and empty transitions don't count)", report.TotalSwitches)
	}
	if report.Switches[0].FromContext != "coding" || report.Switches[0].ToContext != "email" {
		t.Errorf("first switch = %s->%s, want coding->email",
			report.Switches[0].FromContext, report.Switches[0].ToContext)
	}
	// 2 switches over a 50 minute span.
	if report.HourlyRate < 2.3 || report.HourlyRate > 2.5 {
		t.Errorf("hourly rate = %f, want 2.4", report.HourlyRate)
	}
	if report.RateClass != models.SwitchRateLow {
		t.Errorf("rate class = %s, want low", report.RateClass)
	}
}

func TestClassifyRate(t *testing.T) {
	cases := []struct {
		hourly float64
		want   models.SwitchRateClass
	}{
		{25, models.SwitchRateChaotic},
		{15, models.SwitchRateHigh},
		{5, models.SwitchRateNormal},
		{2, models.SwitchRateLow},
		{0, models.SwitchRateLow},
	}
	for _, tc := range cases {
		if got := classifyRate(tc.hourly); got != tc.want {
			t.Errorf("classifyRate(%f) = %s, want %s", tc.hourly, got, tc.want)
		}
	}
}

func TestContextSwitch_OptimalWindowsPreferCheapHours(t *testing.T) {
	a := NewContextSwitchAnalyzer()
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	// A cheap switch at 09:00 and an expensive one at 14:00.
	morning := []*models.BiometricSample{
		contextSample(day.Add(9*time.Hour), "coding", 80, 60, 30),
		contextSample(day.Add(9*time.Hour+time.Minute), "email", 79, 60, 30),
	}
	afternoon := []*models.BiometricSample{
		contextSample(day.Add(14*time.Hour), "coding", 90, 50, 20),
		contextSample(day.Add(14*time.Hour+time.Minute), "meeting", 30, 90, 70),
	}

	a.Analyze("u1", morning)
	report := a.Analyze("u1", afternoon)

	if len(report.OptimalWindows) != 2 {
		t.Fatalf("optimal windows = %v, want two observed hours", report.OptimalWindows)
	}
	if report.OptimalWindows[0] != 9 {
		t.Errorf("cheapest hour = %d, want 9", report.OptimalWindows[0])
	}
}

func TestContextSwitch_HourStatsPersistAcrossWindows(t *testing.T) {
	a := NewContextSwitchAnalyzer()
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	first := []*models.BiometricSample{
		contextSample(day.Add(9*time.Hour), "coding", 80, 60, 30),
		contextSample(day.Add(9*time.Hour+time.Minute), "email", 70, 65, 35),
	}
	a.Analyze("u1", first)

	// A later window with no switches still reports the earlier hour.
	later := []*models.BiometricSample{
		contextSample(day.Add(15*time.Hour), "coding", 80, 60, 30),
		contextSample(day.Add(15*time.Hour+time.Minute), "coding", 80, 60, 30),
	}
	report := a.Analyze("u1", later)
	if report.TotalSwitches != 0 {
		t.Errorf("total switches = %d, want 0 in the later window", report.TotalSwitches)
	}
	if len(report.OptimalWindows) != 1 || report.OptimalWindows[0] != 9 {
		t.Errorf("optimal windows = %v, want [9] from stream history", report.OptimalWindows)
	}
}
