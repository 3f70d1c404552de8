package detectors

import (
	"math"
	"testing"
	"time"

	"nexispulse/internal/models"
)

func newExecutiveAnalyzer() *ExecutiveFunctionAnalyzer {
	return NewExecutiveFunctionAnalyzer(NewContextSwitchAnalyzer())
}

func TestExecutive_OverallIsUnweightedMean(t *testing.T) {
	a := newExecutiveAnalyzer()
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	var samples []*models.BiometricSample
	for i := 0; i < 12; i++ {
		samples = append(samples, contextSample(base.Add(time.Duration(i)*time.Minute), "coding", 70, 60, 30))
	}

	report := a.Analyze("u1", samples)
	sum := report.PlanningEfficiency + report.InhibitionControl +
		report.CognitiveFlexibility + report.ProcessingSpeed + report.WorkingMemoryLoad
	if math.Abs(report.OverallScore-sum/5) > 1e-9 {
		t.Errorf("overall = %f, want mean %f", report.OverallScore, sum/5)
	}

	for name, score := range map[string]float64{
		"planning":    report.PlanningEfficiency,
		"inhibition":  report.InhibitionControl,
		"flexibility": report.CognitiveFlexibility,
		"speed":       report.ProcessingSpeed,
		"memory":      report.WorkingMemoryLoad,
	} {
		if score < 0 || score > 1 {
			t.Errorf("%s score out of [0,1]: %f", name, score)
		}
	}
}

func TestExecutive_EmptyStreamUsesNeutralDefaults(t *testing.T) {
	a := newExecutiveAnalyzer()
	report := a.Analyze("u1", nil)

	// Planning and speed default to 0.5; inhibition, flexibility and memory
	// headroom are perfect with nothing observed.
	want := (0.5 + 1.0 + 1.0 + 0.5 + 1.0) / 5
	if math.Abs(report.OverallScore-want) > 1e-9 {
		t.Errorf("overall = %f, want %f", report.OverallScore, want)
	}
}

func TestInhibitionControl(t *testing.T) {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	at := func(i int, attn float64) *models.BiometricSample {
		return contextSample(base.Add(time.Duration(i)*30*time.Second), "coding", attn, 60, 30)
	}

	// Drop from 80 to 50, recovered two samples later.
	recovered := []*models.BiometricSample{at(0, 80), at(1, 50), at(2, 60), at(3, 78)}
	if got := inhibitionControl(recovered); got != 1.0 {
		t.Errorf("recovered drop = %f, want 1.0", got)
	}

	// Drop with no recovery inside the response window.
	stuck := []*models.BiometricSample{at(0, 80), at(1, 50), at(2, 52), at(3, 55), at(4, 55)}
	if got := inhibitionControl(stuck); got != 0 {
		t.Errorf("unrecovered drop = %f, want 0", got)
	}

	// No drops at all counts as full control.
	if got := inhibitionControl([]*models.BiometricSample{at(0, 70), at(1, 72)}); got != 1.0 {
		t.Errorf("no drops = %f, want 1.0", got)
	}
}

func TestCognitiveFlexibility(t *testing.T) {
	switches := []models.ContextSwitch{
		{Cost: 5},  // absorbed
		{Cost: 40}, // costly
	}
	if got := cognitiveFlexibility(switches); got != 0.5 {
		t.Errorf("flexibility = %f, want 0.5", got)
	}
	if got := cognitiveFlexibility(nil); got != 1.0 {
		t.Errorf("no switches = %f, want 1.0", got)
	}
}

func TestProcessingSpeed(t *testing.T) {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	at := func(i int, attn float64) *models.BiometricSample {
		return contextSample(base.Add(time.Duration(i)*30*time.Second), "coding", attn, 60, 30)
	}

	// Mean rise of 5 per sample maps to a full score.
	fast := []*models.BiometricSample{at(0, 50), at(1, 55), at(2, 60)}
	if got := processingSpeed(fast); got != 1.0 {
		t.Errorf("fast engagement = %f, want 1.0", got)
	}

	// No rises: neutral.
	flat := []*models.BiometricSample{at(0, 60), at(1, 60)}
	if got := processingSpeed(flat); got != 0.5 {
		t.Errorf("flat engagement = %f, want 0.5", got)
	}
}

func TestWorkingMemoryHeadroom(t *testing.T) {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	heavy := []*models.BiometricSample{
		contextSample(base, "a", 50, 100, 50),
		contextSample(base.Add(time.Minute), "a", 50, 100, 50),
	}

	// Full load plus a chaotic switch rate exhausts the headroom.
	if got := workingMemoryHeadroom(heavy, rateChaotic); got != 0 {
		t.Errorf("exhausted headroom = %f, want 0", got)
	}
	// Light load and no switching leaves most of it.
	light := []*models.BiometricSample{contextSample(base, "a", 50, 20, 30)}
	if got := workingMemoryHeadroom(light, 0); math.Abs(got-0.88) > 1e-9 {
		t.Errorf("light headroom = %f, want 0.88", got)
	}
}
