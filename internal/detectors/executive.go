package detectors

import (
	"nexispulse/internal/analytics"
	"nexispulse/internal/models"
)

const (
	// A distraction counts as recovered when attention returns to within
	// this margin of its pre-drop level inside the response window.
	distractionDrop           = 20.0
	distractionRecoveryMargin = 10.0
	distractionResponseWindow = 3 // samples

	// A switch is handled successfully when its cost stays under this.
	flexibilitySuccessCost = 15.0

	// Attention rises of this size per sample map to a full processing
	// speed score.
	engagementSlopeNorm = 5.0
)

// ExecutiveFunctionAnalyzer composes five independently computed sub-scores
// into an overall executive function estimate. All sub-scores are in [0, 1];
// the overall score is their unweighted mean.
type ExecutiveFunctionAnalyzer struct {
	switches *ContextSwitchAnalyzer
}

// NewExecutiveFunctionAnalyzer creates an executive function analyzer that
// reuses the context switch analyzer's per-switch costs.
func NewExecutiveFunctionAnalyzer(switches *ContextSwitchAnalyzer) *ExecutiveFunctionAnalyzer {
	return &ExecutiveFunctionAnalyzer{switches: switches}
}

// Name identifies the analyzer in logs.
func (a *ExecutiveFunctionAnalyzer) Name() string { return "executive_function" }

// Analyze computes the composite report over the retained stream.
func (a *ExecutiveFunctionAnalyzer) Analyze(userID string, samples []*models.BiometricSample) models.ExecutiveFunctionReport {
	switchReport := a.switches.Analyze(userID, samples)

	report := models.ExecutiveFunctionReport{
		PlanningEfficiency:   planningEfficiency(samples),
		InhibitionControl:    inhibitionControl(samples),
		CognitiveFlexibility: cognitiveFlexibility(switchReport.Switches),
		ProcessingSpeed:      processingSpeed(samples),
		WorkingMemoryLoad:    workingMemoryHeadroom(samples, switchReport.HourlyRate),
	}
	report.OverallScore = (report.PlanningEfficiency +
		report.InhibitionControl +
		report.CognitiveFlexibility +
		report.ProcessingSpeed +
		report.WorkingMemoryLoad) / 5
	return report
}

// planningEfficiency reads the load ramp shape: deliberate work shows a
// moderate preparation load rising into execution, not a cold start or a
// front-loaded spike.
func planningEfficiency(samples []*models.BiometricSample) float64 {
	if len(samples) < 6 {
		return 0.5
	}
	third := len(samples) / 3
	var prep, exec []float64
	for _, s := range samples[:third] {
		prep = append(prep, s.CognitiveLoad)
	}
	for _, s := range samples[third : 2*third] {
		exec = append(exec, s.CognitiveLoad)
	}

	execMean := analytics.Mean(exec)
	if execMean == 0 {
		return 0.5
	}
	ratio := analytics.Mean(prep) / execMean
	// A prep-to-execution ratio near 0.8 scores best.
	return analytics.Clamp(1-absF(ratio-0.8), 0, 1)
}

// inhibitionControl is the fraction of distraction events where attention
// recovered within the short response window.
func inhibitionControl(samples []*models.BiometricSample) float64 {
	drops := 0
	recovered := 0
	for i := 1; i < len(samples); i++ {
		pre := samples[i-1].AttentionLevel
		if pre-samples[i].AttentionLevel <= distractionDrop {
			continue
		}
		drops++
		for j := i + 1; j <= i+distractionResponseWindow && j < len(samples); j++ {
			if samples[j].AttentionLevel >= pre-distractionRecoveryMargin {
				recovered++
				break
			}
		}
	}
	if drops == 0 {
		return 1.0
	}
	return float64(recovered) / float64(drops)
}

// cognitiveFlexibility is the success rate across context switches: a switch
// absorbed with low cost counts as handled well.
func cognitiveFlexibility(switches []models.ContextSwitch) float64 {
	if len(switches) == 0 {
		return 1.0
	}
	ok := 0
	for _, sw := range switches {
		if sw.Cost < flexibilitySuccessCost {
			ok++
		}
	}
	return float64(ok) / float64(len(switches))
}

// processingSpeed reads the attention engagement slope: how quickly
// attention climbs when it climbs.
func processingSpeed(samples []*models.BiometricSample) float64 {
	var rises []float64
	for i := 1; i < len(samples); i++ {
		if d := samples[i].AttentionLevel - samples[i-1].AttentionLevel; d > 0 {
			rises = append(rises, d)
		}
	}
	if len(rises) == 0 {
		return 0.5
	}
	return analytics.Clamp(analytics.Mean(rises)/engagementSlopeNorm, 0, 1)
}

// workingMemoryHeadroom penalizes sustained load combined with a high switch
// rate; the returned score is remaining headroom, so higher is better.
func workingMemoryHeadroom(samples []*models.BiometricSample, hourlyRate float64) float64 {
	var loads []float64
	for _, s := range samples {
		loads = append(loads, s.CognitiveLoad)
	}
	loadPenalty := analytics.Mean(loads) / 100 * 0.6
	ratePenalty := analytics.Clamp(hourlyRate/rateChaotic, 0, 1) * 0.4
	return analytics.Clamp(1-loadPenalty-ratePenalty, 0, 1)
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
