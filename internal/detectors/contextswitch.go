package detectors

import (
	"sort"
	"sync"

	"nexispulse/internal/models"
)

// Per-switch cost weights. Each component is clamped at zero so a switch
// that improved a metric never earns negative cost.
const (
	costAttentionWeight = 0.4
	costLoadWeight      = 0.3
	costStressWeight    = 0.3

	// Hourly rate classification bounds.
	rateChaotic = 20.0
	rateHigh    = 10.0
	rateNormal  = 3.0

	optimalWindowCount = 3
)

// hourStats accumulates switch cost per hour-of-day across the stream
// lifetime, beyond the retained window.
type hourStats struct {
	sum   float64
	count int
}

// contextSwitchState is the per-user accumulator.
type contextSwitchState struct {
	hourCosts [24]hourStats
}

// ContextSwitchAnalyzer detects contextId changes between adjacent samples
// and prices each switch by the attention/load/stress movement it caused.
type ContextSwitchAnalyzer struct {
	mu     sync.Mutex
	states map[string]*contextSwitchState
}

// NewContextSwitchAnalyzer creates a context switch analyzer.
func NewContextSwitchAnalyzer() *ContextSwitchAnalyzer {
	return &ContextSwitchAnalyzer{states: make(map[string]*contextSwitchState)}
}

// Name identifies the analyzer in logs.
func (a *ContextSwitchAnalyzer) Name() string { return "context_switch" }

func (a *ContextSwitchAnalyzer) stateFor(userID string) *contextSwitchState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[userID]
	if !ok {
		st = &contextSwitchState{}
		a.states[userID] = st
	}
	return st
}

// Analyze scans the retained stream for context switches and produces the
// aggregate report. Hour-of-day cost statistics persist across calls so the
// optimal windows reflect the whole stream, not just the current window.
func (a *ContextSwitchAnalyzer) Analyze(userID string, samples []*models.BiometricSample) models.ContextSwitchReport {
	st := a.stateFor(userID)

	var switches []models.ContextSwitch
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if cur.ContextID == "" || prev.ContextID == "" || cur.ContextID == prev.ContextID {
			continue
		}

		cost := SwitchCost(prev, cur)
		switches = append(switches, models.ContextSwitch{
			Timestamp:   cur.Timestamp,
			FromContext: prev.ContextID,
			ToContext:   cur.ContextID,
			Cost:        cost,
		})

		hour := cur.Timestamp.Hour()
		st.hourCosts[hour].sum += cost
		st.hourCosts[hour].count++
	}

	report := models.ContextSwitchReport{
		Switches:      switches,
		TotalSwitches: len(switches),
	}

	if len(samples) >= 2 {
		span := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
		if span > 0 {
			report.HourlyRate = float64(len(switches)) / span.Hours()
		}
	}
	report.RateClass = classifyRate(report.HourlyRate)

	if len(switches) > 0 {
		total := 0.0
		for _, sw := range switches {
			total += sw.Cost
		}
		report.AvgCost = total / float64(len(switches))
	}

	report.OptimalWindows = a.optimalWindows(st)
	return report
}

// SwitchCost prices one context switch from the metric movement across it.
// Each component only counts when it moved the wrong way.
func SwitchCost(prev, cur *models.BiometricSample) float64 {
	attentionDrop := prev.AttentionLevel - cur.AttentionLevel
	if attentionDrop < 0 {
		attentionDrop = 0
	}
	loadIncrease := cur.CognitiveLoad - prev.CognitiveLoad
	if loadIncrease < 0 {
		loadIncrease = 0
	}
	stressIncrease := cur.StressLevel - prev.StressLevel
	if stressIncrease < 0 {
		stressIncrease = 0
	}
	return costAttentionWeight*attentionDrop +
		costLoadWeight*loadIncrease +
		costStressWeight*stressIncrease
}

func classifyRate(hourly float64) models.SwitchRateClass {
	switch {
	case hourly > rateChaotic:
		return models.SwitchRateChaotic
	case hourly > rateHigh:
		return models.SwitchRateHigh
	case hourly > rateNormal:
		return models.SwitchRateNormal
	default:
		return models.SwitchRateLow
	}
}

// optimalWindows returns the hours-of-day with the lowest mean switch cost.
// Hours with no observed switches don't qualify.
func (a *ContextSwitchAnalyzer) optimalWindows(st *contextSwitchState) []int {
	type hourCost struct {
		hour int
		mean float64
	}
	var observed []hourCost
	for h, stats := range st.hourCosts {
		if stats.count == 0 {
			continue
		}
		observed = append(observed, hourCost{hour: h, mean: stats.sum / float64(stats.count)})
	}
	sort.Slice(observed, func(i, j int) bool {
		if observed[i].mean != observed[j].mean {
			return observed[i].mean < observed[j].mean
		}
		return observed[i].hour < observed[j].hour
	})

	n := optimalWindowCount
	if len(observed) < n {
		n = len(observed)
	}
	windows := make([]int, 0, n)
	for _, hc := range observed[:n] {
		windows = append(windows, hc.hour)
	}
	return windows
}
