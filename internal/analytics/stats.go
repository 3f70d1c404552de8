package analytics

import (
	"math"

	"nexispulse/internal/models"
)

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation, 0 for fewer than 2 points.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// Max returns the largest value, 0 for an empty slice.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Min returns the smallest value, 0 for an empty slice.
func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Trend splits the series into first/second halves and compares their means.
// The movement is stable when the absolute delta is under sensitivity,
// otherwise increasing/decreasing by the sign of the delta. Fewer than 2
// points is always stable.
func Trend(values []float64, sensitivity float64) models.TrendDirection {
	if len(values) < 2 {
		return models.TrendStable
	}
	half := len(values) / 2
	first := Mean(values[:half])
	second := Mean(values[half:])
	delta := second - first

	if math.Abs(delta) < sensitivity {
		return models.TrendStable
	}
	if delta > 0 {
		return models.TrendIncreasing
	}
	return models.TrendDecreasing
}

// Stability is the inverse coefficient of variation, floored at 0 and
// defined as 1.0 for fewer than 2 points or a zero mean.
func Stability(values []float64) float64 {
	if len(values) < 2 {
		return 1.0
	}
	mean := Mean(values)
	if mean == 0 {
		return 1.0
	}
	s := 1.0 - StdDev(values)/math.Abs(mean)
	if s < 0 {
		return 0
	}
	return s
}

// Clamp bounds v into [min, max].
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
