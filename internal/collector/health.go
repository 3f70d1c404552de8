package collector

import (
	"runtime"
	"time"
)

// HealthStatus buckets the health score.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusWarning  HealthStatus = "warning"  // score < 80
	StatusCritical HealthStatus = "critical" // score < 50
)

// Health score deductions.
const (
	deductErrorRate      = 30
	deductMemoryPressure = 20
	deductHighCapacity   = 15
	deductHighLatency    = 10

	errorRateThreshold  = 0.05
	capacityThreshold   = 0.8
	latencyThreshold    = 250 * time.Millisecond
	memoryPressureBytes = 1 << 30 // 1 GiB heap in use
)

// Health is the scored pipeline health report.
type Health struct {
	Score      int          `json:"score"`
	Status     HealthStatus `json:"status"`
	ErrorRate  float64      `json:"error_rate"`
	Capacity   float64      `json:"capacity"` // in-flight / max
	AvgLatency time.Duration `json:"avg_latency"`
	HeapBytes  uint64       `json:"heap_bytes"`
}

// Health scores the pipeline from the collector's counters: start at 100,
// deduct for error rate, memory pressure, capacity saturation, and latency.
func (c *Collector) Health() Health {
	stats := c.Snapshot()

	var errorRate float64
	if stats.Processed > 0 {
		errorRate = float64(stats.Errors) / float64(stats.Processed)
	}
	capacity := float64(stats.InFlight) / float64(stats.MaxConcurrent)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	score := 100
	if errorRate > errorRateThreshold {
		score -= deductErrorRate
	}
	if mem.HeapInuse > memoryPressureBytes {
		score -= deductMemoryPressure
	}
	if capacity > capacityThreshold {
		score -= deductHighCapacity
	}
	if stats.AvgLatency > latencyThreshold {
		score -= deductHighLatency
	}

	status := StatusHealthy
	switch {
	case score < 50:
		status = StatusCritical
	case score < 80:
		status = StatusWarning
	}

	return Health{
		Score:      score,
		Status:     status,
		ErrorRate:  errorRate,
		Capacity:   capacity,
		AvgLatency: stats.AvgLatency,
		HeapBytes:  mem.HeapInuse,
	}
}
