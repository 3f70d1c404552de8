package collector

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxConcurrent is the default admission-control budget: the number
// of samples allowed in flight simultaneously before new arrivals are routed
// to the overflow queue.
const DefaultMaxConcurrent = 100

// Collector tracks in-flight work for admission control plus the counters
// the health score is computed from. The orchestrator must pair every
// StartProcessing with exactly one RecordSuccess or RecordError.
type Collector struct {
	maxConcurrent int64

	inFlight   atomic.Int64
	processed  atomic.Int64
	errors     atomic.Int64
	overflowed atomic.Int64

	mu           sync.Mutex
	latencySum   time.Duration
	latencyCount int64
}

// NewCollector creates a collector with the given admission budget.
func NewCollector(maxConcurrent int) *Collector {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Collector{maxConcurrent: int64(maxConcurrent)}
}

// CanProcess reports whether the admission budget has headroom.
func (c *Collector) CanProcess() bool {
	return c.inFlight.Load() < c.maxConcurrent
}

// StartProcessing claims an in-flight slot. Returns false when the budget is
// saturated; the caller must then take the overflow path and must not call
// RecordSuccess/RecordError for this unit of work.
func (c *Collector) StartProcessing() bool {
	n := c.inFlight.Add(1)
	if n > c.maxConcurrent {
		c.inFlight.Add(-1)
		return false
	}
	return true
}

// RecordSuccess releases the in-flight slot and records a completed unit.
func (c *Collector) RecordSuccess(latency time.Duration) {
	c.release()
	c.processed.Add(1)
	c.observeLatency(latency)
}

// RecordError releases the in-flight slot and records a failed unit.
func (c *Collector) RecordError(latency time.Duration) {
	c.release()
	c.processed.Add(1)
	c.errors.Add(1)
	c.observeLatency(latency)
}

// RecordOverflow counts a sample deferred to the overflow queue.
func (c *Collector) RecordOverflow() {
	c.overflowed.Add(1)
}

func (c *Collector) release() {
	if c.inFlight.Add(-1) < 0 {
		c.inFlight.Store(0) // safety: never go negative
	}
}

func (c *Collector) observeLatency(d time.Duration) {
	c.mu.Lock()
	c.latencySum += d
	c.latencyCount++
	c.mu.Unlock()
}

// InFlight returns the current in-flight count.
func (c *Collector) InFlight() int64 { return c.inFlight.Load() }

// MaxConcurrent returns the admission budget.
func (c *Collector) MaxConcurrent() int64 { return c.maxConcurrent }

// Stats is a point-in-time snapshot of the collector's counters.
type Stats struct {
	InFlight      int64         `json:"in_flight"`
	MaxConcurrent int64         `json:"max_concurrent"`
	Processed     int64         `json:"processed"`
	Errors        int64         `json:"errors"`
	Overflowed    int64         `json:"overflowed"`
	AvgLatency    time.Duration `json:"avg_latency"`
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Stats {
	c.mu.Lock()
	var avg time.Duration
	if c.latencyCount > 0 {
		avg = c.latencySum / time.Duration(c.latencyCount)
	}
	c.mu.Unlock()

	return Stats{
		InFlight:      c.inFlight.Load(),
		MaxConcurrent: c.maxConcurrent,
		Processed:     c.processed.Load(),
		Errors:        c.errors.Load(),
		Overflowed:    c.overflowed.Load(),
		AvgLatency:    avg,
	}
}
