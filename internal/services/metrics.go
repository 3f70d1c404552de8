package services

import (
	"nexispulse/internal/collector"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the pipeline
type Metrics struct {
	// Ingest metrics
	SamplesProcessed   prometheus.Counter
	ValidationFailures *prometheus.CounterVec
	SamplesOverflowed  prometheus.Counter
	PipelineLatency    prometheus.Histogram

	// Batch metrics
	BatchesFlushed prometheus.Counter
	FlushFailures  prometheus.Counter

	// Detection metrics
	EpisodesDetected *prometheus.CounterVec
	AlertsFired      *prometheus.CounterVec

	// WebSocket metrics
	WebSocketConnections prometheus.Gauge
	WebSocketMessages    *prometheus.CounterVec
}

// InitMetrics initializes the Prometheus metrics. The collector and
// connection manager back the dynamic gauges.
func InitMetrics(col *collector.Collector, connManager *ConnectionManager) *Metrics {
	metrics := &Metrics{
		SamplesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nexispulse_samples_processed_total",
			Help: "Total number of samples accepted by the pipeline",
		}),

		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nexispulse_validation_failures_total",
			Help: "Total number of samples rejected by validation, by field",
		}, []string{"field"}),

		SamplesOverflowed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nexispulse_samples_overflowed_total",
			Help: "Total number of samples deferred to the overflow queue",
		}),

		PipelineLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexispulse_pipeline_duration_seconds",
			Help:    "End-to-end per-sample processing latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		BatchesFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nexispulse_batches_flushed_total",
			Help: "Total number of sample batches flushed to storage",
		}),

		FlushFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nexispulse_flush_failures_total",
			Help: "Total number of failed batch flushes (samples requeued)",
		}),

		EpisodesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nexispulse_episodes_detected_total",
			Help: "Total number of detected episodes by type",
		}, []string{"type"}),

		AlertsFired: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nexispulse_alerts_fired_total",
			Help: "Total number of alerts fired by rule",
		}, []string{"rule"}),

		// WebSocket active connections (gauge - can go up and down)
		WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nexispulse_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		}),

		WebSocketMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nexispulse_websocket_messages_total",
			Help: "Total number of WebSocket messages by type",
		}, []string{"type", "direction"}), // direction: "inbound" or "outbound"
	}

	// In-flight samples come straight from the admission counter
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "nexispulse_samples_in_flight",
			Help: "Number of samples currently being processed",
		},
		func() float64 {
			if col != nil {
				return float64(col.Snapshot().InFlight)
			}
			return 0
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "nexispulse_websocket_connections_current",
			Help: "Current number of active WebSocket connections (from connection manager)",
		},
		func() float64 {
			if connManager != nil {
				return float64(connManager.Count())
			}
			return 0
		},
	))

	return metrics
}

// RecordSample records an accepted sample and its processing latency
func (m *Metrics) RecordSample(seconds float64) {
	m.SamplesProcessed.Inc()
	m.PipelineLatency.Observe(seconds)
}

// RecordValidationFailure records a rejected sample
func (m *Metrics) RecordValidationFailure(field string) {
	m.ValidationFailures.WithLabelValues(field).Inc()
}

// RecordOverflow records a sample deferred to the overflow queue
func (m *Metrics) RecordOverflow() {
	m.SamplesOverflowed.Inc()
}

// RecordFlush records a batch flush outcome
func (m *Metrics) RecordFlush(ok bool) {
	if ok {
		m.BatchesFlushed.Inc()
	} else {
		m.FlushFailures.Inc()
	}
}

// RecordEpisode records a detected episode
func (m *Metrics) RecordEpisode(episodeType string) {
	m.EpisodesDetected.WithLabelValues(episodeType).Inc()
}

// RecordAlert records a fired alert
func (m *Metrics) RecordAlert(ruleID string) {
	m.AlertsFired.WithLabelValues(ruleID).Inc()
}

// RecordWebSocketConnect records a new WebSocket connection
func (m *Metrics) RecordWebSocketConnect() {
	m.WebSocketConnections.Inc()
}

// RecordWebSocketDisconnect records a WebSocket disconnection
func (m *Metrics) RecordWebSocketDisconnect() {
	m.WebSocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	m.WebSocketMessages.WithLabelValues(msgType, direction).Inc()
}
