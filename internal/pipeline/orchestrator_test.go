package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nexispulse/internal/analytics"
	"nexispulse/internal/collector"
	"nexispulse/internal/config"
	"nexispulse/internal/detectors"
	"nexispulse/internal/models"
	"nexispulse/internal/services"
	"nexispulse/internal/validation"
	"nexispulse/internal/window"
)

// fakeSink records writes and can fail a set number of AppendBatch calls.
type fakeSink struct {
	mu          sync.Mutex
	failBatches int
	batches     int
	samples     []*models.BiometricSample
	episodes    []*models.Episode
	alerts      []models.Alert
}

func (f *fakeSink) AppendBatch(_ context.Context, samples []*models.BiometricSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBatches > 0 {
		f.failBatches--
		return errors.New("sink unavailable")
	}
	f.batches++
	f.samples = append(f.samples, samples...)
	return nil
}

func (f *fakeSink) InsertEpisodes(_ context.Context, episodes []*models.Episode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.episodes = append(f.episodes, episodes...)
	return nil
}

func (f *fakeSink) InsertAlerts(_ context.Context, alerts []models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alerts...)
	return nil
}

func (f *fakeSink) EpisodesInRange(_ context.Context, userID string, from, to time.Time) ([]*models.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Episode
	for _, ep := range f.episodes {
		if ep.UserID == userID && !ep.StartTime.Before(from) && ep.StartTime.Before(to) {
			out = append(out, ep)
		}
	}
	return out, nil
}

// fakeOverflow is an in-memory per-user FIFO.
type fakeOverflow struct {
	mu     sync.Mutex
	queues map[string][]*models.BiometricSample
}

func newFakeOverflow() *fakeOverflow {
	return &fakeOverflow{queues: make(map[string][]*models.BiometricSample)}
}

func (f *fakeOverflow) Enqueue(_ context.Context, userID string, sample *models.BiometricSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[userID] = append(f.queues[userID], sample)
	return nil
}

func (f *fakeOverflow) Dequeue(_ context.Context, userID string) (*models.BiometricSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.queues[userID]
	if len(q) == 0 {
		return nil, services.ErrOverflowEmpty
	}
	sample := q[0]
	f.queues[userID] = q[1:]
	return sample, nil
}

func (f *fakeOverflow) depth(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queues[userID])
}

type testPipeline struct {
	orch     *Orchestrator
	sink     *fakeSink
	overflow *fakeOverflow
	col      *collector.Collector
	windows  *window.Store
	now      time.Time
}

func newTestPipeline(t *testing.T, maxConcurrent, batchSize int) *testPipeline {
	t.Helper()

	tp := &testPipeline{
		sink:     &fakeSink{},
		overflow: newFakeOverflow(),
		col:      collector.NewCollector(maxConcurrent),
		now:      time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return tp.now }

	validator := validation.NewValidator(false)
	validator.SetClock(clock)

	tp.windows = window.NewStore(time.Hour)
	tp.windows.SetClock(clock)

	store := config.NewThresholdStore(config.DefaultThresholds())
	alerter := collector.NewAlerter(collector.DefaultRules())
	alerter.SetClock(clock)

	tp.orch = NewOrchestrator(Options{
		Validator:  validator,
		Windows:    tp.windows,
		Calculator: analytics.NewCalculator(store, time.Minute),
		Detectors:  detectors.NewRunner(detectors.NewHyperfocusDetector(store)),
		Collector:  tp.col,
		Alerter:    alerter,
		Sink:       tp.sink,
		Overflow:   tp.overflow,
		BatchSize:  batchSize,
	})
	return tp
}

func (tp *testPipeline) sample(userID string) *models.BiometricSample {
	return &models.BiometricSample{
		UserID:         userID,
		SessionID:      "s1",
		Timestamp:      tp.now,
		HeartRate:      70,
		HRV:            50,
		CognitiveLoad:  60,
		AttentionLevel: 70,
		StressLevel:    40,
	}
}

func TestOrchestrator_IngestEndToEnd(t *testing.T) {
	tp := newTestPipeline(t, 10, 100)
	ctx := context.Background()

	res := tp.orch.Ingest(ctx, tp.sample("u1"))
	if !res.Success {
		t.Fatalf("ingest failed: %s", res.Error)
	}
	if res.Analytics == nil {
		t.Error("result should carry the analytics snapshot")
	}
	if tp.windows.Count("u1") != 1 {
		t.Errorf("window count = %d, want 1", tp.windows.Count("u1"))
	}
	if tp.col.InFlight() != 0 {
		t.Errorf("in-flight = %d after ingest, want 0", tp.col.InFlight())
	}

	if err := tp.orch.flushBatch(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if len(tp.sink.samples) != 1 {
		t.Errorf("sink holds %d samples, want 1", len(tp.sink.samples))
	}
}

func TestOrchestrator_ValidationFailureShortCircuits(t *testing.T) {
	tp := newTestPipeline(t, 10, 100)

	bad := tp.sample("u1")
	bad.HeartRate = 300
	res := tp.orch.Ingest(context.Background(), bad)

	if res.Success {
		t.Fatal("out-of-range sample should be rejected")
	}
	if res.Error == "" {
		t.Error("rejection should carry the validation error")
	}
	if tp.windows.Count("u1") != 0 {
		t.Error("rejected sample must not enter the window")
	}
}

func TestOrchestrator_BackpressureDefersToOverflow(t *testing.T) {
	tp := newTestPipeline(t, 1, 100)
	ctx := context.Background()

	// Saturate the single admission slot.
	if !tp.col.StartProcessing() {
		t.Fatal("could not claim the slot")
	}

	res := tp.orch.Ingest(ctx, tp.sample("u1"))
	if !res.Success || !res.Overflowed {
		t.Fatalf("deferred sample should report success+overflowed, got %+v", res)
	}
	if tp.overflow.depth("u1") != 1 {
		t.Errorf("overflow depth = %d, want 1", tp.overflow.depth("u1"))
	}
	if tp.col.Snapshot().Overflowed != 1 {
		t.Errorf("overflow counter = %d, want 1", tp.col.Snapshot().Overflowed)
	}
	if tp.windows.Count("u1") != 0 {
		t.Error("deferred sample must not be processed yet")
	}

	// Capacity returns: the drain pass re-admits the parked sample.
	tp.col.RecordSuccess(time.Millisecond)
	tp.orch.drainOverflow(ctx)

	if tp.overflow.depth("u1") != 0 {
		t.Errorf("overflow depth after drain = %d, want 0", tp.overflow.depth("u1"))
	}
	if tp.windows.Count("u1") != 1 {
		t.Errorf("window count after drain = %d, want 1", tp.windows.Count("u1"))
	}
}

func TestOrchestrator_FailedFlushRequeuesWithoutLoss(t *testing.T) {
	tp := newTestPipeline(t, 100, 1000)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		tp.now = tp.now.Add(time.Second)
		s := tp.sample("u1")
		if res := tp.orch.Ingest(ctx, s); !res.Success {
			t.Fatalf("ingest %d failed: %s", i, res.Error)
		}
	}

	tp.sink.failBatches = 1
	if err := tp.orch.flushBatch(ctx); err == nil {
		t.Fatal("first flush should fail")
	}
	if len(tp.sink.samples) != 0 {
		t.Fatalf("failed flush wrote %d samples", len(tp.sink.samples))
	}

	if err := tp.orch.flushBatch(ctx); err != nil {
		t.Fatalf("retry flush failed: %v", err)
	}
	if len(tp.sink.samples) != 50 {
		t.Fatalf("sink holds %d samples, want 50 exactly (no loss, no duplicates)", len(tp.sink.samples))
	}
	// Arrival order survives the requeue.
	for i := 1; i < len(tp.sink.samples); i++ {
		if tp.sink.samples[i].Timestamp.Before(tp.sink.samples[i-1].Timestamp) {
			t.Fatal("requeued batch lost arrival order")
		}
	}
	if err := tp.orch.flushBatch(ctx); err != nil {
		t.Fatalf("empty flush failed: %v", err)
	}
	if tp.sink.batches != 1 {
		t.Errorf("sink saw %d non-empty batches, want 1", tp.sink.batches)
	}
}

func TestOrchestrator_FullBatchFlushesEarly(t *testing.T) {
	tp := newTestPipeline(t, 100, 2)
	ctx := context.Background()

	tp.orch.Ingest(ctx, tp.sample("u1"))
	tp.now = tp.now.Add(time.Second)
	tp.orch.Ingest(ctx, tp.sample("u1"))

	if len(tp.sink.samples) != 2 {
		t.Errorf("sink holds %d samples, want 2 (early flush at batch size)", len(tp.sink.samples))
	}
}

func TestOrchestrator_StopFlushesDetectorsAndBatch(t *testing.T) {
	tp := newTestPipeline(t, 100, 1000)
	ctx := context.Background()

	// A sustained focus run left open at shutdown.
	for i := 0; i <= 32; i++ {
		tp.now = tp.now.Add(30 * time.Second)
		s := tp.sample("u1")
		s.AttentionLevel = 90
		s.CognitiveLoad = 75
		s.StressLevel = 30
		if res := tp.orch.Ingest(ctx, s); !res.Success {
			t.Fatalf("ingest %d failed: %s", i, res.Error)
		}
	}

	if err := tp.orch.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if len(tp.sink.samples) != 33 {
		t.Errorf("sink holds %d samples after stop, want 33", len(tp.sink.samples))
	}
	if len(tp.sink.episodes) != 1 {
		t.Errorf("sink holds %d episodes after stop, want 1 from the open focus run", len(tp.sink.episodes))
	}
}

func TestOrchestrator_HistoricalPatterns(t *testing.T) {
	tp := newTestPipeline(t, 100, 1000)
	ctx := context.Background()

	tp.sink.episodes = []*models.Episode{
		{UserID: "u1", Type: models.EpisodeHyperfocus, StartTime: tp.now.Add(-2 * time.Hour)},
		{UserID: "u1", Type: models.EpisodeSensoryOverload, StartTime: tp.now.Add(-30 * time.Minute)},
		{UserID: "u2", Type: models.EpisodeHyperfocus, StartTime: tp.now.Add(-time.Hour)},
	}

	report, err := tp.orch.HistoricalPatterns(ctx, "u1", tp.now.Add(-time.Hour), tp.now)
	if err != nil {
		t.Fatalf("patterns failed: %v", err)
	}
	if len(report.Episodes) != 1 {
		t.Errorf("report holds %d episodes, want 1 inside the range", len(report.Episodes))
	}
	if report.UserID != "u1" {
		t.Errorf("report user = %s, want u1", report.UserID)
	}
}
