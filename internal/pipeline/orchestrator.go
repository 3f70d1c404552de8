package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"nexispulse/internal/analytics"
	"nexispulse/internal/collector"
	"nexispulse/internal/detectors"
	"nexispulse/internal/embeddings"
	"nexispulse/internal/logging"
	"nexispulse/internal/models"
	"nexispulse/internal/services"
	"nexispulse/internal/validation"
	"nexispulse/internal/window"
)

// BatchSink is the durable store the orchestrator flushes into.
type BatchSink interface {
	AppendBatch(ctx context.Context, samples []*models.BiometricSample) error
	InsertEpisodes(ctx context.Context, episodes []*models.Episode) error
	InsertAlerts(ctx context.Context, alerts []models.Alert) error
	EpisodesInRange(ctx context.Context, userID string, from, to time.Time) ([]*models.Episode, error)
}

// Broadcaster pushes pipeline output to subscribers. Implementations must
// not block; delivery is fire-and-forget.
type Broadcaster interface {
	Snapshot(ctx context.Context, userID string, snapshot *models.AnalyticsSnapshot)
	Alerts(ctx context.Context, userID string, alerts []models.Alert)
	Episode(ctx context.Context, userID string, episode *models.Episode)
}

// OverflowQueue defers validated samples when admission control saturates.
type OverflowQueue interface {
	Enqueue(ctx context.Context, userID string, sample *models.BiometricSample) error
	Dequeue(ctx context.Context, userID string) (*models.BiometricSample, error)
}

// Options wires an orchestrator. Validator, Windows, Calculator, Detectors,
// Collector, Alerter, and Sink are required; Overflow and Broadcast are
// optional (nil disables that path).
type Options struct {
	Validator  *validation.Validator
	Windows    *window.Store
	Calculator *analytics.Calculator
	Detectors  *detectors.Runner
	Collector  *collector.Collector
	Alerter    *collector.Alerter
	Sink       BatchSink
	Overflow   OverflowQueue
	Broadcast  Broadcaster
	Metrics    *services.Metrics

	ContextSwitches   *detectors.ContextSwitchAnalyzer
	ExecutiveFunction *detectors.ExecutiveFunctionAnalyzer

	BatchSize     int
	FlushInterval time.Duration
}

// Orchestrator is the single entry point of the pipeline. Each sample flows
// validate -> window -> analytics -> detectors -> alerts -> batch, with
// overflow as the pressure valve when admission control saturates.
type Orchestrator struct {
	opts Options

	mu    sync.Mutex
	batch []*models.BiometricSample

	// Users with samples parked in the overflow queue, drained when
	// capacity returns.
	overflowMu    sync.Mutex
	overflowUsers map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates a stopped orchestrator; call Start to begin the
// flush and drain loops.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:          opts,
		batch:         make([]*models.BiometricSample, 0, opts.BatchSize),
		overflowUsers: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches the periodic flush loop and the overflow drain loop.
func (o *Orchestrator) Start() {
	o.wg.Add(2)
	go o.flushLoop()
	go o.drainLoop()
	log.Printf("✅ [PIPELINE] Orchestrator started (batch=%d, flush=%s)", o.opts.BatchSize, o.opts.FlushInterval)
}

// Stop shuts the pipeline down: loops exit, open detector episodes are
// flushed, and the final batch is written.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.cancel()
	o.wg.Wait()

	// Close any open episodes before the final flush.
	for _, userID := range o.opts.Windows.Users() {
		o.emitEpisodes(ctx, userID, o.opts.Detectors.Flush(userID))
	}

	if err := o.flushBatch(ctx); err != nil {
		return err
	}
	log.Println("✅ [PIPELINE] Orchestrator stopped, final batch flushed")
	return nil
}

// Ingest processes one sample end to end. It always returns a result: a
// validation failure, an overflow deferral, or a full processing outcome.
func (o *Orchestrator) Ingest(ctx context.Context, sample *models.BiometricSample) *models.ProcessingResult {
	res := o.opts.Validator.Validate(sample)
	if !res.OK {
		if o.opts.Metrics != nil {
			var verr *validation.Error
			field := "unknown"
			if errors.As(res.Err, &verr) {
				field = verr.Field
			}
			o.opts.Metrics.RecordValidationFailure(field)
		}
		return &models.ProcessingResult{Success: false, Error: res.Err.Error()}
	}
	sanitized := res.Sanitized

	if !o.opts.Collector.StartProcessing() {
		return o.deferToOverflow(ctx, sanitized, res.Warnings)
	}

	start := time.Now()
	result := o.process(ctx, sanitized)
	result.Warnings = append(res.Warnings, result.Warnings...)

	latency := time.Since(start)
	if result.Success {
		o.opts.Collector.RecordSuccess(latency)
	} else {
		o.opts.Collector.RecordError(latency)
	}
	if o.opts.Metrics != nil && result.Success {
		o.opts.Metrics.RecordSample(latency.Seconds())
	}
	return result
}

// process runs the post-admission stages for one sanitized sample.
func (o *Orchestrator) process(ctx context.Context, sample *models.BiometricSample) *models.ProcessingResult {
	userID := sample.UserID

	o.opts.Windows.Insert(userID, sample)
	win := o.opts.Windows.All(userID)

	snapshot := o.opts.Calculator.Analyze(userID, win)
	episodes := o.opts.Detectors.Process(sample, win)
	alerts := o.opts.Alerter.Evaluate(sample, snapshot)

	o.appendToBatch(ctx, sample)
	o.emitEpisodes(ctx, userID, episodes)

	logging.WithUser(userID, sample.SessionID).Debug("sample processed",
		"window", len(win), "episodes", len(episodes), "alerts", len(alerts))

	if len(alerts) > 0 {
		if o.opts.Metrics != nil {
			for _, a := range alerts {
				o.opts.Metrics.RecordAlert(a.RuleID)
			}
		}
		if err := o.opts.Sink.InsertAlerts(ctx, alerts); err != nil {
			log.Printf("⚠️ [PIPELINE] Failed to persist alerts for user %s: %v", userID, err)
		}
		if o.opts.Broadcast != nil {
			o.opts.Broadcast.Alerts(ctx, userID, alerts)
		}
	}

	if o.opts.Broadcast != nil {
		o.opts.Broadcast.Snapshot(ctx, userID, snapshot)
	}

	return &models.ProcessingResult{
		Success:         true,
		SanitizedSample: sample,
		Analytics:       snapshot,
		Alerts:          alerts,
	}
}

// deferToOverflow parks a validated sample in the overflow queue. Deferral
// is reported as success: the sample is accepted, its processing is delayed.
// Without an overflow queue the sample is dropped and reported as such.
func (o *Orchestrator) deferToOverflow(ctx context.Context, sample *models.BiometricSample, warnings []string) *models.ProcessingResult {
	o.opts.Collector.RecordOverflow()
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordOverflow()
	}

	if o.opts.Overflow == nil {
		return &models.ProcessingResult{Success: false, Overflowed: true, Error: "pipeline saturated, no overflow queue"}
	}
	if err := o.opts.Overflow.Enqueue(ctx, sample.UserID, sample); err != nil {
		log.Printf("❌ [PIPELINE] Overflow enqueue failed for user %s: %v", sample.UserID, err)
		return &models.ProcessingResult{Success: false, Overflowed: true, Error: err.Error()}
	}

	o.overflowMu.Lock()
	o.overflowUsers[sample.UserID] = true
	o.overflowMu.Unlock()

	return &models.ProcessingResult{
		Success:    true,
		Overflowed: true,
		Warnings:   warnings,
	}
}

// appendToBatch adds a sample to the pending batch and flushes early when
// the batch fills before the ticker fires.
func (o *Orchestrator) appendToBatch(ctx context.Context, sample *models.BiometricSample) {
	o.mu.Lock()
	o.batch = append(o.batch, sample)
	full := len(o.batch) >= o.opts.BatchSize
	o.mu.Unlock()

	if full {
		if err := o.flushBatch(ctx); err != nil {
			log.Printf("⚠️ [PIPELINE] Early flush failed: %v (batch requeued)", err)
		}
	}
}

// emitEpisodes persists and broadcasts detector output.
func (o *Orchestrator) emitEpisodes(ctx context.Context, userID string, episodes []*models.Episode) {
	if len(episodes) == 0 {
		return
	}
	if o.opts.Metrics != nil {
		for _, ep := range episodes {
			o.opts.Metrics.RecordEpisode(string(ep.Type))
		}
	}
	if err := o.opts.Sink.InsertEpisodes(ctx, episodes); err != nil {
		log.Printf("⚠️ [PIPELINE] Failed to persist episodes for user %s: %v", userID, err)
	}
	for _, ep := range episodes {
		logging.WithDetector(logging.WithUser(userID, ep.SessionID), string(ep.Type)).
			Info("episode recorded", "duration", ep.Duration.String())
	}
	if o.opts.Broadcast != nil {
		for _, ep := range episodes {
			o.opts.Broadcast.Episode(ctx, userID, ep)
		}
	}
}

// flushLoop flushes the pending batch on every tick.
func (o *Orchestrator) flushLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			if err := o.flushBatch(context.Background()); err != nil {
				log.Printf("⚠️ [PIPELINE] Batch flush failed: %v (batch requeued)", err)
			}
		}
	}
}

// flushBatch swaps the batch out under the lock, then writes it without
// holding the lock. A failed write requeues the batch at the head, ahead of
// samples that arrived during the flush: at-least-once, order preserved.
func (o *Orchestrator) flushBatch(ctx context.Context) error {
	o.mu.Lock()
	if len(o.batch) == 0 {
		o.mu.Unlock()
		return nil
	}
	pending := o.batch
	o.batch = make([]*models.BiometricSample, 0, o.opts.BatchSize)
	o.mu.Unlock()

	err := o.opts.Sink.AppendBatch(ctx, pending)
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordFlush(err == nil)
	}
	if err != nil {
		o.mu.Lock()
		o.batch = append(pending, o.batch...)
		o.mu.Unlock()
		return err
	}
	return nil
}

// drainLoop feeds overflowed samples back through the pipeline whenever the
// admission budget has headroom.
func (o *Orchestrator) drainLoop() {
	defer o.wg.Done()
	if o.opts.Overflow == nil {
		return
	}
	ticker := time.NewTicker(o.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.drainOverflow(context.Background())
		}
	}
}

// drainOverflow pops deferred samples while capacity lasts. Each drained
// sample re-enters through the normal admission path.
func (o *Orchestrator) drainOverflow(ctx context.Context) {
	o.overflowMu.Lock()
	users := make([]string, 0, len(o.overflowUsers))
	for id := range o.overflowUsers {
		users = append(users, id)
	}
	o.overflowMu.Unlock()

	for _, userID := range users {
		for o.opts.Collector.CanProcess() {
			sample, err := o.opts.Overflow.Dequeue(ctx, userID)
			if err != nil {
				if !errors.Is(err, services.ErrOverflowEmpty) {
					log.Printf("⚠️ [PIPELINE] Overflow dequeue failed for user %s: %v", userID, err)
				}
				o.overflowMu.Lock()
				delete(o.overflowUsers, userID)
				o.overflowMu.Unlock()
				break
			}

			if !o.opts.Collector.StartProcessing() {
				// Lost the race for the slot; put the sample back.
				if reErr := o.opts.Overflow.Enqueue(ctx, userID, sample); reErr != nil {
					log.Printf("❌ [PIPELINE] Failed to requeue drained sample for user %s: %v", userID, reErr)
				}
				return
			}

			start := time.Now()
			result := o.process(ctx, sample)
			if result.Success {
				o.opts.Collector.RecordSuccess(time.Since(start))
			} else {
				o.opts.Collector.RecordError(time.Since(start))
			}
		}
	}
}

// CurrentAnalytics returns the cached snapshot for a user, recomputing from
// the window when the cache has expired. Returns nil for an unknown or
// empty-window user.
func (o *Orchestrator) CurrentAnalytics(userID string) *models.AnalyticsSnapshot {
	if snap := o.opts.Calculator.CurrentAnalytics(userID); snap != nil {
		return snap
	}
	win := o.opts.Windows.All(userID)
	if len(win) == 0 {
		return nil
	}
	return o.opts.Calculator.Analyze(userID, win)
}

// PatternsReport is the historical view served by the patterns endpoint:
// durable episodes plus behavioral analysis over the retained window.
type PatternsReport struct {
	UserID            string                          `json:"user_id"`
	From              time.Time                       `json:"from"`
	To                time.Time                       `json:"to"`
	Episodes          []*models.Episode               `json:"episodes"`
	ContextSwitching  *models.ContextSwitchReport     `json:"context_switching,omitempty"`
	ExecutiveFunction *models.ExecutiveFunctionReport `json:"executive_function,omitempty"`
}

// HistoricalPatterns combines stored episodes in [from, to) with behavioral
// reports computed from the live window.
func (o *Orchestrator) HistoricalPatterns(ctx context.Context, userID string, from, to time.Time) (*PatternsReport, error) {
	episodes, err := o.opts.Sink.EpisodesInRange(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	report := &PatternsReport{
		UserID:   userID,
		From:     from,
		To:       to,
		Episodes: episodes,
	}

	win := o.opts.Windows.All(userID)
	if len(win) > 0 {
		if o.opts.ContextSwitches != nil {
			cs := o.opts.ContextSwitches.Analyze(userID, win)
			report.ContextSwitching = &cs
		}
		if o.opts.ExecutiveFunction != nil {
			ef := o.opts.ExecutiveFunction.Analyze(userID, win)
			report.ExecutiveFunction = &ef
		}
	}
	return report, nil
}

// Embedding renders the user's retained window as a fixed-width cognitive
// state vector for downstream model training.
func (o *Orchestrator) Embedding(userID string) []float32 {
	return embeddings.Build(o.opts.Windows.All(userID))
}

// Stats exposes the collector snapshot for the health endpoint.
func (o *Orchestrator) Stats() collector.Stats {
	return o.opts.Collector.Snapshot()
}

// Health exposes the scored health report.
func (o *Orchestrator) Health() collector.Health {
	return o.opts.Collector.Health()
}
