package window

import (
	"sync"
	"time"

	"nexispulse/internal/models"
)

// Window is the time-bounded retained history of samples for one user.
// Order is insertion order; recency filtering happens on insert, not sort.
// A single user's window serializes inserts (single writer); different
// users' windows are mutated concurrently without coordination.
type Window struct {
	mu      sync.Mutex
	samples []*models.BiometricSample
	lastUse time.Time
}

// Store maintains per-user sliding windows.
type Store struct {
	mu         sync.RWMutex
	windows    map[string]*Window
	windowSize time.Duration
	now        func() time.Time
}

// NewStore creates a sliding window store with the given retention.
func NewStore(windowSize time.Duration) *Store {
	return &Store{
		windows:    make(map[string]*Window),
		windowSize: windowSize,
		now:        time.Now,
	}
}

// SetClock overrides the store's clock. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// WindowSize returns the configured retention.
func (s *Store) WindowSize() time.Duration {
	return s.windowSize
}

// windowFor lazily creates an empty window on first access.
func (s *Store) windowFor(userID string) *Window {
	s.mu.RLock()
	w, ok := s.windows[userID]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[userID]; ok {
		return w
	}
	w = &Window{lastUse: s.now()}
	s.windows[userID] = w
	return w
}

// Insert appends a sample to the user's window and prunes everything older
// than windowSize. Amortized O(1) for in-order streams: pruning advances an
// index over an append-only slice. Out-of-order arrivals pay a full filter.
func (s *Store) Insert(userID string, sample *models.BiometricSample) {
	w := s.windowFor(userID)
	now := s.now()
	cutoff := now.Add(-s.windowSize)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, sample)
	w.lastUse = now

	// An out-of-order arrival can place an expired sample anywhere, not just
	// at the head: filter the whole window so All never serves stale data.
	if n := len(w.samples); n >= 2 && sample.Timestamp.Before(w.samples[n-2].Timestamp) {
		kept := make([]*models.BiometricSample, 0, n)
		for _, s := range w.samples {
			if s.Timestamp.After(cutoff) {
				kept = append(kept, s)
			}
		}
		w.samples = kept
		return
	}

	// Drop expired prefix. Samples are monotonic per user in the common case,
	// so this walks only the stale head.
	i := 0
	for i < len(w.samples) && !w.samples[i].Timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		// Reallocate rather than reslice so the expired backing array can be
		// collected.
		kept := make([]*models.BiometricSample, len(w.samples)-i)
		copy(kept, w.samples[i:])
		w.samples = kept
	}
}

// All returns the user's retained samples in insertion order. The returned
// slice is a copy; callers may read it without holding any lock.
func (s *Store) All(userID string) []*models.BiometricSample {
	w := s.windowFor(userID)

	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]*models.BiometricSample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Recent returns the user's samples from the last d, in insertion order.
func (s *Store) Recent(userID string, d time.Duration) []*models.BiometricSample {
	w := s.windowFor(userID)
	cutoff := s.now().Add(-d)

	w.mu.Lock()
	defer w.mu.Unlock()

	var out []*models.BiometricSample
	for _, sample := range w.samples {
		if sample.Timestamp.After(cutoff) {
			out = append(out, sample)
		}
	}
	return out
}

// Count returns the number of retained samples for a user.
func (s *Store) Count(userID string) int {
	w := s.windowFor(userID)
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Users returns all user IDs with a window, active or not.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.windows))
	for id := range s.windows {
		users = append(users, id)
	}
	return users
}

// EvictIdle removes windows not touched for at least idle. Returns how many
// were evicted. Used by the background cleanup job.
func (s *Store) EvictIdle(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, w := range s.windows {
		w.mu.Lock()
		stale := w.lastUse.Before(cutoff)
		w.mu.Unlock()
		if stale {
			delete(s.windows, id)
			evicted++
		}
	}
	return evicted
}
