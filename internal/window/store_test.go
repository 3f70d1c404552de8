package window

import (
	"fmt"
	"testing"
	"time"

	"nexispulse/internal/models"
)

func sampleAt(userID string, ts time.Time) *models.BiometricSample {
	return &models.BiometricSample{
		UserID:    userID,
		SessionID: "s",
		Timestamp: ts,
		HeartRate: 70,
	}
}

func TestStore_PrunesExpiredSamples(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	now := base
	s := NewStore(5 * time.Minute)
	s.SetClock(func() time.Time { return now })

	// Fill 10 minutes of 30s-spaced samples, advancing the clock as we go.
	for i := 0; i < 20; i++ {
		now = base.Add(time.Duration(i) * 30 * time.Second)
		s.Insert("u1", sampleAt("u1", now))
	}

	retained := s.All("u1")
	cutoff := now.Add(-5 * time.Minute)
	for _, sample := range retained {
		if !sample.Timestamp.After(cutoff) {
			t.Errorf("retained sample at %v is older than window cutoff %v", sample.Timestamp, cutoff)
		}
	}
	// 30s spacing over 5 minutes leaves at most 10 samples.
	if len(retained) > 10 {
		t.Errorf("window retained %d samples, want <= 10", len(retained))
	}
}

func TestStore_LateStaleSampleNotRetained(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s := NewStore(5 * time.Minute)
	s.SetClock(func() time.Time { return now })

	// A fresh sample, then a late arrival from an hour ago. Clock-skew
	// validation admits day-old timestamps, so the window has to filter them.
	s.Insert("u1", sampleAt("u1", now))
	s.Insert("u1", sampleAt("u1", now.Add(-time.Hour)))

	retained := s.All("u1")
	if len(retained) != 1 {
		t.Fatalf("retained %d samples, want 1", len(retained))
	}
	cutoff := now.Add(-5 * time.Minute)
	for _, sample := range retained {
		if !sample.Timestamp.After(cutoff) {
			t.Errorf("retained sample at %v is older than window cutoff %v", sample.Timestamp, cutoff)
		}
	}

	// An out-of-order but still-fresh sample stays.
	s.Insert("u1", sampleAt("u1", now.Add(-time.Minute)))
	if got := s.Count("u1"); got != 2 {
		t.Errorf("count = %d after fresh out-of-order insert, want 2", got)
	}
}

func TestStore_AllReturnsCopy(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s := NewStore(5 * time.Minute)
	s.SetClock(func() time.Time { return now })

	s.Insert("u1", sampleAt("u1", now))
	first := s.All("u1")
	first[0] = nil

	if got := s.All("u1"); got[0] == nil {
		t.Error("mutating the returned slice affected the store")
	}
}

func TestStore_Recent(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	now := base
	s := NewStore(5 * time.Minute)
	s.SetClock(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		now = base.Add(time.Duration(i) * time.Minute)
		s.Insert("u1", sampleAt("u1", now))
	}

	// Minute-spaced samples ending at the current clock: 90s covers the
	// last two.
	recent := s.Recent("u1", 90*time.Second)
	if len(recent) != 2 {
		t.Errorf("Recent(90s) returned %d samples, want 2", len(recent))
	}
}

func TestStore_UsersIsolated(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s := NewStore(5 * time.Minute)
	s.SetClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		s.Insert(fmt.Sprintf("u%d", i), sampleAt(fmt.Sprintf("u%d", i), now))
	}
	s.Insert("u0", sampleAt("u0", now))

	if got := s.Count("u0"); got != 2 {
		t.Errorf("u0 count = %d, want 2", got)
	}
	if got := s.Count("u1"); got != 1 {
		t.Errorf("u1 count = %d, want 1", got)
	}
	if got := len(s.Users()); got != 3 {
		t.Errorf("Users() = %d, want 3", got)
	}
}

func TestStore_EvictIdle(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	now := base
	s := NewStore(5 * time.Minute)
	s.SetClock(func() time.Time { return now })

	s.Insert("stale", sampleAt("stale", now))
	now = base.Add(40 * time.Minute)
	s.Insert("fresh", sampleAt("fresh", now))

	if evicted := s.EvictIdle(30 * time.Minute); evicted != 1 {
		t.Errorf("EvictIdle = %d, want 1", evicted)
	}
	users := s.Users()
	if len(users) != 1 || users[0] != "fresh" {
		t.Errorf("remaining users = %v, want [fresh]", users)
	}
}
