package validation

import (
	"strings"
	"testing"
	"time"

	"nexispulse/internal/models"
)

func fixedClock() time.Time {
	return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
}

func validSample() *models.BiometricSample {
	return &models.BiometricSample{
		Timestamp:      fixedClock(),
		UserID:         "user-1",
		SessionID:      "session-1",
		HeartRate:      72,
		HRV:            55,
		CognitiveLoad:  60,
		AttentionLevel: 70,
		StressLevel:    40,
	}
}

func newTestValidator(strict bool) *Validator {
	v := NewValidator(strict)
	v.SetClock(fixedClock)
	return v
}

func TestValidator_AcceptsValidSample(t *testing.T) {
	v := newTestValidator(false)
	res := v.Validate(validSample())
	if !res.OK {
		t.Fatalf("expected valid sample to pass, got %v", res.Err)
	}
	if res.Sanitized == nil {
		t.Fatal("expected sanitized copy on success")
	}
}

func TestValidator_RejectsOutOfRangeHeartRate(t *testing.T) {
	v := newTestValidator(false)
	s := validSample()
	s.HeartRate = 260

	res := v.Validate(s)
	if res.OK {
		t.Fatal("expected rejection for heart rate 260")
	}
	if !strings.Contains(res.Err.Error(), "heartRate") {
		t.Errorf("error should name the field, got %q", res.Err.Error())
	}
}

func TestValidator_RejectsMissingIdentity(t *testing.T) {
	v := newTestValidator(false)

	s := validSample()
	s.UserID = ""
	if res := v.Validate(s); res.OK {
		t.Error("expected rejection for missing userId")
	}

	s = validSample()
	s.SessionID = ""
	if res := v.Validate(s); res.OK {
		t.Error("expected rejection for missing sessionId")
	}

	if res := v.Validate(nil); res.OK {
		t.Error("expected rejection for nil sample")
	}
}

func TestValidator_RejectsClockSkew(t *testing.T) {
	v := newTestValidator(false)

	s := validSample()
	s.Timestamp = fixedClock().Add(2 * time.Minute)
	if res := v.Validate(s); res.OK {
		t.Error("expected rejection for timestamp 2m in the future")
	}

	s = validSample()
	s.Timestamp = fixedClock().Add(-25 * time.Hour)
	if res := v.Validate(s); res.OK {
		t.Error("expected rejection for timestamp 25h in the past")
	}

	// Within the tolerances both directions pass.
	s = validSample()
	s.Timestamp = fixedClock().Add(30 * time.Second)
	if res := v.Validate(s); !res.OK {
		t.Errorf("expected 30s future skew to pass, got %v", res.Err)
	}
}

func TestValidator_DoesNotMutateInput(t *testing.T) {
	v := newTestValidator(false)
	s := validSample()
	s.SkinTemperature = 50 // will be clamped in the copy
	s.Metadata = map[string]string{"source": "watch", "secret": "x"}

	res := v.Validate(s)
	if !res.OK {
		t.Fatalf("unexpected rejection: %v", res.Err)
	}

	if s.SkinTemperature != 50 {
		t.Error("input sample was mutated")
	}
	if _, ok := s.Metadata["secret"]; !ok {
		t.Error("input metadata was mutated")
	}
	if res.Sanitized.SkinTemperature != MaxSkinTemperature {
		t.Errorf("sanitized skin temperature = %.1f, want %.1f", res.Sanitized.SkinTemperature, MaxSkinTemperature)
	}
}

func TestValidator_SanitizeIdempotent(t *testing.T) {
	v := newTestValidator(false)
	s := validSample()
	s.SkinTemperature = 50
	sound := 200.0
	s.EnvironmentalSound = &sound
	s.Metadata = map[string]string{
		"source": "watch",
		"debug":  "dropped",
		"battery": strings.Repeat("9", 300),
	}

	once := v.Sanitize(s)
	twice := v.Sanitize(once)

	if once.SkinTemperature != twice.SkinTemperature {
		t.Error("skin temperature changed on second sanitize")
	}
	if *once.EnvironmentalSound != *twice.EnvironmentalSound {
		t.Error("environmental sound changed on second sanitize")
	}
	if len(once.Metadata) != len(twice.Metadata) {
		t.Errorf("metadata changed on second sanitize: %v vs %v", once.Metadata, twice.Metadata)
	}
}

func TestValidator_MetadataAllowList(t *testing.T) {
	v := newTestValidator(false)
	s := validSample()
	s.Metadata = map[string]string{
		"source":  "watch",
		"posture": "sitting",
		"debug":   "internal",
		"battery": strings.Repeat("x", 300),
	}

	out := v.Sanitize(s)
	if _, ok := out.Metadata["debug"]; ok {
		t.Error("disallowed metadata key survived sanitize")
	}
	if out.Metadata["source"] != "watch" || out.Metadata["posture"] != "sitting" {
		t.Errorf("allowed keys should survive, got %v", out.Metadata)
	}
	if len(out.Metadata["battery"]) != MaxMetadataValueLen {
		t.Errorf("long value should be truncated to %d, got %d", MaxMetadataValueLen, len(out.Metadata["battery"]))
	}
}

func TestValidator_PlausibilityLenientWarnsStrictRejects(t *testing.T) {
	// High stress with a low heart rate is physiologically contradictory.
	s := validSample()
	s.StressLevel = 90
	s.HeartRate = 50

	lenient := newTestValidator(false)
	res := lenient.Validate(s)
	if !res.OK {
		t.Fatalf("lenient mode should accept with warnings, got %v", res.Err)
	}
	if len(res.Warnings) == 0 {
		t.Error("lenient mode should attach a plausibility warning")
	}

	strict := newTestValidator(true)
	if res := strict.Validate(s); res.OK {
		t.Error("strict mode should reject contradictory readings")
	}
}
