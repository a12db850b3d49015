package breaker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testGate(threshold int, cooldown time.Duration) (*Gate, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := New(threshold, cooldown, zerolog.Nop())
	g.now = func() time.Time { return now }
	return g, &now
}

func TestGate_AllowsHealthyOrigin(t *testing.T) {
	g, _ := testGate(3, time.Minute)

	if !g.Allow("origin-a:80") {
		t.Error("Unknown origin should be allowed")
	}

	g.RecordFailure("origin-a:80")
	g.RecordFailure("origin-a:80")
	if !g.Allow("origin-a:80") {
		t.Error("Origin below threshold should be allowed")
	}
}

func TestGate_OpensAfterThreshold(t *testing.T) {
	g, _ := testGate(3, time.Minute)

	for i := 0; i < 3; i++ {
		g.RecordFailure("origin-a:80")
	}

	if g.Allow("origin-a:80") {
		t.Error("Origin at threshold should be suspended")
	}

	// Other origins are unaffected.
	if !g.Allow("origin-b:80") {
		t.Error("Unrelated origin should be allowed")
	}
}

func TestGate_ProbeAfterCooldown(t *testing.T) {
	g, now := testGate(3, time.Minute)

	for i := 0; i < 3; i++ {
		g.RecordFailure("origin-a:80")
	}

	*now = now.Add(time.Minute)
	if !g.Allow("origin-a:80") {
		t.Fatal("Probe should be allowed after cooldown")
	}

	// The probe re-arms the window: a second caller right behind it is
	// still blocked.
	if g.Allow("origin-a:80") {
		t.Error("Second caller during probe should be blocked")
	}
}

func TestGate_SuccessCloses(t *testing.T) {
	g, now := testGate(3, time.Minute)

	for i := 0; i < 3; i++ {
		g.RecordFailure("origin-a:80")
	}
	*now = now.Add(time.Minute)
	g.Allow("origin-a:80") // probe
	g.RecordSuccess("origin-a:80")

	if !g.Allow("origin-a:80") {
		t.Error("Origin should be allowed after successful probe")
	}
}

func TestGate_FailedProbeReopens(t *testing.T) {
	g, now := testGate(3, time.Minute)

	for i := 0; i < 3; i++ {
		g.RecordFailure("origin-a:80")
	}
	*now = now.Add(time.Minute)
	g.Allow("origin-a:80") // probe
	g.RecordFailure("origin-a:80")

	*now = now.Add(30 * time.Second)
	if g.Allow("origin-a:80") {
		t.Error("Origin should stay suspended after failed probe")
	}
}
