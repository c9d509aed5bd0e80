package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()

	b := New(Config{Threshold: 3, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if !b.Allow() {
			t.Fatalf("breaker open after %d failures, threshold is 3", i+1)
		}
	}

	b.RecordFailure()
	if b.Allow() {
		t.Error("breaker should be open after reaching threshold")
	}
	if b.State() != Open {
		t.Errorf("state = %v, want open", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	t.Parallel()

	b := New(Config{Threshold: 1, Cooldown: 10 * time.Millisecond})
	b.RecordFailure()

	if b.Allow() {
		t.Fatal("breaker should be open immediately after failure")
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("breaker should allow a probe after cooldown")
	}
	if b.State() != HalfOpen {
		t.Errorf("state = %v, want half-open", b.State())
	}

	// Probe failure reopens immediately.
	b.RecordFailure()
	if b.Allow() {
		t.Error("breaker should reopen after a failed probe")
	}
}

func TestBreakerRecovers(t *testing.T) {
	t.Parallel()

	b := New(Config{Threshold: 1, Cooldown: 10 * time.Millisecond})
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected probe to be allowed")
	}
	b.RecordSuccess()

	if b.State() != Closed {
		t.Errorf("state = %v, want closed after successful probe", b.State())
	}
	if b.Failures() != 0 {
		t.Errorf("failures = %d, want 0 after success", b.Failures())
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Config{Threshold: 1, Cooldown: time.Minute})

	a := r.Get("platform.example.org")
	if got := r.Get("platform.example.org"); got != a {
		t.Error("Get should return the same breaker for the same key")
	}

	a.RecordFailure()
	r.Get("gui.localhost").RecordSuccess()

	stats := r.Stats()
	if stats.Total != 2 || stats.Open != 1 || stats.Closed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
