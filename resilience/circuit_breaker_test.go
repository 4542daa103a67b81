package resilience

import (
	"testing"
	"time"
)

func newTestBreaker(threshold int, timeout time.Duration, clock *fakeClock) *EndpointBreaker {
	b := CreateEndpointBreaker(EndpointBreakerConfig{
		FailureThreshold: threshold,
		Timeout:          timeout,
	})
	b.now = clock.Now
	return b
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(3, 30*time.Second, clock)

	for i := 0; i < 2; i++ {
		b.RecordFailure("ep1")
		if !b.CanExecute("ep1") {
			t.Fatalf("breaker should stay closed after %d failures", i+1)
		}
	}

	b.RecordFailure("ep1")
	if b.State("ep1") != CircuitOpen {
		t.Errorf("expected open after 3 failures, got %v", b.State("ep1"))
	}
	if b.CanExecute("ep1") {
		t.Error("open breaker should reject execution")
	}
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(1, 30*time.Second, clock)

	b.RecordFailure("ep1")
	if b.CanExecute("ep1") {
		t.Fatal("breaker should be open")
	}

	clock.Advance(29 * time.Second)
	if b.CanExecute("ep1") {
		t.Error("breaker should still be open before the timeout elapses")
	}

	clock.Advance(2 * time.Second)
	if !b.CanExecute("ep1") {
		t.Fatal("breaker should allow a probe after the timeout")
	}
	if b.State("ep1") != CircuitHalfOpen {
		t.Errorf("expected half-open, got %v", b.State("ep1"))
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(1, 10*time.Second, clock)

	b.RecordFailure("ep1")
	clock.Advance(11 * time.Second)

	if !b.CanExecute("ep1") {
		t.Fatal("first probe should be allowed")
	}
	if b.CanExecute("ep1") {
		t.Error("second concurrent probe should be rejected while the first is in flight")
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(1, 10*time.Second, clock)

	b.RecordFailure("ep1")
	clock.Advance(11 * time.Second)
	b.CanExecute("ep1")

	b.RecordSuccess("ep1")
	if b.State("ep1") != CircuitClosed {
		t.Errorf("expected closed after probe success, got %v", b.State("ep1"))
	}
	if !b.CanExecute("ep1") {
		t.Error("closed breaker should allow execution")
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(1, 10*time.Second, clock)

	b.RecordFailure("ep1")
	clock.Advance(11 * time.Second)
	b.CanExecute("ep1")

	b.RecordFailure("ep1")
	if b.State("ep1") != CircuitOpen {
		t.Errorf("expected reopen after probe failure, got %v", b.State("ep1"))
	}

	clock.Advance(5 * time.Second)
	if b.CanExecute("ep1") {
		t.Error("reopened breaker should wait out a fresh timeout")
	}
	clock.Advance(6 * time.Second)
	if !b.CanExecute("ep1") {
		t.Error("reopened breaker should probe again after the fresh timeout")
	}
}

func TestBreakerEndpointsAreIndependent(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(1, 10*time.Second, clock)

	b.RecordFailure("ep1")
	if b.CanExecute("ep1") {
		t.Error("ep1 should be open")
	}
	if !b.CanExecute("ep2") {
		t.Error("ep2 should be unaffected by ep1 failures")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	clock := &fakeClock{current: time.Unix(1000, 0)}
	b := newTestBreaker(3, 10*time.Second, clock)

	b.RecordFailure("ep1")
	b.RecordFailure("ep1")
	b.RecordSuccess("ep1")
	b.RecordFailure("ep1")
	b.RecordFailure("ep1")

	if b.State("ep1") != CircuitClosed {
		t.Errorf("failure count should reset on success, got %v", b.State("ep1"))
	}
}
