package resilience

import (
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestCircuitBreakerOpensAfterThresholdFailures(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := New("test", 2, 2, time.Minute, 30*time.Second, WithClock(clk))

	cb.RecordFailure()
	if cb.GetState() != StateClosed {
		t.Fatalf("state = %v after 1 failure, want closed", cb.GetState())
	}
	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v after 2 failures, want open", cb.GetState())
	}
}

func TestCircuitBreakerStaysClosedBelowMinAttempts(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := New("test", 1, 5, time.Minute, 30*time.Second, WithClock(clk))

	cb.RecordFailure()
	if cb.GetState() != StateClosed {
		t.Fatalf("state = %v, want closed (below minAttempts)", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := New("test", 1, 1, time.Minute, 30*time.Second, WithClock(clk))

	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}
	if cb.AllowRequest() {
		t.Fatal("expected AllowRequest to refuse while open")
	}

	clk.advance(31 * time.Second)
	if !cb.AllowRequest() {
		t.Fatal("expected AllowRequest to allow after reset timeout (half-open probe)")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := New("test", 1, 1, time.Minute, 30*time.Second, WithClock(clk))
	cb.RecordFailure()
	clk.advance(31 * time.Second)
	cb.AllowRequest() // transitions to half-open

	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open after half-open failure", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := New("test", 1, 1, time.Minute, 30*time.Second, WithClock(clk), WithHalfOpenSuccessThreshold(2))
	cb.RecordFailure()
	clk.advance(31 * time.Second)
	cb.AllowRequest()

	cb.RecordSuccess()
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("state = %v after 1 success, want still half-open", cb.GetState())
	}
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Fatalf("state = %v after 2 successes, want closed", cb.GetState())
	}
}

func TestCircuitBreakerSlidingWindowPrunesOldFailures(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := New("test", 2, 2, 10*time.Second, 30*time.Second, WithClock(clk))

	cb.RecordFailure()
	clk.advance(11 * time.Second) // outside the window now
	cb.RecordFailure()

	if cb.GetState() != StateClosed {
		t.Fatalf("state = %v, want closed (first failure should have aged out of the window)", cb.GetState())
	}
}
