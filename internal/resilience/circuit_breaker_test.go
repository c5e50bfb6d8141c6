package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openBreaker(cb *CircuitBreaker, failures int) {
	for i := 0; i < failures; i++ {
		cb.RecordResult(false)
	}
}

func TestCircuitBreaker_StateClosed(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state to be Closed, got %s", cb.GetState())
	}

	if !cb.allowRequest() {
		t.Error("Expected to allow request in Closed state")
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	openBreaker(cb, 2)
	if cb.GetState() != StateClosed {
		t.Error("Expected state to still be Closed after 2 failures")
	}

	// Third failure should open circuit
	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after 3 failures")
	}

	if cb.allowRequest() {
		t.Error("Expected to not allow request in Open state")
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 50*time.Millisecond)
	openBreaker(cb, 3)

	if cb.GetState() != StateOpen {
		t.Fatal("Expected circuit to be Open")
	}

	time.Sleep(80 * time.Millisecond)

	if !cb.allowRequest() {
		t.Error("Expected to allow request after timeout (HalfOpen)")
	}

	state, _, _, _ := cb.GetStats()
	if state != StateHalfOpen {
		t.Errorf("Expected state to be HalfOpen, got %s", state)
	}

	// Half-open admits a limited number of probes
	cb.allowRequest()
	cb.allowRequest()
	if cb.allowRequest() {
		t.Error("Expected half-open probe limit to be enforced")
	}
}

func TestCircuitBreaker_CloseAfterSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 50*time.Millisecond)
	openBreaker(cb, 3)

	time.Sleep(80 * time.Millisecond)
	if !cb.allowRequest() {
		t.Fatal("Expected transition to HalfOpen")
	}

	for i := 0; i < 3; i++ {
		cb.RecordResult(true)
	}

	if cb.GetState() != StateClosed {
		t.Error("Expected state to be Closed after successes in HalfOpen")
	}
}

func TestCircuitBreaker_OpenAfterFailureInHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 50*time.Millisecond)
	openBreaker(cb, 3)

	time.Sleep(80 * time.Millisecond)
	if !cb.allowRequest() {
		t.Fatal("Expected transition to HalfOpen")
	}

	cb.RecordResult(false)

	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after failure in HalfOpen")
	}
}

func TestCircuitBreaker_Call(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	err := cb.Call(func() error {
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	err = cb.Call(func() error {
		return errors.New("test error")
	})
	if err == nil {
		t.Error("Expected error from failed call")
	}
}

func TestCircuitBreaker_CallOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 1*time.Second)
	cb.RecordResult(false)

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Function should not run while circuit is open")
	}
}

func TestCircuitBreaker_CancellationNotCounted(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 1*time.Second)

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Error("Caller cancellation should not open the circuit")
	}
}

func TestCircuitBreaker_FailurePredicate(t *testing.T) {
	errClient := errors.New("bad request")
	cb := NewCircuitBreaker("test", 1, 1*time.Second).WithFailurePredicate(func(err error) bool {
		return err != nil && !errors.Is(err, errClient)
	})

	_ = cb.Call(func() error { return errClient })
	if cb.GetState() != StateClosed {
		t.Error("Filtered error should not open the circuit")
	}

	_ = cb.Call(func() error { return errors.New("server error") })
	if cb.GetState() != StateOpen {
		t.Error("Counted error should open the circuit")
	}

	healthy, err := cb.Healthy(context.Background())
	if healthy || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected unhealthy open breaker, got %v, %v", healthy, err)
	}
	if want := "test: circuit breaker is open (1 of 2 requests failed)"; err == nil || err.Error() != want {
		t.Errorf("Expected %q, got %v", want, err)
	}
}

func TestCircuitBreaker_GetStats(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1*time.Second)

	cb.RecordResult(true)
	cb.RecordResult(true)
	cb.RecordResult(false)

	state, requestCount, failureCount, failureRate := cb.GetStats()

	if state != StateClosed {
		t.Errorf("Expected state Closed, got %s", state)
	}
	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}
	if failureCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failureCount)
	}
	if failureRate < 33.0 || failureRate > 34.0 {
		t.Errorf("Expected failure rate around 33.33%%, got %.2f%%", failureRate)
	}
}
