package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func tripConfig() Config {
	config := DefaultConfig()
	config.FailureThreshold = 2
	config.SuccessThreshold = 1
	config.MaxRequests = 1
	config.Timeout = 50 * time.Millisecond
	config.Interval = 0
	return config
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("llm", tripConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	if cb.IsOpen() {
		t.Fatal("new breaker should be closed")
	}

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func() error { return errors.New("upstream 500") }); err == nil {
			t.Fatal("expected the function error to be returned")
		}
	}
	if !cb.IsOpen() {
		t.Fatalf("expected open after threshold, got %s", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if err != ErrCircuitBreakerOpen || called {
		t.Fatalf("open breaker must reject without calling, err=%v called=%v", err, called)
	}

	time.Sleep(70 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", cb.State())
	}
	if err := cb.Execute(ctx, func() error { return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("search", tripConfig(), zaptest.NewLogger(t))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func() error { return errors.New("boom") })
	}
	time.Sleep(70 * time.Millisecond)

	_ = cb.Execute(ctx, func() error { return errors.New("still down") })
	if !cb.IsOpen() {
		t.Fatalf("failed probe should reopen, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenLimit(t *testing.T) {
	config := tripConfig()
	config.SuccessThreshold = 10
	config.MaxRequests = 2
	cb := NewCircuitBreaker("search", config, zaptest.NewLogger(t))
	ctx := context.Background()

	cb.mutex.Lock()
	cb.state = StateHalfOpen
	cb.generation++
	cb.counts = Counts{}
	cb.mutex.Unlock()

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func() error { return nil }); err != nil {
			t.Fatalf("request %d rejected: %v", i, err)
		}
	}
	if err := cb.Execute(ctx, func() error { return nil }); err != ErrTooManyRequests {
		t.Fatalf("expected ErrTooManyRequests, got %v", err)
	}
}

func TestCircuitBreakerIgnoresCallerCancellation(t *testing.T) {
	cb := NewCircuitBreaker("llm", tripConfig(), zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		err := cb.Execute(ctx, func() error {
			cancel()
			return context.Canceled
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	}
	if cb.IsOpen() {
		t.Fatal("client disconnects must not trip the breaker")
	}
	if got := cb.Counts().TotalFailures; got != 0 {
		t.Fatalf("expected no failures recorded, got %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	if err := cb.Execute(ctx, func() error { called = true; return nil }); !errors.Is(err, context.Canceled) || called {
		t.Fatalf("cancelled context should short-circuit, err=%v called=%v", err, called)
	}
}

func TestStateChangeCallback(t *testing.T) {
	config := tripConfig()
	var transitions []State
	config.OnStateChange = func(name string, from State, to State) {
		if name != "cb" {
			t.Errorf("unexpected name %q", name)
		}
		transitions = append(transitions, to)
	}
	cb := NewCircuitBreaker("cb", config, zaptest.NewLogger(t))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func() error { return errors.New("x") })
	}
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Fatalf("expected single transition to open, got %v", transitions)
	}
}

func TestHTTPWrapperCounts5xxAsFailure(t *testing.T) {
	t.Setenv("CB_FLAKY_FAILURE_THRESHOLD", "2")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hw := NewHTTPWrapper(srv.Client(), "flaky-test", "flaky", zaptest.NewLogger(t))
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := hw.Do(req)
		if err != nil {
			t.Fatalf("5xx should be returned to caller, got err %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("unexpected status %d", resp.StatusCode)
		}
	}
	if !hw.Breaker().IsOpen() {
		t.Fatal("expected breaker open after repeated 5xx")
	}
	if cb, ok := GlobalMetricsCollector.Lookup("flaky-test"); !ok || cb != hw.Breaker() {
		t.Fatal("breaker should be registered by name")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := hw.Do(req); err != ErrCircuitBreakerOpen {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestHTTPWrapperIgnores4xx(t *testing.T) {
	t.Setenv("CB_PICKY_FAILURE_THRESHOLD", "1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	hw := NewHTTPWrapper(srv.Client(), "picky-test", "picky", zaptest.NewLogger(t))
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := hw.Do(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()
	}
	if hw.Breaker().IsOpen() {
		t.Fatal("4xx must not trip the breaker")
	}
}
