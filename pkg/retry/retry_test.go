package retry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxlink/voxlink/pkg/retry"
)

func TestConfig_DelayCurve(t *testing.T) {
	cfg := retry.Config{
		MaxRetries:    10,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
	}
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second, // capped
		10 * time.Second,
	}
	for attempt, w := range want {
		if got := cfg.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestConfig_DelayDefaults(t *testing.T) {
	var cfg retry.Config
	if got := cfg.Delay(0); got != time.Second {
		t.Errorf("zero-value Delay(0) = %v, want 1s", got)
	}
	if got := cfg.Delay(100); got != 10*time.Second {
		t.Errorf("zero-value Delay(100) = %v, want cap 10s", got)
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	cfg := retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}

	calls := 0
	var retries []int
	got, err := retry.Do(context.Background(), cfg, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}, func(attempt int, _ time.Duration) {
		retries = append(retries, attempt)
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("onRetry attempts = %v, want [1 2]", retries)
	}
}

func TestDo_Exhaustion(t *testing.T) {
	cfg := retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}

	sentinel := errors.New("still down")
	calls := 0
	_, err := retry.Do(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, sentinel
	}, nil)
	if err == nil {
		t.Fatal("expected failure after exhaustion")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("error %v should wrap the last op error", err)
	}
	if calls != 3 { // initial try + 2 retries
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestDo_ContextCancel(t *testing.T) {
	cfg := retry.Config{MaxRetries: 5, InitialDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := retry.Do(ctx, cfg, func(context.Context) (int, error) {
			return 0, errors.New("always fails")
		}, nil)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestCheckReachability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable) // any status counts
	}))
	defer srv.Close()

	if !retry.CheckReachability(context.Background(), srv.Client(), srv.URL) {
		t.Error("live server should be reachable regardless of status")
	}

	srv.Close()
	if retry.CheckReachability(context.Background(), srv.Client(), srv.URL) {
		t.Error("closed server should be unreachable")
	}
}

func TestDialWebSocket_RefusedEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Nothing is listening here; dial must fail, not hang.
	_, err := retry.DialWebSocket(ctx, "ws://127.0.0.1:1/ws", nil)
	if err == nil {
		t.Fatal("expected dial error")
	}
}
