// Package retry provides the reusable retry-with-backoff wrapper shared by
// the WebSocket, SSE, and REST layers, plus connection helpers with explicit
// establishment timeouts and a network-reachability probe.
package retry

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// Config describes an exponential backoff policy.
type Config struct {
	// MaxRetries is the number of re-attempts after the first failure.
	// Default 3.
	MaxRetries int

	// InitialDelay is the delay before the first retry. Default 1s.
	InitialDelay time.Duration

	// MaxDelay caps the backoff curve. Default 10s.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay per attempt. Default 2.
	BackoffFactor float64
}

// DefaultConfig is the policy used across the client when none is given.
var DefaultConfig = Config{
	MaxRetries:    3,
	InitialDelay:  time.Second,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2,
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultConfig.MaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultConfig.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = DefaultConfig.BackoffFactor
	}
	return c
}

// Delay returns the backoff delay preceding the given retry attempt
// (attempt 0 is the first retry): min(initial * factor^attempt, max).
func (c Config) Delay(attempt int) time.Duration {
	c = c.withDefaults()
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt)))
	if d > c.MaxDelay || d <= 0 {
		return c.MaxDelay
	}
	return d
}

// Do runs op, retrying on failure per cfg with context-aware backoff sleeps.
// onRetry, if non-nil, is called before each sleep with the upcoming attempt
// number (1-based) and its delay. Returns the first success, or the last
// error once retries are exhausted or ctx is done.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error), onRetry func(attempt int, delay time.Duration)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt >= cfg.MaxRetries {
			return zero, fmt.Errorf("retry: %d attempts exhausted: %w", attempt+1, lastErr)
		}

		delay := cfg.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt+1, delay)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
}

// DefaultDialTimeout bounds WebSocket connection establishment.
const DefaultDialTimeout = 5 * time.Second

// DialWebSocket opens a WebSocket connection to url, failing if the
// handshake does not complete within DefaultDialTimeout (or the earlier
// ctx deadline).
func DialWebSocket(ctx context.Context, url string, hdr http.Header) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		HTTPHeader: hdr,
	})
	if err != nil {
		return nil, fmt.Errorf("retry: dial %s: %w", url, err)
	}
	return conn, nil
}

// CheckReachability probes url with a HEAD request and reports whether the
// network path answered at all. Any HTTP status counts as reachable; only a
// transport-level failure does not.
func CheckReachability(ctx context.Context, client *http.Client, url string) bool {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
