// Package sse streams chat replies over Server-Sent Events as the text-only
// alternative to the voice WebSocket. Fragments are fed into the same
// debounced assembler the voice path uses, so callers see identical message
// semantics on both transports.
package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxlink/voxlink/internal/errmgr"
	"github.com/voxlink/voxlink/pkg/retry"
	"github.com/voxlink/voxlink/pkg/voice"
)

// event is the JSON payload carried by a data line. Plain-text data lines are
// treated as a bare fragment.
type event struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithRetry overrides the reconnect backoff configuration.
func WithRetry(cfg retry.Config) Option {
	return func(cl *Client) { cl.retry = cfg }
}

// WithErrorSink routes classified stream errors to the callback.
func WithErrorSink(fn func(*errmgr.AppError)) Option {
	return func(cl *Client) { cl.onError = fn }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// Client consumes one SSE chat stream per Stream call.
type Client struct {
	endpoint string
	http     *http.Client
	retry    retry.Config
	onError  func(*errmgr.AppError)
	logger   *slog.Logger
}

// NewClient creates a Client for the given SSE endpoint.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("sse: endpoint must not be empty")
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{},
		retry:    retry.DefaultConfig,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Stream sends the message to the given app and feeds reply fragments into
// asm until the server closes the stream. Connection failures are retried
// with backoff; mid-stream failures are classified and returned. Stream
// finalizes any open reply before returning.
func (c *Client) Stream(ctx context.Context, appID int64, message string, asm *voice.Assembler) error {
	defer asm.Flush()

	resp, err := retry.Do(ctx, c.retry,
		func(ctx context.Context) (*http.Response, error) {
			return c.open(ctx, appID, message)
		},
		func(attempt int, delay time.Duration) {
			c.logger.Warn("sse connect retry", "attempt", attempt, "delay", delay, "app_id", appID)
		},
	)
	if err != nil {
		return c.classify(err)
	}
	defer resp.Body.Close()

	if err := c.consume(ctx, resp.Body, asm); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *Client) open(ctx context.Context, appID int64, message string) (*http.Response, error) {
	u := fmt.Sprintf("%s?appId=%d&message=%s", c.endpoint, appID, url.QueryEscape(message))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("sse: unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}

// consume parses the event stream line by line. Only data lines matter;
// comment and id/event lines are skipped.
func (c *Client) consume(ctx context.Context, body io.Reader, asm *voice.Assembler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimPrefix(line, "data:")
		data = strings.TrimPrefix(data, " ")
		if data == "" || data == "[DONE]" {
			continue
		}
		asm.Append(fragmentOf(data))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// fragmentOf extracts the reply fragment from one data payload.
func fragmentOf(data string) string {
	var ev event
	if err := json.Unmarshal([]byte(data), &ev); err == nil && ev.Text != "" {
		return ev.Text
	}
	return data
}

func (c *Client) classify(err error) error {
	appErr := errmgr.Wrap(errmgr.TypeSSE, err, errmgr.SeverityMedium)
	if c.onError != nil {
		c.onError(appErr)
	}
	return appErr
}
