package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// requestTimeout is the abort ceiling on any single network attempt; a
// stalled request must never occupy a retry slot indefinitely.
const requestTimeout = 10 * time.Second

// Channel is one transmission primitive. Implementations post the
// serialized payload to the collector and report failure by error.
type Channel interface {
	Send(ctx context.Context, payload []byte) error
}

// StatusError is a non-2xx collector response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector returned status %d: %s", e.StatusCode, e.Message)
}

// Permanent reports whether retrying can never succeed: client errors
// other than timeout (408) and rate limiting (429).
func (e *StatusError) Permanent() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

type httpChannel struct {
	name       string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	// readBody controls whether the response body is drained into the
	// error message; the beacon-style channel fires and forgets.
	readBody bool
}

func (c *httpChannel) Send(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.Debug("Channel send failed",
			zap.String("channel", c.name),
			zap.Error(err),
			zap.Duration("duration", duration),
		)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("Channel send succeeded",
			zap.String("channel", c.name),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("duration", duration),
		)
		return nil
	}

	msg := ""
	if c.readBody {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg = string(body)
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

// NewBeaconChannel builds the beacon-style primitive: fire-and-forget,
// no response inspection beyond the status line.
func NewBeaconChannel(endpoint string, logger *zap.Logger) Channel {
	return &httpChannel{
		name:       "beacon",
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// NewKeepaliveChannel builds the request primitive permitted to outlive
// the page that issued it.
func NewKeepaliveChannel(endpoint string, logger *zap.Logger) Channel {
	return &httpChannel{
		name:       "keepalive",
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		readBody:   true,
	}
}

// NewSyncChannel builds the legacy synchronous-capable fallback used on
// ordinary sends when the keepalive channel fails.
func NewSyncChannel(endpoint string, logger *zap.Logger) Channel {
	return &httpChannel{
		name:       "sync",
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		readBody:   true,
	}
}
