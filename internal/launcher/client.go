package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Klingon-tech/night-consolidator/internal/donation"
	"github.com/Klingon-tech/night-consolidator/internal/log"
)

// ErrTimeout is returned when no result appears within the polling bound.
var ErrTimeout = errors.New("timed out waiting for consolidation result")

// Polling defaults.
const (
	DefaultPollInterval = time.Second
	DefaultSingleWait   = 60 * time.Second
	DefaultBatchWait    = 300 * time.Second
)

// ClientConfig holds launcher client settings.
type ClientConfig struct {
	// BaseURL of the launcher, e.g. http://127.0.0.1:3002.
	BaseURL      string
	PollInterval time.Duration
	SingleWait   time.Duration
	BatchWait    time.Duration
	// SessionLabel is forwarded to the worker.
	SessionLabel string
}

// Client launches donation workers through the launcher service and polls
// for their result.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient creates a launcher client. Zero config fields take defaults.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + DefaultAddr
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SingleWait <= 0 {
		cfg.SingleWait = DefaultSingleWait
	}
	if cfg.BatchWait <= 0 {
		cfg.BatchWait = DefaultBatchWait
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Health checks that the launcher is up.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("launcher unhealthy: status %q", resp.Status)
	}
	return nil
}

// Shutdown asks the launcher to stop.
func (c *Client) Shutdown(ctx context.Context) error {
	var resp launchResponse
	return c.do(ctx, http.MethodPost, "/shutdown", nil, &resp)
}

// DonateSingle launches a single donation and waits for its result.
func (c *Client) DonateSingle(ctx context.Context, destination, source, signature string) (donation.Outcome, error) {
	req := singleRequest{
		Source:       source,
		Dest:         destination,
		Signature:    signature,
		SessionLabel: c.cfg.SessionLabel,
	}
	if err := c.launch(ctx, "/consolidate", req); err != nil {
		return donation.Outcome{}, err
	}

	data, err := c.awaitResult(ctx, c.cfg.SingleWait, nil)
	if err != nil {
		return donation.Outcome{}, err
	}
	var res donation.SingleResult
	if err := json.Unmarshal(data, &res); err != nil {
		return donation.Outcome{}, fmt.Errorf("parse single result: %w", err)
	}
	return res.Outcome().For(source, 0), nil
}

// DonateBatch launches a batch worker and waits for the batch result. The
// worker runs to completion on its own, so stopping is only honored before
// the launch.
func (c *Client) DonateBatch(ctx context.Context, destination string, items []donation.Item, hooks donation.BatchHooks) ([]donation.Outcome, error) {
	if hooks.ShouldStop != nil && hooks.ShouldStop() {
		return nil, nil
	}
	trace := func(format string, args ...any) {
		if hooks.Tracer != nil {
			hooks.Tracer.Log(format, args...)
		}
	}

	req := batchRequest{
		Dest:         destination,
		AddressBatch: items,
		SessionLabel: c.cfg.SessionLabel,
	}
	trace("-> POST %s/consolidate-batch (%d addresses)", c.cfg.BaseURL, len(items))
	if err := c.launch(ctx, "/consolidate-batch", req); err != nil {
		trace("<- Error: %v", err)
		return nil, err
	}
	trace("Batch worker launched, waiting up to %s for the result", c.cfg.BatchWait)

	data, err := c.awaitResult(ctx, c.cfg.BatchWait, trace)
	if err != nil {
		trace("<- Error: %v", err)
		return nil, err
	}
	var res donation.BatchResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse batch result: %w", err)
	}
	trace("<- Result: %d successful, %d skipped, %d errors", res.Summary.Successful, res.Summary.Skipped, res.Summary.Errors)

	outcomes := res.Results
	if len(outcomes) > len(items) {
		outcomes = outcomes[:len(items)]
	}
	for i, o := range outcomes {
		if hooks.OnOutcome != nil {
			hooks.OnOutcome(i, o)
		}
	}
	return outcomes, nil
}

func (c *Client) launch(ctx context.Context, path string, body any) error {
	var resp launchResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("launch failed: %s", resp.Error)
	}
	log.Launcher.Debug().Str("path", path).Str("message", resp.Message).Msg("Worker launched")
	return nil
}

// awaitResult polls /result until it is ready or wait elapses.
func (c *Client) awaitResult(ctx context.Context, wait time.Duration, trace func(string, ...any)) (json.RawMessage, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var res resultResponse
		if err := c.do(ctx, http.MethodGet, "/result", nil, &res); err != nil {
			// A transient poll failure is retried until the deadline.
			log.Launcher.Debug().Err(err).Int("attempt", attempt).Msg("Result poll failed")
		} else if res.Ready {
			return res.Data, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w after %s (%d polls)", ErrTimeout, wait, attempt)
		}
		if trace != nil && attempt%10 == 0 {
			trace("Still waiting for result (%d polls)", attempt)
		}
	}
}

// do sends a JSON request and decodes the JSON response into out.
// Non-2xx responses with a launch error body are returned as errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("launcher request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var lr launchResponse
		if json.Unmarshal(data, &lr) == nil && lr.Error != "" {
			return fmt.Errorf("launcher returned %d: %s", resp.StatusCode, lr.Error)
		}
		return fmt.Errorf("launcher returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
