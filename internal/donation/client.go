package donation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Klingon-tech/night-consolidator/internal/log"
	"github.com/Klingon-tech/night-consolidator/pkg/types"
)

// Defaults for the remote donation API.
const (
	DefaultEndpoint  = "https://scavenger.prod.gd.midnighttge.io"
	DefaultUserAgent = "MidnightConsolidationTool/1.0"
	DefaultTimeout   = 30 * time.Second
	DefaultDelay     = 500 * time.Millisecond

	maxResponseSize = 1 << 20
)

// Config holds donation client settings.
type Config struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration // per request
	Delay     time.Duration // pause after a response before the next request
	Tracer    Tracer
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Endpoint:  DefaultEndpoint,
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
		Delay:     DefaultDelay,
	}
}

// BatchHooks lets a caller observe and stop a batch between items.
type BatchHooks struct {
	// OnOutcome is called after each item with its input position.
	OnOutcome func(i int, o Outcome)
	// ShouldStop is polled before each item. Returning true ends the batch.
	ShouldStop func() bool
	// Tracer also receives this batch's trace lines.
	Tracer Tracer
}

// Client submits donation requests one at a time.
type Client struct {
	cfg    Config
	http   *http.Client
	pace   *rate.Limiter
	tracer Tracer
}

// NewClient creates a donation client. Zero config fields take defaults.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	// pace caps the request rate across every caller sharing the client,
	// such as concurrent launcher jobs.
	pace := rate.NewLimiter(rate.Inf, 1)
	if cfg.Delay > 0 {
		pace = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}
	var tracer Tracer = nopTracer{}
	if cfg.Tracer != nil {
		tracer = cfg.Tracer
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{},
		pace:   pace,
		tracer: tracer,
	}
}

// Endpoint returns the API base URL.
func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// DonateSingle submits one donation and classifies the response.
func (c *Client) DonateSingle(ctx context.Context, destination, source, signature string) Outcome {
	if err := c.pace.Wait(ctx); err != nil {
		return Failure(err.Error()).For(source, 0)
	}
	return c.donate(ctx, c.tracer, destination, Item{SourceAddress: source, Signature: signature})
}

// DonateBatch submits items in order, one request at a time, pausing for the
// configured delay after every response except the last. It returns the outcomes of the processed items, which
// is fewer than len(items) only when the batch was stopped or ctx ended.
func (c *Client) DonateBatch(ctx context.Context, destination string, items []Item, hooks BatchHooks) ([]Outcome, error) {
	tracer := c.tracer
	if hooks.Tracer != nil {
		tracer = MultiTracer{c.tracer, hooks.Tracer}
	}
	tracer.Log("Batch donation to %s: %d addresses", destination, len(items))

	outcomes := make([]Outcome, 0, len(items))
	for i, item := range items {
		if hooks.ShouldStop != nil && hooks.ShouldStop() {
			tracer.Log("Batch stopped after %d of %d addresses", i, len(items))
			break
		}
		if i > 0 {
			if err := c.rest(ctx); err != nil {
				return outcomes, err
			}
		}
		if err := c.pace.Wait(ctx); err != nil {
			return outcomes, err
		}

		tracer.Log("[%d/%d] Address index %d: %s", i+1, len(items), item.SourceIndex, types.Preview(item.SourceAddress, 40))
		o := c.donate(ctx, tracer, destination, item)
		outcomes = append(outcomes, o)
		if hooks.OnOutcome != nil {
			hooks.OnOutcome(i, o)
		}
	}

	summary := NewBatchResult(destination, outcomes, len(items)).Summary
	tracer.Log("Batch complete: %d successful, %d skipped, %d errors, %d solutions",
		summary.Successful, summary.Skipped, summary.Errors, summary.TotalSolutions)
	return outcomes, ctx.Err()
}

// rest waits for the configured delay or until ctx ends.
func (c *Client) rest(ctx context.Context) error {
	if c.cfg.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.Delay):
		return nil
	}
}

// apiResponse is the optional JSON body returned by the API.
type apiResponse struct {
	SolutionsConsolidated *float64 `json:"solutions_consolidated"`
	Message               string   `json:"message"`
}

func (c *Client) donate(ctx context.Context, tracer Tracer, destination string, item Item) Outcome {
	start := time.Now()
	o := c.send(ctx, tracer, destination, item).For(item.SourceAddress, item.SourceIndex)

	requestsTotal.WithLabelValues(string(o.Kind)).Inc()
	requestDuration.Observe(time.Since(start).Seconds())

	ev := log.Donation.Debug()
	if o.Kind == KindError {
		ev = log.Donation.Warn()
	}
	ev.Str("source", types.Preview(item.SourceAddress, 20)).
		Int("index", item.SourceIndex).
		Str("outcome", string(o.Kind)).
		Int64("solutions", o.SolutionsConsolidated).
		Str("message", o.Message).
		Dur("took", time.Since(start)).
		Msg("Donation request finished")
	return o
}

func (c *Client) send(ctx context.Context, tracer Tracer, destination string, item Item) Outcome {
	u := fmt.Sprintf("%s/donate_to/%s/%s/%s", c.cfg.Endpoint,
		url.PathEscape(destination), url.PathEscape(item.SourceAddress), url.PathEscape(item.Signature))

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, u, nil)
	if err != nil {
		return Failure(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	// Full signature stays out of the trace.
	tracer.Log("-> POST %s/donate_to/%s/%s/%s", c.cfg.Endpoint, destination, item.SourceAddress, types.Preview(item.Signature, 16))

	resp, err := c.http.Do(req)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			msg = fmt.Sprintf("request timeout after %s", c.cfg.Timeout)
		}
		tracer.Log("<- Error: %s", msg)
		return Failure(msg)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		tracer.Log("<- Status: %d (body read failed: %v)", resp.StatusCode, err)
	} else {
		tracer.Log("<- Status: %d", resp.StatusCode)
		tracer.Log("<- Response: %s", strings.TrimSpace(string(body)))
	}

	return classify(resp.StatusCode, body)
}

// classify maps a status code and optional JSON body to an outcome.
func classify(status int, body []byte) Outcome {
	var parsed apiResponse
	// Non-JSON bodies leave parsed at its zero value.
	_ = json.Unmarshal(body, &parsed)

	switch {
	case status >= 200 && status < 300:
		var n int64
		if parsed.SolutionsConsolidated != nil {
			n = int64(*parsed.SolutionsConsolidated)
		}
		return Success(n, parsed.Message)
	case status == http.StatusConflict:
		return AlreadyDonated(parsed.Message)
	default:
		if parsed.Message != "" {
			return Failure(parsed.Message)
		}
		return Failure(strconv.Itoa(status))
	}
}
