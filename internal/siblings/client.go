// Package siblings provides typed HTTP clients for the six external
// services the pipeline orchestrator calls (§6): VPN manager, torrent
// manager, metadata enrichment, subtitle manager, media processor, and
// publishing backend. Every call is classified into exactly one of
// Unreachable / HTTPError / MalformedResponse, the input the orchestrator's
// skip-vs-fail policy (§4.1) runs on.
package siblings

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nself/content-acquisition/internal/metrics"
	"github.com/nself/content-acquisition/internal/resilience"
	"github.com/nself/content-acquisition/internal/xlog"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxErrBody = 4 * 1024

// client is the shared HTTP plumbing behind every typed sibling wrapper:
// a hardened transport, a per-sibling rate limiter, and a per-sibling
// circuit breaker. A SharedTrip lets the breaker state cross process
// boundaries so one misbehaving sibling doesn't get hammered by every
// orchestrator goroutine at once.
type client struct {
	name    string
	base    string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	cb      *resilience.CircuitBreaker
	trip    *resilience.SharedTrip
	log     zerolog.Logger
}

// Option configures a sibling client.
type Option func(*client)

// WithRateLimit overrides the default per-sibling request rate.
func WithRateLimit(rps rate.Limit, burst int) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rps, burst) }
}

// WithSharedTrip plugs in the Redis-backed circuit state so multiple
// orchestrator processes agree on whether a sibling is currently tripped.
func WithSharedTrip(t *resilience.SharedTrip) Option {
	return func(c *client) { c.trip = t }
}

func newClient(name, baseURL string, timeout time.Duration, opts ...Option) *client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &client{
		name:    name,
		base:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		cb:      resilience.New(name, 5, 10, 60*time.Second, 30*time.Second),
		log:     xlog.WithComponent("siblings." + name),
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				MaxConnsPerHost:       20,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// configured reports whether a base URL was actually set; empty base
// URLs are how encoding/publishing auto-skip per §4.1 stages 6/7.
func (c *client) configured() bool { return c.base != "" }

// do performs an HTTP request, classifies any failure into the three
// orchestrator-visible buckets, and unmarshals a 2xx JSON body into out
// (which may be nil for calls that only care about the status).
func (c *client) do(ctx context.Context, method, path, operation string, reqBody, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &CallError{Sibling: c.name, Operation: operation, Sentinel: ErrUnreachable, Err: err}
	}

	if c.trip != nil && c.trip.IsOpen(ctx, c.name) {
		return &CallError{Sibling: c.name, Operation: operation, Sentinel: ErrUnreachable, Err: resilience.ErrCircuitOpen}
	}
	if !c.cb.AllowRequest() {
		return &CallError{Sibling: c.name, Operation: operation, Sentinel: ErrUnreachable, Err: resilience.ErrCircuitOpen}
	}

	start := time.Now()
	status, body, err := c.doOnce(ctx, method, path, reqBody)
	metrics.StageDuration.WithLabelValues(operation, outcomeLabel(err)).Observe(time.Since(start).Seconds())

	if err != nil {
		c.recordOutcome(ctx, false)
		return &CallError{Sibling: c.name, Operation: operation, Sentinel: ErrUnreachable, Err: err}
	}

	if status < 200 || status >= 300 {
		c.recordOutcome(ctx, false)
		snippet := string(body)
		if len(snippet) > 500 {
			snippet = snippet[:500]
		}
		return &CallError{Sibling: c.name, Operation: operation, Sentinel: ErrHTTPError, Status: status, Body: snippet}
	}

	c.recordOutcome(ctx, true)
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &CallError{Sibling: c.name, Operation: operation, Sentinel: ErrMalformedResponse, Status: status, Err: err}
		}
	}
	return nil
}

// recordOutcome updates both the local breaker and, once it trips,
// publishes that fact to the shared advisory cache.
func (c *client) recordOutcome(ctx context.Context, success bool) {
	if success {
		c.cb.RecordSuccess()
		if c.cb.GetState() == resilience.StateClosed && c.trip != nil {
			c.trip.ClearOpen(ctx, c.name)
		}
		return
	}
	c.cb.RecordFailure()
	if c.cb.GetState() == resilience.StateOpen && c.trip != nil {
		c.trip.MarkOpen(ctx, c.name, 60*time.Second)
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}

func (c *client) doOnce(ctx context.Context, method, path string, reqBody any) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return 0, nil, err
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.base+path, bodyReader)
	if err != nil {
		return 0, nil, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_, _ = io.CopyN(io.Discard, res.Body, maxErrBody)
		_ = res.Body.Close()
	}()

	limit := maxErrBody
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		limit = 4 << 20
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, int64(limit)))
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, data, nil
}
