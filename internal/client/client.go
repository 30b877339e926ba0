package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// Upstream names, used as metric labels and circuit breaker names.
const (
	UpstreamWeather = "weather"
	UpstreamBatch   = "batch"
	UpstreamGeocode = "geocode"
	UpstreamGeoJS   = "geojs"
	UpstreamIPAPI   = "ipapi"
)

var (
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrNotFound          = errors.New("not found")
	ErrMalformedResponse = errors.New("malformed response")
	ErrCircuitOpen       = errors.New("circuit breaker open")
)

// errCallerDone marks failures caused by the caller's context ending
// mid-request. The breaker does not count them.
var errCallerDone = errors.New("caller context done")

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

// Getter issues GET requests against a named upstream. Implemented by Client;
// fetchers and resolvers depend on this so tests can substitute it.
type Getter interface {
	GetBody(ctx context.Context, upstream, rawURL string) ([]byte, error)
	GetJSON(ctx context.Context, upstream, rawURL string, out interface{}) error
}

// BreakerConfig configures the per-upstream circuit breaker. A breaker opens
// after ConsecutiveFailures failed calls and lets a probe through after OpenTimeout.
type BreakerConfig struct {
	Enabled             bool
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Options configures a Client.
type Options struct {
	// Timeout bounds each upstream call. Zero means 10s.
	Timeout    time.Duration
	HTTPClient *http.Client
	Breaker    BreakerConfig
	UserAgent  string
}

// Client performs bounded, instrumented GET requests against the public
// weather, geocoding and IP geolocation APIs. Safe for concurrent use.
type Client struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
	breaker   BreakerConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New returns a Client. Options are explicit; there is no package-level client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	if opts.Breaker.ConsecutiveFailures == 0 {
		opts.Breaker.ConsecutiveFailures = 5
	}
	if opts.Breaker.OpenTimeout <= 0 {
		opts.Breaker.OpenTimeout = 30 * time.Second
	}
	return &Client{
		http:      hc,
		timeout:   timeout,
		userAgent: opts.UserAgent,
		breaker:   opts.Breaker,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// GetJSON fetches rawURL and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, upstream, rawURL string, out interface{}) error {
	body, err := c.GetBody(ctx, upstream, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(upstream, string(ErrorCategoryParsing)).Inc()
		return fmt.Errorf("%w: parse %s response: %v", ErrMalformedResponse, upstream, err)
	}
	return nil
}

// GetBody fetches rawURL and returns the body of a 2xx response. Non-2xx
// statuses map to ErrNotFound, ErrRateLimited or ErrUpstreamFailure.
func (c *Client) GetBody(ctx context.Context, upstream, rawURL string) ([]byte, error) {
	cb := c.breakerFor(upstream)
	if cb == nil {
		body, err := c.call(ctx, upstream, rawURL)
		c.recordError(upstream, err)
		return body, err
	}

	// A caller that has already gone away says nothing about the upstream.
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("%s request not sent: %w", upstream, err)
		c.recordError(upstream, err)
		return nil, err
	}
	res, err := cb.Execute(func() (interface{}, error) {
		body, err := c.call(ctx, upstream, rawURL)
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", errCallerDone, err)
		}
		return body, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s: %v", ErrCircuitOpen, upstream, err)
	}
	c.recordError(upstream, err)
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}

func (c *Client) call(ctx context.Context, upstream, rawURL string) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", upstream, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues(upstream, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(upstream, "error").Observe(duration)

		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%s request timeout: %w", upstream, err)
		}
		return nil, fmt.Errorf("%s http request failed: %w", upstream, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(upstream, status).Inc()
	observability.UpstreamDuration.WithLabelValues(upstream, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return nil, fmt.Errorf("%s: %w", upstream, err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response body: %w", upstream, err)
	}
	return body, nil
}

func (c *Client) recordError(upstream string, err error) {
	if err == nil {
		return
	}
	observability.UpstreamErrorsTotal.WithLabelValues(upstream, string(CategorizeError(err))).Inc()
}

// breakerFor returns the breaker for upstream, creating it on first use.
// Returns nil when breakers are disabled.
func (c *Client) breakerFor(upstream string) *gobreaker.CircuitBreaker {
	if !c.breaker.Enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[upstream]; ok {
		return cb
	}
	threshold := c.breaker.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        upstream,
		MaxRequests: 1,
		Timeout:     c.breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerDone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
	observability.CircuitBreakerState.WithLabelValues(upstream).Set(0)
	c.breakers[upstream] = cb
	return cb
}

// BreakerState returns the breaker state name for upstream ("closed" when disabled or unused).
func (c *Client) BreakerState(upstream string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[upstream]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: HTTP %d", ErrNotFound, resp.StatusCode)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", ErrRateLimited, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
