package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// weatherResult is the outcome of one forecast fetch; ok false means absent.
type weatherResult struct {
	data models.WeatherData
	ok   bool
}

// inFlightRequest tracks a single upstream fetch that multiple callers may wait for.
// result is written once, before done is closed.
type inFlightRequest struct {
	done   chan struct{}
	result weatherResult
}

// requestCoalescer joins concurrent forecast requests for the same coordinates
// onto one upstream call. Nothing is kept after the call completes.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest
	timeout  time.Duration
}

// newRequestCoalescer creates a new requestCoalescer. timeout bounds the shared
// fetch, which runs detached from any single caller's cancellation.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightRequest),
		timeout:  timeout,
	}
}

// GetOrDo returns the result of the in-flight fetch for key, starting one with
// fn if none exists. A caller whose ctx ends first gets ctx.Err(); the shared
// fetch keeps running for the others.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) weatherResult) (weatherResult, error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if exists {
		observability.WeatherCoalescedTotal.Inc()
	} else {
		req = &inFlightRequest{done: make(chan struct{})}
		rc.inFlight[key] = req

		// Values (logger, correlation id) carry over; cancellation does not.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		go func() {
			defer cancel()
			req.result = fn(fetchCtx)
			rc.cleanup(key)
			close(req.done)
		}()
	}
	rc.mu.Unlock()

	select {
	case <-req.done:
		return req.result, nil
	case <-ctx.Done():
		return weatherResult{}, ctx.Err()
	}
}

// cleanup removes the in-flight request for key. Must be called after request completes.
func (rc *requestCoalescer) cleanup(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.inFlight, key)
}

// size reports the number of fetches currently in flight.
func (rc *requestCoalescer) size() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.inFlight)
}
