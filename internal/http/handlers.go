package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
	"github.com/kjstillabower/weather-dashboard/internal/validation"
)

const maxBatchBodyBytes = 1 << 20

// Dashboard is the set of operations the handlers serve. Implemented by
// *service.DashboardService.
type Dashboard interface {
	Locate(ctx context.Context, ip string) (models.GeoLocation, service.LocationSource)
	Search(ctx context.Context, query string) []models.GeoLocation
	Weather(ctx context.Context, lat, lon float64) (models.WeatherData, bool)
	Batch(ctx context.Context, coords []models.Coordinate) []models.BatchWeatherPoint
	Outlook(ctx context.Context, n int) ([]service.CityWeather, error)
	MapOverview(ctx context.Context) ([]service.CityWeather, error)
}

// HandlerConfig holds request limits and health thresholds.
type HandlerConfig struct {
	MaxQueryLength      int
	BatchMaxCoordinates int
	OutlookDefaultCount int
	OutlookMaxCount     int
	DegradedWindow      time.Duration
	DegradedErrorPct    int

	// Overload is reported once requests in OverloadWindow exceed
	// OverloadThresholdPct of what RateLimitRPS admits over that window.
	RateLimitRPS         int
	OverloadWindow       time.Duration
	OverloadThresholdPct int

	// Upstreams lists the upstream names whose breaker state health reports.
	Upstreams []string
	// BreakerState, when set, returns the circuit breaker state for an upstream.
	BreakerState func(upstream string) string
	// CachePing, when set, is called to check search cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	dashboard Dashboard
	cfg       HandlerConfig
	outcomes  *traffic.Tracker
	state     *lifecycle.State
	logger    *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. outcomes and state may be nil in tests;
// fresh ones are created.
func NewHandler(dashboard Dashboard, cfg HandlerConfig, outcomes *traffic.Tracker, state *lifecycle.State, logger *zap.Logger) *Handler {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = validation.DefaultMaxQueryLength
	}
	if cfg.OutlookDefaultCount <= 0 {
		cfg.OutlookDefaultCount = 4
	}
	if cfg.OutlookMaxCount < cfg.OutlookDefaultCount {
		cfg.OutlookMaxCount = cfg.OutlookDefaultCount
	}
	if outcomes == nil {
		outcomes = traffic.NewTracker(nil)
	}
	if state == nil {
		state = lifecycle.New(time.Now())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		dashboard: dashboard,
		cfg:       cfg,
		outcomes:  outcomes,
		state:     state,
		logger:    logger,
	}
}

type locationResponse struct {
	Location models.GeoLocation     `json:"location"`
	Source   service.LocationSource `json:"source"`
}

// GetLocation handles GET /v1/location. Always 200: the default location
// stands in when IP resolution fails.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	loc, source := h.dashboard.Locate(r.Context(), ClientIP(r))
	writeJSON(w, http.StatusOK, locationResponse{Location: loc, Source: source})
}

// GetSearch handles GET /v1/search?q=.
func (h *Handler) GetSearch(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ValidateQuery(r.URL.Query().Get("q"), h.cfg.MaxQueryLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": h.dashboard.Search(r.Context(), q),
	})
}

// GetWeather handles GET /v1/weather?lat=&lon=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	coord, err := validation.ParseCoordinate(query.Get("lat"), query.Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	data, ok := h.dashboard.Weather(r.Context(), coord.Lat, coord.Lon)
	if !ok {
		h.outcomes.RecordError()
		writeError(w, r, http.StatusServiceUnavailable, "WEATHER_UNAVAILABLE", "Unable to retrieve weather for this location")
		return
	}
	h.outcomes.RecordSuccess()
	writeJSON(w, http.StatusOK, data)
}

// PostBatch handles POST /v1/weather/batch. A partial result is still 200;
// callers compare the point count with what they asked for.
func (h *Handler) PostBatch(w http.ResponseWriter, r *http.Request) {
	var req validation.BatchRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBatchBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be {\"coordinates\":[{\"lat\":..,\"lon\":..}]}")
		return
	}
	if err := validation.ValidateBatch(req, h.cfg.BatchMaxCoordinates); err != nil {
		code := "INVALID_COORDINATES"
		if errors.Is(err, validation.ErrTooManyCoordinates) {
			code = "TOO_MANY_COORDINATES"
		}
		writeError(w, r, http.StatusBadRequest, code, err.Error())
		return
	}

	points := h.dashboard.Batch(r.Context(), req.Coordinates)
	h.recordCoverage(len(points), len(req.Coordinates))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requested": len(req.Coordinates),
		"points":    points,
	})
}

// GetOutlook handles GET /v1/outlook?count=.
func (h *Handler) GetOutlook(w http.ResponseWriter, r *http.Request) {
	count := h.cfg.OutlookDefaultCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.cfg.OutlookMaxCount {
			writeError(w, r, http.StatusBadRequest, "INVALID_COUNT",
				"count must be between 1 and "+strconv.Itoa(h.cfg.OutlookMaxCount))
			return
		}
		count = n
	}

	cities, err := h.dashboard.Outlook(r.Context(), count)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	withWeather := 0
	for _, c := range cities {
		if c.Weather != nil {
			withWeather++
		}
	}
	h.recordCoverage(withWeather, len(cities))
	writeJSON(w, http.StatusOK, map[string]interface{}{"cities": cities})
}

// GetMap handles GET /v1/map.
func (h *Handler) GetMap(w http.ResponseWriter, r *http.Request) {
	cities, err := h.dashboard.MapOverview(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if len(cities) == 0 {
		h.outcomes.RecordError()
	} else {
		h.outcomes.RecordSuccess()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cities": cities})
}

// recordCoverage counts a multi-location request as an error when any
// location came back without data.
func (h *Handler) recordCoverage(got, want int) {
	if want == 0 {
		return
	}
	if got < want {
		h.outcomes.RecordError()
		return
	}
	h.outcomes.RecordSuccess()
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if h.cfg.BreakerState != nil {
		for _, upstream := range h.cfg.Upstreams {
			checks[upstream] = h.cfg.BreakerState(upstream)
		}
	}
	if h.cfg.CachePing != nil {
		if h.cfg.CachePing() == nil {
			checks["searchCache"] = "healthy"
		} else {
			checks["searchCache"] = "unhealthy"
		}
	}
	now := time.Now()
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "weather-dashboard",
		"version":   "dev",
		"checks":    checks,
		"uptime":    h.state.Uptime(now).Round(time.Second).String(),
		"inFlight":  h.state.InFlight(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if h.state.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.cfg.RateLimitRPS > 0 && h.cfg.OverloadWindow > 0 && h.cfg.OverloadThresholdPct > 0 {
		threshold := float64(h.cfg.RateLimitRPS) * h.cfg.OverloadWindow.Seconds() * float64(h.cfg.OverloadThresholdPct) / 100
		if float64(h.outcomes.RequestCount(h.cfg.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.cfg.DegradedWindow > 0 && h.cfg.DegradedErrorPct > 0 {
		if pct, ok := h.outcomes.ErrorPct(h.cfg.DegradedWindow); ok && pct >= float64(h.cfg.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeInternalError hides err from the client and logs it.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFrom(r.Context(), nil).Error("request failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Internal error")
}
