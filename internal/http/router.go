package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

// RouterConfig holds the middleware settings NewRouter applies.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	Outcomes       *traffic.Tracker
	State          *lifecycle.State // counts in-flight requests when set
	RequestTimeout time.Duration
}

// NewRouter wires the handler's routes. /v1 is rate limited and bounded by
// RequestTimeout; /health and /metrics are not.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	if cfg.State != nil {
		router.Use(InFlightMiddleware(cfg.State))
	}
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(RateLimitMiddleware(cfg.Limiter, cfg.Outcomes))
	if cfg.RequestTimeout > 0 {
		v1.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	v1.HandleFunc("/location", h.GetLocation).Methods(http.MethodGet)
	v1.HandleFunc("/search", h.GetSearch).Methods(http.MethodGet)
	v1.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	v1.HandleFunc("/weather/batch", h.PostBatch).Methods(http.MethodPost)
	v1.HandleFunc("/outlook", h.GetOutlook).Methods(http.MethodGet)
	v1.HandleFunc("/map", h.GetMap).Methods(http.MethodGet)
	return router
}
