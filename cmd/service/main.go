package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/app"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	httphandler "github.com/kjstillabower/weather-dashboard/internal/http"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	state := lifecycle.New(time.Now())
	deps, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("wiring", zap.Error(err))
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	outcomes := traffic.NewTracker(nil)

	handler := httphandler.NewHandler(deps.Dashboard, httphandler.HandlerConfig{
		BatchMaxCoordinates:  cfg.BatchMaxCoordinates,
		OutlookDefaultCount:  cfg.OutlookDefaultCount,
		OutlookMaxCount:      cfg.OutlookMaxCount,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		Upstreams:            app.Upstreams,
		BreakerState:         deps.Client.BreakerState,
		CachePing:            deps.CachePing,
	}, outcomes, state, logger)

	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		Outcomes:       outcomes,
		State:          state,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered", zap.Int64("in_flight", state.InFlight()))
	state.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Shutdown waits for active handlers until shutdownCtx expires.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", state.InFlight()))
	}

	if err := deps.Close(); err != nil {
		logger.Error("close dependencies", zap.Error(err))
	}
	logger.Info("shutdown complete")
	if err := observability.Flush(logger); err != nil {
		fmt.Fprintf(os.Stderr, "flush: %v\n", err)
	}
}
