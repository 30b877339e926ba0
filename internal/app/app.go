// Package app builds the dashboard's object graph from configuration. The
// HTTP server and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/cities"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/geo"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/weather"
)

// Upstreams lists every upstream the client talks to, in the order health reports them.
var Upstreams = []string{
	client.UpstreamWeather,
	client.UpstreamBatch,
	client.UpstreamGeocode,
	client.UpstreamGeoJS,
	client.UpstreamIPAPI,
}

// App holds the wired components. Close releases the search cache and city
// store connections.
type App struct {
	Client    *client.Client
	Dashboard *service.DashboardService

	// CachePing is non-nil when the search cache is remote.
	CachePing func() error

	closers []func() error
}

// New wires the client, resolver, fetchers, city store and search cache
// selected by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{}

	a.Client = client.New(client.Options{
		Timeout:   cfg.UpstreamTimeout,
		UserAgent: cfg.UserAgent,
		Breaker: client.BreakerConfig{
			Enabled:             cfg.BreakerEnabled,
			ConsecutiveFailures: uint32(cfg.BreakerFailures),
			OpenTimeout:         cfg.BreakerOpenTimeout,
		},
	})
	if cfg.BreakerEnabled {
		logger.Info("circuit breakers enabled",
			zap.Int("failures", cfg.BreakerFailures),
			zap.Duration("open_timeout", cfg.BreakerOpenTimeout))
	}

	store, err := a.openCityStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	searchCache, err := a.openSearchCache(cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	resolver := geo.NewResolver(geo.Options{
		Providers: []geo.IPProvider{
			geo.NewGeoJSProvider(a.Client, cfg.GeoJSURL),
			geo.NewIPAPIProvider(a.Client, cfg.IPAPIURL),
		},
		Cities:   store,
		Geocoder: geo.NewOpenMeteoGeocoder(a.Client, cfg.GeocodingAPIURL),
		Cache:    searchCache,
		CacheTTL: cfg.SearchCacheTTL,
		Logger:   logger,
	})

	defaultLoc := cfg.DefaultLocation
	a.Dashboard = service.NewDashboardService(service.Options{
		Resolver:        resolver,
		Weather:         weather.NewFetcher(a.Client, cfg.WeatherAPIURL, logger),
		Batch:           weather.NewBatchFetcher(a.Client, cfg.WeatherAPIURL, cfg.BatchChunkSize, logger),
		Cities:          store,
		DefaultLocation: &defaultLoc,
		CoalesceTimeout: cfg.UpstreamTimeout,
		Logger:          logger,
	})
	return a, nil
}

func (a *App) openCityStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cities.Store, error) {
	list, err := cities.Bundled()
	if err != nil {
		return nil, fmt.Errorf("load bundled cities: %w", err)
	}
	switch cfg.CityStore {
	case config.CityStoreSQLite:
		s, err := cities.OpenSQLStore(ctx, cities.MemoryDSN(cfg.CityStoreName), list)
		if err != nil {
			return nil, fmt.Errorf("open sqlite city store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		logger.Info("city store: sqlite", zap.Int("cities", len(list)))
		return s, nil
	default:
		logger.Info("city store: memory", zap.Int("cities", len(list)))
		return cities.NewMemoryStore(list), nil
	}
}

// openSearchCache returns nil for the "none" backend; the resolver then
// queries the geocoder every time.
func (a *App) openSearchCache(cfg *config.Config, logger *zap.Logger) (cache.LocationCache, error) {
	switch cfg.SearchCacheBackend {
	case config.CacheNone:
		logger.Info("search cache: none")
		return nil, nil
	case config.CacheMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached search cache: %w", err)
		}
		a.closers = append(a.closers, mc.Close)
		a.CachePing = mc.Ping
		logger.Info("search cache: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, nil
	default:
		logger.Info("search cache: in_memory", zap.Duration("ttl", cfg.SearchCacheTTL))
		return cache.NewInMemoryCache(), nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
