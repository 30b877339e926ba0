// Package service composes location resolution, weather fetching and the
// bundled city list into the operations the dashboard calls.
package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cities"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// LocationSource says how Locate produced its result.
type LocationSource string

const (
	SourceIP      LocationSource = "ip"
	SourceDefault LocationSource = "default"
)

// DefaultMapLimit is how many bundled cities the map overview covers.
const DefaultMapLimit = 50

// DefaultLocation is used when every IP provider fails.
var DefaultLocation = models.GeoLocation{
	ID:        1,
	Name:      "New York",
	Country:   "USA",
	Latitude:  40.7143,
	Longitude: -74.006,
}

// LocationResolver is satisfied by *geo.Resolver.
type LocationResolver interface {
	ResolveByIP(ctx context.Context, ip string) (models.GeoLocation, bool)
	Search(ctx context.Context, query string) []models.GeoLocation
}

// WeatherFetcher is satisfied by *weather.Fetcher.
type WeatherFetcher interface {
	Fetch(ctx context.Context, lat, lon float64) (models.WeatherData, bool)
}

// BatchFetcher is satisfied by *weather.BatchFetcher.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, coords []models.Coordinate) []models.BatchWeatherPoint
	FetchBatchAligned(ctx context.Context, coords []models.Coordinate) []*models.BatchWeatherPoint
}

// CityWeather pairs a bundled city with its current conditions. Weather is
// nil when no data point came back for the city.
type CityWeather struct {
	cities.City
	Weather *models.BatchWeatherPoint `json:"weather"`
}

// Options configures a DashboardService. A zero CoalesceTimeout disables
// coalescing of identical weather requests.
type Options struct {
	Resolver        LocationResolver
	Weather         WeatherFetcher
	Batch           BatchFetcher
	Cities          cities.Store
	DefaultLocation *models.GeoLocation
	CoalesceTimeout time.Duration
	MapLimit        int
	Rand            *rand.Rand
	Logger          *zap.Logger
}

// DashboardService is the facade over the data acquisition layer.
type DashboardService struct {
	resolver  LocationResolver
	weather   WeatherFetcher
	batch     BatchFetcher
	cities    cities.Store
	fallback  models.GeoLocation
	coalescer *requestCoalescer // nil if disabled
	mapLimit  int
	logger    *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewDashboardService(opts Options) *DashboardService {
	s := &DashboardService{
		resolver: opts.Resolver,
		weather:  opts.Weather,
		batch:    opts.Batch,
		cities:   opts.Cities,
		fallback: DefaultLocation,
		mapLimit: opts.MapLimit,
		logger:   opts.Logger,
		rand:     opts.Rand,
	}
	if opts.DefaultLocation != nil {
		s.fallback = *opts.DefaultLocation
	}
	if opts.CoalesceTimeout > 0 {
		s.coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	if s.mapLimit <= 0 {
		s.mapLimit = DefaultMapLimit
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Locate resolves the caller's location from ip, falling back to the
// configured default when the provider chain is exhausted.
func (s *DashboardService) Locate(ctx context.Context, ip string) (models.GeoLocation, LocationSource) {
	if loc, ok := s.resolver.ResolveByIP(ctx, ip); ok {
		return loc, SourceIP
	}
	observability.LoggerFrom(ctx, s.logger).Info("using default location", zap.String("name", s.fallback.Name))
	return s.fallback, SourceDefault
}

func (s *DashboardService) Search(ctx context.Context, query string) []models.GeoLocation {
	return s.resolver.Search(ctx, query)
}

// Weather returns the full forecast for the coordinates. Concurrent calls for
// the same coordinates share one upstream fetch when coalescing is enabled;
// each caller still gets its own copy of the forecast arrays.
func (s *DashboardService) Weather(ctx context.Context, lat, lon float64) (models.WeatherData, bool) {
	if s.coalescer == nil {
		return s.weather.Fetch(ctx, lat, lon)
	}
	key := coordinateKey(lat, lon)
	res, err := s.coalescer.GetOrDo(ctx, key, func(fetchCtx context.Context) weatherResult {
		data, ok := s.weather.Fetch(fetchCtx, lat, lon)
		return weatherResult{data: data, ok: ok}
	})
	if err != nil {
		observability.LoggerFrom(ctx, s.logger).Debug("weather wait abandoned",
			zap.String("key", key), zap.Error(err))
		return models.WeatherData{}, false
	}
	if !res.ok {
		return models.WeatherData{}, false
	}
	return res.data.Clone(), true
}

func (s *DashboardService) Batch(ctx context.Context, coords []models.Coordinate) []models.BatchWeatherPoint {
	return s.batch.FetchBatch(ctx, coords)
}

// Outlook picks n distinct bundled cities at random and attaches current
// conditions to each. n is clamped to the size of the city list.
func (s *DashboardService) Outlook(ctx context.Context, n int) ([]CityWeather, error) {
	all, err := s.cities.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cities: %w", err)
	}
	if n <= 0 || len(all) == 0 {
		return []CityWeather{}, nil
	}
	if n > len(all) {
		n = len(all)
	}

	s.randMu.Lock()
	perm := s.rand.Perm(len(all))
	s.randMu.Unlock()

	picked := make([]cities.City, n)
	for i := range picked {
		picked[i] = all[perm[i]]
	}
	return s.withWeather(ctx, picked), nil
}

// MapOverview returns current conditions for the first MapLimit bundled
// cities. Cities without a data point are left out.
func (s *DashboardService) MapOverview(ctx context.Context) ([]CityWeather, error) {
	all, err := s.cities.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cities: %w", err)
	}
	if len(all) > s.mapLimit {
		all = all[:s.mapLimit]
	}

	merged := s.withWeather(ctx, all)
	out := make([]CityWeather, 0, len(merged))
	for _, cw := range merged {
		if cw.Weather != nil {
			out = append(out, cw)
		}
	}
	if len(out) < len(merged) {
		observability.LoggerFrom(ctx, s.logger).Debug("map overview incomplete",
			zap.Int("cities", len(merged)), zap.Int("with_weather", len(out)))
	}
	return out, nil
}

func (s *DashboardService) withWeather(ctx context.Context, list []cities.City) []CityWeather {
	coords := make([]models.Coordinate, len(list))
	for i, c := range list {
		coords[i] = models.Coordinate{Lat: c.Lat, Lon: c.Lon}
	}
	points := s.batch.FetchBatchAligned(ctx, coords)

	out := make([]CityWeather, len(list))
	for i, c := range list {
		out[i] = CityWeather{City: c}
		if i < len(points) {
			out[i].Weather = points[i]
		}
	}
	return out
}

func coordinateKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}
