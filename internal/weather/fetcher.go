package weather

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// DefaultBaseURL is the Open-Meteo forecast endpoint.
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// Fetcher retrieves and normalizes the full forecast for one coordinate pair.
type Fetcher struct {
	getter  client.Getter
	baseURL string
	logger  *zap.Logger
}

// NewFetcher returns a Fetcher. An empty baseURL selects DefaultBaseURL.
func NewFetcher(getter client.Getter, baseURL string, logger *zap.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{getter: getter, baseURL: baseURL, logger: logger}
}

// Fetch returns the normalized weather at lat/lon. The boolean is false when
// no usable data is available (invalid coordinates, transport or status
// failure, malformed or incomplete payload); the WeatherData is then zero.
func (f *Fetcher) Fetch(ctx context.Context, lat, lon float64) (models.WeatherData, bool) {
	logger := observability.LoggerFrom(ctx, f.logger).With(zap.Float64("lat", lat), zap.Float64("lon", lon))
	start := time.Now()

	data, err := f.fetch(ctx, lat, lon)
	if err != nil {
		reason := absenceReason(err)
		observability.WeatherFetchAbsentTotal.WithLabelValues(reason).Inc()
		logger.Warn("weather unavailable", zap.String("reason", reason), zap.Error(err))
		return models.WeatherData{}, false
	}

	logger.Debug("weather fetched", zap.String("icon", data.Icon), zap.Duration("duration", time.Since(start)))
	return data, true
}

var errInvalidCoordinates = errors.New("invalid coordinates")

func (f *Fetcher) fetch(ctx context.Context, lat, lon float64) (models.WeatherData, error) {
	if !models.ValidCoordinate(lat, lon) {
		return models.WeatherData{}, fmt.Errorf("%w: %v,%v", errInvalidCoordinates, lat, lon)
	}

	u, err := f.buildURL(lat, lon)
	if err != nil {
		return models.WeatherData{}, err
	}

	var resp forecastResponse
	if err := f.getter.GetJSON(ctx, client.UpstreamWeather, u, &resp); err != nil {
		return models.WeatherData{}, fmt.Errorf("fetch forecast: %w", err)
	}
	return normalize(resp)
}

func (f *Fetcher) buildURL(lat, lon float64) (string, error) {
	base, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid weather API URL: %w", err)
	}
	params := url.Values{}
	params.Set("latitude", formatCoord(lat))
	params.Set("longitude", formatCoord(lon))
	params.Set("current", currentFields)
	params.Set("hourly", hourlyFields)
	params.Set("daily", dailyFields)
	params.Set("timezone", "auto")
	base.RawQuery = params.Encode()
	return base.String(), nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// absenceReason returns a stable metric label for why a fetch produced no data.
func absenceReason(err error) string {
	switch {
	case errors.Is(err, errInvalidCoordinates):
		return "invalid_coordinates"
	case errors.Is(err, errIncomplete):
		return "incomplete"
	default:
		return string(client.CategorizeError(err))
	}
}
