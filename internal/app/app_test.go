package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/geo"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/testhelpers"
)

func testConfig(u *testhelpers.Upstreams) *config.Config {
	cfg := config.Default()
	cfg.WeatherAPIURL = u.ForecastURL()
	cfg.GeocodingAPIURL = u.GeocodingURL()
	cfg.GeoJSURL = u.GeoJSURL()
	cfg.IPAPIURL = u.IPAPIURL()
	cfg.BreakerEnabled = false
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_Locate(t *testing.T) {
	u := testhelpers.NewUpstreams(t)
	a := newApp(t, testConfig(u))
	ctx := context.Background()

	loc, source := a.Dashboard.Locate(ctx, "203.0.113.7")
	assert.Equal(t, service.SourceIP, source)
	assert.Equal(t, "Paris", loc.Name)

	u.Fail(testhelpers.GeoJS, true)
	loc, source = a.Dashboard.Locate(ctx, "203.0.113.7")
	assert.Equal(t, service.SourceIP, source)
	assert.Equal(t, "Lyon", loc.Name, "secondary provider answers when primary fails")

	u.Fail(testhelpers.IPAPI, true)
	loc, source = a.Dashboard.Locate(ctx, "203.0.113.7")
	assert.Equal(t, service.SourceDefault, source)
	assert.Equal(t, "New York", loc.Name)
	assert.Equal(t, 1, loc.ID)
}

func TestApp_Search(t *testing.T) {
	u := testhelpers.NewUpstreams(t)
	a := newApp(t, testConfig(u))
	ctx := context.Background()

	assert.Empty(t, a.Dashboard.Search(ctx, "b"))
	assert.Equal(t, 0, u.Hits(testhelpers.Geocoding))

	local := a.Dashboard.Search(ctx, "lond")
	require.NotEmpty(t, local)
	assert.Equal(t, "London", local[0].Name)
	assert.Equal(t, geo.PopularCityAdmin1, local[0].Admin1)
	assert.Equal(t, 0, u.Hits(testhelpers.Geocoding), "local match skips geocoding")

	remote := a.Dashboard.Search(ctx, "Kleinmachnow")
	require.Len(t, remote, 1)
	assert.Equal(t, 2950159, remote[0].ID)

	again := a.Dashboard.Search(ctx, "kleinmachnow")
	assert.Equal(t, remote, again)
	assert.Equal(t, 1, u.Hits(testhelpers.Geocoding), "second remote search served from cache")
}

func TestApp_SearchCacheNone(t *testing.T) {
	u := testhelpers.NewUpstreams(t)
	cfg := testConfig(u)
	cfg.SearchCacheBackend = config.CacheNone
	a := newApp(t, cfg)

	a.Dashboard.Search(context.Background(), "Kleinmachnow")
	a.Dashboard.Search(context.Background(), "Kleinmachnow")
	assert.Equal(t, 2, u.Hits(testhelpers.Geocoding))
	assert.Nil(t, a.CachePing)
}

func TestApp_Weather(t *testing.T) {
	u := testhelpers.NewUpstreams(t)
	a := newApp(t, testConfig(u))

	data, ok := a.Dashboard.Weather(context.Background(), 52.52, 13.41)
	require.True(t, ok)
	assert.Equal(t, 13.41, data.Current.Temperature)
	assert.Equal(t, "partly-cloudy-day", data.Icon)

	u.Fail(testhelpers.Forecast, true)
	_, ok = a.Dashboard.Weather(context.Background(), 52.52, 13.41)
	assert.False(t, ok)
}

func TestApp_MapAndOutlook(t *testing.T) {
	u := testhelpers.NewUpstreams(t)
	cfg := testConfig(u)
	cfg.CityStore = config.CityStoreSQLite
	cfg.CityStoreName = uuid.NewString()
	a := newApp(t, cfg)
	ctx := context.Background()

	points, err := a.Dashboard.MapOverview(ctx)
	require.NoError(t, err)
	require.Len(t, points, service.DefaultMapLimit)
	assert.Equal(t, "New York", points[0].Name)
	for _, p := range points {
		require.NotNil(t, p.Weather)
		assert.Equal(t, p.Lon, p.Weather.Temperature, "point merged onto the wrong city")
	}
	assert.Equal(t, 1, u.Hits(testhelpers.Forecast), "50 cities fit one chunk")

	outlook, err := a.Dashboard.Outlook(ctx, 4)
	require.NoError(t, err)
	require.Len(t, outlook, 4)
	for _, c := range outlook {
		require.NotNil(t, c.Weather)
		assert.Equal(t, c.Lon, c.Weather.Temperature)
	}
}

func TestApp_BatchChunks(t *testing.T) {
	u := testhelpers.NewUpstreams(t)
	a := newApp(t, testConfig(u))

	coords := make([]models.Coordinate, 120)
	for i := range coords {
		coords[i] = models.Coordinate{Lat: 10, Lon: float64(i)}
	}
	points := a.Dashboard.Batch(context.Background(), coords)

	require.Len(t, points, 120)
	assert.Equal(t, 3, u.Hits(testhelpers.Forecast))
	for i, p := range points {
		assert.Equal(t, float64(i), p.Temperature)
	}
}

func TestApp_Close_Idempotent(t *testing.T) {
	u := testhelpers.NewUpstreams(t)
	cfg := testConfig(u)
	cfg.CityStore = config.CityStoreSQLite
	cfg.CityStoreName = uuid.NewString()
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
