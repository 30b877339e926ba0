//go:build integration
// +build integration

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/app"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/testhelpers"
)

var testLogger *zap.Logger

func init() {
	var err error
	testLogger, err = observability.NewLogger()
	if err != nil {
		panic(err)
	}
}

// setupIntegrationRouter wires the full stack against the live public APIs.
func setupIntegrationRouter(t *testing.T) http.Handler {
	cfg := testhelpers.IntegrationConfig(t)
	a, err := app.New(context.Background(), cfg, testLogger)
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	h := NewHandler(a.Dashboard, HandlerConfig{
		BatchMaxCoordinates: cfg.BatchMaxCoordinates,
		OutlookDefaultCount: cfg.OutlookDefaultCount,
		OutlookMaxCount:     cfg.OutlookMaxCount,
		Upstreams:           app.Upstreams,
		BreakerState:        a.Client.BreakerState,
		CachePing:           a.CachePing,
	}, nil, nil, testLogger)
	return NewRouter(h, RouterConfig{Logger: testLogger, RequestTimeout: cfg.RequestTimeout})
}

func makeIntegrationRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIntegration_GetWeather(t *testing.T) {
	router := setupIntegrationRouter(t)

	w := makeIntegrationRequest(t, router, "GET", "/v1/weather?lat=52.52&lon=13.41", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var response models.WeatherData
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Icon == "" || len(response.Daily.Time) == 0 {
		t.Errorf("Response incomplete: %+v", response)
	}
	if !response.Daily.Aligned() || !response.Hourly.Aligned() {
		t.Error("Response arrays not index-aligned")
	}
}

func TestIntegration_Search(t *testing.T) {
	router := setupIntegrationRouter(t)

	w := makeIntegrationRequest(t, router, "GET", "/v1/search?q=Kleinmachnow", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d. Body: %s", w.Code, w.Body.String())
	}
	var response struct {
		Results []models.GeoLocation `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response.Results) == 0 || len(response.Results) > 5 {
		t.Errorf("Results = %d, want 1..5", len(response.Results))
	}
}

func TestIntegration_Batch(t *testing.T) {
	router := setupIntegrationRouter(t)

	body := `{"coordinates":[{"lat":51.5085,"lon":-0.1257},{"lat":35.6895,"lon":139.6917},{"lat":-33.8679,"lon":151.2073}]}`
	w := makeIntegrationRequest(t, router, "POST", "/v1/weather/batch", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d. Body: %s", w.Code, w.Body.String())
	}
	var response struct {
		Points []models.BatchWeatherPoint `json:"points"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response.Points) != 3 {
		t.Errorf("Points = %d, want 3", len(response.Points))
	}
}

func TestIntegration_Map(t *testing.T) {
	router := setupIntegrationRouter(t)

	w := makeIntegrationRequest(t, router, "GET", "/v1/map", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d. Body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"New York"`) {
		t.Error("map overview missing the first bundled city")
	}
}

func TestIntegration_Health(t *testing.T) {
	router := setupIntegrationRouter(t)

	w := makeIntegrationRequest(t, router, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
}
