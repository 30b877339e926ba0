package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-dashboard/internal/cities"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/service"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

type mockDashboard struct {
	mu sync.Mutex

	loc      models.GeoLocation
	source   service.LocationSource
	lastIP   string
	results  []models.GeoLocation
	lastQ    string
	weather  models.WeatherData
	ok       bool
	block    bool // Weather waits for ctx.Done()
	points   []models.BatchWeatherPoint
	batchLen int
	outlook  []service.CityWeather
	outlookN int
	mapData  []service.CityWeather
	err      error
}

func (m *mockDashboard) Locate(_ context.Context, ip string) (models.GeoLocation, service.LocationSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastIP = ip
	return m.loc, m.source
}

func (m *mockDashboard) Search(_ context.Context, q string) []models.GeoLocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQ = q
	if m.results == nil {
		return []models.GeoLocation{}
	}
	return m.results
}

func (m *mockDashboard) Weather(ctx context.Context, _, _ float64) (models.WeatherData, bool) {
	if m.block {
		<-ctx.Done()
		return models.WeatherData{}, false
	}
	return m.weather, m.ok
}

func (m *mockDashboard) Batch(_ context.Context, coords []models.Coordinate) []models.BatchWeatherPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchLen = len(coords)
	if m.points == nil {
		return []models.BatchWeatherPoint{}
	}
	return m.points
}

func (m *mockDashboard) Outlook(_ context.Context, n int) ([]service.CityWeather, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outlookN = n
	return m.outlook, m.err
}

func (m *mockDashboard) MapOverview(context.Context) ([]service.CityWeather, error) {
	return m.mapData, m.err
}

var testHandlerConfig = HandlerConfig{
	BatchMaxCoordinates:  3,
	OutlookDefaultCount:  4,
	OutlookMaxCount:      20,
	DegradedWindow:       time.Minute,
	DegradedErrorPct:     50,
	RateLimitRPS:         1,
	OverloadWindow:       10 * time.Second,
	OverloadThresholdPct: 80,
}

// serve routes req through the full router with rate limiting disabled.
func serve(t *testing.T, h *Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(h, RouterConfig{Logger: zap.NewNop(), RequestTimeout: time.Second})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestHandler_GetLocation(t *testing.T) {
	dash := &mockDashboard{
		loc:    models.GeoLocation{Name: "Berlin", Country: "Germany", Latitude: 52.52, Longitude: 13.41},
		source: service.SourceIP,
	}
	h := NewHandler(dash, testHandlerConfig, nil, nil, nil)

	req := httptest.NewRequest("GET", "/v1/location", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	w := serve(t, h, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp locationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Location.Name != "Berlin" || resp.Source != service.SourceIP {
		t.Errorf("response = %+v", resp)
	}
	if dash.lastIP != "203.0.113.7" {
		t.Errorf("Locate got ip %q, want first X-Forwarded-For entry", dash.lastIP)
	}
}

func TestHandler_GetSearch(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantError string
		wantQ     string
	}{
		{"valid", "/v1/search?q=%20Paris%20", http.StatusOK, "", "Paris"},
		{"empty is fine", "/v1/search", http.StatusOK, "", ""},
		{"unicode letters", "/v1/search?q=S%C3%A3o%20Paulo", http.StatusOK, "", "São Paulo"},
		{"invalid chars", "/v1/search?q=%3Cscript%3E", http.StatusBadRequest, "INVALID_QUERY", ""},
		{"too long", "/v1/search?q=" + strings.Repeat("a", 101), http.StatusBadRequest, "INVALID_QUERY", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dash := &mockDashboard{results: []models.GeoLocation{{Name: "Paris"}}}
			h := NewHandler(dash, testHandlerConfig, nil, nil, nil)

			w := serve(t, h, httptest.NewRequest("GET", tt.query, nil))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantError != "" {
				if body := decodeError(t, w); body.Error.Code != tt.wantError {
					t.Errorf("error code = %q, want %q", body.Error.Code, tt.wantError)
				}
				return
			}
			if dash.lastQ != tt.wantQ {
				t.Errorf("Search got %q, want %q", dash.lastQ, tt.wantQ)
			}
			var resp struct {
				Results []models.GeoLocation `json:"results"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Results == nil {
				t.Error("results should be an array, got null")
			}
		})
	}
}

func TestHandler_GetWeather(t *testing.T) {
	data := models.WeatherData{
		Current: models.CurrentWeather{Temperature: 21.5, WeatherCode: 2, IsDay: 1},
		Icon:    "partly-cloudy-day",
	}

	tests := []struct {
		name      string
		path      string
		dash      *mockDashboard
		wantCode  int
		wantError string
	}{
		{"success", "/v1/weather?lat=52.52&lon=13.41", &mockDashboard{weather: data, ok: true}, http.StatusOK, ""},
		{"missing lon", "/v1/weather?lat=52.52", &mockDashboard{}, http.StatusBadRequest, "INVALID_COORDINATES"},
		{"out of range", "/v1/weather?lat=91&lon=0", &mockDashboard{}, http.StatusBadRequest, "INVALID_COORDINATES"},
		{"not a number", "/v1/weather?lat=abc&lon=0", &mockDashboard{}, http.StatusBadRequest, "INVALID_COORDINATES"},
		{"absent", "/v1/weather?lat=0&lon=0", &mockDashboard{ok: false}, http.StatusServiceUnavailable, "WEATHER_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.dash, testHandlerConfig, nil, nil, nil)
			req := httptest.NewRequest("GET", tt.path, nil)
			req.Header.Set("X-Correlation-ID", "test-correlation-id")
			w := serve(t, h, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantError != "" {
				body := decodeError(t, w)
				if body.Error.Code != tt.wantError {
					t.Errorf("error code = %q, want %q", body.Error.Code, tt.wantError)
				}
				if body.Error.RequestID != "test-correlation-id" {
					t.Errorf("requestId = %q, want test-correlation-id", body.Error.RequestID)
				}
				return
			}
			var got models.WeatherData
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Current.Temperature != 21.5 || got.Icon != "partly-cloudy-day" {
				t.Errorf("response = %+v", got)
			}
		})
	}
}

func TestHandler_GetWeather_MessageText(t *testing.T) {
	h := NewHandler(&mockDashboard{}, testHandlerConfig, nil, nil, nil)
	w := serve(t, h, httptest.NewRequest("GET", "/v1/weather?lat=1&lon=1", nil))

	if body := decodeError(t, w); body.Error.Message != "Unable to retrieve weather for this location" {
		t.Errorf("message = %q", body.Error.Message)
	}
}

func TestHandler_GetWeather_RequestTimeout(t *testing.T) {
	h := NewHandler(&mockDashboard{block: true}, testHandlerConfig, nil, nil, nil)
	router := NewRouter(h, RouterConfig{RequestTimeout: 20 * time.Millisecond})

	w := httptest.NewRecorder()
	start := time.Now()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/weather?lat=1&lon=1", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("request took %v, want bounded by the request timeout", elapsed)
	}
}

func TestHandler_PostBatch(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantError string
		wantLen   int
	}{
		{"valid", `{"coordinates":[{"lat":1,"lon":2},{"lat":3,"lon":4}]}`, http.StatusOK, "", 2},
		{"empty list", `{"coordinates":[]}`, http.StatusOK, "", 0},
		{"malformed", `{"coordinates":`, http.StatusBadRequest, "INVALID_BODY", 0},
		{"out of range", `{"coordinates":[{"lat":100,"lon":2}]}`, http.StatusBadRequest, "INVALID_COORDINATES", 0},
		{"too many", `{"coordinates":[{"lat":1,"lon":1},{"lat":1,"lon":1},{"lat":1,"lon":1},{"lat":1,"lon":1}]}`, http.StatusBadRequest, "TOO_MANY_COORDINATES", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dash := &mockDashboard{points: []models.BatchWeatherPoint{{Temperature: 1, Complete: true}}}
			h := NewHandler(dash, testHandlerConfig, nil, nil, nil)

			w := serve(t, h, httptest.NewRequest("POST", "/v1/weather/batch", strings.NewReader(tt.body)))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantError != "" {
				if body := decodeError(t, w); body.Error.Code != tt.wantError {
					t.Errorf("error code = %q, want %q", body.Error.Code, tt.wantError)
				}
				return
			}
			if dash.batchLen != tt.wantLen {
				t.Errorf("Batch got %d coords, want %d", dash.batchLen, tt.wantLen)
			}
			var resp struct {
				Requested int                        `json:"requested"`
				Points    []models.BatchWeatherPoint `json:"points"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Requested != tt.wantLen || resp.Points == nil {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestHandler_PostBatch_WrongMethod(t *testing.T) {
	h := NewHandler(&mockDashboard{}, testHandlerConfig, nil, nil, nil)
	w := serve(t, h, httptest.NewRequest("GET", "/v1/weather/batch", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHandler_GetOutlook(t *testing.T) {
	outlook := []service.CityWeather{
		{City: cities.City{Name: "London", Country: "United Kingdom"}, Weather: &models.BatchWeatherPoint{Temperature: 12}},
		{City: cities.City{Name: "Tokyo", Country: "Japan"}},
	}

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantCount int
	}{
		{"default count", "/v1/outlook", http.StatusOK, 4},
		{"explicit count", "/v1/outlook?count=7", http.StatusOK, 7},
		{"zero", "/v1/outlook?count=0", http.StatusBadRequest, 0},
		{"above max", "/v1/outlook?count=21", http.StatusBadRequest, 0},
		{"not a number", "/v1/outlook?count=x", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dash := &mockDashboard{outlook: outlook}
			h := NewHandler(dash, testHandlerConfig, nil, nil, nil)

			w := serve(t, h, httptest.NewRequest("GET", tt.path, nil))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				if body := decodeError(t, w); body.Error.Code != "INVALID_COUNT" {
					t.Errorf("error code = %q, want INVALID_COUNT", body.Error.Code)
				}
				return
			}
			if dash.outlookN != tt.wantCount {
				t.Errorf("Outlook got n=%d, want %d", dash.outlookN, tt.wantCount)
			}
			var resp struct {
				Cities []struct {
					Name    string                    `json:"name"`
					Weather *models.BatchWeatherPoint `json:"weather"`
				} `json:"cities"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Cities) != 2 || resp.Cities[0].Name != "London" || resp.Cities[1].Weather != nil {
				t.Errorf("cities = %+v", resp.Cities)
			}
		})
	}
}

func TestHandler_StoreErrorIsInternal(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	dash := &mockDashboard{err: errors.New("store down")}
	h := NewHandler(dash, testHandlerConfig, nil, nil, nil)
	router := NewRouter(h, RouterConfig{Logger: zap.New(core)})

	for _, path := range []string{"/v1/outlook", "/v1/map"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("%s status = %d, want 500", path, w.Code)
		}
		if strings.Contains(w.Body.String(), "store down") {
			t.Errorf("%s leaked internal error: %s", path, w.Body.String())
		}
	}
	if logs.FilterMessage("request failed").Len() != 2 {
		t.Errorf("want 2 'request failed' logs, got %d", logs.FilterMessage("request failed").Len())
	}
}

func TestHandler_GetMap(t *testing.T) {
	dash := &mockDashboard{mapData: []service.CityWeather{
		{City: cities.City{Name: "New York"}, Weather: &models.BatchWeatherPoint{Temperature: 20}},
	}}
	h := NewHandler(dash, testHandlerConfig, nil, nil, nil)

	w := serve(t, h, httptest.NewRequest("GET", "/v1/map", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"name":"New York"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHandler_GetHealth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*traffic.Tracker, *lifecycle.State)
		wantStatus string
		wantCode   int
	}{
		{"healthy with no traffic", func(*traffic.Tracker, *lifecycle.State) {}, "healthy", http.StatusOK},
		{"healthy below threshold", func(tr *traffic.Tracker, _ *lifecycle.State) {
			tr.RecordSuccess()
			tr.RecordSuccess()
			tr.RecordError()
		}, "healthy", http.StatusOK},
		{"degraded at threshold", func(tr *traffic.Tracker, _ *lifecycle.State) {
			tr.RecordSuccess()
			tr.RecordError()
		}, "degraded", http.StatusServiceUnavailable},
		{"overloaded above denial budget", func(tr *traffic.Tracker, _ *lifecycle.State) {
			for i := 0; i < 9; i++ {
				tr.RecordDenied()
			}
		}, "overloaded", http.StatusServiceUnavailable},
		{"overload wins over degraded", func(tr *traffic.Tracker, _ *lifecycle.State) {
			for i := 0; i < 9; i++ {
				tr.RecordError()
			}
		}, "overloaded", http.StatusServiceUnavailable},
		{"shutting down wins", func(tr *traffic.Tracker, s *lifecycle.State) {
			tr.RecordError()
			s.SetShuttingDown(true)
		}, "shutting-down", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := traffic.NewTracker(nil)
			state := lifecycle.New(time.Now())
			tt.setup(outcomes, state)
			cfg := testHandlerConfig
			cfg.Upstreams = []string{"weather"}
			cfg.BreakerState = func(string) string { return "closed" }
			cfg.CachePing = func() error { return errors.New("down") }
			h := NewHandler(&mockDashboard{}, cfg, outcomes, state, nil)

			w := serve(t, h, httptest.NewRequest("GET", "/health", nil))
			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			var resp struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Checks["weather"] != "closed" || resp.Checks["searchCache"] != "unhealthy" {
				t.Errorf("checks = %v", resp.Checks)
			}
		})
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	outcomes := traffic.NewTracker(nil)
	state := lifecycle.New(time.Now())
	h := NewHandler(&mockDashboard{}, testHandlerConfig, outcomes, state, zap.New(core))

	serve(t, h, httptest.NewRequest("GET", "/health", nil))
	state.SetShuttingDown(true)
	serve(t, h, httptest.NewRequest("GET", "/health", nil))

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["current_status"]; got != "shutting-down" {
		t.Errorf("current_status = %v, want shutting-down", got)
	}
}

func TestHandler_OutcomesFeedDegraded(t *testing.T) {
	outcomes := traffic.NewTracker(nil)
	h := NewHandler(&mockDashboard{ok: false}, testHandlerConfig, outcomes, nil, nil)

	serve(t, h, httptest.NewRequest("GET", "/v1/weather?lat=1&lon=1", nil))
	serve(t, h, httptest.NewRequest("GET", "/v1/weather?lat=1&lon=1", nil))
	// Validation failures are not upstream outcomes.
	serve(t, h, httptest.NewRequest("GET", "/v1/weather?lat=x&lon=1", nil))

	if errors, total := outcomes.ErrorRate(time.Minute); errors != 2 || total != 2 {
		t.Errorf("ErrorRate() = (%d, %d), want (2, 2)", errors, total)
	}
	if got := h.computeHealthStatus().status; got != "degraded" {
		t.Errorf("health = %q, want degraded", got)
	}
}

func TestHandler_PartialBatchCountsAsError(t *testing.T) {
	outcomes := traffic.NewTracker(nil)
	dash := &mockDashboard{points: []models.BatchWeatherPoint{{Complete: true}}}
	h := NewHandler(dash, testHandlerConfig, outcomes, nil, nil)

	serve(t, h, httptest.NewRequest("POST", "/v1/weather/batch",
		strings.NewReader(`{"coordinates":[{"lat":1,"lon":1},{"lat":2,"lon":2}]}`)))

	if errors, total := outcomes.ErrorRate(time.Minute); errors != 1 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 1)", errors, total)
	}
}
