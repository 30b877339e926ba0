// Package testhelpers provides fake upstream APIs and integration-test setup
// shared by package tests.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Upstreams is one httptest server that answers like the forecast, geocoding,
// geojs and ipapi APIs, each under its own path prefix. Forecast temperature
// echoes the requested longitude so callers can check ordering.
type Upstreams struct {
	Server *httptest.Server

	mu       sync.Mutex
	hits     map[string]int
	failing  map[string]bool
	geocoded []GeocodeResult
}

// GeocodeResult is one fake geocoding match.
type GeocodeResult struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Admin1    string  `json:"admin1"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Upstream names accepted by Fail and Hits.
const (
	Forecast  = "forecast"
	Geocoding = "geocoding"
	GeoJS     = "geojs"
	IPAPI     = "ipapi"
)

// NewUpstreams starts the fake server and closes it when t ends.
func NewUpstreams(t *testing.T) *Upstreams {
	t.Helper()
	u := &Upstreams{
		hits:    make(map[string]int),
		failing: make(map[string]bool),
		geocoded: []GeocodeResult{
			{ID: 2950159, Name: "Berlin", Country: "Germany", Admin1: "Land Berlin", Latitude: 52.52437, Longitude: 13.41053},
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/forecast", u.serveForecast)
	mux.HandleFunc("/geocoding", u.serveGeocoding)
	mux.HandleFunc("/geojs/", u.serveGeoJS)
	mux.HandleFunc("/ipapi/", u.serveIPAPI)
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Server.Close)
	return u
}

// ForecastURL, GeocodingURL, GeoJSURL and IPAPIURL are base URLs for config.
func (u *Upstreams) ForecastURL() string  { return u.Server.URL + "/forecast" }
func (u *Upstreams) GeocodingURL() string { return u.Server.URL + "/geocoding" }
func (u *Upstreams) GeoJSURL() string     { return u.Server.URL + "/geojs" }
func (u *Upstreams) IPAPIURL() string     { return u.Server.URL + "/ipapi" }

// Fail makes the named upstream answer 500 (or restores it).
func (u *Upstreams) Fail(name string, fail bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failing[name] = fail
}

// SetGeocodeResults replaces what the geocoding endpoint returns.
func (u *Upstreams) SetGeocodeResults(results []GeocodeResult) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.geocoded = results
}

// Hits returns how many requests the named upstream has received.
func (u *Upstreams) Hits(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[name]
}

// record counts the hit and reports whether the upstream should fail.
func (u *Upstreams) record(w http.ResponseWriter, name string) bool {
	u.mu.Lock()
	u.hits[name]++
	fail := u.failing[name]
	u.mu.Unlock()
	if fail {
		http.Error(w, `{"error":true,"reason":"simulated"}`, http.StatusInternalServerError)
	}
	return fail
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (u *Upstreams) serveForecast(w http.ResponseWriter, r *http.Request) {
	if u.record(w, Forecast) {
		return
	}
	q := r.URL.Query()
	lats := strings.Split(q.Get("latitude"), ",")
	lons := strings.Split(q.Get("longitude"), ",")
	if len(lats) != len(lons) {
		http.Error(w, `{"error":true,"reason":"latitude and longitude count differ"}`, http.StatusBadRequest)
		return
	}

	if q.Get("daily") == "" {
		items := make([]map[string]interface{}, len(lons))
		for i, lon := range lons {
			temp, _ := strconv.ParseFloat(lon, 64)
			items[i] = map[string]interface{}{
				"current": map[string]interface{}{"temperature_2m": temp, "weather_code": 3, "wind_speed_10m": 4.2},
			}
		}
		if len(items) == 1 {
			writeJSON(w, items[0])
			return
		}
		writeJSON(w, items)
		return
	}

	temp, _ := strconv.ParseFloat(lons[0], 64)
	writeJSON(w, map[string]interface{}{
		"timezone": "Europe/Berlin",
		"current": map[string]interface{}{
			"time": "2024-06-01T12:00", "temperature_2m": temp, "relative_humidity_2m": 55,
			"weather_code": 2, "wind_speed_10m": 10.3, "is_day": 1, "apparent_temperature": temp - 1,
		},
		"hourly": map[string]interface{}{
			"time":                 []string{"2024-06-01T12:00", "2024-06-01T13:00"},
			"temperature_2m":       []float64{temp, temp + 0.5},
			"relative_humidity_2m": []float64{55, 53},
			"weather_code":         []int{2, 2},
		},
		"daily": map[string]interface{}{
			"time":               []string{"2024-06-01"},
			"weather_code":       []int{2},
			"temperature_2m_max": []float64{temp + 3},
			"temperature_2m_min": []float64{temp - 6},
			"sunrise":            []string{"2024-06-01T04:45"},
			"sunset":             []string{"2024-06-01T21:25"},
		},
	})
}

func (u *Upstreams) serveGeocoding(w http.ResponseWriter, r *http.Request) {
	if u.record(w, Geocoding) {
		return
	}
	u.mu.Lock()
	results := u.geocoded
	u.mu.Unlock()
	if len(results) == 0 {
		writeJSON(w, map[string]interface{}{"generationtime_ms": 0.1})
		return
	}
	writeJSON(w, map[string]interface{}{"results": results})
}

func (u *Upstreams) serveGeoJS(w http.ResponseWriter, r *http.Request) {
	if u.record(w, GeoJS) {
		return
	}
	writeJSON(w, map[string]string{
		"city": "Paris", "region": "Ile-de-France", "country": "France",
		"latitude": "48.8534", "longitude": "2.3488",
	})
}

func (u *Upstreams) serveIPAPI(w http.ResponseWriter, r *http.Request) {
	if u.record(w, IPAPI) {
		return
	}
	writeJSON(w, map[string]interface{}{
		"city": "Lyon", "region": "Auvergne-Rhone-Alpes", "country_name": "France",
		"latitude": 45.7485, "longitude": 4.8467,
	})
}
