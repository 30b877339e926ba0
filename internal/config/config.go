package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Search cache backends.
const (
	CacheNone      = "none"
	CacheInMemory  = "in_memory"
	CacheMemcached = "memcached"
)

// City store backends.
const (
	CityStoreMemory = "memory"
	CityStoreSQLite = "sqlite"
)

// ErrConfigNotFound is returned by Load when config/{ENV_NAME}.yaml does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIURL   string
	GeocodingAPIURL string
	GeoJSURL        string
	IPAPIURL        string
	UpstreamTimeout time.Duration
	UserAgent       string

	RequestTimeout time.Duration

	BatchChunkSize      int
	BatchMaxCoordinates int

	OutlookDefaultCount int
	OutlookMaxCount     int

	DefaultLocation models.GeoLocation

	SearchCacheBackend    string // "none", "in_memory" or "memcached"
	SearchCacheTTL        time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CityStore     string // "memory" or "sqlite"
	CityStoreName string

	BreakerEnabled     bool
	BreakerFailures    int
	BreakerOpenTimeout time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	DegradedWindow   time.Duration
	DegradedErrorPct int

	OverloadWindow       time.Duration
	OverloadThresholdPct int

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Upstreams struct {
		WeatherURL   string `yaml:"weather_url"`
		GeocodingURL string `yaml:"geocoding_url"`
		GeoJSURL     string `yaml:"geojs_url"`
		IPAPIURL     string `yaml:"ipapi_url"`
		Timeout      string `yaml:"timeout"`
		UserAgent    string `yaml:"user_agent"`
	} `yaml:"upstreams"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Batch struct {
		ChunkSize      int `yaml:"chunk_size"`
		MaxCoordinates int `yaml:"max_coordinates"`
	} `yaml:"batch"`

	Outlook struct {
		DefaultCount int `yaml:"default_count"`
		MaxCount     int `yaml:"max_count"`
	} `yaml:"outlook"`

	DefaultLocation struct {
		Name      string   `yaml:"name"`
		Country   string   `yaml:"country"`
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
	} `yaml:"default_location"`

	SearchCache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"search_cache"`

	Cities struct {
		Store      string `yaml:"store"`
		SQLiteName string `yaml:"sqlite_name"`
	} `yaml:"cities"`

	CircuitBreaker struct {
		Enabled             *bool  `yaml:"enabled"`
		ConsecutiveFailures int    `yaml:"consecutive_failures"`
		OpenTimeout         string `yaml:"open_timeout"`
	} `yaml:"circuit_breaker"`

	RateLimit struct {
		RPS   int `yaml:"rps"`
		Burst int `yaml:"burst"`
	} `yaml:"rate_limit"`

	Lifecycle struct {
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
	} `yaml:"lifecycle"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Load reads .env (if present), then config/{ENV_NAME}.yaml (default dev), then
// applies env overrides. Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := fromFile(fc)
	applyEnv(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	cfg := fromFile(fileConfig{})
	_ = validate(cfg)
	return cfg
}

func fromFile(fc fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIURL = orDefault(fc.Upstreams.WeatherURL, "https://api.open-meteo.com/v1/forecast")
	cfg.GeocodingAPIURL = orDefault(fc.Upstreams.GeocodingURL, "https://geocoding-api.open-meteo.com/v1/search")
	cfg.GeoJSURL = orDefault(fc.Upstreams.GeoJSURL, "https://get.geojs.io")
	cfg.IPAPIURL = orDefault(fc.Upstreams.IPAPIURL, "https://ipapi.co")
	cfg.UpstreamTimeout = parseDurationOrZero(fc.Upstreams.Timeout, 10*time.Second)
	cfg.UserAgent = orDefault(fc.Upstreams.UserAgent, "weather-dashboard/1.0")

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.BatchChunkSize = fc.Batch.ChunkSize
	if cfg.BatchChunkSize <= 0 {
		cfg.BatchChunkSize = 50
	}
	cfg.BatchMaxCoordinates = fc.Batch.MaxCoordinates
	if cfg.BatchMaxCoordinates <= 0 {
		cfg.BatchMaxCoordinates = 500
	}

	cfg.OutlookDefaultCount = fc.Outlook.DefaultCount
	if cfg.OutlookDefaultCount <= 0 {
		cfg.OutlookDefaultCount = 4
	}
	cfg.OutlookMaxCount = fc.Outlook.MaxCount
	if cfg.OutlookMaxCount <= 0 {
		cfg.OutlookMaxCount = 20
	}

	cfg.DefaultLocation = models.GeoLocation{
		ID:        1,
		Name:      orDefault(fc.DefaultLocation.Name, "New York"),
		Country:   orDefault(fc.DefaultLocation.Country, "USA"),
		Latitude:  40.7143,
		Longitude: -74.006,
	}
	if fc.DefaultLocation.Latitude != nil {
		cfg.DefaultLocation.Latitude = *fc.DefaultLocation.Latitude
	}
	if fc.DefaultLocation.Longitude != nil {
		cfg.DefaultLocation.Longitude = *fc.DefaultLocation.Longitude
	}

	cfg.SearchCacheBackend = strings.TrimSpace(strings.ToLower(fc.SearchCache.Backend))
	if cfg.SearchCacheBackend == "" {
		cfg.SearchCacheBackend = CacheInMemory
	}
	cfg.SearchCacheTTL = parseDuration(fc.SearchCache.TTL, time.Hour)
	cfg.MemcachedAddrs = strings.TrimSpace(fc.SearchCache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.SearchCache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.SearchCache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.CityStore = strings.TrimSpace(strings.ToLower(fc.Cities.Store))
	if cfg.CityStore == "" {
		cfg.CityStore = CityStoreMemory
	}
	cfg.CityStoreName = orDefault(fc.Cities.SQLiteName, "cities")

	cfg.BreakerEnabled = true
	if fc.CircuitBreaker.Enabled != nil {
		cfg.BreakerEnabled = *fc.CircuitBreaker.Enabled
	}
	cfg.BreakerFailures = fc.CircuitBreaker.ConsecutiveFailures
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	cfg.BreakerOpenTimeout = parseDuration(fc.CircuitBreaker.OpenTimeout, 30*time.Second)

	cfg.RateLimitRPS = fc.RateLimit.RPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.RateLimit.Burst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 20
	}
	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	return cfg
}

// applyEnv overrides file values with environment variables where set.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SERVER_PORT")); v != "" {
		cfg.ServerPort = v
	}
	if v := strings.TrimSpace(os.Getenv("WEATHER_API_URL")); v != "" {
		cfg.WeatherAPIURL = v
	}
	if v := strings.TrimSpace(os.Getenv("GEOCODING_API_URL")); v != "" {
		cfg.GeocodingAPIURL = v
	}
	if v := strings.TrimSpace(strings.ToLower(os.Getenv("SEARCH_CACHE_BACKEND"))); v != "" {
		cfg.SearchCacheBackend = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")); v != "" {
		cfg.MemcachedAddrs = v
	}
	if v := strings.TrimSpace(strings.ToLower(os.Getenv("CITY_STORE"))); v != "" {
		cfg.CityStore = v
	}
}

func orDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above UpstreamTimeout when needed.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstreams.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}
	switch cfg.SearchCacheBackend {
	case CacheNone, CacheInMemory, CacheMemcached:
	default:
		return fmt.Errorf("search_cache.backend must be none, in_memory or memcached, got %q", cfg.SearchCacheBackend)
	}
	switch cfg.CityStore {
	case CityStoreMemory, CityStoreSQLite:
	default:
		return fmt.Errorf("cities.store must be memory or sqlite, got %q", cfg.CityStore)
	}
	if cfg.BatchChunkSize > 100 {
		return fmt.Errorf("batch.chunk_size must be at most 100, got %d", cfg.BatchChunkSize)
	}
	if !cfg.DefaultLocation.Valid() {
		return fmt.Errorf("default_location coordinates out of range: %v,%v",
			cfg.DefaultLocation.Latitude, cfg.DefaultLocation.Longitude)
	}
	if cfg.OutlookDefaultCount > cfg.OutlookMaxCount {
		return fmt.Errorf("outlook.default_count %d exceeds outlook.max_count %d",
			cfg.OutlookDefaultCount, cfg.OutlookMaxCount)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("lifecycle.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	if cfg.OverloadThresholdPct > 100 {
		return fmt.Errorf("lifecycle.overload_threshold_pct must be at most 100, got %d", cfg.OverloadThresholdPct)
	}
	return nil
}
