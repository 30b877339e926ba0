//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"

	"github.com/kjstillabower/weather-dashboard/internal/config"
)

// IntegrationConfig returns a config pointed at the live public APIs.
// Skips the test unless INTEGRATION_UPSTREAMS=1, since it needs network access.
// INTEGRATION_CACHE_BACKEND=memcached uses MEMCACHED_ADDRS (default localhost:11211).
func IntegrationConfig(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("INTEGRATION_UPSTREAMS") != "1" {
		t.Skip("INTEGRATION_UPSTREAMS not set, skipping live upstream test")
	}
	cfg := config.Default()
	cfg.RateLimitRPS = 0
	if os.Getenv("INTEGRATION_CACHE_BACKEND") == config.CacheMemcached {
		cfg.SearchCacheBackend = config.CacheMemcached
		cfg.MemcachedAddrs = os.Getenv("MEMCACHED_ADDRS")
		if cfg.MemcachedAddrs == "" {
			cfg.MemcachedAddrs = "localhost:11211"
		}
	}
	return cfg
}
