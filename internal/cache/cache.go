package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// LocationCache defines the interface for geocoding result caching.
// Only location lookups are cached; weather data is always fetched live.
// Get returns cached results if present and not expired, Set stores them with TTL.
type LocationCache interface {
	Get(ctx context.Context, key string) ([]models.GeoLocation, bool, error)
	Set(ctx context.Context, key string, value []models.GeoLocation, ttl time.Duration) error
}

// InMemoryCache implements LocationCache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
}

// cacheEntry stores cached results with expiration timestamp.
type cacheEntry struct {
	value     []models.GeoLocation
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves cached results for the key if present and not expired.
// Returns (results, true, nil) on cache hit, (nil, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]models.GeoLocation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}

	return cloneLocations(entry.value), true, nil
}

// Set stores results in cache with the specified TTL duration.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []models.GeoLocation, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     cloneLocations(value),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func cloneLocations(in []models.GeoLocation) []models.GeoLocation {
	out := make([]models.GeoLocation, len(in))
	copy(out, in)
	return out
}
