// Package geo resolves where the user is: by IP address through an ordered
// chain of providers, or by free-text search over the bundled city list with
// remote geocoding as the fallback.
package geo

import (
	"context"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/cities"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

const (
	// MinQueryLength is the shortest trimmed query, in runes, that triggers a lookup.
	MinQueryLength = 2
	// LocalLimit caps bundled-list matches.
	LocalLimit = 3
	// PopularCityAdmin1 is the region label given to bundled-list matches.
	PopularCityAdmin1 = "Popular City"

	localIDBase     = 10000
	defaultCacheTTL = time.Hour
)

// Options configures a Resolver. Nil Cities skips the local stage; nil
// Geocoder skips the remote stage; nil Cache disables memoization.
type Options struct {
	Providers []IPProvider
	Cities    cities.Store
	Geocoder  Geocoder
	Cache     cache.LocationCache
	CacheTTL  time.Duration
	Logger    *zap.Logger
}

// Resolver implements IP-based location and location search. Neither
// operation returns an error: failures degrade to absence or an empty list.
type Resolver struct {
	providers []IPProvider
	cities    cities.Store
	geocoder  Geocoder
	cache     cache.LocationCache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

func NewResolver(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Resolver{
		providers: append([]IPProvider(nil), opts.Providers...),
		cities:    opts.Cities,
		geocoder:  opts.Geocoder,
		cache:     opts.Cache,
		cacheTTL:  ttl,
		logger:    logger,
	}
}

// ResolveByIP tries each provider in order and returns the first success.
// Providers are never raced or retried. The boolean is false when every
// provider failed; callers substitute their default location.
func (r *Resolver) ResolveByIP(ctx context.Context, ip string) (models.GeoLocation, bool) {
	logger := observability.LoggerFrom(ctx, r.logger)
	ip = publicIP(ip)

	for _, p := range r.providers {
		if err := ctx.Err(); err != nil {
			logger.Warn("ip resolution cancelled", zap.Error(err))
			break
		}
		loc, err := p.Locate(ctx, ip)
		if err != nil {
			logger.Warn("ip provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("category", string(client.CategorizeError(err))),
				zap.Error(err))
			continue
		}
		observability.IPResolutionsTotal.WithLabelValues(p.Name()).Inc()
		logger.Debug("ip resolved", zap.String("provider", p.Name()), zap.String("name", loc.Name))
		return loc, true
	}

	observability.IPResolutionsTotal.WithLabelValues("none").Inc()
	logger.Warn("all ip providers failed", zap.Int("providers", len(r.providers)))
	return models.GeoLocation{}, false
}

// publicIP returns ip when it is a routable address. Loopback, private and
// unparsable addresses map to "", which asks providers to locate the caller.
func publicIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ""
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() || parsed.IsMulticast() {
		return ""
	}
	return parsed.String()
}

// Search returns candidate locations for query. Queries shorter than
// MinQueryLength runes after trimming yield an empty list without any lookup.
// Bundled cities are checked first (at most LocalLimit); only when none match
// is the remote geocoder consulted (at most RemoteLimit).
func (r *Resolver) Search(ctx context.Context, query string) []models.GeoLocation {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < MinQueryLength {
		observability.SearchTotal.WithLabelValues("short").Inc()
		return []models.GeoLocation{}
	}
	logger := observability.LoggerFrom(ctx, r.logger).With(zap.String("query", q))

	if r.cities != nil {
		matches, err := r.cities.Match(ctx, q, LocalLimit)
		if err != nil {
			logger.Warn("local city match failed", zap.Error(err))
		} else if len(matches) > 0 {
			observability.SearchTotal.WithLabelValues("local").Inc()
			return localResults(matches)
		}
	}

	return r.searchRemote(ctx, q, logger)
}

func localResults(matches []cities.City) []models.GeoLocation {
	n := len(matches)
	if n > LocalLimit {
		n = LocalLimit
	}
	out := make([]models.GeoLocation, n)
	for i := 0; i < n; i++ {
		c := matches[i]
		out[i] = models.GeoLocation{
			ID:        localIDBase + i,
			Name:      c.Name,
			Country:   c.Country,
			Admin1:    PopularCityAdmin1,
			Latitude:  c.Lat,
			Longitude: c.Lon,
		}
	}
	return out
}

func (r *Resolver) searchRemote(ctx context.Context, q string, logger *zap.Logger) []models.GeoLocation {
	if r.geocoder == nil {
		return []models.GeoLocation{}
	}
	key := strings.ToLower(q)

	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			logger.Debug("search cache get failed", zap.Error(err))
		} else if ok {
			observability.SearchTotal.WithLabelValues("cache").Inc()
			return cached
		}
	}

	results, err := r.geocoder.Search(ctx, q)
	if err != nil {
		observability.SearchTotal.WithLabelValues("failed").Inc()
		logger.Warn("geocoding failed",
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		return []models.GeoLocation{}
	}
	if len(results) > RemoteLimit {
		results = results[:RemoteLimit]
	}
	observability.SearchTotal.WithLabelValues("remote").Inc()

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, results, r.cacheTTL); err != nil {
			logger.Debug("search cache set failed", zap.Error(err))
		}
	}
	if results == nil {
		results = []models.GeoLocation{}
	}
	return results
}
