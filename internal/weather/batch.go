package weather

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// DefaultChunkSize bounds how many coordinates go into one request URL.
const DefaultChunkSize = 50

// BatchFetcher retrieves lightweight current conditions for many coordinates.
type BatchFetcher struct {
	getter    client.Getter
	baseURL   string
	chunkSize int
	logger    *zap.Logger
}

// NewBatchFetcher returns a BatchFetcher. Non-positive chunkSize selects
// DefaultChunkSize; an empty baseURL selects DefaultBaseURL.
func NewBatchFetcher(getter client.Getter, baseURL string, chunkSize int, logger *zap.Logger) *BatchFetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchFetcher{getter: getter, baseURL: baseURL, chunkSize: chunkSize, logger: logger}
}

// FetchBatch returns one point per input coordinate, in input order. Chunks
// are fetched one after another; a chunk that fails contributes no points, so
// the result is shorter than the input rather than the whole batch failing.
// Cancelling ctx stops before the next chunk.
func (b *BatchFetcher) FetchBatch(ctx context.Context, coords []models.Coordinate) []models.BatchWeatherPoint {
	results := make([]models.BatchWeatherPoint, 0, len(coords))
	b.eachChunk(ctx, coords, func(_ int, _ []models.Coordinate, points []models.BatchWeatherPoint) {
		results = append(results, points...)
	})
	return results
}

// FetchBatchAligned is FetchBatch with positions preserved: out[i] belongs to
// coords[i] and is nil when its chunk failed or answered with a different
// number of elements than requested.
func (b *BatchFetcher) FetchBatchAligned(ctx context.Context, coords []models.Coordinate) []*models.BatchWeatherPoint {
	out := make([]*models.BatchWeatherPoint, len(coords))
	logger := observability.LoggerFrom(ctx, b.logger)
	b.eachChunk(ctx, coords, func(lo int, chunk []models.Coordinate, points []models.BatchWeatherPoint) {
		if len(points) != len(chunk) {
			logger.Warn("batch chunk misaligned, dropping",
				zap.Int("offset", lo),
				zap.Int("requested", len(chunk)),
				zap.Int("returned", len(points)))
			return
		}
		for i := range points {
			p := points[i]
			out[lo+i] = &p
		}
	})
	return out
}

// eachChunk fetches coords chunk by chunk and hands every successful chunk to
// fn with its offset into coords. Failed chunks are logged and skipped.
func (b *BatchFetcher) eachChunk(ctx context.Context, coords []models.Coordinate, fn func(lo int, chunk []models.Coordinate, points []models.BatchWeatherPoint)) {
	if len(coords) == 0 {
		return
	}
	logger := observability.LoggerFrom(ctx, b.logger)

	chunks := (len(coords) + b.chunkSize - 1) / b.chunkSize
	returned := 0
	for i := 0; i < chunks; i++ {
		if err := ctx.Err(); err != nil {
			logger.Warn("batch cancelled", zap.Int("chunk", i), zap.Int("chunks", chunks), zap.Error(err))
			break
		}
		lo := i * b.chunkSize
		hi := lo + b.chunkSize
		if hi > len(coords) {
			hi = len(coords)
		}

		points, err := b.fetchChunk(ctx, coords[lo:hi])
		if err != nil {
			observability.BatchChunksTotal.WithLabelValues("failure").Inc()
			logger.Warn("batch chunk failed",
				zap.Int("chunk", i),
				zap.Int("size", hi-lo),
				zap.String("category", string(client.CategorizeError(err))),
				zap.Error(err))
			continue
		}
		observability.BatchChunksTotal.WithLabelValues("success").Inc()
		returned += len(points)
		fn(lo, coords[lo:hi], points)
	}

	logger.Debug("batch fetched",
		zap.Int("requested", len(coords)),
		zap.Int("returned", returned),
		zap.Int("chunks", chunks))
}

func (b *BatchFetcher) fetchChunk(ctx context.Context, chunk []models.Coordinate) ([]models.BatchWeatherPoint, error) {
	u, err := b.buildURL(chunk)
	if err != nil {
		return nil, err
	}
	body, err := b.getter.GetBody(ctx, client.UpstreamBatch, u)
	if err != nil {
		return nil, err
	}
	payload, err := parseBatchPayload(body)
	if err != nil {
		return nil, err
	}

	points := make([]models.BatchWeatherPoint, 0, len(payload.items))
	for _, it := range payload.items {
		p := it.toPoint()
		if !p.Complete {
			observability.BatchIncompletePointsTotal.Inc()
		}
		points = append(points, p)
	}
	if payload.shape == shapeUnrecognized {
		observability.LoggerFrom(ctx, b.logger).Warn("batch response not recognized", zap.Int("size", len(chunk)))
	}
	return points, nil
}

func (b *BatchFetcher) buildURL(chunk []models.Coordinate) (string, error) {
	base, err := url.Parse(b.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid weather API URL: %w", err)
	}
	lats := make([]string, len(chunk))
	lons := make([]string, len(chunk))
	for i, c := range chunk {
		lats[i] = formatCoord(c.Lat)
		lons[i] = formatCoord(c.Lon)
	}
	params := url.Values{}
	params.Set("latitude", strings.Join(lats, ","))
	params.Set("longitude", strings.Join(lons, ","))
	params.Set("current", batchCurrentFields)
	base.RawQuery = params.Encode()
	return base.String(), nil
}
