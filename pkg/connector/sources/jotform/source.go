// Package jotform implements the Jotform source connector.
package jotform

import (
	"context"
	"io"
	"net/http"

	"github.com/ajitpratap0/tap-jotform/pkg/clients"
	"github.com/ajitpratap0/tap-jotform/pkg/config"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/core"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/metrics"
	"github.com/ajitpratap0/tap-jotform/pkg/pool"
	"go.uber.org/zap"
)

// ConnectorName is the registry name of this source.
const ConnectorName = "jotform"

// Source reads Jotform entities through the REST API.
type Source struct {
	config  *config.Config
	client  *clients.APIClient
	cache   clients.Cache
	streams []*core.Stream
	logger  *zap.Logger
}

// NewSource creates an uninitialized source.
func NewSource(logger *zap.Logger) (core.Source, error) {
	return &Source{
		logger: logger.With(zap.String("connector", ConnectorName)),
	}, nil
}

// Initialize builds the HTTP client, and the response cache when enabled.
func (s *Source) Initialize(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}
	s.config = cfg
	s.streams = Streams(cfg.IncludeDeprecatedStreams)

	transport := clients.NewTransport(clients.DefaultHTTPConfig(), s.logger)
	var rt http.RoundTripper = transport

	if cfg.RequestsCache.Enabled {
		cache, err := s.openCache(ctx)
		if err != nil {
			return err
		}
		s.cache = cache
		rt = clients.NewCacheTransport(transport, cache, cfg.CacheExpiry(), s.logger)
	}

	s.client = clients.NewAPIClient(clients.APIConfigFromConfig(cfg), rt, s.logger)
	s.logger.Info("source initialized",
		zap.String("api_url", cfg.APIURL),
		zap.Int("streams", len(s.streams)),
		zap.Bool("cache_enabled", cfg.RequestsCache.Enabled),
	)
	return nil
}

func (s *Source) openCache(ctx context.Context) (clients.Cache, error) {
	switch s.config.RequestsCache.Config.Backend {
	case config.CacheBackendMemory:
		return clients.NewMemoryCache(), nil
	default:
		path := s.config.CachePath()
		cache, err := clients.OpenSQLiteCache(ctx, path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open response cache").
				WithDetail("path", path)
		}
		s.logger.Info("using response cache", zap.String("path", path))
		return cache, nil
	}
}

// Streams returns the streams offered by this source in sync order.
func (s *Source) Streams() []*core.Stream {
	if s.streams == nil {
		return Streams(true)
	}
	return s.streams
}

// Read starts a pass over stream. Pages are requested one at a time as the
// caller pulls records, so a page is fetched only once the previous one has
// been consumed. Records from child streams carry their context under the
// "context" metadata key.
func (s *Source) Read(_ context.Context, stream *core.Stream, req *core.StreamRequest) (*core.RecordStream, error) {
	if s.client == nil {
		return nil, errors.New(errors.ErrorTypeInternal, "source is not initialized")
	}
	path, err := stream.ResolvePath(req.Context)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(zap.String("stream", stream.Name))
	if stream.Paginated && stream.IsIncremental() && req.Bookmark != "" {
		logger.Info("Bookmark found", zap.String("bookmark", req.Bookmark))
	}

	paginator := stream.NewPaginator(req.PageSize)
	return core.NewRecordStream(func(ctx context.Context) ([]*pool.Record, error) {
		if paginator.Finished() {
			return nil, io.EOF
		}
		offset := paginator.Current()
		records, err := s.fetchPage(ctx, stream, req, path, offset)
		if err != nil {
			return nil, err
		}
		logger.Debug("page fetched", zap.Int("offset", offset), zap.Int("rows", len(records)))
		paginator.Advance(len(records))
		return records, nil
	}), nil
}

// fetchPage requests the page at offset and transforms its rows.
func (s *Source) fetchPage(ctx context.Context, stream *core.Stream, req *core.StreamRequest, path string, offset int) ([]*pool.Record, error) {
	env, err := s.client.Get(ctx, path, stream.Params(req, offset))
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), "failed to fetch page").
			WithDetail("stream", stream.Name).
			WithDetail("offset", offset)
	}

	rows, err := stream.Parse(env.Content)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse page").
			WithDetail("stream", stream.Name).
			WithDetail("offset", offset)
	}
	metrics.PagesFetched.WithLabelValues(stream.Name).Inc()

	records := make([]*pool.Record, 0, len(rows))
	for i, row := range rows {
		if stream.Transform != nil {
			if row, err = stream.Transform(row); err != nil {
				for _, r := range records {
					r.Release()
				}
				return nil, err
			}
		}

		record := pool.NewRecord(stream.Name, row)
		record.Metadata.Source = ConnectorName
		record.SetOffset(int64(offset + i))
		if req.Context != nil {
			record.SetMetadata("context", req.Context)
		}
		records = append(records, record)
	}
	return records, nil
}

// Close releases the response cache.
func (s *Source) Close(_ context.Context) error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}
