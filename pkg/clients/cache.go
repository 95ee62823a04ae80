package clients

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ajitpratap0/tap-jotform/pkg/metrics"
	"go.uber.org/zap"
)

// FromCacheHeader is set to "1" on responses served from the cache.
const FromCacheHeader = "X-From-Cache"

// CachedResponse is a stored HTTP response.
type CachedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// Cache stores responses by key.
type Cache interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	Set(ctx context.Context, key string, resp *CachedResponse) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryCache is a Cache that lives for the duration of the process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CachedResponse
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*CachedResponse)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*CachedResponse, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp, ok := c.entries[key]
	return resp, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, resp *CachedResponse) error {
	c.mu.Lock()
	c.entries[key] = resp
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Close() error { return nil }

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CacheKey identifies a request by method and full URL. Query parameters
// are re-encoded in sorted order so equivalent requests share a key.
func CacheKey(req *http.Request) string {
	u := *req.URL
	u.RawQuery = u.Query().Encode()
	sum := sha256.Sum256([]byte(req.Method + " " + u.String()))
	return hex.EncodeToString(sum[:])
}

// CacheTransport is an http.RoundTripper that serves successful GET
// responses from a Cache.
//
// expireAfter follows the requests_cache convention: a negative value
// keeps entries forever, zero stores nothing, and a positive value is the
// entry lifetime.
type CacheTransport struct {
	base        http.RoundTripper
	cache       Cache
	expireAfter time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewCacheTransport wraps base with cache.
func NewCacheTransport(base http.RoundTripper, cache Cache, expireAfter time.Duration, logger *zap.Logger) *CacheTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &CacheTransport{
		base:        base,
		cache:       cache,
		expireAfter: expireAfter,
		logger:      logger.With(zap.String("component", "http_cache")),
		now:         time.Now,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *CacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || t.expireAfter == 0 {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	key := CacheKey(req)

	cached, ok, err := t.cache.Get(ctx, key)
	if err != nil {
		t.logger.Warn("cache lookup failed", zap.Error(err))
	}
	switch {
	case ok && t.expired(cached):
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		if err := t.cache.Delete(ctx, key); err != nil {
			t.logger.Warn("failed to delete expired entry", zap.Error(err))
		}
	case ok:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		t.logger.Debug("serving response from cache", zap.String("path", req.URL.Path))
		return cached.toResponse(req), nil
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := &CachedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   t.now(),
	}
	if err := t.cache.Set(ctx, key, entry); err != nil {
		t.logger.Warn("failed to store response", zap.Error(err))
	}
	return resp, nil
}

func (t *CacheTransport) expired(resp *CachedResponse) bool {
	if t.expireAfter < 0 {
		return false
	}
	return t.now().Sub(resp.StoredAt) >= t.expireAfter
}

func (c *CachedResponse) toResponse(req *http.Request) *http.Response {
	header := c.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(FromCacheHeader, "1")
	return &http.Response{
		Status:        strconv.Itoa(c.StatusCode) + " " + http.StatusText(c.StatusCode),
		StatusCode:    c.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(c.Body)),
		ContentLength: int64(len(c.Body)),
		Request:       req,
	}
}
