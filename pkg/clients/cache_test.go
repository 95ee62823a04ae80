package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func countingServer(t *testing.T, status int) (*httptest.Server, *int32) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func get(t *testing.T, client *http.Client, url string) *http.Response {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp
}

func TestCacheTransport_HitAndExpiry(t *testing.T) {
	server, calls := countingServer(t, http.StatusOK)

	transport := NewCacheTransport(nil, NewMemoryCache(), time.Minute, zaptest.NewLogger(t))
	clock := time.Now()
	transport.now = func() time.Time { return clock }
	client := &http.Client{Transport: transport}

	first := get(t, client, server.URL+"/user/forms?b=2&a=1")
	assert.Empty(t, first.Header.Get(FromCacheHeader))

	second := get(t, client, server.URL+"/user/forms?a=1&b=2")
	assert.Equal(t, "1", second.Header.Get(FromCacheHeader))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	clock = clock.Add(2 * time.Minute)
	third := get(t, client, server.URL+"/user/forms?a=1&b=2")
	assert.Empty(t, third.Header.Get(FromCacheHeader))
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestCacheTransport_ZeroExpiryDisablesStore(t *testing.T) {
	server, calls := countingServer(t, http.StatusOK)

	cache := NewMemoryCache()
	client := &http.Client{Transport: NewCacheTransport(nil, cache, 0, zaptest.NewLogger(t))}

	get(t, client, server.URL)
	get(t, client, server.URL)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Equal(t, 0, cache.Len())
}

func TestCacheTransport_ErrorsNotCached(t *testing.T) {
	server, calls := countingServer(t, http.StatusInternalServerError)

	cache := NewMemoryCache()
	client := &http.Client{Transport: NewCacheTransport(nil, cache, -1, zaptest.NewLogger(t))}

	get(t, client, server.URL)
	get(t, client, server.URL)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Equal(t, 0, cache.Len())
}

func TestSQLiteCache_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "http_cache.sqlite")

	cache, err := OpenSQLiteCache(ctx, path)
	require.NoError(t, err)

	stored := &CachedResponse{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"content":[]}`),
		StoredAt:   time.Unix(1700000000, 0),
	}
	require.NoError(t, cache.Set(ctx, "k", stored))
	require.NoError(t, cache.Close())

	cache, err = OpenSQLiteCache(ctx, path)
	require.NoError(t, err)
	defer cache.Close()

	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored.StatusCode, got.StatusCode)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, stored.Body, got.Body)
	assert.True(t, stored.StoredAt.Equal(got.StoredAt))

	require.NoError(t, cache.Delete(ctx, "k"))
	_, ok, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheKey_IgnoresQueryOrder(t *testing.T) {
	a, _ := http.NewRequest(http.MethodGet, "https://api.jotform.com/user/forms?limit=100&offset=200", nil)
	b, _ := http.NewRequest(http.MethodGet, "https://api.jotform.com/user/forms?offset=200&limit=100", nil)
	c, _ := http.NewRequest(http.MethodGet, "https://api.jotform.com/user/forms?offset=300&limit=100", nil)

	assert.Equal(t, CacheKey(a), CacheKey(b))
	assert.NotEqual(t, CacheKey(a), CacheKey(c))
}
