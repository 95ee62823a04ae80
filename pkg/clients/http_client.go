// Package clients provides the HTTP client used to talk to the Jotform API
package clients

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/tap-jotform/pkg/config"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/json"
	"github.com/ajitpratap0/tap-jotform/pkg/metrics"
	"github.com/ajitpratap0/tap-jotform/pkg/observability"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// HTTPConfig configures the underlying transport
type HTTPConfig struct {
	// Connection settings
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`

	// HTTP/2 settings
	EnableHTTP2 bool `json:"enable_http2"`

	// Timeouts
	DialTimeout           time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout"`
	KeepAlive             time.Duration `json:"keep_alive"`

	// TLS settings
	TLSMinVersion uint16 `json:"tls_min_version"`
}

// DefaultHTTPConfig returns default transport configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		EnableHTTP2:           true,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		KeepAlive:             30 * time.Second,
		TLSMinVersion:         tls.VersionTLS12,
	}
}

// NewTransport builds an http.Transport from cfg.
func NewTransport(cfg *HTTPConfig, logger *zap.Logger) *http.Transport {
	if cfg == nil {
		cfg = DefaultHTTPConfig()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: cfg.TLSMinVersion,
		},
	}

	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	return transport
}

// APIConfig configures an APIClient.
type APIConfig struct {
	BaseURL        string
	APIKey         string
	UserAgent      string
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	MaxRetryDelay  time.Duration
	RateLimit      float64
	RateBurst      int
}

// APIConfigFromConfig extracts the client settings from the tap config.
func APIConfigFromConfig(cfg *config.Config) *APIConfig {
	return &APIConfig{
		BaseURL:        cfg.APIURL,
		APIKey:         cfg.APIKey,
		UserAgent:      cfg.UserAgent,
		RequestTimeout: cfg.Timeouts.Request,
		RetryAttempts:  cfg.Reliability.RetryAttempts,
		RetryDelay:     cfg.Reliability.RetryDelay,
		MaxRetryDelay:  cfg.Reliability.MaxRetryDelay,
		RateLimit:      float64(cfg.Reliability.RateLimitPerSec),
		RateBurst:      1,
	}
}

// Envelope is the decoded Jotform response wrapper.
type Envelope struct {
	ResponseCode int
	Message      string
	// Content is the raw "content" member, an array or an object.
	Content json.RawMessage
	// LimitLeft is the remaining daily quota when HasLimitLeft is set.
	LimitLeft    int64
	HasLimitLeft bool
	FromCache    bool
}

type wireEnvelope struct {
	ResponseCode json.RawMessage `json:"responseCode"`
	Message      string          `json:"message"`
	Content      json.RawMessage `json:"content"`
	LimitLeft    json.RawMessage `json:"limit-left"`
}

// APIClient issues authenticated GET requests against the Jotform API.
type APIClient struct {
	config      *APIConfig
	client      *resty.Client
	rateLimiter RateLimiter
	logger      *zap.Logger
}

// NewAPIClient creates a client. transport may be nil to use a default
// transport; pass a CacheTransport to enable response caching.
func NewAPIClient(cfg *APIConfig, transport http.RoundTripper, logger *zap.Logger) *APIClient {
	logger = logger.With(zap.String("component", "api_client"))
	if transport == nil {
		transport = NewTransport(DefaultHTTPConfig(), logger)
	}

	c := &APIClient{
		config:      cfg,
		rateLimiter: NewTokenBucketRateLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:      logger,
	}

	client := resty.New().
		SetTransport(transport).
		SetLogger(logger.Sugar()).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetQueryParam("apikey", cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryAttempts).
		AddRetryCondition(shouldRetry).
		SetRetryAfter(retryAfter)
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.RequestTimeout > 0 {
		client.SetTimeout(cfg.RequestTimeout)
	}
	if cfg.RetryDelay > 0 {
		client.SetRetryWaitTime(cfg.RetryDelay)
	}
	if cfg.MaxRetryDelay > 0 {
		client.SetRetryMaxWaitTime(cfg.MaxRetryDelay)
	}

	client.OnBeforeRequest(c.onBeforeRequest)
	client.OnAfterResponse(c.onAfterResponse)
	client.OnError(c.onError)

	c.client = client
	return c
}

// Get fetches path with params and decodes the response envelope.
func (c *APIClient) Get(ctx context.Context, path string, params url.Values) (env *Envelope, err error) {
	ctx, span := observability.StartSpan(ctx, "jotform.get", attribute.String("http.path", path))
	defer func() { observability.EndSpan(span, err) }()

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request cancelled").
				WithDetail("path", path)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed").
			WithDetail("path", path)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	if resp.IsError() {
		return nil, errors.FromHTTPStatus(resp.StatusCode(), resp.String()).WithDetail("path", path)
	}

	env, err = DecodeEnvelope(resp.Body())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode response").
			WithDetail("path", path)
	}
	env.FromCache = resp.Header().Get(FromCacheHeader) == "1"

	fields := []zap.Field{zap.String("path", path), zap.Bool("from_cache", env.FromCache)}
	if env.HasLimitLeft {
		metrics.APILimitLeft.Set(float64(env.LimitLeft))
		fields = append(fields, zap.Int64("limit_left", env.LimitLeft))
	}
	c.logger.Info("Received response", fields...)

	return env, nil
}

// RateLimiterStats returns the client-side limiter statistics.
func (c *APIClient) RateLimiterStats() RateLimiterStats {
	return c.rateLimiter.GetStats()
}

// DecodeEnvelope parses a Jotform response body. A body without a content
// member is a data error.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}

	if len(wire.Content) == 0 || string(wire.Content) == "null" {
		return nil, errors.New(errors.ErrorTypeData, "response has no content")
	}

	env := &Envelope{
		Message: wire.Message,
		Content: wire.Content,
	}
	if code, ok := parseLooseInt(wire.ResponseCode); ok {
		env.ResponseCode = int(code)
	}
	env.LimitLeft, env.HasLimitLeft = parseLooseInt(wire.LimitLeft)
	return env, nil
}

// parseLooseInt reads a JSON number or numeric string.
func parseLooseInt(raw json.RawMessage) (int64, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *APIClient) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	return c.rateLimiter.Wait(req.Context())
}

func (c *APIClient) onAfterResponse(_ *resty.Client, resp *resty.Response) error {
	status := strconv.Itoa(resp.StatusCode())
	metrics.APIRequests.WithLabelValues(resp.Request.Method, status).Inc()
	metrics.APIRequestDuration.WithLabelValues(resp.Request.Method).Observe(resp.Time().Seconds())

	c.logger.Debug("request completed",
		zap.String("method", resp.Request.Method),
		zap.String("path", requestPath(resp.Request)),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("latency", resp.Time()),
		zap.Int("attempt", resp.Request.Attempt),
	)
	return nil
}

func (c *APIClient) onError(req *resty.Request, err error) {
	c.logger.Warn("request failed",
		zap.String("method", req.Method),
		zap.String("path", requestPath(req)),
		zap.Int("attempt", req.Attempt),
		zap.Error(err),
	)
}

// requestPath returns the request path without the query string, which
// carries the API key.
func requestPath(req *resty.Request) string {
	if req.RawRequest != nil {
		return req.RawRequest.URL.Path
	}
	if u, err := url.Parse(req.URL); err == nil {
		return u.Path
	}
	return ""
}

func shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
}

// retryAfter honours a Retry-After header in seconds. A zero duration lets
// resty fall back to its exponential backoff.
func retryAfter(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
	if resp == nil {
		return 0, nil
	}
	if secs, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, nil
}
