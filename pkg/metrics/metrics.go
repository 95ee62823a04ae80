// Package metrics exposes Prometheus metrics for a sync run.
//
// # Basic Usage
//
//	metrics.RecordsEmitted.WithLabelValues("forms").Inc()
//
//	timer := metrics.NewTimer()
//	syncStream(ctx, stream)
//	metrics.StreamDuration.WithLabelValues("forms").Observe(timer.Stop().Seconds())
//
// Metrics are served on demand with Serve; a run without --metrics-addr
// still records them but nothing scrapes them.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// APIRequests counts API responses by status code.
	// Labels: method, status_code
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_jotform_api_requests_total",
			Help: "Total number of Jotform API responses",
		},
		[]string{"method", "status_code"},
	)

	// APIRequestDuration tracks API latency in seconds.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tap_jotform_api_request_duration_seconds",
			Help:    "Jotform API request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	// APILimitLeft is the last limit-left value returned by the API.
	APILimitLeft = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tap_jotform_api_limit_left",
			Help: "Remaining daily API quota reported by the last response",
		},
	)

	// CacheLookups counts response cache lookups.
	// Labels: result (hit, miss, expired)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_jotform_cache_lookups_total",
			Help: "HTTP response cache lookups",
		},
		[]string{"result"},
	)

	// RecordsEmitted counts RECORD messages written per stream.
	RecordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_jotform_records_emitted_total",
			Help: "Records written to the output",
		},
		[]string{"stream"},
	)

	// RecordsSkipped counts records dropped per stream.
	// Labels: stream, reason (duplicate_key)
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_jotform_records_skipped_total",
			Help: "Records dropped before output",
		},
		[]string{"stream", "reason"},
	)

	// PagesFetched counts pages read per stream.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tap_jotform_pages_fetched_total",
			Help: "API pages read",
		},
		[]string{"stream"},
	)

	// StreamDuration tracks how long each stream sync takes in seconds.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tap_jotform_stream_duration_seconds",
			Help:    "Stream sync duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		},
		[]string{"stream"},
	)
)

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves /metrics until its context is cancelled.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// Listen binds addr and returns a server ready to Serve.
func Listen(addr string, logger *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	return &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger.With(zap.String("component", "metrics_server")),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving metrics", zap.String("addr", s.Addr()))
		errCh <- s.srv.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
