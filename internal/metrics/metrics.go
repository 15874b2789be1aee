package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes used as the "outcome" label.
const (
	OutcomeOK       = "ok"
	OutcomeStatus   = "bad_status"
	OutcomeError    = "transport_error"
	OutcomeBlocked  = "blocked"
	OutcomeDecode   = "decode_error"
	OutcomeInvalid  = "invalid_source"
	OutcomeCacheHit = "cache_hit"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painminer_fetch_requests_total",
			Help: "Total number of source fetches by outcome",
		},
		[]string{"source", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "painminer_fetch_duration_seconds",
			Help:    "Duration of source fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source"},
	)

	FetchedPostsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painminer_fetched_posts_total",
			Help: "Total raw posts returned by source fetches",
		},
		[]string{"source"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painminer_cache_lookups_total",
			Help: "Fetch cache lookups by result",
		},
		[]string{"result"},
	)

	RankedPosts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "painminer_ranked_posts",
			Help:    "Number of ranked posts kept per search job",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painminer_jobs_total",
			Help: "Search jobs by lifecycle event",
		},
		[]string{"status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "painminer_job_duration_seconds",
			Help:    "Wall time of search job runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	SummarizerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painminer_summarizer_calls_total",
			Help: "Summarizer invocations by outcome",
		},
		[]string{"outcome"},
	)

	SummarizerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "painminer_summarizer_duration_seconds",
			Help:    "Duration of text-generation calls in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120},
		},
	)
)

// RecordFetch updates the fetch metrics for one source request.
func RecordFetch(source, outcome string, posts int, d time.Duration) {
	FetchRequestsTotal.WithLabelValues(source, outcome).Inc()
	if outcome == OutcomeInvalid || outcome == OutcomeCacheHit {
		return
	}
	FetchDuration.WithLabelValues(source).Observe(d.Seconds())
	FetchedPostsTotal.WithLabelValues(source).Add(float64(posts))
}

// RecordJob records a terminal job transition and its run time.
func RecordJob(status string, d time.Duration) {
	JobsTotal.WithLabelValues(status).Inc()
	JobDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordSummarize records one summarizer pass. A zero duration means no
// external call was made.
func RecordSummarize(outcome string, d time.Duration) {
	SummarizerCallsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		SummarizerDuration.Observe(d.Seconds())
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on addr and exposes /metrics in the background.
func Start(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
