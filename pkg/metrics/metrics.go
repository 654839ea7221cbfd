// Package metrics provides the Prometheus registry and HTTP exposition for
// nftide. Metrics are defined in their respective packages (opensea,
// pagination, ratelimit) to keep packages modular and avoid import cycles.
//
// This package documents all available metrics and serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by nftide.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Server exposes metrics for the lifetime of a run.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// Start listens on addr and serves Handler in the background.
func Start(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &Server{
		httpServer: &http.Server{
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
	}

	logger := log.With().Str("component", "metrics").Logger()
	logger.Info().Str("addr", listener.Addr().String()).Msg("Serving metrics")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Metrics Documentation
//
// Request Metrics (pkg/opensea):
//   - nftide_requests_total{status} (Counter): OpenSea requests by HTTP status or "network_error"
//   - nftide_request_duration_seconds (Histogram): OpenSea request duration
//   - nftide_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/opensea):
//   - nftide_retries_total{error_class} (Counter): Retry attempts by error class
//   - nftide_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - nftide_retry_exhausted_total{error_class} (Counter): Page fetches that exhausted max retries
//
// Pagination Metrics (pkg/pagination):
//   - nftide_pages_fetched_total (Counter): Pages fetched
//   - nftide_events_collected_total (Counter): Events appended to accumulators
//   - nftide_pagination_walks_total{result} (Counter): Walks by result (success, failure)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - nftide_pacer_wait_seconds (Histogram): Time spent waiting for the local pacer
//   - nftide_cooldowns_recorded_total (Counter): 429 cooldowns published to Redis
//   - nftide_cooldown_waits_total (Counter): Requests delayed by a shared cooldown
//   - nftide_cooldown_wait_seconds (Histogram): Time spent waiting for shared cooldowns
//
// Example Prometheus Queries:
//
//   # Retry rate by class
//   rate(nftide_retries_total[5m])
//
//   # Share of requests rate limited
//   rate(nftide_requests_total{status="429"}[5m]) / rate(nftide_requests_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(nftide_request_duration_seconds_bucket[5m]))
