package opensea

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftide_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nftide_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftide_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the per-page retry policy.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial request.
	// A page fetch issues at most MaxRetries+1 requests.
	MaxRetries int

	// RateLimitBackoff is used for a 429 without a usable Retry-After header.
	RateLimitBackoff time.Duration

	// MaxRetryAfter caps the delay honoured from a Retry-After header.
	MaxRetryAfter time.Duration

	// ServerBackoff is the fixed delay after a 5xx response.
	ServerBackoff time.Duration

	// NetworkBackoff is the fixed delay after a transport failure.
	NetworkBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:       5,
		RateLimitBackoff: 10 * time.Second,
		MaxRetryAfter:    5 * time.Minute,
		ServerBackoff:    5 * time.Second,
		NetworkBackoff:   5 * time.Second,
	}
}

// Validate checks the configuration for impossible values.
func (rc RetryConfig) Validate() error {
	if rc.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", rc.MaxRetries)
	}
	if rc.RateLimitBackoff < 0 || rc.ServerBackoff < 0 || rc.NetworkBackoff < 0 {
		return fmt.Errorf("backoff durations must not be negative")
	}
	return nil
}

// BackoffFor returns the delay before retrying after err.
func (rc RetryConfig) BackoffFor(err *APIError) time.Duration {
	switch err.ErrorClass {
	case ErrorClassRateLimit:
		if err.RetryAfter > 0 {
			if rc.MaxRetryAfter > 0 && err.RetryAfter > rc.MaxRetryAfter {
				return rc.MaxRetryAfter
			}
			return err.RetryAfter
		}
		return rc.RateLimitBackoff
	case ErrorClassServer:
		return rc.ServerBackoff
	case ErrorClassNetwork:
		return rc.NetworkBackoff
	default:
		return 0
	}
}

// parseRetryAfter reads a Retry-After header given in whole seconds.
// HTTP-date values, zero and negative numbers yield 0.
func parseRetryAfter(header http.Header) time.Duration {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// sleepFunc blocks for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type retryState int

const (
	stateAttempting retryState = iota
	stateBackoff
	stateSuccess
	stateFailed
)

// retrier runs one request under a RetryConfig. It holds no state between
// calls to do: the retry counter is local to each call.
type retrier struct {
	config RetryConfig
	sleep  sleepFunc
	logger zerolog.Logger
}

// do calls attempt until it succeeds, fails with a non-retryable error, or
// the retry budget is spent.
func (r *retrier) do(ctx context.Context, attempt func(ctx context.Context) error) error {
	var (
		state   = stateAttempting
		retries int
		lastErr error
		apiErr  *APIError
		backoff time.Duration
	)

	for {
		switch state {
		case stateAttempting:
			lastErr = attempt(ctx)
			switch {
			case lastErr == nil:
				state = stateSuccess
			case !errors.As(lastErr, &apiErr) || !apiErr.Retryable():
				state = stateFailed
			case retries >= r.config.MaxRetries:
				retryExhaustedTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
				r.logger.Warn().
					Str("error_class", string(apiErr.ErrorClass)).
					Int("max_retries", r.config.MaxRetries).
					Msg("Retry attempts exhausted")
				lastErr = fmt.Errorf("%w after %d retries: %w", ErrRetryExhausted, retries, lastErr)
				state = stateFailed
			default:
				retries++
				backoff = r.config.BackoffFor(apiErr)
				retriesTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
				retryBackoffSeconds.WithLabelValues(string(apiErr.ErrorClass)).Observe(backoff.Seconds())

				event := r.logger.Warn().
					Str("error_class", string(apiErr.ErrorClass)).
					Dur("backoff", backoff).
					Int("attempt", retries).
					Int("max_retries", r.config.MaxRetries)
				if apiErr.StatusCode != 0 {
					event = event.Int("status_code", apiErr.StatusCode)
				}
				if apiErr.Err != nil {
					event = event.AnErr("cause", apiErr.Err)
				}
				event.Msgf("Request failed, retrying in %s (attempt %d/%d)", backoff, retries, r.config.MaxRetries)

				state = stateBackoff
			}

		case stateBackoff:
			if err := r.sleep(ctx, backoff); err != nil {
				r.logger.Warn().
					Int("attempt", retries).
					Msg("Context cancelled during retry backoff")
				lastErr = fmt.Errorf("%w: %v", ErrContextCancelled, err)
				state = stateFailed
				continue
			}
			state = stateAttempting

		case stateSuccess:
			if retries > 0 {
				r.logger.Info().
					Int("retries", retries).
					Msg("Request succeeded after retry")
			}
			return nil

		case stateFailed:
			return lastErr
		}
	}
}
