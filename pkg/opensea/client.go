// Package opensea provides an OpenSea events API client that walks the
// cursor-paginated events endpoint with bounded, per-page retries.
package opensea

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/nftide/pkg/pagination"
	"github.com/Sternrassler/nftide/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for OpenSea client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftide_requests_total",
		Help: "Total OpenSea requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nftide_request_duration_seconds",
		Help:    "OpenSea request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftide_errors_total",
		Help: "Total OpenSea request errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the production OpenSea API.
const DefaultBaseURL = "https://api.opensea.io"

// errorBodyLimit bounds how much of an error response is kept for messages.
const errorBodyLimit = 512

// Client is the OpenSea events client.
type Client struct {
	httpClient *http.Client
	retrier    *retrier
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, without the /api/v2 path.
	BaseURL string

	// APIKey is sent as x-api-key when non-empty. Requests without a key are
	// still attempted.
	APIKey string

	// UserAgent header.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration

	// Retry policy, applied independently to each page.
	Retry RetryConfig

	// MaxPages bounds a CollectEvents walk (0 = unlimited).
	MaxPages int

	// Pacer spaces requests locally. Nil disables pacing.
	Pacer *ratelimit.Pacer

	// Cooldown shares 429 backoffs with other processes. Nil disables it.
	Cooldown *ratelimit.Cooldown
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		APIKey:    apiKey,
		UserAgent: "nftide/0.1.0",
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
		MaxPages:  0,
	}
}

// New creates a new OpenSea client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}

	if cfg.MaxPages < 0 {
		return nil, fmt.Errorf("max_pages must be >= 0 (got %d)", cfg.MaxPages)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "opensea-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retrier: &retrier{
			config: cfg.Retry,
			sleep:  sleepContext,
			logger: logger,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// FetchEvents fetches the page of q identified by cursor, retrying transient
// failures. An empty cursor requests the first page.
func (c *Client) FetchEvents(ctx context.Context, q EventsQuery, cursor string) (pagination.Page, error) {
	rawURL := eventsURL(c.config.BaseURL, q, cursor)

	var page pagination.Page
	err := c.retrier.do(ctx, func(ctx context.Context) error {
		var attemptErr error
		page, attemptErr = c.attempt(ctx, rawURL)
		return attemptErr
	})
	if err != nil {
		return pagination.Page{}, err
	}
	return page, nil
}

// attempt issues one GET and classifies its outcome.
func (c *Client) attempt(ctx context.Context, rawURL string) (pagination.Page, error) {
	if err := c.config.Pacer.Wait(ctx); err != nil {
		return pagination.Page{}, fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}
	if err := c.config.Cooldown.Wait(ctx); err != nil {
		return pagination.Page{}, fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return pagination.Page{}, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	c.logger.Debug().
		Str("url", rawURL).
		Msg("Executing OpenSea request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(startTime).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return pagination.Page{}, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		return pagination.Page{}, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	errClass := classifyStatus(resp.StatusCode)
	if errClass != "" {
		return pagination.Page{}, c.statusError(ctx, resp, errClass)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return pagination.Page{}, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	page, err := decodePage(body)
	if err != nil {
		c.logger.Error().Err(err).Int("status_code", resp.StatusCode).Msg("Malformed response body")
		return pagination.Page{}, err
	}
	return page, nil
}

// statusError builds the APIError for a non-2xx response and publishes the
// backoff of a 429 to the shared cooldown.
func (c *Client) statusError(ctx context.Context, resp *http.Response, errClass ErrorClass) *APIError {
	errorsTotal.WithLabelValues(string(errClass)).Inc()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	message := resp.Status
	if len(snippet) > 0 {
		message = fmt.Sprintf("%s: %s", resp.Status, snippet)
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: errClass,
		Message:    message,
	}

	if errClass == ErrorClassRateLimit {
		apiErr.RetryAfter = parseRetryAfter(resp.Header)
		if err := c.config.Cooldown.Record(ctx, c.config.Retry.BackoffFor(apiErr)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record shared cooldown")
		}
	}

	if !apiErr.Retryable() {
		c.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("OpenSea request rejected")
	}

	return apiErr
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}
}

// Events returns a PageFetcher over the pages of q.
func (c *Client) Events(q EventsQuery) pagination.PageFetcher {
	return pagination.PageFetcherFunc(func(ctx context.Context, cursor string) (pagination.Page, error) {
		return c.FetchEvents(ctx, q, cursor)
	})
}

// CollectEvents walks every page of a collection's events and returns them
// as a single JSON array, in the order the API returned them. A failure on
// any page fails the call; no partial result is returned.
func (c *Client) CollectEvents(ctx context.Context, collection string, eventType EventType) (string, error) {
	if collection == "" {
		return "", ErrInvalidCollection
	}
	if eventType != EventTypeAny && !eventType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEventType, eventType)
	}

	logger := c.logger.With().
		Str("collection", collection).
		Str("event_type", string(eventType)).
		Logger()

	walker := pagination.NewWalker(
		c.Events(EventsQuery{Collection: collection, EventType: eventType}),
		pagination.Config{MaxPages: c.config.MaxPages, Logger: &logger},
	)

	events, err := walker.Walk(ctx)
	if err != nil {
		return "", err
	}
	return pagination.Marshal(events)
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
