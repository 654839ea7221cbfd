package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination walks.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftide_pages_fetched_total",
		Help: "Total pages fetched across all pagination walks",
	})

	eventsCollectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftide_events_collected_total",
		Help: "Total events appended to pagination accumulators",
	})

	walksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nftide_pagination_walks_total",
		Help: "Completed pagination walks by result",
	}, []string{"result"})
)

// ErrPageLimit is returned when a walk would exceed Config.MaxPages.
var ErrPageLimit = errors.New("page limit reached")

// Page is one response of a cursor-paginated endpoint.
type Page struct {
	// Events in the order the remote API returned them.
	Events []json.RawMessage

	// Next is the continuation cursor. Empty means there are no more pages.
	Next string
}

// HasNext reports whether the page carries a continuation cursor.
func (p Page) HasNext() bool {
	return p.Next != ""
}

// PageFetcher fetches the page identified by cursor. An empty cursor requests
// the first page.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (Page, error)
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc func(ctx context.Context, cursor string) (Page, error)

// FetchPage calls f(ctx, cursor).
func (f PageFetcherFunc) FetchPage(ctx context.Context, cursor string) (Page, error) {
	return f(ctx, cursor)
}

// Config holds walker configuration.
type Config struct {
	// MaxPages bounds the walk. Zero means unlimited: the walk trusts the
	// remote API to eventually return an empty cursor.
	MaxPages int

	// Logger receives per-page progress. Defaults to the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default walker configuration.
func DefaultConfig() Config {
	return Config{
		MaxPages: 0,
	}
}

// Walker drives a PageFetcher from the first page to the last.
type Walker struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewWalker creates a new walker.
func NewWalker(fetcher PageFetcher, config Config) *Walker {
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}

	logger := log.With().Str("component", "pagination").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Walker{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

type walkState int

const (
	stateFetching walkState = iota
	stateAccumulating
	stateDone
	stateFailed
)

// Walk fetches every page and returns the concatenation of their events.
// A failure on any page fails the whole walk and discards what was
// accumulated so far. A walk over an empty collection returns an empty,
// non-nil slice.
func (w *Walker) Walk(ctx context.Context) ([]json.RawMessage, error) {
	start := time.Now()

	var (
		state  = stateFetching
		events = make([]json.RawMessage, 0)
		cursor string
		page   Page
		pages  int
		err    error
	)

	for {
		switch state {
		case stateFetching:
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = fmt.Errorf("walk cancelled before page %d: %w", pages+1, ctxErr)
				state = stateFailed
				continue
			}
			if w.config.MaxPages > 0 && pages >= w.config.MaxPages {
				err = fmt.Errorf("%w: %d pages", ErrPageLimit, w.config.MaxPages)
				state = stateFailed
				continue
			}

			page, err = w.fetcher.FetchPage(ctx, cursor)
			if err != nil {
				err = fmt.Errorf("page %d: %w", pages+1, err)
				state = stateFailed
				continue
			}
			pages++
			state = stateAccumulating

		case stateAccumulating:
			events = append(events, page.Events...)
			pagesFetchedTotal.Inc()
			eventsCollectedTotal.Add(float64(len(page.Events)))

			w.logger.Info().
				Int("page", pages).
				Int("page_events", len(page.Events)).
				Int("total_events", len(events)).
				Bool("has_next", page.HasNext()).
				Msg("Page collected")

			if page.HasNext() {
				cursor = page.Next
				state = stateFetching
			} else {
				state = stateDone
			}

		case stateDone:
			walksTotal.WithLabelValues("success").Inc()
			w.logger.Info().
				Int("pages", pages).
				Int("events", len(events)).
				Dur("duration", time.Since(start)).
				Msg("Walk complete")
			return events, nil

		case stateFailed:
			walksTotal.WithLabelValues("failure").Inc()
			w.logger.Error().
				Err(err).
				Int("pages_fetched", pages).
				Int("events_discarded", len(events)).
				Msg("Walk failed")
			return nil, err
		}
	}
}

// Marshal serializes an accumulator as a JSON array. A nil accumulator
// serializes as "[]".
func Marshal(events []json.RawMessage) (string, error) {
	if events == nil {
		events = []json.RawMessage{}
	}

	data, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}
	return string(data), nil
}
