package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var pacerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "nftide_pacer_wait_seconds",
	Help:    "Time spent waiting for the local request pacer",
	Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
})

// Pacer spaces requests with a token bucket.
// A nil *Pacer is valid and never waits.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer allowing requestsPerSecond with the given burst.
// A non-positive rate disables pacing and returns nil.
func NewPacer(requestsPerSecond float64, burst int) *Pacer {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until the next request may be issued or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}

	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}
	pacerWaitSeconds.Observe(time.Since(start).Seconds())
	return nil
}
