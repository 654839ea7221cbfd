package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for shared cooldowns.
var (
	cooldownsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftide_cooldowns_recorded_total",
		Help: "Total number of 429 cooldowns published to the shared store",
	})

	cooldownWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nftide_cooldown_waits_total",
		Help: "Total number of requests delayed by an active shared cooldown",
	})

	cooldownWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nftide_cooldown_wait_seconds",
		Help:    "Time spent waiting for a shared cooldown to elapse",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Cooldown shares 429 backoffs between processes through Redis.
// A nil *Cooldown is valid and never waits.
type Cooldown struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewCooldown creates a new Redis-backed cooldown.
func NewCooldown(redisClient *redis.Client, logger zerolog.Logger) *Cooldown {
	return &Cooldown{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current cooldown from Redis.
// Returns an inactive state if no cooldown is stored.
func (c *Cooldown) GetState(ctx context.Context) (*CooldownState, error) {
	untilMillis, err := c.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
	if err == redis.Nil {
		return &CooldownState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cooldown until: %w", err)
	}

	state := &CooldownState{Until: time.UnixMilli(untilMillis)}

	lastUpdateStr, err := c.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &state.LastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return state, nil
}

// Record publishes a cooldown of duration d starting now. An existing
// cooldown that ends later is left in place.
func (c *Cooldown) Record(ctx context.Context, d time.Duration) error {
	if c == nil || d <= 0 {
		return nil
	}

	current, err := c.GetState(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	until := now.Add(d)
	if current.Active() && !current.Extends(until) {
		c.logger.Debug().
			Time("until", current.Until).
			Msg("Existing cooldown outlasts new backoff")
		return nil
	}

	lastUpdateJSON, err := json.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	// Keys expire with the cooldown so stale state never blocks a later run.
	pipe := c.redis.Pipeline()
	pipe.Set(ctx, RedisKeyCooldownUntil, until.UnixMilli(), d)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, d)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store cooldown in redis: %w", err)
	}

	cooldownsRecordedTotal.Inc()
	c.logger.Info().
		Dur("cooldown", d).
		Time("until", until).
		Msg("Shared cooldown recorded")

	return nil
}

// Wait blocks until any active cooldown has elapsed or ctx is done.
// Store errors are logged and do not block the caller.
func (c *Cooldown) Wait(ctx context.Context) error {
	if c == nil {
		return nil
	}

	state, err := c.GetState(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cooldown state unavailable, continuing")
		return nil
	}
	if !state.Active() {
		return nil
	}

	wait := state.Remaining()
	c.logger.Warn().
		Dur("wait_duration", wait).
		Time("until", state.Until).
		Msg("Shared cooldown active - delaying request")

	cooldownWaitsTotal.Inc()
	cooldownWaitSeconds.Observe(wait.Seconds())

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
