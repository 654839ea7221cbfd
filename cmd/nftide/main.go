// Command nftide fetches NFT sales, offers or listings for an OpenSea
// collection and writes them to a JSON file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/nftide/pkg/logging"
	"github.com/Sternrassler/nftide/pkg/metrics"
	"github.com/Sternrassler/nftide/pkg/opensea"
	"github.com/Sternrassler/nftide/pkg/output"
	"github.com/Sternrassler/nftide/pkg/ratelimit"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// A missing .env is fine; the environment may already carry the key.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	opts, err := parseOptions(args, stderr, getenv)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			return 0
		case errors.Is(err, errUsage):
			return 2
		default:
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = opts.LogLevel
	logCfg.Pretty = !opts.LogJSON
	logCfg.Output = stderr
	logger := logging.Setup(logCfg).With().Str("component", "nftide").Logger()

	if err := execute(ctx, opts, stdout, logger); err != nil {
		logger.Error().Err(err).Msg("nftide failed")
		return 1
	}
	return 0
}

func execute(ctx context.Context, opts *options, stdout io.Writer, logger zerolog.Logger) error {
	logger.Info().
		Str("collection", opts.CollectionSlug).
		Str("event_type", string(opts.EventType)).
		Bool("api_key", opts.APIKey != "").
		Msgf("Fetching NFT %s data for collection: %s", opts.EventType, opts.CollectionSlug)

	if opts.MetricsAddr != "" {
		server, err := metrics.Start(opts.MetricsAddr)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	cfg := opensea.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.APIBaseURL
	cfg.MaxPages = opts.MaxPages
	cfg.Retry.MaxRetries = opts.MaxRetries
	cfg.Pacer = ratelimit.NewPacer(opts.RequestsPerSec, 1)

	if opts.RedisURL != "" {
		redisClient, err := connectRedis(ctx, opts.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		cfg.Cooldown = ratelimit.NewCooldown(redisClient, logger.With().Str("component", "cooldown").Logger())
		logger.Info().Msg("Sharing rate limit cooldowns through Redis")
	}

	client, err := opensea.New(cfg)
	if err != nil {
		return fmt.Errorf("create OpenSea client: %w", err)
	}

	rawJSON, err := client.CollectEvents(ctx, opts.CollectionSlug, opts.EventType)
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}

	path, err := output.Write(opts.OutputPath, opts.CollectionSlug, string(opts.EventType), rawJSON)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s data written to %s\n", opts.EventType, path)
	return nil
}

func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	redisClient := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return redisClient, nil
}
