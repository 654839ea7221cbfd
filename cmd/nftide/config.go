package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/Sternrassler/nftide/pkg/logging"
	"github.com/Sternrassler/nftide/pkg/opensea"
)

// options holds the parsed command line.
type options struct {
	CollectionSlug string
	OutputPath     string
	EventType      opensea.EventType
	APIBaseURL     string
	APIKey         string
	LogLevel       logging.LogLevel
	LogJSON        bool
	MaxPages       int
	MaxRetries     int
	RequestsPerSec float64
	RedisURL       string
	MetricsAddr    string
}

// errUsage marks command line errors; the flag package has already printed usage.
var errUsage = errors.New("usage")

// parseOptions parses args, falling back to the environment for settings
// that are not secrets on the command line.
func parseOptions(args []string, stderr io.Writer, getenv func(string) string) (*options, error) {
	fs := flag.NewFlagSet("nftide", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "nftide fetches NFT sales and other market data from OpenSea.\n\n")
		fmt.Fprintf(stderr, "Usage: nftide --collection-slug <slug> [flags]\n\n")
		fs.PrintDefaults()
	}

	opts := &options{}
	var eventType, logLevel string

	fs.StringVar(&opts.CollectionSlug, "collection-slug", "",
		"Unique string identifying a collection on OpenSea (the last path segment of the collection URL)")
	fs.StringVar(&opts.OutputPath, "output-path", "data", "Directory to write the output JSON file")
	fs.StringVar(&eventType, "event-type", string(opensea.EventTypeSale), "Event type to fetch: sale, offer or listing")
	fs.StringVar(&opts.APIBaseURL, "api-base-url", getEnv(getenv, "OPENSEA_API_BASE_URL", opensea.DefaultBaseURL), "OpenSea API base URL")
	fs.StringVar(&logLevel, "log-level", getEnv(getenv, "LOG_LEVEL", string(logging.LevelInfo)), "Log level: debug, info, warn, error")
	fs.BoolVar(&opts.LogJSON, "log-json", false, "Emit JSON logs instead of console output")
	fs.IntVar(&opts.MaxPages, "max-pages", 0, "Stop with an error after this many pages (0 = unlimited)")
	fs.IntVar(&opts.MaxRetries, "max-retries", opensea.DefaultRetryConfig().MaxRetries, "Retries per page for rate limits, server and network errors")
	fs.Float64Var(&opts.RequestsPerSec, "rps", 0, "Maximum requests per second (0 = unlimited)")
	fs.StringVar(&opts.RedisURL, "redis-url", getEnv(getenv, "REDIS_URL", ""), "Redis URL for sharing 429 cooldowns between runs (empty = disabled)")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run (empty = disabled)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, errUsage
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return nil, errUsage
	}

	if opts.CollectionSlug == "" {
		fmt.Fprintln(stderr, "--collection-slug is required")
		fs.Usage()
		return nil, errUsage
	}

	et, err := opensea.ParseEventType(eventType)
	if err != nil {
		return nil, err
	}
	opts.EventType = et

	opts.LogLevel = logging.LogLevel(logLevel)
	if !opts.LogLevel.Valid() {
		return nil, fmt.Errorf("invalid log level %q", logLevel)
	}

	if opts.MaxPages < 0 {
		return nil, fmt.Errorf("--max-pages must be >= 0 (got %d)", opts.MaxPages)
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("--max-retries must be >= 0 (got %d)", opts.MaxRetries)
	}

	opts.APIKey = getenv("OPENSEA_API_KEY")

	return opts, nil
}

func getEnv(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}
