package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/shuttle/internal/simulate"
	"github.com/okian/shuttle/pkg/logger"
)

// Default configuration constants.
const (
	defaultPlayers      = 200
	defaultMatches      = 5000
	defaultDoublesRatio = 0.3
	defaultTopN         = 50
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 10 * time.Second
	defaultSettle       = 2 * time.Minute
	defaultRunTimeout   = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		players      = flag.Int("players", defaultPlayers, "Number of players to register")
		matches      = flag.Int("matches", defaultMatches, "Number of matches to submit")
		doublesRatio = flag.Float64("doubles", defaultDoublesRatio, "Share of 2v2 matches, 0 to 1")
		topN         = flag.Int("top", defaultTopN, "Leaderboard rows to fetch and verify")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent HTTP workers")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle       = flag.Duration("settle", defaultSettle, "Max wait for queued matches to be rated")
		seed         = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Seed for skills and results")
		outputFile   = flag.String("output", "", "Write players, matches and the top rows as JSON")
		jsonLogs     = flag.Bool("json", false, "Log JSON lines")
		verbose      = flag.Bool("verbose", false, "Log the verified leaderboard")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `shuttle simulate: registers players with hidden skill,
plays random singles and doubles against a running service and verifies the leaderboard.

Usage:
  simulate [options]

Options:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := logger.Init(logger.WithJSON(*jsonLogs)); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL:      *baseURL,
		Players:      *players,
		Matches:      *matches,
		DoublesRatio: *doublesRatio,
		TopN:         *topN,
		Workers:      *workers,
		Timeout:      *timeout,
		Settle:       *settle,
		Seed:         *seed,
		OutputFile:   *outputFile,
		Verbose:      *verbose,
	}
	if _, err := simulate.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
}
