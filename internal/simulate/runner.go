package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/shuttle/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
	settlePoll          = 100 * time.Millisecond
)

// Report is written to Config.OutputFile.
type Report struct {
	Seed    uint64         `json:"seed"`
	Players []Player       `json:"players"`
	Matches []MatchRequest `json:"matches"`
	Top     []Entry        `json:"top"`
}

// Run executes a full simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Named("simulate")
	stats := &Stats{StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("matches", cfg.Matches),
		logger.Float64("doublesRatio", cfg.DoublesRatio),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", cfg.Seed))

	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	gen := NewGenerator(cfg.Seed)
	players := gen.Players(cfg.Players)
	if err := registerPlayers(ctx, client, cfg.Workers, players); err != nil {
		return stats, fmt.Errorf("register players: %w", err)
	}
	stats.PlayersRegistered = len(players)

	matches := gen.Matches(players, cfg.Matches, cfg.DoublesRatio)
	stats.MatchesGenerated = len(matches)
	submitMatches(ctx, client, cfg.Workers, matches, stats)
	log.Info(ctx, "matches submitted",
		logger.Int("accepted", stats.MatchesAccepted),
		logger.Int("duplicate", stats.MatchesDuplicate),
		logger.Int("rejected", stats.MatchesRejected),
		logger.Int("failed", stats.MatchesFailed))

	if err := waitSettled(ctx, client, cfg.Settle); err != nil {
		return stats, err
	}

	top, err := client.Leaderboard(ctx, cfg.TopN)
	if err != nil {
		return stats, fmt.Errorf("leaderboard: %w", err)
	}
	stats.LeaderboardEntries = len(top)
	if err := VerifyLeaderboard(top); err != nil {
		return stats, err
	}
	for _, row := range top {
		got, err := client.Rank(ctx, row.PlayerID)
		if err != nil {
			return stats, fmt.Errorf("rank %s: %w", row.PlayerID, err)
		}
		if err := VerifyRank(row, got); err != nil {
			return stats, err
		}
		stats.RanksChecked++
	}

	if cfg.Verbose {
		for _, row := range top {
			log.Info(ctx, "leaderboard", logger.Int("rank", row.Rank), logger.String("player", row.Name),
				logger.Float64("rating", row.Rating), logger.Float64("rd", row.RD))
		}
	}

	if cfg.OutputFile != "" {
		rep := Report{Seed: cfg.Seed, Players: players, Matches: matches, Top: top}
		if err := saveReport(cfg.OutputFile, rep); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "simulation completed",
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Int("ranksChecked", stats.RanksChecked),
		logger.Float64("skillCorrelation", SkillCorrelation(top, players)),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

func registerPlayers(ctx context.Context, client *Client, workers int, players []Player) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, p := range players {
		g.Go(func() error { return client.RegisterPlayer(ctx, p.PlayerRequest) })
	}
	return g.Wait()
}

// submitMatches posts every match and counts outcomes. Individual failures
// are counted, not returned.
func submitMatches(ctx context.Context, client *Client, workers int, matches []MatchRequest, stats *Stats) {
	var accepted, duplicate, rejected, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for _, m := range matches {
		g.Go(func() error {
			status, ack, err := client.SubmitMatch(ctx, m)
			switch {
			case err != nil:
				failed.Add(1)
			case status == http.StatusAccepted:
				accepted.Add(1)
			case status == http.StatusOK && ack.Duplicate:
				duplicate.Add(1)
			default:
				rejected.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.MatchesAccepted = int(accepted.Load())
	stats.MatchesDuplicate = int(duplicate.Load())
	stats.MatchesRejected = int(rejected.Load())
	stats.MatchesFailed = int(failed.Load())
}

// waitSettled polls /stats until no accepted match is left unrated.
func waitSettled(ctx context.Context, client *Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()
	for {
		stats, err := client.Stats(ctx)
		if err == nil {
			if pending, ok := stats["pending"].(float64); ok && pending == 0 {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("matches not rated within %s: %w", timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func saveReport(filename string, rep Report) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}
