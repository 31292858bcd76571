// Package repository defines the rating store interface, its errors and
// the memory, SQLite and Postgres implementations.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/shuttle/internal/domain/model"
	"github.com/okian/shuttle/internal/domain/rating"
	"github.com/okian/shuttle/internal/domain/types"
	"github.com/okian/shuttle/pkg/metrics"
)

// RatingStore is the minimal read/write boundary for rating states.
type RatingStore interface {
	// Get returns the current state of a player, or ErrNotFound.
	Get(ctx context.Context, playerID string) (rating.State, error)
	// Put replaces the state of an existing player.
	Put(ctx context.Context, playerID string, s rating.State) error
}

// Store provides players, ratings, match history and the ranking.
type Store interface {
	RatingStore

	// CreatePlayer registers a player with the default rating unless one is
	// given. Returns ErrAlreadyExists for a taken ID.
	CreatePlayer(ctx context.Context, p model.Player) (model.Player, error)
	// Player returns a registered player.
	Player(ctx context.Context, playerID string) (model.Player, error)

	// RecordMatch stores the history record and every participant's after
	// state atomically. Returns ErrAlreadyExists if the match was recorded.
	RecordMatch(ctx context.Context, rec model.MatchRecord) error

	// Rank returns a player's leaderboard row. Tied ratings share a rank.
	Rank(ctx context.Context, playerID string) (types.Entry, error)
	// TopN returns the top n rows by rating desc, player ID asc.
	TopN(ctx context.Context, n int) ([]types.Entry, error)

	// PlayerMatches returns a player's records in reverse recording order;
	// limit <= 0 means all. PlayedAt does not affect the order.
	PlayerMatches(ctx context.Context, playerID string, limit int) ([]model.MatchRecord, error)
	// Matches returns every record in recording order.
	Matches(ctx context.Context) ([]model.MatchRecord, error)

	// Count returns the number of registered players.
	Count(ctx context.Context) (int, error)

	Close() error
}

// preparePlayer validates p and fills defaults.
func preparePlayer(p model.Player, now time.Time) (model.Player, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.ID == "" || p.FirstName == "" {
		return model.Player{}, fmt.Errorf("%w: id and first name are required", ErrInvalidPlayer)
	}
	if p.Rating == (rating.State{}) {
		p.Rating = rating.DefaultState()
	}
	if err := checkState(p.Rating); err != nil {
		return model.Player{}, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt
	return p, nil
}

// checkState rejects states the engine cannot rate from: non-finite values,
// a non-positive volatility or an RD outside the clamp range.
func checkState(s rating.State) error {
	if !s.Finite() || s.Volatility <= 0 ||
		s.Deviation < rating.MinDeviation || s.Deviation > rating.MaxDeviation {
		return fmt.Errorf("%w: %+v", ErrInvalidRating, s)
	}
	return nil
}

func checkRecord(rec model.MatchRecord) error {
	if strings.TrimSpace(rec.MatchID) == "" || len(rec.Participants) == 0 {
		return fmt.Errorf("%w: match id and participants are required", ErrInvalidMatch)
	}
	for _, p := range rec.Participants {
		if err := checkState(p.After); err != nil {
			return err
		}
	}
	return nil
}

func entryFor(p model.Player, rank int) types.Entry {
	return types.Entry{
		Rank:       rank,
		PlayerID:   p.ID,
		Name:       p.Name(),
		Rating:     p.Rating.Rating,
		Deviation:  p.Rating.Deviation,
		Volatility: p.Rating.Volatility,
	}
}

// assignRanks numbers rows already sorted from the top. Equal ratings share
// a rank and the next distinct rating takes its position (1, 1, 3).
func assignRanks(entries []types.Entry) {
	for i := range entries {
		if i > 0 && entries[i].Rating == entries[i-1].Rating {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}

// observe records a store operation latency.
func observe(backend, op string, start time.Time) {
	metrics.RecordRepositoryLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
}
