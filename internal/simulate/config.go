// Package simulate drives a running shuttle service over HTTP: it registers
// players with hidden skill levels, plays random singles and doubles matches
// between them and checks that the published leaderboard is consistent.
package simulate

import "time"

// Config holds the simulation parameters.
type Config struct {
	BaseURL      string        // Base URL of the service
	Players      int           // Number of players to register
	Matches      int           // Number of matches to submit
	DoublesRatio float64       // Share of 2v2 matches in [0, 1]
	TopN         int           // Leaderboard rows to fetch and verify
	Workers      int           // Concurrent HTTP workers
	Timeout      time.Duration // Per-request timeout
	Settle       time.Duration // Max wait for queued matches to be rated
	Seed         uint64        // Seed for player skills and match outcomes
	OutputFile   string        // JSON file for the generated matches
	Verbose      bool
}

// PlayerRequest is the POST /players body.
type PlayerRequest struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// MatchRequest is the POST /matches body.
type MatchRequest struct {
	MatchID  string   `json:"match_id"`
	Side1    []string `json:"side1"`
	Side2    []string `json:"side2"`
	Score1   int      `json:"score1"`
	Score2   int      `json:"score2"`
	PlayedAt string   `json:"played_at"`
}

// Entry is a leaderboard row.
type Entry struct {
	Rank     int     `json:"rank"`
	PlayerID string  `json:"player_id"`
	Name     string  `json:"name"`
	Rating   float64 `json:"rating"`
	RD       float64 `json:"rd"`
}

// AckResponse is the POST /matches response.
type AckResponse struct {
	Status    string `json:"status"`
	MatchID   string `json:"match_id"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	PlayersRegistered  int
	MatchesGenerated   int
	MatchesAccepted    int
	MatchesDuplicate   int
	MatchesRejected    int
	MatchesFailed      int
	LeaderboardEntries int
	RanksChecked       int
	StartTime          time.Time
	Duration           time.Duration
}
