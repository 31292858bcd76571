// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"

	"github.com/okian/shuttle/internal/domain/rating"
)

// Player is a registered club member and their current rating.
type Player struct {
	ID        string       `json:"id"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	Rating    rating.State `json:"rating"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Name returns the display name.
func (p Player) Name() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Match is a submitted result. Sides hold player IDs in submission order.
type Match struct {
	MatchID  string    `json:"match_id"`
	Side1    []string  `json:"side1"`
	Side2    []string  `json:"side2"`
	Score1   int       `json:"score1"`
	Score2   int       `json:"score2"`
	PlayedAt time.Time `json:"played_at"`
}

// PlayerIDs returns every participant, side 1 first.
func (m Match) PlayerIDs() []string {
	ids := make([]string, 0, len(m.Side1)+len(m.Side2))
	ids = append(ids, m.Side1...)
	return append(ids, m.Side2...)
}

// WinnerSide returns 1 or 2, or 0 for a draw.
func (m Match) WinnerSide() int {
	switch {
	case m.Score1 > m.Score2:
		return 1
	case m.Score2 > m.Score1:
		return 2
	default:
		return 0
	}
}

// Participant is one player's part in a rated match.
type Participant struct {
	PlayerID string       `json:"player_id"`
	Side     int          `json:"side"`
	Won      bool         `json:"won"`
	Before   rating.State `json:"before"`
	After    rating.State `json:"after"`
	Change   float64      `json:"change"`
	Clamped  bool         `json:"clamped"`
}

// MatchRecord is the persisted history entry of a rated match.
type MatchRecord struct {
	MatchID      string        `json:"match_id"`
	Score1       int           `json:"score1"`
	Score2       int           `json:"score2"`
	WinnerSide   int           `json:"winner_side"`
	PlayedAt     time.Time     `json:"played_at"`
	Participants []Participant `json:"participants"`
}

// NewMatchRecord pairs the engine deltas with the match's player IDs. The
// deltas must be in Match.PlayerIDs order.
func NewMatchRecord(m Match, deltas []rating.Delta) MatchRecord {
	ids := m.PlayerIDs()
	rec := MatchRecord{
		MatchID:      m.MatchID,
		Score1:       m.Score1,
		Score2:       m.Score2,
		WinnerSide:   m.WinnerSide(),
		PlayedAt:     m.PlayedAt,
		Participants: make([]Participant, 0, len(deltas)),
	}
	for i, d := range deltas {
		if i >= len(ids) {
			break
		}
		rec.Participants = append(rec.Participants, Participant{
			PlayerID: ids[i],
			Side:     d.Side,
			Won:      d.Won,
			Before:   d.Before,
			After:    d.After,
			Change:   d.RatingChange,
			Clamped:  d.Clamped,
		})
	}
	return rec
}

// Participant returns the entry for playerID, if present.
func (r MatchRecord) Participant(playerID string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return Participant{}, false
}

// PointsFor returns the points scored by the given side.
func (r MatchRecord) PointsFor(side int) int {
	if side == 1 {
		return r.Score1
	}
	return r.Score2
}

// PointsAgainst returns the points conceded by the given side.
func (r MatchRecord) PointsAgainst(side int) int {
	if side == 1 {
		return r.Score2
	}
	return r.Score1
}
