package rating

import (
	"fmt"
	"math"
)

// Delta is the result of one match for one entity.
type Delta struct {
	Side         int     `json:"side"`
	OldRating    float64 `json:"old_rating"`
	NewRating    float64 `json:"new_rating"`
	RatingChange float64 `json:"rating_change"`
	Won          bool    `json:"won"`
	Before       State   `json:"before"`
	After        State   `json:"after"`
	// Clamped is set when the raw change exceeded the limit and was cut.
	Clamped bool `json:"clamped"`
}

// Outcome holds the per-entity deltas of a resolved match, side 1 first in
// member order, plus the volatility solver diagnostics for each side.
type Outcome struct {
	Deltas    []Delta
	Solutions [2]Solution
}

// Engine resolves matches between sides of one or two members.
type Engine struct {
	tau       float64
	maxChange float64
}

// NewEngine creates an Engine. Tau and the change limit must be positive.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		tau:       DefaultTau,
		maxChange: DefaultMaxRatingChange,
	}
	for _, opt := range opts {
		opt(e)
	}
	if !(e.tau > 0) || math.IsInf(e.tau, 0) {
		return nil, fmt.Errorf("%w: tau must be positive, got %v", ErrConfiguration, e.tau)
	}
	if !(e.maxChange > 0) {
		return nil, fmt.Errorf("%w: max rating change must be positive, got %v", ErrConfiguration, e.maxChange)
	}
	return e, nil
}

// Tau returns the configured system constant.
func (e *Engine) Tau() float64 { return e.tau }

// MaxRatingChange returns the configured per-match limit.
func (e *Engine) MaxRatingChange() float64 { return e.maxChange }

// Resolve computes new states for every participant of a match. Inputs are
// never modified. Each side is rated once against the other side's aggregate
// as it stood before the match.
func (e *Engine) Resolve(side1, side2 []State, score1, score2 int) (Outcome, error) {
	if err := validateSide(side1, 1); err != nil {
		return Outcome{}, err
	}
	if err := validateSide(side2, 2); err != nil {
		return Outcome{}, err
	}
	if score1 < 0 || score2 < 0 {
		return Outcome{}, fmt.Errorf("%w: negative score %d:%d", ErrInvalidMatchComposition, score1, score2)
	}

	s1, s2 := observedScores(score1, score2)
	team1, team2 := AggregateTeam(side1), AggregateTeam(side2)

	new1, sol1, err := update(team1, []Opponent{{Rating: team2.Rating, Deviation: team2.Deviation, Score: s1}}, e.tau)
	if err != nil {
		return Outcome{}, fmt.Errorf("side 1: %w", err)
	}
	new2, sol2, err := update(team2, []Opponent{{Rating: team1.Rating, Deviation: team1.Deviation, Score: s2}}, e.tau)
	if err != nil {
		return Outcome{}, fmt.Errorf("side 2: %w", err)
	}

	out := Outcome{
		Deltas:    make([]Delta, 0, len(side1)+len(side2)),
		Solutions: [2]Solution{sol1, sol2},
	}
	out.Deltas = append(out.Deltas, e.sideDeltas(1, side1, team1, new1, s1 == 1)...)
	out.Deltas = append(out.Deltas, e.sideDeltas(2, side2, team2, new2, s2 == 1)...)
	for _, d := range out.Deltas {
		if !d.After.Finite() || d.After.Volatility <= 0 {
			return Outcome{}, fmt.Errorf("%w: side %d produced %+v", ErrNonFiniteResult, d.Side, d.After)
		}
	}
	return out, nil
}

func (e *Engine) sideDeltas(side int, members []State, before, after State, won bool) []Delta {
	var updated []State
	if len(members) == 1 {
		updated = []State{after}
	} else {
		updated = DistributeTeamDelta(members, Diff(before, after))
	}

	deltas := make([]Delta, len(members))
	for i, m := range members {
		next := updated[i]
		change := next.Rating - m.Rating
		clamped := false
		if math.Abs(change) > e.maxChange {
			change = math.Copysign(e.maxChange, change)
			next.Rating = m.Rating + change
			clamped = true
		}
		deltas[i] = Delta{
			Side:         side,
			OldRating:    m.Rating,
			NewRating:    next.Rating,
			RatingChange: change,
			Won:          won,
			Before:       m,
			After:        next,
			Clamped:      clamped,
		}
	}
	return deltas
}

func validateSide(members []State, side int) error {
	if len(members) == 0 || len(members) > 2 {
		return fmt.Errorf("%w: side %d has %d members", ErrInvalidMatchComposition, side, len(members))
	}
	return nil
}

// observedScores maps raw points to Glicko scores: 1/0 for a decisive
// result, 0.5 each for a draw.
func observedScores(score1, score2 int) (float64, float64) {
	switch {
	case score1 > score2:
		return 1, 0
	case score1 < score2:
		return 0, 1
	default:
		return 0.5, 0.5
	}
}
