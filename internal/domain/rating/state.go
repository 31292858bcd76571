// Package rating implements the Glicko-2 match rating engine.
//
// Variables follow Glickman's paper where practical:
//   - Mu, Phi: rating and rating deviation on the internal Glicko-2 scale.
//   - Sigma: volatility.
//   - Tau: system constant constraining volatility change per period.
//   - G: weighting function that discounts uncertain opponents.
//   - E: expected score against an opponent.
//   - V, Delta: estimated variance and improvement from the period's results.
//
// Every match is treated as one rating period against a single opponent or a
// single aggregated team. The package holds no state and does no I/O; all
// functions are safe for concurrent use.
//
// See https://www.glicko.net/glicko/glicko2.pdf.
package rating

import "math"

// Public-scale defaults for a new entity.
const (
	DefaultRating     = 1500.0
	DefaultDeviation  = 350.0
	DefaultVolatility = 0.06
	DefaultTau        = 0.5
)

// Deviation bounds applied after every update.
const (
	MinDeviation = 30.0
	MaxDeviation = 350.0
)

// State is an entity's strength estimate on the public scale.
type State struct {
	Rating     float64 `json:"rating"`
	Deviation  float64 `json:"rd"`
	Volatility float64 `json:"volatility"`
}

// DefaultState returns the starting estimate for a new player or team.
func DefaultState() State {
	return State{Rating: DefaultRating, Deviation: DefaultDeviation, Volatility: DefaultVolatility}
}

// Finite reports whether all three components are finite numbers.
func (s State) Finite() bool {
	return isFinite(s.Rating) && isFinite(s.Deviation) && isFinite(s.Volatility)
}

// clampDeviation bounds rd to [MinDeviation, MaxDeviation].
func clampDeviation(rd float64) float64 {
	return math.Max(MinDeviation, math.Min(MaxDeviation, rd))
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func pow2(x float64) float64 { return x * x }
