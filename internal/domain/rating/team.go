package rating

import "math"

// Change is a team's state difference (after minus before) for one match.
type Change struct {
	Rating     float64
	Deviation  float64
	Volatility float64
}

// Diff returns after minus before.
func Diff(before, after State) Change {
	return Change{
		Rating:     after.Rating - before.Rating,
		Deviation:  after.Deviation - before.Deviation,
		Volatility: after.Volatility - before.Volatility,
	}
}

// AggregateTeam collapses members into one virtual entity: mean rating,
// worst-case RD and volatility. An empty team is a default entity.
func AggregateTeam(members []State) State {
	if len(members) == 0 {
		return DefaultState()
	}
	agg := State{}
	for _, m := range members {
		agg.Rating += m.Rating
		agg.Deviation = math.Max(agg.Deviation, m.Deviation)
		agg.Volatility = math.Max(agg.Volatility, m.Volatility)
	}
	agg.Rating /= float64(len(members))
	return agg
}

// DistributeTeamDelta splits a team change equally across members. RD is
// clamped per member; volatility is not.
func DistributeTeamDelta(members []State, d Change) []State {
	out := make([]State, len(members))
	if len(members) == 0 {
		return out
	}
	n := float64(len(members))
	for i, m := range members {
		out[i] = State{
			Rating:     m.Rating + d.Rating/n,
			Deviation:  clampDeviation(m.Deviation + d.Deviation/n),
			Volatility: m.Volatility + d.Volatility/n,
		}
	}
	return out
}
