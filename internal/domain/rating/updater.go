package rating

import (
	"fmt"
	"math"
)

// Opponent is one result within a rating period: the opponent's public
// rating and RD and the observed score (1 win, 0.5 draw, 0 loss).
type Opponent struct {
	Rating    float64
	Deviation float64
	Score     float64
}

// G discounts an opponent's influence by their uncertainty phi.
func G(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

// Expectation is the expected score of mu against an opponent at muOpp with
// deviation phiOpp. All arguments are on the internal scale.
func Expectation(mu, muOpp, phiOpp float64) float64 {
	return 1 / (1 + math.Exp(-G(phiOpp)*(mu-muOpp)))
}

// UpdateSingle is Update against exactly one opponent.
func UpdateSingle(self State, opp Opponent, tau float64) (State, error) {
	s, _, err := update(self, []Opponent{opp}, tau)
	return s, err
}

// Update runs one Glicko-2 rating period for self against opponents.
// An empty period returns self unchanged.
func Update(self State, opponents []Opponent, tau float64) (State, error) {
	s, _, err := update(self, opponents, tau)
	return s, err
}

func update(self State, opponents []Opponent, tau float64) (State, Solution, error) {
	if !(tau > 0) {
		return State{}, Solution{}, fmt.Errorf("%w: tau must be positive, got %v", ErrConfiguration, tau)
	}
	if len(opponents) == 0 {
		return self, Solution{Volatility: self.Volatility, Converged: true}, nil
	}

	mu, phi := ToInternal(self.Rating, self.Deviation)

	var vSum, deltaSum float64
	for _, o := range opponents {
		muJ, phiJ := ToInternal(o.Rating, o.Deviation)
		g := G(phiJ)
		e := Expectation(mu, muJ, phiJ)
		vSum += g * g * e * (1 - e)
		deltaSum += g * (o.Score - e)
	}
	if vSum <= 0 {
		vSum = varianceEpsilon
	}
	v := 1 / vSum
	delta := v * deltaSum

	sol, err := SolveVolatility(phi, self.Volatility, v, delta, tau)
	if err != nil {
		return State{}, sol, err
	}

	phiStar2 := phi*phi + sol.Volatility*sol.Volatility
	if phiStar2 < varianceEpsilon {
		phiStar2 = varianceEpsilon
	}
	phiNew := 1 / math.Sqrt(1/phiStar2+1/math.Max(v, varianceEpsilon))
	muNew := mu + phiNew*phiNew*deltaSum

	r, rd := ToPublic(muNew, phiNew)
	out := State{Rating: r, Deviation: clampDeviation(rd), Volatility: sol.Volatility}
	if !out.Finite() {
		return State{}, sol, fmt.Errorf("%w: update produced %+v", ErrNonFiniteResult, out)
	}
	return out, sol, nil
}
