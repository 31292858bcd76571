package rating

import (
	"fmt"
	"math"
)

// Solver limits and numerical guards.
const (
	convergenceTolerance = 1e-6
	maxSolverIterations  = 100
	maxBracketSteps      = 50
	denominatorEpsilon   = 1e-12
	varianceEpsilon      = 1e-9
)

// Solution is the result of the volatility root search.
type Solution struct {
	Volatility float64
	Iterations int
	// Converged is false when the iteration cap was hit before |B-A| fell
	// below the tolerance; Volatility then holds the last bracket endpoint.
	Converged bool
}

// SolveVolatility computes the new volatility sigma' from the current phi and
// sigma, the estimated variance v and improvement delta, using the Illinois
// variant of regula falsi on f(x) with x = ln(sigma'^2).
func SolveVolatility(phi, sigma, v, delta, tau float64) (Solution, error) {
	if !(tau > 0) {
		return Solution{}, fmt.Errorf("%w: tau must be positive, got %v", ErrConfiguration, tau)
	}
	if !(sigma > 0) {
		return Solution{}, fmt.Errorf("%w: volatility must be positive, got %v", ErrNonFiniteResult, sigma)
	}

	a := math.Log(pow2(sigma))
	phi2 := pow2(phi)
	delta2 := pow2(delta)
	tau2 := pow2(tau)

	// Glickman's published form: the prior term is centred on a = ln(sigma^2).
	f := func(x float64) float64 {
		ex := math.Exp(x)
		return ex*(delta2-phi2-v-ex)/(2*pow2(phi2+v+ex)) - (x-a)/tau2
	}

	A := a
	fA := f(A)

	var B float64
	if delta2 > phi2+v {
		B = math.Log(delta2 - phi2 - v)
	} else {
		// f(A) is negative here; walk down until f(B) changes sign.
		B = a - 1
		for i := 0; i < maxBracketSteps && f(B)*fA > 0; i++ {
			B--
		}
	}
	fB := f(B)

	sol := Solution{}
	for sol.Iterations < maxSolverIterations {
		if math.Abs(B-A) < convergenceTolerance {
			sol.Converged = true
			break
		}
		sol.Iterations++

		denom := fB - fA
		if math.Abs(denom) < denominatorEpsilon {
			denom = math.Copysign(denominatorEpsilon, denom)
		}
		C := A + (A-B)*fA/denom
		fC := f(C)
		if fC == 0 {
			A = C
			sol.Converged = true
			break
		}
		if fC*fB < 0 {
			A, fA = B, fB
		} else {
			fA /= 2
		}
		B, fB = C, fC
	}
	if !sol.Converged && math.Abs(B-A) < convergenceTolerance {
		sol.Converged = true
	}

	sol.Volatility = math.Exp(A / 2)
	if !isFinite(sol.Volatility) || sol.Volatility <= 0 {
		return sol, fmt.Errorf("%w: volatility solver produced %v", ErrNonFiniteResult, sol.Volatility)
	}
	return sol, nil
}
