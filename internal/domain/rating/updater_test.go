package rating_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/shuttle/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func TestScaleConversion(t *testing.T) {
	Convey("Given the default public rating", t, func() {
		mu, phi := rating.ToInternal(1500, 350)

		Convey("Then it maps to mu 0", func() {
			So(mu, ShouldEqual, 0)
			So(phi, ShouldAlmostEqual, 350/173.7178, 1e-12)
		})

		Convey("And it round-trips", func() {
			r, rd := rating.ToPublic(rating.ToInternal(1723.4, 88.1))
			So(r, ShouldAlmostEqual, 1723.4, 1e-9)
			So(rd, ShouldAlmostEqual, 88.1, 1e-9)
		})
	})
}

func TestUpdate_GlickmanExample(t *testing.T) {
	Convey("Given the worked example from the Glicko-2 paper", t, func() {
		self := rating.State{Rating: 1500, Deviation: 200, Volatility: 0.06}
		opps := []rating.Opponent{
			{Rating: 1400, Deviation: 30, Score: 1},
			{Rating: 1550, Deviation: 100, Score: 0},
			{Rating: 1700, Deviation: 300, Score: 0},
		}

		Convey("When updating with tau 0.5", func() {
			got, err := rating.Update(self, opps, 0.5)

			Convey("Then it reproduces the published result", func() {
				So(err, ShouldBeNil)
				So(got.Rating, ShouldAlmostEqual, 1464.06, 0.05)
				So(got.Deviation, ShouldAlmostEqual, 151.52, 0.01)
				So(got.Volatility, ShouldAlmostEqual, 0.05999, 1e-5)
			})

			Convey("And the input is left untouched", func() {
				So(self, ShouldResemble, rating.State{Rating: 1500, Deviation: 200, Volatility: 0.06})
			})
		})
	})
}

func TestUpdate_Identity(t *testing.T) {
	Convey("Given a state and no opponents", t, func() {
		self := rating.State{Rating: 1712.5, Deviation: 64, Volatility: 0.071}

		Convey("Then the update returns it unchanged", func() {
			got, err := rating.Update(self, nil, 0.5)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, self)
		})
	})
}

func TestUpdate_Determinism(t *testing.T) {
	Convey("Given the same inputs twice", t, func() {
		self := rating.State{Rating: 1500, Deviation: 100, Volatility: 0.06}
		opp := rating.Opponent{Rating: 1520, Deviation: 80, Score: 1}

		a, errA := rating.UpdateSingle(self, opp, 0.5)
		b, errB := rating.UpdateSingle(self, opp, 0.5)

		Convey("Then the outputs agree", func() {
			So(errA, ShouldBeNil)
			So(errB, ShouldBeNil)
			So(a.Rating, ShouldAlmostEqual, b.Rating, 1e-9)
			So(a.Deviation, ShouldAlmostEqual, b.Deviation, 1e-9)
			So(a.Volatility, ShouldAlmostEqual, b.Volatility, 1e-9)
		})
	})
}

func TestUpdate_DeviationBounds(t *testing.T) {
	Convey("Given extreme inputs", t, func() {
		cases := []struct {
			self rating.State
			opp  rating.Opponent
		}{
			{rating.State{Rating: 1500, Deviation: 30, Volatility: 0.06}, rating.Opponent{Rating: 1500, Deviation: 30, Score: 1}},
			{rating.State{Rating: 400, Deviation: 350, Volatility: 0.06}, rating.Opponent{Rating: 3000, Deviation: 350, Score: 1}},
			{rating.State{Rating: 1500, Deviation: 350, Volatility: 0.2}, rating.Opponent{Rating: 1500, Deviation: 350, Score: 0.5}},
		}

		Convey("Then RD always stays within bounds", func() {
			for _, c := range cases {
				got, err := rating.UpdateSingle(c.self, c.opp, 0.5)
				So(err, ShouldBeNil)
				So(got.Deviation, ShouldBeBetweenOrEqual, rating.MinDeviation, rating.MaxDeviation)
				So(got.Volatility, ShouldBeGreaterThan, 0)
			}
		})
	})
}

func TestUpdate_EvenDraw(t *testing.T) {
	Convey("Given two identical players who draw", t, func() {
		got, err := rating.UpdateSingle(rating.DefaultState(), rating.Opponent{Rating: 1500, Deviation: 350, Score: 0.5}, 0.5)

		Convey("Then the rating stays put and RD shrinks", func() {
			So(err, ShouldBeNil)
			So(got.Rating, ShouldAlmostEqual, 1500, 1e-9)
			So(got.Deviation, ShouldBeLessThan, 350)
		})
	})
}

func TestUpdate_InvalidTau(t *testing.T) {
	Convey("Given a non-positive tau", t, func() {
		opp := rating.Opponent{Rating: 1500, Deviation: 350, Score: 1}

		Convey("Then the update fails with a configuration error", func() {
			for _, tau := range []float64{0, -0.5, math.NaN()} {
				_, err := rating.UpdateSingle(rating.DefaultState(), opp, tau)
				So(errors.Is(err, rating.ErrConfiguration), ShouldBeTrue)
			}
		})
	})
}

func TestExpectation(t *testing.T) {
	Convey("Given two players on the internal scale", t, func() {
		muA, phiA := rating.ToInternal(1620, 80)
		muB, phiB := rating.ToInternal(1480, 80)

		Convey("Then expectations with a shared phi sum to one", func() {
			ab := rating.Expectation(muA, muB, phiB)
			ba := rating.Expectation(muB, muA, phiA)
			So(ab+ba, ShouldAlmostEqual, 1, 1e-12)
			So(ab, ShouldBeGreaterThan, 0.5)
		})

		Convey("And equal ratings give one half", func() {
			So(rating.Expectation(muA, muA, phiA), ShouldAlmostEqual, 0.5, 1e-12)
		})

		Convey("And G shrinks as phi grows", func() {
			So(rating.G(0), ShouldEqual, 1)
			So(rating.G(2), ShouldBeLessThan, rating.G(1))
		})
	})
}

func TestSolveVolatility(t *testing.T) {
	Convey("Given the intermediate values of the paper example", t, func() {
		sol, err := rating.SolveVolatility(1.1513, 0.06, 1.7785, -0.4834, 0.5)

		Convey("Then the solver converges to the published volatility", func() {
			So(err, ShouldBeNil)
			So(sol.Converged, ShouldBeTrue)
			So(sol.Iterations, ShouldBeLessThanOrEqualTo, 100)
			So(sol.Volatility, ShouldAlmostEqual, 0.05999, 1e-5)
		})
	})

	Convey("Given a large improvement", t, func() {
		sol, err := rating.SolveVolatility(0.5, 0.06, 0.2, 3, 0.5)

		Convey("Then volatility rises", func() {
			So(err, ShouldBeNil)
			So(sol.Volatility, ShouldBeGreaterThan, 0.06)
		})
	})

	Convey("Given tau of zero", t, func() {
		_, err := rating.SolveVolatility(1, 0.06, 1, 0, 0)

		Convey("Then it reports a configuration error", func() {
			So(errors.Is(err, rating.ErrConfiguration), ShouldBeTrue)
		})
	})

	Convey("Given a non-positive volatility", t, func() {
		_, err := rating.SolveVolatility(1, 0, 1, 0, 0.5)

		Convey("Then it reports a non-finite result", func() {
			So(errors.Is(err, rating.ErrNonFiniteResult), ShouldBeTrue)
		})
	})
}
