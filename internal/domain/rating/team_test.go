package rating_test

import (
	"testing"

	"github.com/okian/shuttle/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAggregateTeam(t *testing.T) {
	Convey("Given an empty team", t, func() {
		Convey("Then the aggregate is a default entity", func() {
			So(rating.AggregateTeam(nil), ShouldResemble, rating.DefaultState())
		})
	})

	Convey("Given a pair", t, func() {
		agg := rating.AggregateTeam([]rating.State{
			{Rating: 1600, Deviation: 80, Volatility: 0.05},
			{Rating: 1450, Deviation: 120, Volatility: 0.07},
		})

		Convey("Then rating is the mean and uncertainty the maximum", func() {
			So(agg.Rating, ShouldEqual, 1525)
			So(agg.Deviation, ShouldEqual, 120)
			So(agg.Volatility, ShouldEqual, 0.07)
		})
	})
}

func TestDistributeTeamDelta(t *testing.T) {
	Convey("Given a pair and a team change", t, func() {
		members := []rating.State{
			{Rating: 1700, Deviation: 40, Volatility: 0.06},
			{Rating: 1300, Deviation: 200, Volatility: 0.06},
		}
		d := rating.Change{Rating: 30, Deviation: -40, Volatility: 0.002}

		out := rating.DistributeTeamDelta(members, d)

		Convey("Then each member gets an equal share regardless of rating", func() {
			So(out[0].Rating, ShouldEqual, 1715)
			So(out[1].Rating, ShouldEqual, 1315)
			So(out[0].Volatility, ShouldAlmostEqual, 0.061, 1e-12)
			So(out[1].Volatility, ShouldAlmostEqual, 0.061, 1e-12)
		})

		Convey("And RD is clamped per member", func() {
			So(out[0].Deviation, ShouldEqual, rating.MinDeviation)
			So(out[1].Deviation, ShouldEqual, 180)
		})

		Convey("And the inputs are untouched", func() {
			So(members[0].Rating, ShouldEqual, 1700)
		})
	})

	Convey("Given a fresh pair that wins a match", t, func() {
		members := []rating.State{
			{Rating: 1500, Deviation: 350, Volatility: 0.06},
			{Rating: 1550, Deviation: 320, Volatility: 0.06},
		}
		agg := rating.AggregateTeam(members)
		out := rating.DistributeTeamDelta(members, rating.Change{Rating: 40, Deviation: -10})

		Convey("Then the team enters as mean rating with the widest RD", func() {
			So(agg, ShouldResemble, rating.State{Rating: 1525, Deviation: 350, Volatility: 0.06})
		})

		Convey("Then each member takes half of the team change", func() {
			So(out[0], ShouldResemble, rating.State{Rating: 1520, Deviation: 345, Volatility: 0.06})
			So(out[1], ShouldResemble, rating.State{Rating: 1570, Deviation: 315, Volatility: 0.06})
		})
	})

	Convey("Given an RD increase past the ceiling", t, func() {
		out := rating.DistributeTeamDelta(
			[]rating.State{{Rating: 1500, Deviation: 340, Volatility: 0.06}},
			rating.Change{Deviation: 50},
		)

		Convey("Then it stops at the maximum", func() {
			So(out[0].Deviation, ShouldEqual, rating.MaxDeviation)
		})
	})

	Convey("Given a diff between two states", t, func() {
		c := rating.Diff(
			rating.State{Rating: 1500, Deviation: 300, Volatility: 0.06},
			rating.State{Rating: 1540, Deviation: 280, Volatility: 0.061},
		)

		Convey("Then it is after minus before", func() {
			So(c.Rating, ShouldEqual, 40)
			So(c.Deviation, ShouldEqual, -20)
			So(c.Volatility, ShouldAlmostEqual, 0.001, 1e-12)
		})
	})
}
