package adjust_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/courtside/internal/domain/adjust"
	"github.com/okian/courtside/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func snapshot(id string, ortg, drtg, pace float64) model.TeamSnapshot {
	return model.TeamSnapshot{
		TeamID: id,
		Horizons: map[model.Horizon]model.Aggregate{
			model.HorizonSeason: {OffRating: ortg, DefRating: drtg, Pace: pace, ScoringStdDev: 11, Games: 40},
		},
	}
}

func baseContext() adjust.Context {
	return adjust.Context{
		Input: model.GameInput{
			Game: model.Game{ID: "g1", HomeTeam: "A", AwayTeam: "B", Market: model.Market{Line: 224.5, OverOdds: 1.91, UnderOdds: 1.91}},
			Home: snapshot("A", 115, 110, 100),
			Away: snapshot("B", 108, 112, 98),
		},
		BaseTotal: 220,
	}
}

func TestRestFatigue(t *testing.T) {
	Convey("Given the default library", t, func() {
		lib := adjust.New(adjust.DefaultConfig())
		c := baseContext()

		Convey("When both sides are on a back-to-back", func() {
			c.Input.Signals.Home.RestDays = 1
			c.Input.Signals.Away.BackToBack = true
			v, d := lib.RestFatigue(c)

			Convey("Then the second penalty stacks at half weight to -4.5", func() {
				So(v, ShouldEqual, -4.5)
				So(v, ShouldBeLessThanOrEqualTo, -4.0)
				So(v, ShouldBeGreaterThan, -6.0)
				So(d.Conditions, ShouldContain, model.CondBothB2B)
			})
		})

		Convey("When only the away side is on a back-to-back", func() {
			c.Input.Signals.Home.RestDays = 2
			c.Input.Signals.Away.RestDays = 1
			v, d := lib.RestFatigue(c)

			Convey("Then the single penalty applies", func() {
				So(v, ShouldEqual, -3.0)
				So(d.Conditions, ShouldResemble, []string{model.CondAwayB2B})
			})
		})

		Convey("When both sides have three or more days rest", func() {
			c.Input.Signals.Home.RestDays = 3
			c.Input.Signals.Away.RestDays = 4
			v, _ := lib.RestFatigue(c)

			Convey("Then the smaller rested bonus applies", func() {
				So(v, ShouldEqual, 1.5)
			})
		})

		Convey("When both sides have two days rest", func() {
			c.Input.Signals.Home.RestDays = 2
			c.Input.Signals.Away.RestDays = 2
			v, d := lib.RestFatigue(c)

			Convey("Then nothing applies", func() {
				So(v, ShouldEqual, 0)
				So(d.InsufficientData, ShouldBeFalse)
			})
		})

		Convey("When rest is unknown", func() {
			v, d := lib.RestFatigue(c)

			Convey("Then it degrades to zero with the flag", func() {
				So(v, ShouldEqual, 0)
				So(d.InsufficientData, ShouldBeTrue)
				So(errors.Is(d.Err, adjust.ErrInsufficientData), ShouldBeTrue)
			})
		})
	})
}

func TestHeadToHead(t *testing.T) {
	Convey("Given the default library", t, func() {
		lib := adjust.New(adjust.DefaultConfig())
		c := baseContext()

		Convey("When there are only two meetings", func() {
			c.Input.Signals.HeadToHeadTotals = []float64{240, 238}
			v, d := lib.HeadToHead(c)

			Convey("Then it is not applied", func() {
				So(v, ShouldEqual, 0)
				So(d.InsufficientData, ShouldBeTrue)
			})
		})

		Convey("When three meetings average ten over base", func() {
			c.Input.Signals.HeadToHeadTotals = []float64{228, 230, 232}
			v, d := lib.HeadToHead(c)

			Convey("Then the raw difference is damped", func() {
				So(v, ShouldAlmostEqual, 3.0, 1e-9)
				So(v, ShouldBeLessThan, 10)
				So(d.Conditions, ShouldContain, model.CondH2HApplied)
			})
		})

		Convey("When meetings are far off the base", func() {
			c.Input.Signals.HeadToHeadTotals = []float64{180, 175, 170}
			v, _ := lib.HeadToHead(c)

			Convey("Then it clamps to the documented range", func() {
				So(v, ShouldEqual, -5)
			})
		})
	})
}

func TestLineTrendTiers(t *testing.T) {
	Convey("Given the default library", t, func() {
		lib := adjust.New(adjust.DefaultConfig())
		cases := []struct {
			samples int
			margin  float64
			want    float64
			cond    string
		}{
			{9, 10, 0, ""},
			{10, 2.9, 0, ""},
			{10, 3.0, 1.5, model.CondTrendMild},
			{12, -4.5, -1.5, model.CondTrendMild},
			{12, 5.99, 1.5, model.CondTrendMild},
			{12, 6.0, 3.0, model.CondTrendStrong},
			{30, -11, -3.0, model.CondTrendStrong},
		}
		for _, tc := range cases {
			c := baseContext()
			c.Input.Signals.LineTrend = model.LineTrend{Samples: tc.samples, AvgMargin: tc.margin}
			v, d := lib.LineTrend(c)
			So(v, ShouldEqual, tc.want)
			if tc.cond != "" {
				So(d.Conditions, ShouldContain, tc.cond)
			}
		}
	})
}

func TestOtherAdjustments(t *testing.T) {
	Convey("Given the default library", t, func() {
		lib := adjust.New(adjust.DefaultConfig())
		c := baseContext()

		Convey("When recent opponents were weak defenses", func() {
			c.Input.Signals.LeagueDefRating = 112
			c.Input.Signals.Home.OppDefRating = 116
			v, _ := lib.OpponentStrength(c)

			Convey("Then the total is marked down", func() {
				So(v, ShouldAlmostEqual, -2.0, 1e-9)
			})
		})

		Convey("When one side faces a dense schedule", func() {
			c.Input.Signals.Home.FatigueScore = 0.75
			c.Input.Signals.Away.FatigueScore = 0.2
			v, d := lib.ScheduleDensity(c)

			Convey("Then only that side is penalised", func() {
				So(v, ShouldAlmostEqual, -1.5, 1e-9)
				So(d.Conditions, ShouldContain, model.CondScheduleFatigue)
			})
		})

		Convey("When venue splits are below the minimum sample", func() {
			c.Input.Signals.Home = model.SideSignals{VenuePPG: 120, SeasonPPG: 114, VenueGames: 4}
			_, d := lib.VenueSplit(c)
			So(d.InsufficientData, ShouldBeTrue)
		})

		Convey("When venue splits are known", func() {
			c.Input.Signals.Home = model.SideSignals{VenuePPG: 118, SeasonPPG: 114, VenueGames: 20}
			c.Input.Signals.Away = model.SideSignals{VenuePPG: 106, SeasonPPG: 108, VenueGames: 20}
			v, _ := lib.VenueSplit(c)
			So(v, ShouldAlmostEqual, 1.0, 1e-9)
		})

		Convey("When both sides are playing faster than their season pace", func() {
			c.Input.Signals.Home.RecentPace = 102
			c.Input.Signals.Away.RecentPace = 100
			v, _ := lib.PaceMatchup(c)

			Convey("Then the total rises", func() {
				So(v, ShouldAlmostEqual, 2*2.23*0.5, 1e-9)
			})
		})
	})
}

func TestApply(t *testing.T) {
	Convey("Given a game with no auxiliary signals", t, func() {
		lib := adjust.New(adjust.DefaultConfig())
		res := lib.Apply(baseContext())

		Convey("Then every adjustment is present and degrades to zero", func() {
			So(len(res.Adjustments), ShouldEqual, len(lib.Funcs()))
			So(model.SumAdjustments(res.Adjustments), ShouldEqual, 0)
			So(len(res.Insufficient), ShouldEqual, len(lib.Funcs()))
			for _, a := range res.Adjustments {
				So(math.IsNaN(a.Value), ShouldBeFalse)
				So(a.InsufficientData, ShouldBeTrue)
			}
		})
	})

	Convey("Given head-to-head totals containing NaN", t, func() {
		lib := adjust.New(adjust.DefaultConfig())
		c := baseContext()
		c.Input.Signals.HeadToHeadTotals = []float64{230, math.NaN(), 228}
		res := lib.Apply(c)

		Convey("Then the value is neutral and flagged", func() {
			d := res.Details[adjust.NameHeadToHead]
			So(d.InsufficientData, ShouldBeTrue)
			for _, a := range res.Adjustments {
				So(math.IsNaN(a.Value), ShouldBeFalse)
			}
		})
	})

	Convey("Given extreme signals", t, func() {
		lib := adjust.New(adjust.DefaultConfig())
		c := baseContext()
		c.Input.Signals = model.Signals{
			Home:             model.SideSignals{RestDays: 1, FatigueScore: 5, VenuePPG: 200, SeasonPPG: 100, VenueGames: 30, OppDefRating: 150, RecentPace: 140},
			Away:             model.SideSignals{RestDays: 1, FatigueScore: 5, VenuePPG: 200, SeasonPPG: 100, VenueGames: 30, OppDefRating: 150, RecentPace: 140},
			HeadToHeadTotals: []float64{300, 310, 320},
			LineTrend:        model.LineTrend{Samples: 50, AvgMargin: 40},
			LeagueDefRating:  100,
		}

		Convey("Then every value stays inside its documented range", func() {
			for _, f := range lib.Funcs() {
				v, _ := f.Fn(c)
				So(v, ShouldBeBetweenOrEqual, f.Min, f.Max)
			}
		})
	})
}

func TestMergeNarrative(t *testing.T) {
	Convey("Given the default library", t, func() {
		lib := adjust.New(adjust.DefaultConfig())

		Convey("When there is no narrative", func() {
			_, ok := lib.MergeNarrative(nil)
			So(ok, ShouldBeFalse)
		})

		Convey("When the narrative is low confidence", func() {
			adj, ok := lib.MergeNarrative(&model.Narrative{
				Adjustment: -4,
				Confidence: "low",
				Items: []model.NarrativeItem{
					{Category: "injury", Impact: "high", Rationale: "starting center out"},
					{Category: "travel", Impact: "low", Rationale: "late arrival"},
				},
			})

			Convey("Then it is halved and carries every item", func() {
				So(ok, ShouldBeTrue)
				So(adj.Value, ShouldEqual, -2)
				So(adj.Rationale, ShouldContainSubstring, "starting center out")
				So(adj.Rationale, ShouldContainSubstring, "[travel/low]")
			})
		})

		Convey("When the narrative is merged through Apply", func() {
			c := baseContext()
			c.Input.Narrative = &model.Narrative{Adjustment: 2.5, Confidence: "high"}
			res := lib.Apply(c)

			Convey("Then it is added additively", func() {
				So(model.SumAdjustments(res.Adjustments), ShouldEqual, 2.5)
				So(res.Conditions, ShouldContain, model.CondNarrative)
			})
		})
	})
}
