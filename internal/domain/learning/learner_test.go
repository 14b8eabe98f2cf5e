package learning_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/okian/courtside/internal/domain/learning"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/internal/domain/projection"
	. "github.com/smartystreets/goconvey/convey"
)

var fixed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func learner() *learning.Learner {
	return learning.New(learning.DefaultConfig(), learning.WithClock(func() time.Time { return fixed }))
}

func bets(cond string, n, wins int, conf float64) []model.Decision {
	out := make([]model.Decision, 0, n)
	for i := 0; i < n; i++ {
		o := model.OutcomeLoss
		if i < wins {
			o = model.OutcomeWin
		}
		out = append(out, model.Decision{
			ID:         fmt.Sprintf("%s-%d", cond, i),
			Selection:  model.SideUnder,
			Confidence: conf,
			Conditions: []string{cond},
			Outcome:    o,
		})
	}
	return out
}

func TestSynthesizeBoundaries(t *testing.T) {
	Convey("Given condition histories around the sample and divergence minimums", t, func() {
		cases := []struct {
			name  string
			n     int
			wins  int
			conf  float64
			rule  bool
			value float64
		}{
			{"sample below minimum", 19, 19, 50, false, 0},
			{"divergence exactly at minimum", 20, 13, 55, true, 0.10},
			{"divergence just below minimum", 20, 13, 56, false, 0},
			{"negative divergence at minimum", 20, 7, 45, true, -0.10},
			{"large divergence is capped", 40, 30, 50, true, 0.10},
			{"no divergence", 20, 10, 50, false, 0},
		}
		l := learner()
		for _, c := range cases {
			rules := l.Synthesize(bets(model.CondBothB2B, c.n, c.wins, c.conf), nil)
			if !c.rule {
				So(rules, ShouldBeEmpty)
				continue
			}
			So(len(rules), ShouldEqual, 1)
			So(rules[0].Condition, ShouldEqual, model.CondBothB2B)
			So(rules[0].Active, ShouldBeTrue)
			So(rules[0].SampleSize, ShouldEqual, c.n)
			So(rules[0].Adjustment, ShouldAlmostEqual, c.value, 1e-9)
			So(rules[0].ID, ShouldNotBeBlank)
			So(rules[0].UpdatedAt, ShouldEqual, fixed)
		}
	})
}

func TestSynthesizeLifecycle(t *testing.T) {
	Convey("Given an active rule", t, func() {
		l := learner()
		existing := []model.LearningRule{{ID: "r1", Condition: model.CondHighVolatility, Adjustment: 0.08, Active: true}}

		Convey("When its condition stops diverging", func() {
			rules := l.Synthesize(bets(model.CondHighVolatility, 30, 15, 50), existing)

			Convey("Then it is deactivated in place", func() {
				So(len(rules), ShouldEqual, 1)
				So(rules[0].ID, ShouldEqual, "r1")
				So(rules[0].Active, ShouldBeFalse)
			})
		})

		Convey("When its condition still diverges", func() {
			rules := l.Synthesize(bets(model.CondHighVolatility, 30, 12, 55), existing)

			Convey("Then it keeps its id and is refreshed", func() {
				So(len(rules), ShouldEqual, 1)
				So(rules[0].ID, ShouldEqual, "r1")
				So(rules[0].Active, ShouldBeTrue)
				So(rules[0].Adjustment, ShouldAlmostEqual, -0.10, 1e-9)
			})
		})
	})

	Convey("Given pushes and NO_BET decisions", t, func() {
		l := learner()
		ds := bets(model.CondBothRested, 20, 20, 50)
		for i := range ds {
			if i%2 == 0 {
				ds[i].Outcome = model.OutcomePush
			} else {
				ds[i].Selection = ""
			}
		}

		Convey("Then they do not count toward any rule", func() {
			So(l.Synthesize(ds, nil), ShouldBeEmpty)
		})
	})
}

func TestPostMortem(t *testing.T) {
	Convey("Given lost decisions", t, func() {
		l := learner()

		Convey("When the final lands near the projection", func() {
			pm := l.PostMortem(model.Decision{ID: "d1", Selection: model.SideUnder, Line: 224.5, ProjectedTotal: 220}, 225)
			So(pm.Cause, ShouldEqual, model.CauseVariance)
			So(pm.Severity, ShouldEqual, model.SeverityLow)
			So(pm.Miss, ShouldEqual, 5)
			So(pm.DecisionID, ShouldEqual, "d1")
		})

		Convey("When an under loses by an overtime-sized margin", func() {
			pm := l.PostMortem(model.Decision{Selection: model.SideUnder, Line: 224.5, ProjectedTotal: 219}, 232)
			So(pm.Cause, ShouldEqual, model.CauseOvertime)
			So(pm.Severity, ShouldEqual, model.SeverityMedium)
		})

		Convey("When the adjustments moved the projection the wrong way", func() {
			pm := l.PostMortem(model.Decision{
				Selection: model.SideOver, Line: 224.5, ProjectedTotal: 234,
				Reasoning: []model.Adjustment{{Name: "head_to_head", Value: 10}, {Name: "bias_correction", Value: 4}},
			}, 210)
			So(pm.Cause, ShouldEqual, model.CauseAdjustmentError)
			So(pm.Severity, ShouldEqual, model.SeverityHigh)
		})

		Convey("When the base projection itself missed", func() {
			pm := l.PostMortem(model.Decision{
				Selection: model.SideOver, Line: 224.5, ProjectedTotal: 232,
				Reasoning: []model.Adjustment{{Name: "rest_fatigue", Value: -3}},
			}, 212)
			So(pm.Cause, ShouldEqual, model.CauseProjectionMiss)
		})
	})
}

func TestCalibrate(t *testing.T) {
	Convey("Given buckets and settled decisions", t, func() {
		l := learner()
		buckets := []model.CalibrationBucket{
			{Bucket: 60, Total: 10, Wins: 7, Losses: 2, Pushes: 1},
			{Bucket: 55, Total: 20, Wins: 11, Losses: 9},
		}
		settled := func(n int) []model.Decision {
			var ds []model.Decision
			for i := 0; i < n; i++ {
				final := 222.0
				ds = append(ds, model.Decision{ProjectedTotal: 220, FinalTotal: &final, Outcome: model.OutcomeWin})
			}
			return ds
		}

		Convey("When enough decisions carry final totals", func() {
			rep := l.Calibrate(buckets, settled(30), 4)

			Convey("Then buckets are ordered with their gaps and ECE", func() {
				So(rep.Buckets[0].Bucket, ShouldEqual, 55)
				So(rep.Buckets[0].Gap, ShouldAlmostEqual, 0, 1e-9)
				So(rep.Buckets[1].Realized, ShouldAlmostEqual, 7.0/9.0, 1e-9)
				So(rep.Decided, ShouldEqual, 29)
				So(rep.ECE, ShouldAlmostEqual, 9.0/29.0*(7.0/9.0-0.6), 1e-9)
			})

			Convey("Then the bias moves by the mean residual", func() {
				So(rep.MeanResidual, ShouldAlmostEqual, 2, 1e-9)
				So(rep.SuggestedBias, ShouldAlmostEqual, 6, 1e-9)
			})
		})

		Convey("When too few decisions carry final totals", func() {
			rep := l.Calibrate(buckets, settled(29), 4)
			So(rep.SuggestedBias, ShouldEqual, 4)
			So(rep.BiasSamples, ShouldEqual, 29)
		})
	})

	Convey("Given decisions that record the bias they were projected with", t, func() {
		l := learner()
		projected := func(n int, bias, projectedTotal, final float64) []model.Decision {
			var ds []model.Decision
			for i := 0; i < n; i++ {
				f := final
				ds = append(ds, model.Decision{
					ProjectedTotal: projectedTotal,
					FinalTotal:     &f,
					Outcome:        model.OutcomeLoss,
					Reasoning: []model.Adjustment{
						{Name: "pace", Value: 1.5},
						{Name: projection.NameBiasCorrection, Value: bias},
					},
				})
			}
			return ds
		}

		Convey("When the same history is calibrated repeatedly", func() {
			history := projected(30, 4, 220, 226)
			bias := 4.0
			var seen []float64
			for i := 0; i < 3; i++ {
				bias = l.Calibrate(nil, history, bias).SuggestedBias
				seen = append(seen, bias)
			}

			Convey("Then the suggestion settles on the bias that fits it", func() {
				So(seen, ShouldResemble, []float64{10, 10, 10})
			})
		})

		Convey("When history spans two bias settings", func() {
			history := append(projected(30, 4, 220, 226), projected(30, 10, 226, 226)...)
			rep := l.Calibrate(nil, history, 10)

			Convey("Then each decision is judged against its own bias", func() {
				So(rep.MeanResidual, ShouldAlmostEqual, 3, 1e-9)
				So(rep.SuggestedBias, ShouldAlmostEqual, 10, 1e-9)
			})
		})

		Convey("When a decision was projected without a bias entry", func() {
			history := projected(30, 0, 220, 223)
			for i := range history {
				history[i].Reasoning = history[i].Reasoning[:1]
			}
			rep := l.Calibrate(nil, history, 4)
			So(rep.SuggestedBias, ShouldAlmostEqual, 3, 1e-9)
		})
	})
}
