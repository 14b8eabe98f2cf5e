package walkforward_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/okian/courtside/internal/domain/tiers"
	"github.com/okian/courtside/internal/domain/walkforward"
	"github.com/okian/courtside/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// league returns rows where the first feature carries real signal.
func league(first, last, perSeason int) []walkforward.Row {
	rng := rand.New(rand.NewPCG(42, 7))
	var rows []walkforward.Row
	for s := first; s <= last; s++ {
		for i := 0; i < perSeason; i++ {
			x := rng.NormFloat64()
			label := 0.0
			if 1.5*x+rng.NormFloat64() > 0 {
				label = 1
			}
			rows = append(rows, walkforward.Row{
				Season:   s,
				GameID:   fmt.Sprintf("%d-%03d", s, i),
				Features: []float64{x, rng.NormFloat64()},
				Label:    label,
			})
		}
	}
	return rows
}

func TestSplits(t *testing.T) {
	Convey("Given eight seasons of rows", t, func() {
		rows := league(2015, 2022, 20)

		Convey("When splitting with an expanding window from 2018", func() {
			cfg := walkforward.Config{StartTestSeason: 2018, MinTrainSeasons: 2}
			splits, err := walkforward.Splits(cfg, rows)
			So(err, ShouldBeNil)

			Convey("Then every later season is tested on all earlier seasons", func() {
				So(len(splits), ShouldEqual, 5)
				So(splits[0].TestSeason, ShouldEqual, 2018)
				So(splits[0].TrainSeasons, ShouldResemble, []int{2015, 2016, 2017})
				So(len(splits[4].TrainSeasons), ShouldEqual, 7)
			})

			Convey("Then no split trains on its test season or later", func() {
				for _, s := range splits {
					for _, r := range s.Train {
						So(r.Season, ShouldBeLessThan, s.TestSeason)
					}
					for _, r := range s.Test {
						So(r.Season, ShouldEqual, s.TestSeason)
					}
				}
			})
		})

		Convey("When using a trailing window of two seasons", func() {
			cfg := walkforward.Config{StartTestSeason: 2019, TrailingWindow: 2}
			splits, err := walkforward.Splits(cfg, rows)
			So(err, ShouldBeNil)
			for _, s := range splits {
				So(s.TrainSeasons, ShouldResemble, []int{s.TestSeason - 2, s.TestSeason - 1})
				So(len(s.Train), ShouldEqual, 40)
			}
		})

		Convey("When the minimum history skips early seasons", func() {
			cfg := walkforward.Config{MinTrainSeasons: 4}
			splits, err := walkforward.Splits(cfg, rows)
			So(err, ShouldBeNil)
			So(splits[0].TestSeason, ShouldEqual, 2019)
		})

		Convey("When no season qualifies", func() {
			_, err := walkforward.Splits(walkforward.Config{MinTrainSeasons: 10}, rows)
			So(errors.Is(err, walkforward.ErrNoSplits), ShouldBeTrue)
		})
	})
}

func TestCheckSplit(t *testing.T) {
	Convey("Given splits with leaked data", t, func() {
		test := []walkforward.Row{{Season: 2020, GameID: "a"}}

		Convey("Then a training row from the test season is fatal", func() {
			err := walkforward.CheckSplit(walkforward.Split{
				TestSeason: 2020, Test: test,
				Train: []walkforward.Row{{Season: 2019, GameID: "b"}, {Season: 2020, GameID: "c"}},
			})
			So(errors.Is(err, walkforward.ErrLookAheadViolation), ShouldBeTrue)
		})

		Convey("Then a shared game id is fatal", func() {
			err := walkforward.CheckSplit(walkforward.Split{
				TestSeason: 2020, Test: test,
				Train: []walkforward.Row{{Season: 2019, GameID: "a"}},
			})
			So(errors.Is(err, walkforward.ErrLookAheadViolation), ShouldBeTrue)
		})

		Convey("Then a clean split passes", func() {
			err := walkforward.CheckSplit(walkforward.Split{
				TestSeason: 2020, Test: test,
				Train: []walkforward.Row{{Season: 2019, GameID: "b"}},
			})
			So(err, ShouldBeNil)
		})
	})
}

func TestMetrics(t *testing.T) {
	Convey("Given four predictions at 1.91", t, func() {
		probs := []float64{0.7, 0.3, 0.6, 0.55}
		labels := []float64{1, 1, 0, 1}
		m := walkforward.Evaluate(probs, labels, 0, 1.91, 10)

		Convey("Then the betting figures match a hand calculation", func() {
			So(m.Bets, ShouldEqual, 4)
			So(m.Accuracy, ShouldEqual, 0.5)
			So(m.Units, ShouldAlmostEqual, -0.18, 1e-9)
			So(m.ROI, ShouldAlmostEqual, -0.045, 1e-9)
			So(m.MaxDrawdown, ShouldAlmostEqual, 2.0, 1e-9)
			So(m.Brier, ShouldAlmostEqual, 0.285625, 1e-9)
		})

		Convey("Then calibration bins hold every prediction", func() {
			n := 0
			for _, b := range m.Calibration {
				n += b.Count
			}
			So(n, ShouldEqual, 4)
			So(len(m.Calibration), ShouldEqual, 10)
			So(m.ECE, ShouldBeBetweenOrEqual, 0, 1)
		})

		Convey("When the threshold excludes weak predictions", func() {
			m := walkforward.Evaluate(probs, labels, 0.15, 1.91, 10)
			So(m.Bets, ShouldEqual, 2)
		})
	})

	Convey("Given constant returns", t, func() {
		So(walkforward.Sharpe([]float64{0.91, 0.91}, 100), ShouldEqual, 0)
		So(walkforward.Sharpe([]float64{0.91}, 100), ShouldEqual, 0)
	})
}

func TestSweep(t *testing.T) {
	Convey("Given predictions of mixed confidence", t, func() {
		probs := []float64{0.52, 0.48, 0.9, 0.1, 0.85, 0.53}
		labels := []float64{0, 1, 1, 0, 1, 1}
		rows := walkforward.Sweep(probs, labels, []float64{0, 0.1, 0.3}, 1.91, 3, 100)

		Convey("Then bets shrink as the threshold rises and the floor marks reliability", func() {
			So(rows[0].Bets, ShouldEqual, 6)
			So(rows[1].Bets, ShouldEqual, 3)
			So(rows[2].Bets, ShouldEqual, 3)
			So(rows[0].Reliable, ShouldBeTrue)
			So(rows[1].Accuracy, ShouldEqual, 1)
		})

		Convey("Then the best row is the most risk-adjusted reliable one", func() {
			rows = walkforward.Sweep(probs, labels, []float64{0, 0.1, 0.45}, 1.91, 3, 100)
			best, ok := walkforward.Best(rows)
			So(ok, ShouldBeTrue)
			So(best.Threshold, ShouldEqual, 0)
			So(rows[2].Reliable, ShouldBeFalse)
		})
	})
}

func TestValidatorRun(t *testing.T) {
	Convey("Given a league with an informative feature", t, func() {
		rows := league(2015, 2020, 300)
		cfg := walkforward.DefaultConfig()
		cfg.StartTestSeason = 2017
		v := walkforward.New(cfg, tiers.Default())

		Convey("When validating the logistic baseline", func() {
			rep, err := v.Run(context.Background(), rows, func() walkforward.Model {
				return walkforward.NewLogisticModel(0.01)
			})
			So(err, ShouldBeNil)

			Convey("Then each test season is scored and the model beats a coin", func() {
				So(len(rep.Seasons), ShouldEqual, 4)
				So(rep.Aggregate.TestRows, ShouldEqual, 1200)
				So(rep.Aggregate.Accuracy, ShouldBeGreaterThan, 0.65)
				So(rep.Aggregate.ECE, ShouldBeLessThan, 0.1)
			})

			Convey("Then the sweep covers every shared threshold", func() {
				So(len(rep.Sweep), ShouldEqual, len(tiers.Default().SweepPoints()))
				So(rep.Best, ShouldNotBeNil)
			})
		})

		Convey("When the model returns too few predictions", func() {
			_, err := v.Run(context.Background(), rows, func() walkforward.Model { return shortModel{} })
			So(errors.Is(err, walkforward.ErrPredictionCount), ShouldBeTrue)
		})
	})
}

type shortModel struct{}

func (shortModel) Fit(context.Context, []walkforward.Row) error { return nil }

func (shortModel) Predict(_ context.Context, rows []walkforward.Row) ([]float64, error) {
	return make([]float64, len(rows)-1), nil
}

func TestLogisticModel(t *testing.T) {
	Convey("Given a logistic model fitted on an informative feature", t, func() {
		ctx := context.Background()
		m := walkforward.NewLogisticModel(0.01)
		So(m.Fit(ctx, league(2015, 2016, 400)), ShouldBeNil)

		Convey("Then the fitted probability rises with the informative feature", func() {
			grid := []walkforward.Row{
				{GameID: "low", Features: []float64{-2, 0}},
				{GameID: "mid", Features: []float64{0, 0}},
				{GameID: "high", Features: []float64{2, 0}},
			}
			p, err := m.Predict(ctx, grid)
			So(err, ShouldBeNil)
			So(p[0], ShouldBeLessThan, 0.2)
			So(p[1], ShouldAlmostEqual, 0.5, 0.1)
			So(p[2], ShouldBeGreaterThan, 0.8)
		})

		Convey("Then the noise feature barely moves the probability", func() {
			p, err := m.Predict(ctx, []walkforward.Row{
				{GameID: "a", Features: []float64{0, -2}},
				{GameID: "b", Features: []float64{0, 2}},
			})
			So(err, ShouldBeNil)
			So(p[1]-p[0], ShouldAlmostEqual, 0, 0.3)
		})

		Convey("Then rows with the wrong feature count are refused", func() {
			_, err := m.Predict(ctx, []walkforward.Row{{GameID: "x", Features: []float64{1}}})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given an unfitted logistic model", t, func() {
		_, err := walkforward.NewLogisticModel(0.01).Predict(context.Background(), nil)
		So(errors.Is(err, walkforward.ErrEmptyTrainingSet), ShouldBeTrue)
	})
}
