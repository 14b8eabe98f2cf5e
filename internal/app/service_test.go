package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/adapters/snapshot"
	"github.com/okian/courtside/internal/config"
	"github.com/okian/courtside/internal/domain/edge"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func team(id string, ortg, drtg, pace, std float64) model.TeamSnapshot {
	return model.TeamSnapshot{
		TeamID: id,
		Horizons: map[model.Horizon]model.Aggregate{
			model.HorizonSeason: {OffRating: ortg, DefRating: drtg, Pace: pace, ScoringStdDev: std, Games: 40},
		},
	}
}

// fixture is a rested home side that projects well under 224.5.
func fixture(id string) model.GameInput {
	return model.GameInput{
		Game: model.Game{
			ID:       id,
			Season:   2024,
			HomeTeam: "HOM",
			AwayTeam: "AWY",
			Market:   model.Market{Line: 224.5, OverOdds: 1.91, UnderOdds: 1.91},
		},
		Home: team("HOM", 115, 110, 100, 10),
		Away: team("AWY", 108, 112, 98, 10),
		Signals: model.Signals{
			Home: model.SideSignals{RestDays: 2},
			Away: model.SideSignals{RestDays: 2},
		},
	}
}

func testConfig() *config.Config {
	cfg := config.New(context.Background())
	cfg.Projection.BiasCorrection = 0
	cfg.WorkerCount = 2
	cfg.QueueSize = 100
	return cfg
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, model.Decision) error {
	p.calls++
	return errors.New("stream unavailable")
}

func (p *failingPublisher) Close() error { return nil }

func TestService_AnalyzeInput(t *testing.T) {
	Convey("Given a service with no bias correction", t, func() {
		ctx := context.Background()
		svc := service.New(testConfig())

		Convey("When analysing a game projecting under the line", func() {
			d := svc.AnalyzeInput(ctx, fixture("g-under"))

			Convey("Then it leans or bets the under", func() {
				So(d.ID, ShouldNotBeEmpty)
				So(d.BetType, ShouldEqual, service.BetType)
				So(d.EventID, ShouldEqual, "g-under")
				So(d.PUnder, ShouldBeGreaterThan, 0.55)
				So(d.Recommendation, ShouldBeIn, []model.Recommendation{model.LeanUnder, model.StrongUnder})
				So(d.Selection, ShouldEqual, model.SideUnder)
				So(d.Odds, ShouldEqual, 1.91)
				So(d.Confidence, ShouldAlmostEqual, d.PUnder*100, 1e-9)
				So(d.Stake.IsPositive(), ShouldBeTrue)
				So(d.Outcome, ShouldEqual, model.OutcomePending)
				So(d.HasCondition(model.CondSideUnder), ShouldBeTrue)
			})

			Convey("And the projection is explained by its adjustments", func() {
				So(d.ProjectedTotal, ShouldBeBetween, 215.0, 225.0)
				So(d.Reasoning, ShouldNotBeEmpty)
			})
		})

		Convey("When the same game is analysed twice", func() {
			a := svc.AnalyzeInput(ctx, fixture("g-repeat"))
			b := svc.AnalyzeInput(ctx, fixture("g-repeat"))

			Convey("Then the simulation is reproducible", func() {
				So(a.PUnder, ShouldEqual, b.PUnder)
				So(a.ID, ShouldNotEqual, b.ID)
			})
		})

		Convey("When the market odds are invalid", func() {
			in := fixture("g-odds")
			in.Game.Market.OverOdds = 1.0

			d := svc.AnalyzeInput(ctx, in)

			Convey("Then the decision is NO_BET for insufficient confidence", func() {
				So(d.Recommendation, ShouldEqual, model.NoBet)
				So(d.Selection, ShouldEqual, model.Side(""))
				So(d.Stake.IsZero(), ShouldBeTrue)
				So(d.Reason, ShouldStartWith, edge.ReasonInsufficientConfidence)
			})
		})

		Convey("When a team snapshot is unusable", func() {
			in := fixture("g-bad")
			in.Away.Horizons = nil

			d := svc.AnalyzeInput(ctx, in)

			Convey("Then the decision is NO_BET", func() {
				So(d.Recommendation, ShouldEqual, model.NoBet)
				So(d.Reason, ShouldStartWith, edge.ReasonInsufficientConfidence)
			})
		})

		Convey("When both teams have few games", func() {
			in := fixture("g-early")
			for _, snap := range []*model.TeamSnapshot{&in.Home, &in.Away} {
				agg := snap.Horizons[model.HorizonSeason]
				agg.Games = 4
				snap.Horizons[model.HorizonSeason] = agg
			}

			d := svc.AnalyzeInput(ctx, in)

			Convey("Then the decision is tagged low confidence", func() {
				So(d.HasCondition(model.CondLowConfidence), ShouldBeTrue)
			})
		})
	})
}

func TestService_Rules(t *testing.T) {
	Convey("Given an active rule penalising the under side", t, func() {
		ctx := context.Background()
		store := repository.NewInMemoryStore()
		So(store.UpsertRule(ctx, model.LearningRule{
			ID:         "r1",
			Condition:  model.CondSideUnder,
			Adjustment: -0.10,
			Active:     true,
		}), ShouldBeNil)
		svc := service.New(testConfig(), service.WithStore(store))
		plain := service.New(testConfig())

		Convey("When analysing the under fixture", func() {
			shifted := svc.AnalyzeInput(ctx, fixture("g-rule"))
			base := plain.AnalyzeInput(ctx, fixture("g-rule"))

			Convey("Then the evaluated confidence is lower than without the rule", func() {
				So(shifted.PUnder, ShouldEqual, base.PUnder)
				So(shifted.PredictedEdge, ShouldBeLessThan, base.PredictedEdge)
			})
		})
	})
}

func TestService_Record(t *testing.T) {
	Convey("Given a service whose publisher fails", t, func() {
		ctx := context.Background()
		pub := &failingPublisher{}
		svc := service.New(testConfig(), service.WithPublisher(pub))
		d := svc.AnalyzeInput(ctx, fixture("g-pub"))

		Convey("When recording a decision", func() {
			err := svc.Record(ctx, d)

			Convey("Then the decision is stored anyway", func() {
				So(err, ShouldBeNil)
				So(pub.calls, ShouldEqual, 1)
				got, err := svc.Store().Get(ctx, d.ID)
				So(err, ShouldBeNil)
				So(got.Recommendation, ShouldEqual, d.Recommendation)
			})

			Convey("And recording it again is rejected", func() {
				err := svc.Record(ctx, d)
				So(errors.Is(err, repository.ErrDuplicate), ShouldBeTrue)
			})
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service backed by a snapshot source", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		in := fixture("g-life")
		src, err := snapshot.NewMemory(snapshot.Dataset{
			Games:   []model.Game{in.Game},
			Teams:   map[int]map[string]model.TeamSnapshot{2024: {"HOM": in.Home, "AWY": in.Away}},
			Signals: map[string]model.Signals{in.Game.ID: in.Signals},
		})
		So(err, ShouldBeNil)
		svc := service.New(testConfig(), service.WithSource(src))

		Convey("When submitting before start", func() {
			err := svc.Submit(ctx, model.AnalysisJob{GameID: "g-life"})

			Convey("Then it is refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When started and a game is submitted", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			So(svc.Submit(ctx, model.AnalysisJob{GameID: "g-life"}), ShouldBeNil)

			Convey("Then a decision is recorded", func() {
				var got []model.Decision
				for i := 0; i < 100; i++ {
					got, err = svc.Store().List(ctx, repository.Filter{EventID: "g-life"})
					So(err, ShouldBeNil)
					if len(got) > 0 {
						break
					}
					time.Sleep(20 * time.Millisecond)
				}
				So(got, ShouldHaveLength, 1)
				So(svc.GetStats(ctx)["started"], ShouldEqual, true)
			})

			Convey("And a second submission is a duplicate", func() {
				err := svc.Submit(ctx, model.AnalysisJob{GameID: "g-life"})
				So(errors.Is(err, service.ErrDuplicate), ShouldBeTrue)
			})
		})

		Convey("When stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then stats report it", func() {
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})

			Convey("Then it cannot be restarted", func() {
				So(errors.Is(svc.Start(ctx), service.ErrStopped), ShouldBeTrue)
			})
		})

		Convey("When stopped while a game is being analysed", func() {
			gate := &gatedSource{Source: src, entered: make(chan struct{}), release: make(chan struct{})}
			svc := service.New(testConfig(), service.WithSource(gate))
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Submit(ctx, model.AnalysisJob{GameID: "g-life"}), ShouldBeNil)

			select {
			case <-gate.entered:
			case <-time.After(5 * time.Second):
				t.Fatal("analysis never started")
			}
			stopped := make(chan error, 1)
			go func() { stopped <- svc.Stop(ctx) }()
			time.Sleep(50 * time.Millisecond)
			close(gate.release)

			Convey("Then the in-flight game finishes and Stop returns promptly", func() {
				select {
				case err := <-stopped:
					So(err, ShouldBeNil)
				case <-time.After(3 * time.Second):
					t.Fatal("stop blocked behind the in-flight analysis")
				}
				got, err := svc.Store().List(ctx, repository.Filter{EventID: "g-life"})
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 1)
			})
		})
	})
}

// gatedSource holds the first pre-game read until release is closed.
type gatedSource struct {
	snapshot.Source
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSource) PreGame(ctx context.Context, gameID, teamID string) (model.TeamSnapshot, bool, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Source.PreGame(ctx, gameID, teamID)
}

type closeCounter struct {
	*repository.InMemoryStore
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

type countingPublisher struct{ closed int }

func (p *countingPublisher) Publish(context.Context, model.Decision) error { return nil }

func (p *countingPublisher) Close() error {
	p.closed++
	return nil
}

func TestService_StopWithoutStart(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		ctx := context.Background()
		store := &closeCounter{InMemoryStore: repository.NewInMemoryStore()}
		pub := &countingPublisher{}
		svc := service.New(testConfig(), service.WithStore(store), service.WithPublisher(pub))

		Convey("When it is stopped twice", func() {
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then the store and publisher are closed exactly once", func() {
				So(store.closed, ShouldEqual, 1)
				So(pub.closed, ShouldEqual, 1)
			})

			Convey("And later batches are refused", func() {
				src, err := snapshot.NewMemory(snapshot.Dataset{})
				So(err, ShouldBeNil)
				withSource := service.New(testConfig(), service.WithSource(src))
				So(withSource.Stop(ctx), ShouldBeNil)
				_, err = withSource.RunBatch(ctx, nil)
				So(err, ShouldEqual, service.ErrStopped)
			})
		})
	})
}
