package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func decision(id string, conf float64, sel model.Side) model.Decision {
	return model.Decision{
		ID:             id,
		EventID:        "g-" + id,
		BetType:        "total",
		Selection:      sel,
		Line:           224.5,
		Odds:           1.91,
		Confidence:     conf,
		Recommendation: model.LeanUnder,
		Stake:          decimal.NewFromInt(10),
		Conditions:     []string{model.CondBothRested},
		CreatedAt:      time.Date(2026, 1, 10, 19, 0, 0, 0, time.UTC),
	}
}

func settlement(o model.Outcome, profit string) model.Settlement {
	final := 220.0
	return model.Settlement{
		Outcome:    o,
		Profit:     decimal.RequireFromString(profit),
		FinalTotal: &final,
		SettledAt:  time.Date(2026, 1, 11, 3, 0, 0, 0, time.UTC),
	}
}

func TestInMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := repository.NewInMemoryStore()

		Convey("When a decision is created", func() {
			So(s.Create(ctx, decision("d1", 58, model.SideUnder)), ShouldBeNil)

			Convey("Then it is stored as PENDING", func() {
				d, err := s.Get(ctx, "d1")
				So(err, ShouldBeNil)
				So(d.Outcome, ShouldEqual, model.OutcomePending)
				n, _ := s.Count(ctx)
				So(n, ShouldEqual, 1)
			})

			Convey("Then creating the same id again is rejected", func() {
				err := s.Create(ctx, decision("d1", 60, model.SideOver))
				So(errors.Is(err, repository.ErrDuplicate), ShouldBeTrue)
			})

			Convey("Then returned copies do not alias stored state", func() {
				d, _ := s.Get(ctx, "d1")
				d.Conditions[0] = "mutated"
				again, _ := s.Get(ctx, "d1")
				So(again.Conditions[0], ShouldEqual, model.CondBothRested)
			})
		})

		Convey("When an unknown id is read", func() {
			_, err := s.Get(ctx, "nope")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When listing with filters", func() {
			_ = s.Create(ctx, decision("d1", 58, model.SideUnder))
			_ = s.Create(ctx, decision("d2", 50, ""))
			_ = s.Create(ctx, decision("d3", 61, model.SideOver))
			_, _ = s.Settle(ctx, "d3", settlement(model.OutcomeLoss, "-10"))

			bets, _ := s.List(ctx, repository.Filter{BetsOnly: true})
			settled, _ := s.List(ctx, repository.Filter{Settled: true})
			limited, _ := s.List(ctx, repository.Filter{Limit: 2})
			event, _ := s.List(ctx, repository.Filter{EventID: "g-d2"})

			So(len(bets), ShouldEqual, 2)
			So(len(settled), ShouldEqual, 1)
			So(settled[0].ID, ShouldEqual, "d3")
			So(len(limited), ShouldEqual, 2)
			So(limited[0].ID, ShouldEqual, "d1")
			So(len(event), ShouldEqual, 1)
		})
	})
}

func TestInMemoryStoreSettle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pending bet", t, func() {
		s := repository.NewInMemoryStore()
		So(s.Create(ctx, decision("d1", 58, model.SideUnder)), ShouldBeNil)

		Convey("When it is settled", func() {
			d, err := s.Settle(ctx, "d1", settlement(model.OutcomeWin, "9.10"))
			So(err, ShouldBeNil)

			Convey("Then the outcome, profit and bucket are updated together", func() {
				So(d.Outcome, ShouldEqual, model.OutcomeWin)
				So(d.Profit.Equal(decimal.RequireFromString("9.1")), ShouldBeTrue)
				So(*d.FinalTotal, ShouldEqual, 220)
				buckets, _ := s.Buckets(ctx)
				So(buckets, ShouldResemble, []model.CalibrationBucket{{Bucket: 60, Total: 1, Wins: 1}})
			})

			Convey("Then a second settlement is rejected and changes nothing", func() {
				_, err := s.Settle(ctx, "d1", settlement(model.OutcomeLoss, "-10"))
				So(errors.Is(err, repository.ErrDoubleSettlement), ShouldBeTrue)

				d, _ := s.Get(ctx, "d1")
				So(d.Outcome, ShouldEqual, model.OutcomeWin)
				So(d.Profit.Equal(decimal.RequireFromString("9.1")), ShouldBeTrue)
				buckets, _ := s.Buckets(ctx)
				So(buckets[0].Total, ShouldEqual, 1)
			})
		})

		Convey("When the settlement is not terminal", func() {
			_, err := s.Settle(ctx, "d1", model.Settlement{Outcome: model.OutcomePending})
			So(errors.Is(err, repository.ErrInvalidSettlement), ShouldBeTrue)
		})

		Convey("When the id is unknown", func() {
			_, err := s.Settle(ctx, "nope", settlement(model.OutcomeWin, "1"))
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a NO_BET decision", t, func() {
		s := repository.NewInMemoryStore()
		So(s.Create(ctx, decision("d1", 50, "")), ShouldBeNil)

		Convey("Then settling it leaves the buckets alone", func() {
			_, err := s.Settle(ctx, "d1", settlement(model.OutcomePush, "0"))
			So(err, ShouldBeNil)
			buckets, _ := s.Buckets(ctx)
			So(buckets, ShouldBeEmpty)
		})
	})

	Convey("Given many settlers racing on the same decisions", t, func() {
		s := repository.NewInMemoryStore()
		for i := 0; i < 10; i++ {
			So(s.Create(ctx, decision(fmt.Sprintf("d%d", i), 55+float64(i), model.SideOver)), ShouldBeNil)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, conflicts := 0, 0
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					o := model.OutcomeWin
					if (i+g)%3 == 0 {
						o = model.OutcomePush
					}
					_, err := s.Settle(ctx, fmt.Sprintf("d%d", i), settlement(o, "0"))
					mu.Lock()
					if err == nil {
						wins++
					} else if errors.Is(err, repository.ErrDoubleSettlement) {
						conflicts++
					}
					mu.Unlock()
				}
			}(g)
		}
		wg.Wait()

		Convey("Then each decision settles exactly once and buckets stay consistent", func() {
			So(wins, ShouldEqual, 10)
			So(conflicts, ShouldEqual, 70)
			buckets, _ := s.Buckets(ctx)
			total := 0
			for _, b := range buckets {
				So(b.Wins+b.Losses+b.Pushes, ShouldEqual, b.Total)
				total += b.Total
			}
			So(total, ShouldEqual, 10)
		})
	})
}

func TestInMemoryStoreRules(t *testing.T) {
	ctx := context.Background()

	Convey("Given stored rules and post-mortems", t, func() {
		s := repository.NewInMemoryStore()
		So(s.UpsertRule(ctx, model.LearningRule{ID: "r1", Condition: "b", Active: true}), ShouldBeNil)
		So(s.UpsertRule(ctx, model.LearningRule{ID: "r2", Condition: "a", Active: false}), ShouldBeNil)
		So(s.UpsertRule(ctx, model.LearningRule{ID: "r2", Condition: "a", Active: true}), ShouldBeNil)

		Convey("Then rules are upserted by id and ordered by condition", func() {
			all, _ := s.Rules(ctx, false)
			So(len(all), ShouldEqual, 2)
			So(all[0].ID, ShouldEqual, "r2")
			active, _ := s.Rules(ctx, true)
			So(len(active), ShouldEqual, 2)
		})

		Convey("Then a post-mortem needs a known decision", func() {
			err := s.SavePostMortem(ctx, model.PostMortem{DecisionID: "nope"})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			_ = s.Create(ctx, decision("d1", 58, model.SideUnder))
			So(s.SavePostMortem(ctx, model.PostMortem{DecisionID: "d1", Cause: model.CauseVariance}), ShouldBeNil)
			pms, _ := s.PostMortems(ctx)
			So(len(pms), ShouldEqual, 1)
		})
	})
}

func TestInMemoryStoreCalibration(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := repository.NewInMemoryStore()

		Convey("Then no calibration is found", func() {
			_, err := s.LatestCalibration(ctx)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When calibrations are saved", func() {
			at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
			So(s.SaveCalibration(ctx, model.BiasCalibration{Bias: 6, Samples: 30, AppliedAt: at}), ShouldBeNil)
			So(s.SaveCalibration(ctx, model.BiasCalibration{Bias: 7.5, Samples: 40, AppliedAt: at.Add(time.Hour)}), ShouldBeNil)

			Convey("Then the latest one is returned", func() {
				c, err := s.LatestCalibration(ctx)
				So(err, ShouldBeNil)
				So(c.Bias, ShouldEqual, 7.5)
				So(c.Samples, ShouldEqual, 40)
			})
		})
	})
}
