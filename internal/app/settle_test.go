package service_test

import (
	"context"
	"errors"
	"testing"

	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

func TestService_SettleGame(t *testing.T) {
	Convey("Given a recorded under decision", t, func() {
		ctx := context.Background()
		svc := service.New(testConfig())
		d := svc.AnalyzeInput(ctx, fixture("g-settle"))
		So(d.Selection, ShouldEqual, model.SideUnder)
		So(svc.Record(ctx, d), ShouldBeNil)

		Convey("When the game finishes under the line", func() {
			rep, err := svc.SettleGame(ctx, "g-settle", 210)

			Convey("Then the decision wins stake*(odds-1)", func() {
				So(err, ShouldBeNil)
				So(rep.Settled, ShouldEqual, 1)
				So(rep.Wins, ShouldEqual, 1)

				got, err := svc.Store().Get(ctx, d.ID)
				So(err, ShouldBeNil)
				So(got.Outcome, ShouldEqual, model.OutcomeWin)
				want := d.Stake.Mul(decimal.NewFromFloat(0.91)).Round(2)
				So(got.Profit.Equal(want), ShouldBeTrue)
				So(*got.FinalTotal, ShouldEqual, 210)
			})

			Convey("And the calibration bucket counts it", func() {
				buckets, err := svc.Store().Buckets(ctx)
				So(err, ShouldBeNil)
				So(buckets, ShouldHaveLength, 1)
				So(buckets[0].Wins, ShouldEqual, 1)
			})
		})

		Convey("When the game finishes over the line", func() {
			rep, err := svc.SettleGame(ctx, "g-settle", 240)

			Convey("Then it loses the stake and gets a post-mortem", func() {
				So(err, ShouldBeNil)
				So(rep.Losses, ShouldEqual, 1)
				So(rep.PostMortems, ShouldEqual, 1)

				got, _ := svc.Store().Get(ctx, d.ID)
				So(got.Profit.Equal(d.Stake.Neg()), ShouldBeTrue)

				pms, err := svc.Store().PostMortems(ctx)
				So(err, ShouldBeNil)
				So(pms, ShouldHaveLength, 1)
				So(pms[0].DecisionID, ShouldEqual, d.ID)
				So(pms[0].Miss, ShouldAlmostEqual, 240-d.ProjectedTotal, 1e-9)
			})
		})

		Convey("When the decision is settled twice", func() {
			_, err := svc.Settle(ctx, d.ID, 210)
			So(err, ShouldBeNil)

			again, err := svc.Settle(ctx, d.ID, 240)

			Convey("Then the second settlement is rejected and the first stands", func() {
				So(errors.Is(err, repository.ErrDoubleSettlement), ShouldBeTrue)
				So(again.Outcome, ShouldEqual, model.OutcomeWin)
			})
		})

		Convey("When the decision is unknown", func() {
			_, err := svc.Settle(ctx, "missing", 210)

			Convey("Then it is not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given a recorded NO_BET decision", t, func() {
		ctx := context.Background()
		svc := service.New(testConfig())
		in := fixture("g-nobet")
		in.Game.Market.UnderOdds = 0.5
		d := svc.AnalyzeInput(ctx, in)
		So(d.Recommendation, ShouldEqual, model.NoBet)
		So(svc.Record(ctx, d), ShouldBeNil)

		Convey("When its game settles", func() {
			rep, err := svc.SettleGame(ctx, "g-nobet", 200)

			Convey("Then it is a push with no profit and no bucket", func() {
				So(err, ShouldBeNil)
				So(rep.Pushes, ShouldEqual, 1)
				got, _ := svc.Store().Get(ctx, d.ID)
				So(got.Outcome, ShouldEqual, model.OutcomePush)
				So(got.Profit.IsZero(), ShouldBeTrue)
				buckets, _ := svc.Store().Buckets(ctx)
				So(buckets, ShouldBeEmpty)
			})
		})
	})
}
