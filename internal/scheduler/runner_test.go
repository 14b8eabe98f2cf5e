package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/courtside/internal/scheduler"
	"github.com/okian/courtside/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestRunner(t *testing.T) {
	Convey("Given a scheduler", t, func() {
		r := scheduler.New(context.Background())

		Convey("When a job is registered with a valid spec", func() {
			So(r.Add("synthesize", "@every 1h", func(context.Context) error { return nil }), ShouldBeNil)
			r.Start()
			defer func() { _ = r.Stop(context.Background()) }()

			Convey("Then it has a next activation", func() {
				next, ok := r.Next("synthesize")
				So(ok, ShouldBeTrue)
				So(next.After(time.Now()), ShouldBeTrue)
			})
		})

		Convey("When a spec is malformed", func() {
			err := r.Add("calibrate", "not a cron", func(context.Context) error { return nil })
			So(errors.Is(err, scheduler.ErrInvalidSchedule), ShouldBeTrue)
		})

		Convey("When a spec is empty", func() {
			So(r.Add("settle", "", func(context.Context) error { return nil }), ShouldBeNil)
			_, ok := r.Next("settle")
			So(ok, ShouldBeFalse)
		})

		Convey("When a job is run directly", func() {
			var calls atomic.Int32
			boom := errors.New("boom")
			err := r.RunNow("manual", func(context.Context) error {
				calls.Add(1)
				return boom
			})

			Convey("Then its error is returned", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a job on a one second schedule", t, func() {
		r := scheduler.New(context.Background())
		var calls atomic.Int32
		So(r.Add("tick", "@every 1s", func(context.Context) error {
			calls.Add(1)
			return nil
		}), ShouldBeNil)
		r.Start()
		time.Sleep(1500 * time.Millisecond)
		So(r.Stop(context.Background()), ShouldBeNil)

		So(calls.Load(), ShouldBeGreaterThanOrEqualTo, 1)
	})
}
