package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	. "github.com/smartystreets/goconvey/convey"
)

const interval = time.Minute

// drive advances the test clock one interval at a time until Until returns.
func drive(clk *testclock.Clock, errc <-chan error) error {
	for {
		select {
		case err := <-errc:
			return err
		default:
		}
		_ = clk.WaitAdvance(interval, 50*time.Millisecond, 1)
	}
}

func sequence(states ...interface{}) (CheckFunc, *int) {
	calls := 0
	return func(context.Context) (bool, error) {
		s := states[calls]
		calls++
		if err, ok := s.(error); ok {
			return false, err
		}
		return s.(bool), nil
	}, &calls
}

func TestPoller(t *testing.T) {
	Convey("Given a poller on a test clock", t, func() {
		clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		p := &Poller{Interval: interval, Clock: clk}
		ctx := context.Background()
		errc := make(chan error, 1)

		Convey("When the operation finishes on the third check", func() {
			check, calls := sequence(false, false, true)
			go func() { errc <- p.Until(ctx, check, nil) }()
			err := drive(clk, errc)

			Convey("It should check exactly three times and succeed", func() {
				So(err, ShouldBeNil)
				So(*calls, ShouldEqual, 3)
			})
		})

		Convey("When a check fails transiently", func() {
			check, calls := sequence(false, errors.New("throttled"), true)
			var notified []error
			go func() {
				errc <- p.Until(ctx, check, func(err error, attempt int) {
					notified = append(notified, err)
				})
			}()
			err := drive(clk, errc)

			Convey("It should keep polling", func() {
				So(err, ShouldBeNil)
				So(*calls, ShouldEqual, 3)
				So(len(notified), ShouldEqual, 2)
				So(IsNotDone(notified[0]), ShouldBeTrue)
				So(notified[1].Error(), ShouldEqual, "throttled")
			})
		})

		Convey("When a check returns a fatal error", func() {
			boom := errors.New("snapshot entered error state")
			check, calls := sequence(false, Fatal(boom), true)
			go func() { errc <- p.Until(ctx, check, nil) }()
			err := drive(clk, errc)

			Convey("It should stop with that error", func() {
				So(err, ShouldEqual, boom)
				So(*calls, ShouldEqual, 2)
			})
		})

		Convey("When MaxDuration is set and the operation never finishes", func() {
			p.MaxDuration = 3 * interval
			calls := 0
			check := func(context.Context) (bool, error) {
				calls++
				return false, nil
			}
			go func() { errc <- p.Until(ctx, check, nil) }()
			err := drive(clk, errc)

			Convey("It should give up with ErrTimeout", func() {
				So(errors.Is(err, ErrTimeout), ShouldBeTrue)
				So(calls, ShouldBeGreaterThanOrEqualTo, 2)
				So(calls, ShouldBeLessThanOrEqualTo, 4)
			})
		})

		Convey("When the context is cancelled before the first tick", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			calls := 0
			err := p.Until(cctx, func(context.Context) (bool, error) {
				calls++
				return true, nil
			}, nil)

			Convey("It should return the context error without checking", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(calls, ShouldEqual, 0)
			})
		})

		Convey("When the interval is not positive", func() {
			err := (&Poller{Clock: clk}).Until(ctx, nil, nil)
			So(err, ShouldNotBeNil)
		})
	})
}
