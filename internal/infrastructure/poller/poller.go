// Package poller waits for a remote operation to finish by checking its
// status at a constant interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// ErrTimeout is returned when MaxDuration elapses before the check reports done.
var ErrTimeout = errors.New("gave up waiting")

var errNotDone = errors.New("not done yet")

const unlimitedAttempts = -1

// CheckFunc reports whether the awaited operation is finished. A plain error
// is treated as transient and retried on the next tick; wrap it with Fatal
// to stop polling.
type CheckFunc func(ctx context.Context) (bool, error)

// NotifyFunc is told about every check that did not finish the wait.
type NotifyFunc func(err error, attempt int)

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as non-retryable.
func Fatal(err error) error {
	return &fatalError{err: err}
}

// IsNotDone reports whether err is the marker passed to NotifyFunc for a
// check that succeeded but was not finished.
func IsNotDone(err error) bool {
	return errors.Is(err, errNotDone)
}

type Poller struct {
	Interval time.Duration
	// MaxDuration bounds the whole wait. Zero waits forever.
	MaxDuration time.Duration
	Clock       clock.Clock
}

func New(interval, maxDuration time.Duration) *Poller {
	return &Poller{
		Interval:    interval,
		MaxDuration: maxDuration,
		Clock:       clock.WallClock,
	}
}

// Until sleeps one interval, then calls check, repeating until check reports
// done, returns a Fatal error, the context ends or MaxDuration passes.
func (p *Poller) Until(ctx context.Context, check CheckFunc, notify NotifyFunc) error {
	if p.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", p.Interval)
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(p.Interval):
	}

	var maxDuration time.Duration
	if p.MaxDuration > 0 {
		maxDuration = p.MaxDuration - p.Interval
		if maxDuration <= 0 {
			maxDuration = time.Nanosecond
		}
	}

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			done, err := check(ctx)
			if err != nil {
				return err
			}
			if !done {
				return errNotDone
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			var fe *fatalError
			return errors.As(err, &fe)
		},
		NotifyFunc: func(err error, attempt int) {
			if notify != nil {
				notify(err, attempt)
			}
		},
		Attempts:    unlimitedAttempts,
		Delay:       p.Interval,
		MaxDuration: maxDuration,
		Clock:       clk,
		Stop:        ctx.Done(),
	})

	switch {
	case err == nil:
		return nil
	case retry.IsDurationExceeded(err):
		return fmt.Errorf("%w after %s: %v", ErrTimeout, p.MaxDuration, retry.LastError(err))
	case retry.IsRetryStopped(err):
		return ctx.Err()
	default:
		var fe *fatalError
		if errors.As(err, &fe) {
			return fe.err
		}
		return err
	}
}
