package types

import "time"

// Clock is the time source used for compile timing, submit timeouts and worker stats.
// Tests substitute a quartz mock through internal/testutils.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Since(t time.Time) time.Duration
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of time.Timer used by the worker pool
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// RealClock reads the wall clock
type RealClock struct{}

// NewRealClock returns a Clock backed by package time
func NewRealClock() Clock {
	return RealClock{}
}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Since(t time.Time) time.Duration        { return time.Since(t) }

func (RealClock) NewTimer(d time.Duration) Timer {
	return realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }
