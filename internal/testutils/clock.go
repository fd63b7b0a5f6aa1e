package testutils

import (
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/jzx17/pipeoffload/pkg/types"
)

// NewMockClock creates a mock clock for testing
func NewMockClock(t testing.TB) *quartz.Mock {
	return quartz.NewMock(t)
}

// ClockWrapper adapts quartz.Mock to types.Clock
type ClockWrapper struct {
	*quartz.Mock
}

// NewClockWrapper creates a new ClockWrapper
func NewClockWrapper(mock *quartz.Mock) *ClockWrapper {
	return &ClockWrapper{Mock: mock}
}

// After returns a channel that delivers the current time after the duration
func (c *ClockWrapper) After(d time.Duration) <-chan time.Time {
	return c.Mock.NewTimer(d).C
}

// Now returns the mock time
func (c *ClockWrapper) Now() time.Time {
	return c.Mock.Now()
}

// Since returns the mock time elapsed since t
func (c *ClockWrapper) Since(t time.Time) time.Duration {
	return c.Mock.Since(t)
}

// NewTimer creates a timer driven by the mock
func (c *ClockWrapper) NewTimer(d time.Duration) types.Timer {
	return &TimerWrapper{timer: c.Mock.NewTimer(d)}
}

// TimerWrapper adapts quartz.Timer to types.Timer
type TimerWrapper struct {
	timer *quartz.Timer
}

func (t *TimerWrapper) C() <-chan time.Time {
	return t.timer.C
}

func (t *TimerWrapper) Stop() bool {
	return t.timer.Stop()
}
