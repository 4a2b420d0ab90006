// Package clock abstracts time so timeout and tick behavior can be
// driven deterministically in tests.
package clock

import "time"

// Clock is the time source injected into the stream reassembler (gap
// timer) and the combat aggregator (snapshot ticker).
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	AfterFunc(d time.Duration, f func()) Timer
}

// Ticker delivers periodic ticks. C never closes; Stop releases it.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is a single-shot timer created by AfterFunc.
type Timer interface {
	// Stop prevents the function from firing. It reports whether the
	// timer was still pending.
	Stop() bool
}

// System is the wall-clock implementation used outside of tests.
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return systemTimer{t: time.AfterFunc(d, f)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

type systemTimer struct {
	t *time.Timer
}

func (s systemTimer) Stop() bool { return s.t.Stop() }
