package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Advance moves the fake
// time forward, firing any timers or tickers whose deadline passed, in
// deadline order, on the calling goroutine.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	clock    *Fake
	deadline time.Time
	period   time.Duration // 0 for single-shot timers
	fn       func()        // single-shot only
	ch       chan time.Time
	stopped  bool
}

// NewFake returns a Fake clock starting at an arbitrary fixed instant.
func NewFake() *Fake {
	return &Fake{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{
		clock:    f,
		deadline: f.now.Add(d),
		period:   d,
		ch:       make(chan time.Time, 1),
	}
	f.waiters = append(f.waiters, w)
	return fakeTicker{w}
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{
		clock:    f,
		deadline: f.now.Add(d),
		fn:       fn,
	}
	f.waiters = append(f.waiters, w)
	return fakeTimer{w}
}

// Advance moves the clock forward by d, firing expired waiters in order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		w := f.nextExpiredLocked(target)
		if w == nil {
			break
		}
		f.now = w.deadline
		if w.period > 0 {
			w.deadline = w.deadline.Add(w.period)
			select {
			case w.ch <- f.now:
			default: // slow receiver, drop like time.Ticker does
			}
			continue
		}
		w.stopped = true
		fn := w.fn
		// Fire outside the lock: the callback may re-arm timers.
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

// nextExpiredLocked returns the live waiter with the earliest deadline
// not after target, removing stopped waiters as it goes.
func (f *Fake) nextExpiredLocked(target time.Time) *fakeWaiter {
	live := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.stopped {
			live = append(live, w)
		}
	}
	f.waiters = live
	sort.SliceStable(f.waiters, func(i, j int) bool {
		return f.waiters[i].deadline.Before(f.waiters[j].deadline)
	})
	if len(f.waiters) == 0 || f.waiters[0].deadline.After(target) {
		return nil
	}
	return f.waiters[0]
}

func (w *fakeWaiter) stop() bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()
	pending := !w.stopped
	w.stopped = true
	return pending
}

type fakeTicker struct{ w *fakeWaiter }

func (t fakeTicker) C() <-chan time.Time { return t.w.ch }
func (t fakeTicker) Stop()               { t.w.stop() }

type fakeTimer struct{ w *fakeWaiter }

func (t fakeTimer) Stop() bool { return t.w.stop() }
