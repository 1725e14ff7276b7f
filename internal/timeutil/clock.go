// Package timeutil lets the frame source, the publish loop and the monitor
// stream run against either the wall clock or a clock driven by tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source shared by the pipeline stages.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C. Like time.Ticker, a tick is dropped when the
// previous one has not been received yet.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Interval returns the period of a rate given in frames per second. A
// non-positive rate yields fallback.
func Interval(fps int, fallback time.Duration) time.Duration {
	if fps <= 0 {
		return fallback
	}
	return time.Second / time.Duration(fps)
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock only moves when Advance is called. Its tickers fire on
// multiples of their period measured from creation.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*MockTicker]struct{}
}

// NewMockClock returns a clock stopped at start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start, tickers: make(map[*MockTicker]struct{})}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

// Advance moves the clock forward by d. Each ticker whose deadline passed
// receives one tick stamped with its most recent deadline; further periods
// elapsed in the same step are skipped, as a slow reader of a real ticker
// would see.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	active := make([]*MockTicker, 0, len(c.tickers))
	for t := range c.tickers {
		active = append(active, t)
	}
	c.mu.Unlock()

	for _, t := range active {
		t.fire(now)
	}
}

// Tickers reports how many tickers are running. Tests use it to wait until a
// goroutine under test has created its ticker.
func (c *MockClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// NewTicker returns a *MockTicker. It panics on a non-positive period, as
// time.NewTicker does.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{clock: c, ch: make(chan time.Time, 1), period: d, next: c.now.Add(d)}
	c.tickers[t] = struct{}{}
	return t
}

// MockTicker is the ticker handed out by MockClock.
type MockTicker struct {
	clock  *MockClock
	ch     chan time.Time
	period time.Duration

	mu   sync.Mutex
	next time.Time
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop detaches the ticker from its clock. A tick already buffered stays
// readable.
func (t *MockTicker) Stop() {
	t.clock.mu.Lock()
	delete(t.clock.tickers, t)
	t.clock.mu.Unlock()
}

// Trigger delivers a tick immediately, regardless of the clock.
func (t *MockTicker) Trigger(at time.Time) {
	select {
	case t.ch <- at:
	default:
	}
}

func (t *MockTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Before(t.next) {
		return
	}
	missed := now.Sub(t.next) / t.period
	deadline := t.next.Add(missed * t.period)
	t.next = deadline.Add(t.period)
	select {
	case t.ch <- deadline:
	default:
	}
}
