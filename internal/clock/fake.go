package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time moves only when Advance is
// called; AfterFunc callbacks then run synchronously on the caller's
// goroutine in deadline order.
//
// Unlike the real clock, a non-positive AfterFunc delay does not run f
// inline: the call is queued and fires on the next Advance, so callers may
// schedule while holding their own locks.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	seq      uint64
	fn       func()
	ch       chan time.Time
	interval time.Duration
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{now: initial}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc queues f to run once the clock has been advanced by d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.addLocked(d, 0)
	w.fn = f
	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w.stopped || w.fired {
			return false
		}
		w.stopped = true
		return true
	}}
}

// NewTicker returns a ticker firing every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	w := c.addLocked(d, d)
	w.ch = ch
	return &Ticker{C: ch, stopFunc: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		w.stopped = true
	}}
}

func (c *FakeClock) addLocked(d, interval time.Duration) *waiter {
	if d < 0 {
		d = 0
	}
	c.seq++
	w := &waiter{deadline: c.now.Add(d), seq: c.seq, interval: interval}
	c.waiters = append(c.waiters, w)
	return w
}

// Advance moves the clock forward by d and fires everything that came due.
// Each waiter fires with the clock set to its deadline, so timers scheduled
// by a firing callback also fire if they fall within the advanced window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		w, at := c.next(target)
		if w == nil {
			return
		}
		switch {
		case w.fn != nil:
			w.fn()
		case w.ch != nil:
			select {
			case w.ch <- at:
			default:
			}
		}
	}
}

// next pops the earliest waiter due by target and moves the clock to its
// deadline. With nothing due the clock is set to target and next returns
// nil.
func (c *FakeClock) next(target time.Time) (*waiter, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		due *waiter
		idx int
	)
	for i, w := range c.waiters {
		if w.stopped || w.deadline.After(target) {
			continue
		}
		if due == nil || w.deadline.Before(due.deadline) ||
			(w.deadline.Equal(due.deadline) && w.seq < due.seq) {
			due, idx = w, i
		}
	}
	if due == nil {
		c.waiters = slices.DeleteFunc(c.waiters, func(w *waiter) bool { return w.stopped })
		if target.After(c.now) {
			c.now = target
		}
		return nil, c.now
	}

	at := due.deadline
	if at.After(c.now) {
		c.now = at
	}
	if due.interval > 0 {
		c.seq++
		due.seq = c.seq
		due.deadline = due.deadline.Add(due.interval)
	} else {
		due.fired = true
		c.waiters = slices.Delete(c.waiters, idx, idx+1)
	}
	return due, at
}

// Pending returns the number of timers and tickers still scheduled.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
