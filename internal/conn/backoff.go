package conn

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff defaults.
const (
	BackoffFloor  = 800 * time.Millisecond
	BackoffCap    = 15 * time.Second
	BackoffFactor = 1.8
	BackoffJitter = 0.2
)

// Backoff produces reconnect delays. Each step multiplies the previous
// delay, caps it, and jitters the capped value by ±20%; the jittered delay
// becomes the base of the next step.
type Backoff struct {
	mu  sync.Mutex
	cur time.Duration
	rnd *rand.Rand
}

// NewBackoff returns a backoff at the floor. rnd may be nil.
func NewBackoff(rnd *rand.Rand) *Backoff {
	return &Backoff{cur: BackoffFloor, rnd: rnd}
}

// Current returns the stored interval.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

// Reset returns the interval to the floor.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cur = BackoffFloor
}

// Next advances the interval and returns the new delay.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	base, j := Bounds(b.cur)
	var off int64
	if b.rnd != nil {
		off = b.rnd.Int64N(2*j + 1)
	} else {
		off = rand.Int64N(2*j + 1)
	}
	b.cur = time.Duration(base-j+off) * time.Millisecond
	return b.cur
}

// Bounds returns the un-jittered step after prev and the jitter amplitude,
// both in whole milliseconds.
func Bounds(prev time.Duration) (base, jitter int64) {
	base = min(int64(float64(prev.Milliseconds())*BackoffFactor), BackoffCap.Milliseconds())
	return base, int64(float64(base) * BackoffJitter)
}
