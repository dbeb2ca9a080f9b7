// Package delivery batches normalized events for the consumer.
//
// Events pushed within one frame interval are flushed together: the batch
// is handed to the consumer in arrival order and prepended to a bounded,
// most-recent-first list that consumers can snapshot at any time.
package delivery

import (
	"sync"
	"time"

	"srrt/internal/clock"
	"srrt/internal/domain"
	"srrt/internal/metrics"
)

// Defaults.
const (
	DefaultCapacity = 500
	FrameInterval   = 16 * time.Millisecond
)

// ConsumerFunc adapts a function to domain.EventConsumer.
type ConsumerFunc func([]domain.Event)

// OnEventsFlushed calls f.
func (f ConsumerFunc) OnEventsFlushed(batch []domain.Event) { f(batch) }

// Options tune a Buffer. Zero values select the defaults.
type Options struct {
	Capacity int
	Interval time.Duration
	Metrics  *metrics.Metrics
}

// Buffer queues events and flushes them on the frame cadence.
type Buffer struct {
	clock    clock.Clock
	consumer domain.EventConsumer
	capacity int
	interval time.Duration
	metrics  *metrics.Metrics

	// deliverMu keeps consumer calls in flush order.
	deliverMu sync.Mutex

	mu      sync.Mutex
	queue   []domain.Event
	visible []domain.Event
	timer   *clock.Timer
	closed  bool
}

// New returns a buffer delivering to consumer, which may be nil.
func New(clk clock.Clock, consumer domain.EventConsumer, opts Options) *Buffer {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Interval <= 0 {
		opts.Interval = FrameInterval
	}
	return &Buffer{
		clock:    clk,
		consumer: consumer,
		capacity: opts.Capacity,
		interval: opts.Interval,
		metrics:  opts.Metrics,
	}
}

// Push queues ev. The first push after a flush schedules the next one.
func (b *Buffer) Push(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, ev)
	if b.timer == nil {
		b.timer = b.clock.AfterFunc(b.interval, b.flush)
	}
}

func (b *Buffer) flush() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	chunk := b.queue
	b.queue = nil
	b.timer = nil
	if len(chunk) == 0 {
		b.mu.Unlock()
		return
	}

	total := len(chunk) + len(b.visible)
	next := make([]domain.Event, 0, min(total, b.capacity))
	for i := len(chunk) - 1; i >= 0 && len(next) < b.capacity; i-- {
		next = append(next, chunk[i])
	}
	for i := 0; i < len(b.visible) && len(next) < b.capacity; i++ {
		next = append(next, b.visible[i])
	}
	b.visible = next
	b.mu.Unlock()

	b.metrics.Flush(total - len(next))
	if b.consumer != nil {
		b.consumer.OnEventsFlushed(chunk)
	}
}

// Events returns the retained events, most recent first.
func (b *Buffer) Events() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.visible...)
}

// Pending returns the number of queued, unflushed events.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close cancels the scheduled flush and discards the queue. Pushes after
// Close are ignored.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.timer.Stop()
	b.timer = nil
	b.queue = nil
}
