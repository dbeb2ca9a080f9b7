package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"srrt/internal/clock"
	"srrt/internal/domain"
)

// HealthSignal is an in-process relay health flag that pushes changes to
// subscribers.
type HealthSignal struct {
	mu      sync.Mutex
	healthy bool
	next    int
	subs    map[int]func(bool)
}

// NewHealthSignal returns a signal with the given initial value.
func NewHealthSignal(healthy bool) *HealthSignal {
	return &HealthSignal{healthy: healthy, subs: make(map[int]func(bool))}
}

var _ domain.HealthSource = (*HealthSignal)(nil)

// Healthy reports the last value set.
func (h *HealthSignal) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthy
}

// Set records healthy and notifies subscribers when it changed.
func (h *HealthSignal) Set(healthy bool) {
	h.mu.Lock()
	if h.healthy == healthy {
		h.mu.Unlock()
		return
	}
	h.healthy = healthy
	fns := make([]func(bool), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(healthy)
	}
}

// Subscribe registers fn for changes.
func (h *HealthSignal) Subscribe(fn func(bool)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// HealthPoller probes the relay health URL on a fixed interval and feeds
// the result into a HealthSignal. Any 2xx reply counts as healthy.
type HealthPoller struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration

	signal *HealthSignal
	http   *http.Client
	clock  clock.Clock
	log    *logging.Logger

	mu     sync.Mutex
	ticker *clock.Ticker
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthPoller returns a poller that writes into signal.
func NewHealthPoller(url string, interval time.Duration, signal *HealthSignal, hc *http.Client, clk clock.Clock, log *logging.Logger) *HealthPoller {
	if hc == nil {
		hc = http.DefaultClient
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthPoller{
		URL:      url,
		Interval: interval,
		Timeout:  interval / 2,
		signal:   signal,
		http:     hc,
		clock:    clk,
		log:      log,
	}
}

// Start probes once immediately and then on every tick until Stop.
func (p *HealthPoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticker != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.ticker = p.clock.NewTicker(p.Interval)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.ticker, p.done)
}

// Stop halts polling and waits for an in-flight probe to finish.
func (p *HealthPoller) Stop() {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.ticker.Stop()
	p.cancel()
	done := p.done
	p.ticker, p.cancel, p.done = nil, nil, nil
	p.mu.Unlock()
	<-done
}

func (p *HealthPoller) run(ctx context.Context, t *clock.Ticker, done chan struct{}) {
	defer close(done)
	p.signal.Set(p.Probe(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ok := p.Probe(ctx); ctx.Err() == nil {
				p.signal.Set(ok)
			}
		}
	}
}

// Probe performs one health request.
func (p *HealthPoller) Probe(ctx context.Context) bool {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.http.Do(req)
	if err != nil {
		if p.log != nil {
			p.log.Debugf("health %s: %v", p.URL, err)
		}
		return false
	}
	resp.Body.Close()
	return resp.StatusCode/100 == 2
}
