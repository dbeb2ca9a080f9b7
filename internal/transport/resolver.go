package transport

import (
	"sync"

	"gopkg.in/op/go-logging.v1"

	"srrt/internal/domain"
)

// DefaultRelayPrefix is the path prefix of the relay transport.
const DefaultRelayPrefix = "/radio"

// Resolver caches the current transport base and announces changes.
type Resolver struct {
	prefix string
	health domain.HealthSource
	modes  domain.ModeStore
	log    *logging.Logger

	mu      sync.Mutex
	base    string
	next    int
	subs    map[int]func(string)
	cancels []func()
}

// NewResolver returns a resolver over health and modes. Either may be nil:
// a missing health source means the relay is never considered healthy and
// a missing mode store means auto.
func NewResolver(relayPrefix string, health domain.HealthSource, modes domain.ModeStore, log *logging.Logger) *Resolver {
	if relayPrefix == "" {
		relayPrefix = DefaultRelayPrefix
	}
	return &Resolver{
		prefix: relayPrefix,
		health: health,
		modes:  modes,
		log:    log,
		subs:   make(map[int]func(string)),
	}
}

// Base computes the base for mode and relay health.
func Base(mode domain.TransportMode, healthy bool, relayPrefix string) string {
	switch mode {
	case domain.ModeDirect:
		return ""
	case domain.ModeRelay:
		return relayPrefix
	}
	if healthy {
		return relayPrefix
	}
	return ""
}

// Current returns the cached base without recomputing it.
func (r *Resolver) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.base
}

// Mode returns the stored mode, falling back to auto when it cannot be read.
func (r *Resolver) Mode() domain.TransportMode {
	if r.modes == nil {
		return domain.ModeAuto
	}
	m, err := r.modes.Mode()
	if err != nil {
		if r.log != nil {
			r.log.Warningf("read transport mode: %v", err)
		}
		return domain.ModeAuto
	}
	return m
}

// Recompute consults both signals, caches the result and reports whether it
// differs from the previous value. Subscribers are not notified; use
// Refresh for that.
func (r *Resolver) Recompute() (string, bool) {
	healthy := r.health != nil && r.health.Healthy()
	base := Base(r.Mode(), healthy, r.prefix)

	r.mu.Lock()
	defer r.mu.Unlock()
	changed := base != r.base
	r.base = base
	return base, changed
}

// Refresh recomputes and notifies subscribers if the base changed.
func (r *Resolver) Refresh() {
	base, changed := r.Recompute()
	if !changed {
		return
	}
	if r.log != nil {
		r.log.Infof("transport base -> %q", base)
	}
	r.mu.Lock()
	fns := make([]func(string), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(base)
	}
}

// OnChange registers fn for base changes.
func (r *Resolver) OnChange(fn func(base string)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Start subscribes to both signal sources. Every observed change refreshes
// the base.
func (r *Resolver) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancels != nil {
		return
	}
	r.cancels = []func(){}
	if r.health != nil {
		r.cancels = append(r.cancels, r.health.Subscribe(func(bool) { r.Refresh() }))
	}
	if r.modes != nil {
		r.cancels = append(r.cancels, r.modes.Watch(func(domain.TransportMode) { r.Refresh() }))
	}
}

// Stop removes the signal subscriptions.
func (r *Resolver) Stop() {
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = nil
	r.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}
