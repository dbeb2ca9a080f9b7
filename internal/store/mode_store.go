package store

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"srrt/internal/clock"
	"srrt/internal/domain"
)

// DefaultPollInterval is how often FileModeStore watchers look for changes
// made by other processes.
const DefaultPollInterval = time.Second

type modeFile struct {
	Mode      domain.TransportMode `json:"mode"`
	UpdatedMS int64                `json:"updated_ms"`
}

// watchers fans mode changes out to subscribers; shared by both stores.
type watchers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(domain.TransportMode)
}

func (w *watchers) add(fn func(domain.TransportMode)) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[int]func(domain.TransportMode))
	}
	w.next++
	w.fns[w.next] = fn
	return w.next
}

func (w *watchers) remove(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.fns, id)
}

func (w *watchers) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.fns)
}

func (w *watchers) notify(m domain.TransportMode) {
	w.mu.Lock()
	fns := make([]func(domain.TransportMode), 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

// FileModeStore keeps the mode in a JSON file shared across processes.
type FileModeStore struct {
	path  string
	clock clock.Clock
	every time.Duration
	log   *logging.Logger

	mu       sync.Mutex
	last     domain.TransportMode
	poller   *clock.Ticker
	stopPoll chan struct{}
	watchers watchers
}

// NewFileModeStore returns a store backed by path.
func NewFileModeStore(path string, clk clock.Clock, every time.Duration, log *logging.Logger) *FileModeStore {
	if every <= 0 {
		every = DefaultPollInterval
	}
	return &FileModeStore{path: path, clock: clk, every: every, log: log}
}

var _ domain.ModeStore = (*FileModeStore)(nil)

// Mode reads the stored mode. A missing file means auto.
func (s *FileModeStore) Mode() (domain.TransportMode, error) {
	var mf modeFile
	found, err := readJSON(s.path, &mf)
	if err != nil {
		return domain.ModeAuto, fmt.Errorf("store: read mode: %w", err)
	}
	if !found {
		return domain.ModeAuto, nil
	}
	return domain.ParseTransportMode(string(mf.Mode)), nil
}

// SetMode persists mode and notifies watchers in this process immediately.
func (s *FileModeStore) SetMode(mode domain.TransportMode) error {
	mode = domain.ParseTransportMode(string(mode))
	if err := writeJSON(s.path, modeFile{Mode: mode, UpdatedMS: s.clock.Now().UnixMilli()}, 0o600); err != nil {
		return fmt.Errorf("store: write mode: %w", err)
	}
	s.mu.Lock()
	changed := mode != s.last
	s.last = mode
	s.mu.Unlock()
	if changed {
		s.watchers.notify(mode)
	}
	return nil
}

// Watch calls fn whenever the stored mode changes. The file is polled while
// at least one watcher is registered.
func (s *FileModeStore) Watch(fn func(domain.TransportMode)) func() {
	id := s.watchers.add(fn)

	s.mu.Lock()
	if s.poller == nil {
		if m, err := s.Mode(); err == nil {
			s.last = m
		}
		s.poller = s.clock.NewTicker(s.every)
		s.stopPoll = make(chan struct{})
		go s.poll(s.poller, s.stopPoll)
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.watchers.remove(id)
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.watchers.len() == 0 && s.poller != nil {
				s.poller.Stop()
				close(s.stopPoll)
				s.poller, s.stopPoll = nil, nil
			}
		})
	}
}

func (s *FileModeStore) poll(t *clock.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		m, err := s.Mode()
		if err != nil {
			if s.log != nil {
				s.log.Warningf("mode poll: %v", err)
			}
			continue
		}
		s.mu.Lock()
		changed := m != s.last
		s.last = m
		s.mu.Unlock()
		if changed {
			if s.log != nil {
				s.log.Infof("transport mode changed to %s by another process", m)
			}
			s.watchers.notify(m)
		}
	}
}

// MemoryModeStore keeps the mode in process memory.
type MemoryModeStore struct {
	mu       sync.Mutex
	mode     domain.TransportMode
	watchers watchers
}

// NewMemoryModeStore returns a store initialised to mode.
func NewMemoryModeStore(mode domain.TransportMode) *MemoryModeStore {
	return &MemoryModeStore{mode: domain.ParseTransportMode(string(mode))}
}

var _ domain.ModeStore = (*MemoryModeStore)(nil)

// Mode returns the current mode.
func (s *MemoryModeStore) Mode() (domain.TransportMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, nil
}

// SetMode updates the mode and notifies watchers when it changed.
func (s *MemoryModeStore) SetMode(mode domain.TransportMode) error {
	mode = domain.ParseTransportMode(string(mode))
	s.mu.Lock()
	changed := mode != s.mode
	s.mode = mode
	s.mu.Unlock()
	if changed {
		s.watchers.notify(mode)
	}
	return nil
}

// Watch registers fn for mode changes.
func (s *MemoryModeStore) Watch(fn func(domain.TransportMode)) func() {
	id := s.watchers.add(fn)
	return func() { s.watchers.remove(id) }
}
