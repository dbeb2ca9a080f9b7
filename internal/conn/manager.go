package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"srrt/internal/clock"
	"srrt/internal/domain"
	"srrt/internal/metrics"
)

// Defaults for Config.
const (
	DefaultPath      = "/ws/glyphnet"
	DefaultToken     = "dev-token"
	DefaultHeartbeat = 25 * time.Second
	DefaultDialWait  = 10 * time.Second
)

// BaseResolver supplies the transport base. *transport.Resolver satisfies
// it.
type BaseResolver interface {
	Recompute() (base string, changed bool)
	Current() string
}

// Config describes the endpoint a Manager keeps connected to.
type Config struct {
	ServerURL string
	Path      string
	Topic     string
	Graph     domain.Graph
	Token     string
	ConnID    domain.ConnID

	Heartbeat   time.Duration
	DialTimeout time.Duration
}

func (c *Config) fixup() {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Token == "" {
		c.Token = DefaultToken
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialWait
	}
}

// Manager runs the connection state machine for one session.
type Manager struct {
	cfg      Config
	dialer   Dialer
	resolver BaseResolver
	clock    clock.Clock
	backoff  *Backoff
	onFrame  func([]byte)
	log      *logging.Logger
	metrics  *metrics.Metrics

	mu          sync.Mutex
	state       domain.ConnState
	dead        bool
	gen         uint64
	conn        Conn
	forced      bool
	stale       bool
	base        string
	lastErr     string
	timer       *clock.Timer
	delay       time.Duration
	scheduledAt time.Time
	hbTicker    *clock.Ticker
	hbStop      chan struct{}
	watchers    []func(domain.ConnStatus)
}

// Options carries the optional collaborators of a Manager.
type Options struct {
	Backoff *Backoff
	Log     *logging.Logger
	Metrics *metrics.Metrics
}

// NewManager returns an idle manager. onFrame receives every inbound frame
// in arrival order from a single goroutine.
func NewManager(cfg Config, dialer Dialer, resolver BaseResolver, clk clock.Clock, onFrame func([]byte), opts Options) *Manager {
	cfg.fixup()
	b := opts.Backoff
	if b == nil {
		b = NewBackoff(nil)
	}
	if onFrame == nil {
		onFrame = func([]byte) {}
	}
	return &Manager{
		cfg:      cfg,
		dialer:   dialer,
		resolver: resolver,
		clock:    clk,
		backoff:  b,
		onFrame:  onFrame,
		log:      opts.Log,
		metrics:  opts.Metrics,
		state:    domain.StateIdle,
	}
}

// Start resolves the base and begins connecting. It does not wait for the
// connection to open.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.dead || m.state != domain.StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = domain.StateConnecting
	m.mu.Unlock()

	m.resolver.Recompute()
	go m.open(0)
}

// URL returns the address for base.
func (m *Manager) URL(base string) (string, error) {
	return BuildURL(m.cfg.ServerURL, base, m.cfg.Path, m.cfg.Topic, m.cfg.Graph, m.cfg.Token, m.cfg.ConnID)
}

// open dials a new connection. expect is the generation that scheduled the
// attempt; a mismatch means the attempt is stale.
func (m *Manager) open(expect uint64) {
	m.mu.Lock()
	if m.dead || m.gen != expect {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	m.timer = nil
	m.delay = 0
	m.state = domain.StateConnecting
	m.stale = false
	m.base = m.resolver.Current()
	u, err := m.URL(m.base)
	m.mu.Unlock()
	m.notify()

	var c Conn
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
		c, err = m.dialer.Dial(ctx, u)
		cancel()
	}
	if err != nil {
		m.metrics.DialFailure()
		m.closed(gen, err)
		return
	}

	m.mu.Lock()
	if m.dead || m.gen != gen {
		m.mu.Unlock()
		_ = c.Close()
		return
	}
	if m.stale || m.base != m.resolver.Current() {
		// The base moved while dialling; reopen against the new one.
		m.conn = c
		m.forced = true
		m.mu.Unlock()
		if m.log != nil {
			m.log.Infof("transport base changed while dialling, reopening")
		}
		m.closed(gen, nil)
		return
	}
	m.conn = c
	m.forced = false
	m.state = domain.StateOpen
	m.lastErr = ""
	m.backoff.Reset()
	m.startHeartbeatLocked(c)
	m.mu.Unlock()

	m.metrics.Open()
	if m.log != nil {
		m.log.Infof("open %s", u)
	}
	m.notify()
	go m.readLoop(gen, c)
}

func (m *Manager) readLoop(gen uint64, c Conn) {
	for {
		data, err := c.ReadMessage()
		if err != nil {
			m.closed(gen, err)
			return
		}
		m.mu.Lock()
		live := !m.dead && m.gen == gen
		m.mu.Unlock()
		if !live {
			return
		}
		m.onFrame(data)
	}
}

// closed handles the end of generation gen, whether it never opened or
// closed later.
func (m *Manager) closed(gen uint64, cause error) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	c := m.conn
	m.conn = nil
	if m.dead {
		m.state = domain.StateClosed
		m.mu.Unlock()
		return
	}
	if !m.forced && cause != nil {
		m.lastErr = cause.Error()
	}
	m.forced = false
	m.state = domain.StateReconnecting
	m.mu.Unlock()

	if c != nil {
		_ = c.Close()
	}

	// The base may have changed while the connection was down.
	m.resolver.Recompute()

	m.mu.Lock()
	if m.dead || m.gen != gen {
		m.mu.Unlock()
		return
	}
	delay := m.backoff.Next()
	m.delay = delay
	m.scheduledAt = m.clock.Now()
	m.timer = m.clock.AfterFunc(delay, func() { m.open(gen) })
	lastErr := m.lastErr
	m.mu.Unlock()

	m.metrics.Reconnect()
	if m.log != nil {
		m.log.Warningf("reconnect in %v (%s)", delay, lastErr)
	}
	m.notify()
}

func (m *Manager) startHeartbeatLocked(c Conn) {
	t := m.clock.NewTicker(m.cfg.Heartbeat)
	stop := make(chan struct{})
	m.hbTicker, m.hbStop = t, stop
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := c.WriteMessage(m.ping()); err != nil && m.log != nil {
					m.log.Debugf("ping: %v", err)
				}
			}
		}
	}()
}

func (m *Manager) stopHeartbeatLocked() {
	if m.hbTicker == nil {
		return
	}
	m.hbTicker.Stop()
	close(m.hbStop)
	m.hbTicker, m.hbStop = nil, nil
}

type ping struct {
	Type   string        `json:"type"`
	TS     int64         `json:"ts"`
	ConnID domain.ConnID `json:"conn_id"`
}

func (m *Manager) ping() []byte {
	b, _ := json.Marshal(ping{Type: "ping", TS: m.clock.Now().UnixMilli(), ConnID: m.cfg.ConnID})
	return b
}

// ForceReopen closes the open connection; the close path reconnects
// against the current base. A dial in flight is marked stale and reopened
// once it completes. A pending reconnect already dials the current base.
func (m *Manager) ForceReopen() {
	m.mu.Lock()
	c := m.conn
	if m.dead {
		m.mu.Unlock()
		return
	}
	if c == nil {
		if m.state == domain.StateConnecting {
			m.stale = true
		}
		m.mu.Unlock()
		return
	}
	m.forced = true
	m.mu.Unlock()

	if m.log != nil {
		m.log.Infof("transport base changed, reopening")
	}
	_ = c.Close()
}

// Close tears the manager down. No reconnect is scheduled afterwards and
// Close cannot be undone.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.dead {
		m.mu.Unlock()
		return
	}
	m.dead = true
	m.gen++
	c := m.conn
	m.conn = nil
	m.timer.Stop()
	m.timer = nil
	m.delay = 0
	m.stopHeartbeatLocked()
	m.state = domain.StateClosed
	m.mu.Unlock()

	if c != nil {
		_ = c.Close()
	}
	if m.log != nil {
		m.log.Infof("closed")
	}
	m.notify()
}

// Send writes one frame on the open connection.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		return fmt.Errorf("%w: not connected", domain.ErrTransport)
	}
	if err := c.WriteMessage(data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}

// SendJSON marshals v and sends it.
func (m *Manager) SendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEncoding, err)
	}
	return m.Send(b)
}

// Status returns the observable connection state.
func (m *Manager) Status() domain.ConnStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() domain.ConnStatus {
	st := domain.ConnStatus{
		State:        m.state,
		Open:         m.state == domain.StateOpen,
		Reconnecting: m.state == domain.StateReconnecting,
		LastError:    m.lastErr,
		Base:         m.base,
	}
	if m.timer != nil {
		st.ReconnectIn = max(0, m.delay-m.clock.Now().Sub(m.scheduledAt))
	}
	return st
}

// Watch registers fn for state transitions. It is called outside the
// manager's lock.
func (m *Manager) Watch(fn func(domain.ConnStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

func (m *Manager) notify() {
	m.mu.Lock()
	if len(m.watchers) == 0 {
		m.mu.Unlock()
		return
	}
	st := m.statusLocked()
	fns := slices.Clone(m.watchers)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
