package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"srrt/internal/clock"
	"srrt/internal/conn"
	"srrt/internal/domain"
	"srrt/internal/lease"
	"srrt/internal/log"
	"srrt/internal/metrics"
	"srrt/internal/session"
	"srrt/internal/store"
	"srrt/internal/transport"
)

// Wire bundles the collaborators built from a Config.
type Wire struct {
	Config   *Config
	Clock    clock.Clock
	Log      *log.Backend
	HTTP     *http.Client
	Leases   domain.LeaseRequester
	Modes    *store.FileModeStore
	Health   *transport.HealthSignal
	Poller   *transport.HealthPoller
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Dialer   conn.Dialer
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg *Config) (*Wire, error) {
	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, err
	}
	clk := clock.Real()
	hc := &http.Client{Timeout: time.Duration(cfg.Lease.TimeoutMs) * time.Millisecond}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var leases domain.LeaseRequester = lease.NewHTTP(cfg.Lease.URL, hc, backend.GetLogger("lease"))
	if !cfg.Lease.DisableCache {
		leases = lease.NewCache(leases, clk)
	}

	health := transport.NewHealthSignal(false)
	var poller *transport.HealthPoller
	if !cfg.Relay.DisableHealthPoll {
		poller = transport.NewHealthPoller(cfg.Relay.HealthURL,
			time.Duration(cfg.Relay.HealthPollSec)*time.Second,
			health, hc, clk, backend.GetLogger("health"))
	}

	return &Wire{
		Config:   cfg,
		Clock:    clk,
		Log:      backend,
		HTTP:     hc,
		Leases:   leases,
		Modes:    store.NewFileModeStore(cfg.Transport.ModeFile, clk, time.Duration(cfg.Transport.ModePollMs)*time.Millisecond, backend.GetLogger("store")),
		Health:   health,
		Poller:   poller,
		Registry: reg,
		Metrics:  m,
		Dialer:   conn.NewWebSocketDialer(time.Duration(cfg.Server.DialTimeoutMs) * time.Millisecond),
	}, nil
}

// SessionConfig maps the configuration onto a session.Config.
func (w *Wire) SessionConfig() session.Config {
	c := w.Config
	return session.Config{
		ServerURL:   c.Server.URL,
		Path:        c.Server.Path,
		Token:       c.Server.Token,
		RelayPrefix: c.Relay.Prefix,
		Topic:       c.Session.Topic,
		Graph:       domain.Graph(c.Session.Graph),
		ConnID:      domain.ConnID(c.Session.ConnID),
		LocalPeer:   c.Lease.LocalPeer,
		Scheme:      c.Session.Scheme,
		Heartbeat:   time.Duration(c.Server.HeartbeatSec) * time.Second,
		DialTimeout: time.Duration(c.Server.DialTimeoutMs) * time.Millisecond,
		Capacity:    c.Session.Capacity,
	}
}

// NewSession builds a session delivering to consumer.
func (w *Wire) NewSession(consumer domain.EventConsumer) (*session.Session, error) {
	return session.New(w.SessionConfig(), session.Deps{
		Dialer:   w.Dialer,
		Leases:   w.Leases,
		Health:   w.Health,
		Modes:    w.Modes,
		Consumer: consumer,
		Clock:    w.Clock,
		Logging:  w.Log,
		Metrics:  w.Metrics,
	})
}
