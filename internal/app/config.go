package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"srrt/internal/conn"
	"srrt/internal/crypto"
	"srrt/internal/domain"
	"srrt/internal/frame"
	"srrt/internal/log"
	"srrt/internal/transport"
)

const (
	defaultServerURL     = "http://127.0.0.1:8080"
	defaultDialTimeoutMs = 10_000
	defaultHeartbeatSec  = 25
	defaultHealthPollSec = 5
	defaultModePollMs    = 1000
	defaultLeaseTimeout  = 10_000
	defaultLogLevel      = "NOTICE"
	defaultTopic         = "ucs://local/default"
	defaultModeFile      = ".srrt/transport_mode.json"
)

// Server is the live connection endpoint.
type Server struct {
	// URL is the http(s) or ws(s) origin of the server.
	URL string

	// Path is the event stream path, appended after the transport base.
	Path string

	// Token is the per-deployment auth token.
	Token string

	// DialTimeoutMs bounds each connection attempt.
	DialTimeoutMs int

	// HeartbeatSec is the keep-alive ping interval.
	HeartbeatSec int
}

// Relay describes the relayed transport.
type Relay struct {
	// Prefix is the path prefix of the relay, e.g. /radio.
	Prefix string

	// HealthURL is polled to decide reachability. Defaults to
	// {Server.URL}{Prefix}/health.
	HealthURL string

	// HealthPollSec is the poll interval.
	HealthPollSec int

	// DisableHealthPoll treats the relay as unreachable without probing.
	DisableHealthPoll bool
}

// Lease configures the lease authority client.
type Lease struct {
	// URL of the authority. Defaults to {Server.URL}/api/lease.
	URL string

	// LocalPeer is the local side of lease tuples.
	LocalPeer string

	// TimeoutMs bounds each lease request.
	TimeoutMs int

	// DisableCache requests a fresh lease per message.
	DisableCache bool
}

// Session is the subscription.
type Session struct {
	Topic string
	Graph string

	// ConnID pins the connection identity. Generated when empty.
	ConnID string

	// Scheme is the outbound AEAD scheme.
	Scheme string

	// Capacity of the delivery buffer.
	Capacity int
}

// Transport configures the shared mode store.
type Transport struct {
	// ModeFile is shared by every process of the user.
	ModeFile string

	// ModePollMs is how often the file is checked for changes.
	ModePollMs int
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	// Address to serve /metrics on. Empty disables the endpoint.
	Address string
}

// Config is the top level SRRT configuration.
type Config struct {
	Server    *Server
	Relay     *Relay
	Lease     *Lease
	Session   *Session
	Transport *Transport
	Logging   *Logging
	Metrics   *Metrics
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration. Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	cfg.ensureSections()

	for _, fn := range []func() error{
		cfg.Server.validate,
		func() error { return cfg.Relay.validate(cfg.Server) },
		func() error { return cfg.Lease.validate(cfg.Server) },
		cfg.Session.validate,
		cfg.Transport.validate,
		cfg.Logging.validate,
	} {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) ensureSections() {
	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	if cfg.Relay == nil {
		cfg.Relay = &Relay{}
	}
	if cfg.Lease == nil {
		cfg.Lease = &Lease{}
	}
	if cfg.Session == nil {
		cfg.Session = &Session{}
	}
	if cfg.Transport == nil {
		cfg.Transport = &Transport{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}
}

func (s *Server) validate() error {
	if s.URL == "" {
		s.URL = defaultServerURL
	}
	s.URL = strings.TrimRight(s.URL, "/")
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("config: Server: URL '%v' is invalid: %v", s.URL, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("config: Server: URL '%v' has unsupported scheme", s.URL)
	}
	if s.Path == "" {
		s.Path = conn.DefaultPath
	}
	if s.Token == "" {
		s.Token = conn.DefaultToken
	}
	if s.DialTimeoutMs <= 0 {
		s.DialTimeoutMs = defaultDialTimeoutMs
	}
	if s.HeartbeatSec <= 0 {
		s.HeartbeatSec = defaultHeartbeatSec
	}
	return nil
}

// httpOrigin maps a ws(s) server URL to the http(s) origin that serves
// the lease and health endpoints.
func (s *Server) httpOrigin() string {
	switch {
	case strings.HasPrefix(s.URL, "ws://"):
		return "http://" + strings.TrimPrefix(s.URL, "ws://")
	case strings.HasPrefix(s.URL, "wss://"):
		return "https://" + strings.TrimPrefix(s.URL, "wss://")
	}
	return s.URL
}

func (r *Relay) validate(srv *Server) error {
	if r.Prefix == "" {
		r.Prefix = transport.DefaultRelayPrefix
	}
	if !strings.HasPrefix(r.Prefix, "/") {
		return fmt.Errorf("config: Relay: Prefix '%v' must start with /", r.Prefix)
	}
	if r.HealthURL == "" {
		r.HealthURL = srv.httpOrigin() + r.Prefix + "/health"
	}
	if r.HealthPollSec <= 0 {
		r.HealthPollSec = defaultHealthPollSec
	}
	return nil
}

func (l *Lease) validate(srv *Server) error {
	if l.URL == "" {
		l.URL = srv.httpOrigin() + "/api/lease"
	}
	if l.LocalPeer == "" {
		l.LocalPeer = frame.DefaultLocalPeer
	}
	if l.TimeoutMs <= 0 {
		l.TimeoutMs = defaultLeaseTimeout
	}
	return nil
}

func (s *Session) validate() error {
	if s.Topic == "" {
		s.Topic = defaultTopic
	}
	g := domain.ParseGraph(s.Graph)
	if !g.Valid() {
		return fmt.Errorf("config: Session: Graph '%v' is invalid", s.Graph)
	}
	s.Graph = string(g)
	switch s.Scheme {
	case "":
		s.Scheme = crypto.SchemeAESGCM
	case crypto.SchemeAESGCM, crypto.SchemeChaCha20:
	default:
		return fmt.Errorf("config: Session: Scheme '%v' is invalid", s.Scheme)
	}
	if s.Capacity < 0 {
		return errors.New("config: Session: Capacity must not be negative")
	}
	return nil
}

func (t *Transport) validate() error {
	if t.ModeFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: Transport: no ModeFile and no home directory: %v", err)
		}
		t.ModeFile = filepath.Join(home, defaultModeFile)
	}
	if t.ModePollMs <= 0 {
		t.ModePollMs = defaultModePollMs
	}
	return nil
}

func (l *Logging) validate() error {
	lvl := strings.ToUpper(l.Level)
	if lvl == "" {
		lvl = defaultLogLevel
	}
	if !log.ValidLevel(lvl) {
		return fmt.Errorf("config: Logging: Level '%v' is invalid", l.Level)
	}
	l.Level = lvl
	return nil
}

// Override adjusts a decoded configuration before defaults are applied.
// Every section is non-nil when it runs.
type Override func(*Config)

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte, overrides ...Override) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	return fixup(cfg, overrides)
}

// LoadFile loads, parses and validates the provided file and returns the
// Config. A missing file yields the defaults.
func LoadFile(f string, overrides ...Override) (*Config, error) {
	b, err := os.ReadFile(f)
	if errors.Is(err, os.ErrNotExist) {
		return fixup(new(Config), overrides)
	}
	if err != nil {
		return nil, err
	}
	return Load(b, overrides...)
}

func fixup(cfg *Config, overrides []Override) (*Config, error) {
	cfg.ensureSections()
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
