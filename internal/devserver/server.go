package devserver

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/op/go-logging.v1"

	"srrt/internal/metrics"
)

// Config selects the server behaviour.
type Config struct {
	Token       string
	RelayPrefix string
	Path        string
	LeaseTTL    time.Duration
	WrapLeases  bool
	PinLeases   bool
}

// Server bundles the development endpoints.
type Server struct {
	Authority *Authority
	Hub       *Hub

	cfg      Config
	log      *logging.Logger
	registry *prometheus.Registry
	healthy  atomic.Bool
}

// New returns a server whose relay starts out healthy.
func New(cfg Config, log *logging.Logger) *Server {
	if cfg.RelayPrefix == "" {
		cfg.RelayPrefix = "/radio"
	}
	if cfg.Path == "" {
		cfg.Path = "/ws/glyphnet"
	}
	a := NewAuthority(cfg.LeaseTTL)
	a.Wrap = cfg.WrapLeases
	a.Pin = cfg.PinLeases
	s := &Server{
		Authority: a,
		Hub:       NewHub(cfg.Token, log),
		cfg:       cfg,
		log:       log,
		registry:  prometheus.NewRegistry(),
	}
	s.healthy.Store(true)
	s.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "srrt_devserver_subscribers",
			Help: "Number of live hub subscribers",
		}, func() float64 { return float64(s.Hub.Total()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "srrt_devserver_leases",
			Help: "Number of leases held by the authority",
		}, func() float64 { return float64(s.Authority.Len()) }),
	)
	return s
}

// SetRelayHealthy flips the health endpoint.
func (s *Server) SetRelayHealthy(ok bool) { s.healthy.Store(ok) }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/lease", s.Authority)
	mux.Handle(s.cfg.Path, s.Hub)
	mux.Handle(s.cfg.RelayPrefix+s.cfg.Path, s.Hub)
	mux.HandleFunc("GET "+s.cfg.RelayPrefix+"/health", s.health)
	mux.HandleFunc("PUT "+s.cfg.RelayPrefix+"/health", s.setHealth)
	mux.Handle("GET /metrics", metrics.Handler(prometheus.Gatherers{s.registry, prometheus.DefaultGatherer}))
	return s.accessLog(mux)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if !s.healthy.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) setHealth(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var body struct {
		Healthy bool `json:"healthy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.SetRelayHealthy(body.Healthy)
	if s.log != nil {
		s.log.Noticef("relay healthy=%v", body.Healthy)
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Hijack hands the connection to the WebSocket upgrader.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("devserver: response writer cannot hijack")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// accessLog records method, path, remote, status, bytes and duration.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.log == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		s.log.Debugf("%s %s %s %d %dB %v", r.Method, r.URL.Path, r.RemoteAddr, sw.status, sw.bytes, time.Since(start))
	})
}
