package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"srrt/internal/clock"
	"srrt/internal/conn"
	"srrt/internal/crypto"
	"srrt/internal/delivery"
	"srrt/internal/domain"
	"srrt/internal/frame"
	"srrt/internal/log"
	"srrt/internal/metrics"
	"srrt/internal/transport"
)

// Config describes one subscription.
type Config struct {
	ServerURL   string
	Path        string
	Token       string
	RelayPrefix string

	Topic string
	Graph domain.Graph

	// ConnID is generated when empty.
	ConnID domain.ConnID

	// LocalPeer is the local side of every lease tuple.
	LocalPeer string

	// Scheme is the AEAD used for outbound encryption.
	Scheme string

	Heartbeat   time.Duration
	DialTimeout time.Duration
	Capacity    int
}

// Deps are the collaborators of a Session. Dialer and Leases are required;
// the rest have usable defaults.
type Deps struct {
	Dialer   conn.Dialer
	Leases   domain.LeaseRequester
	Health   domain.HealthSource
	Modes    domain.ModeStore
	Consumer domain.EventConsumer
	Clock    clock.Clock
	Logging  *log.Backend
	Metrics  *metrics.Metrics
	Backoff  *conn.Backoff
}

// Session is one live subscription.
type Session struct {
	cfg    Config
	id     domain.ConnID
	clock  clock.Clock
	leases domain.LeaseRequester
	codec  *crypto.Codec
	log    *logging.Logger
	mets   *metrics.Metrics

	resolver  *transport.Resolver
	mgr       *conn.Manager
	pipeline  *frame.Pipeline
	decryptor *frame.Decryptor
	buffer    *delivery.Buffer

	mu      sync.Mutex
	started bool
	dead    bool
	unsub   func()
}

// New wires a session. Nothing is dialled until Start.
func New(cfg Config, deps Deps) (*Session, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("session: server url is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("session: topic is required")
	}
	if !cfg.Graph.Valid() {
		return nil, fmt.Errorf("session: unknown graph %q", cfg.Graph)
	}
	if deps.Dialer == nil || deps.Leases == nil {
		return nil, errors.New("session: dialer and lease requester are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logging == nil {
		deps.Logging = log.NewDiscard()
	}
	if cfg.ConnID == "" {
		cfg.ConnID = domain.ConnID(uuid.NewString())
	}
	if cfg.LocalPeer == "" {
		cfg.LocalPeer = frame.DefaultLocalPeer
	}
	codec := &crypto.Codec{Now: deps.Clock.Now}
	if cfg.Scheme != "" {
		c, err := crypto.NewCodec(cfg.Scheme)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		c.Now = deps.Clock.Now
		codec = c
	}

	s := &Session{
		cfg:    cfg,
		id:     cfg.ConnID,
		clock:  deps.Clock,
		leases: deps.Leases,
		codec:  codec,
		log:    deps.Logging.GetLogger("session"),
		mets:   deps.Metrics,
	}
	s.resolver = transport.NewResolver(cfg.RelayPrefix, deps.Health, deps.Modes, deps.Logging.GetLogger("transport"))
	s.buffer = delivery.New(deps.Clock, deps.Consumer, delivery.Options{Capacity: cfg.Capacity, Metrics: deps.Metrics})
	s.decryptor = frame.NewDecryptor(deps.Leases, codec, cfg.LocalPeer, deps.Logging.GetLogger("frame"), deps.Metrics)
	s.pipeline = &frame.Pipeline{
		ConnID:    s.id,
		Graph:     cfg.Graph,
		Decryptor: s.decryptor,
		Sink:      s.buffer.Push,
		Log:       deps.Logging.GetLogger("frame"),
		Metrics:   deps.Metrics,
	}
	s.mgr = conn.NewManager(conn.Config{
		ServerURL:   cfg.ServerURL,
		Path:        cfg.Path,
		Topic:       cfg.Topic,
		Graph:       cfg.Graph,
		Token:       cfg.Token,
		ConnID:      s.id,
		Heartbeat:   cfg.Heartbeat,
		DialTimeout: cfg.DialTimeout,
	}, deps.Dialer, s.resolver, deps.Clock, s.pipeline.Handle, conn.Options{
		Backoff: deps.Backoff,
		Log:     deps.Logging.GetLogger("conn"),
		Metrics: deps.Metrics,
	})
	return s, nil
}

// ConnID returns the identity of this session's connection.
func (s *Session) ConnID() domain.ConnID { return s.id }

// Start subscribes to transport changes and begins connecting.
func (s *Session) Start() {
	s.mu.Lock()
	if s.dead || s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.unsub = s.resolver.OnChange(func(string) {
		s.mu.Lock()
		dead := s.dead
		s.mu.Unlock()
		if !dead {
			s.mgr.ForceReopen()
		}
	})
	s.mu.Unlock()

	s.resolver.Start()
	s.mgr.Start()
	s.log.Infof("session %s started on %s (graph %q)", s.id, s.cfg.Topic, s.cfg.Graph)
}

// Close tears the session down: in-flight callbacks become no-ops, the
// connection is closed, pending reconnect and flush are cancelled and the
// queue is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return
	}
	s.dead = true
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	s.mgr.Close()
	s.pipeline.Close()
	s.buffer.Close()
	s.resolver.Stop()
	if unsub != nil {
		unsub()
	}
	s.decryptor.Close()
	s.log.Infof("session %s closed", s.id)
}

// Status returns the observable connection state.
func (s *Session) Status() domain.ConnStatus { return s.mgr.Status() }

// Watch registers fn for connection state transitions.
func (s *Session) Watch(fn func(domain.ConnStatus)) { s.mgr.Watch(fn) }

// Events returns the retained events, most recent first.
func (s *Session) Events() []domain.Event { return s.buffer.Events() }

// Outbound is a capsule to publish on the session's topic.
type Outbound struct {
	// Type defaults to glyphnet_capsule.
	Type    string
	Capsule map[string]any
	Meta    map[string]any

	// Encrypt seals the field selected by Purpose, or the inferred one.
	Encrypt bool
	Purpose domain.Purpose
	Seq     *uint64
}

// Send tags o with this session's identity and graph, encrypts it if asked
// and writes it on the open connection. Lease failures surface as
// domain.ErrLeaseUnavailable; a closed connection as domain.ErrTransport.
func (s *Session) Send(ctx context.Context, o Outbound) error {
	s.mu.Lock()
	dead := s.dead
	s.mu.Unlock()
	if dead {
		return fmt.Errorf("%w: session closed", domain.ErrTransport)
	}

	capsule := cloneMap(o.Capsule)
	meta := maps.Clone(o.Meta)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["origin_conn_id"] = string(s.id)
	meta["conn_id"] = string(s.id)
	if _, ok := meta["graph"]; !ok && s.cfg.Graph != "" {
		meta["graph"] = string(s.cfg.Graph)
	}

	if o.Encrypt {
		if err := s.seal(ctx, capsule, meta, o.Purpose, o.Seq); err != nil {
			return err
		}
	}

	typ := o.Type
	if typ == "" {
		typ = domain.TypeCapsule
	}
	return s.mgr.SendJSON(map[string]any{
		"type":    typ,
		"id":      uuid.NewString(),
		"ts":      s.clock.Now().UnixMilli(),
		"capsule": capsule,
		"meta":    meta,
	})
}

// seal encrypts the purpose field of capsule in place. The lease tuple is
// derived from meta the same way a receiver derives it.
func (s *Session) seal(ctx context.Context, capsule, meta map[string]any, purpose domain.Purpose, seq *uint64) error {
	if purpose == "" {
		purpose = frame.InferPurpose(capsule)
	}

	var pt []byte
	switch purpose {
	case domain.PurposeGlyph:
		g, ok := capsule["glyphs"]
		if !ok {
			return fmt.Errorf("session: glyph capsule has no glyphs")
		}
		b, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("%w: glyphs: %v", domain.ErrEncoding, err)
		}
		pt = b
	case domain.PurposeVoiceNote, domain.PurposeVoiceFrame:
		field, _ := capsule[string(purpose)].(map[string]any)
		data, _ := field["data_b64"].(string)
		if data == "" {
			return fmt.Errorf("session: %s capsule has no data_b64", purpose)
		}
		b, err := crypto.FromB64(data)
		if err != nil {
			return err
		}
		pt = b
	default:
		return fmt.Errorf("session: unknown purpose %q", purpose)
	}

	req := frame.LeaseRequestFor(purpose, meta, s.cfg.LocalPeer)
	l, err := s.leases.RequestLease(ctx, req)
	s.mets.LeaseRequest(string(purpose), err)
	if err != nil {
		return err
	}
	key, err := crypto.DeriveKey(l)
	if err != nil {
		return err
	}
	defer key.Destroy()

	ct, em, err := s.codec.Encrypt(key, pt, string(purpose), seq)
	if err != nil {
		return err
	}
	if purpose == domain.PurposeGlyph {
		delete(capsule, "glyphs")
		capsule["glyphs_enc_b64"] = crypto.B64(ct)
	} else {
		capsule[string(purpose)].(map[string]any)["data_b64"] = crypto.B64(ct)
	}
	capsule["enc"] = em
	return nil
}

// cloneMap copies m and its nested objects so sealing never mutates the
// caller's capsule.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			v = cloneMap(sub)
		}
		out[k] = v
	}
	return out
}
