package conn_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"srrt/internal/clock"
	"srrt/internal/conn"
	"srrt/internal/domain"
	"srrt/internal/store"
	"srrt/internal/transport"
)

type fakeConn struct {
	in     chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.done:
		return nil, errors.New("connection reset")
	}
}

func (c *fakeConn) WriteMessage(b []byte) error {
	select {
	case <-c.done:
		return errors.New("closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), b...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*fakeConn
	fail  atomic.Bool

	// gate, when set, holds every dial until it is closed.
	gate chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, u string) (conn.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, u)
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail.Load() {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urls[len(d.urls)-1]
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

type fixture struct {
	clk      *clock.FakeClock
	dialer   *fakeDialer
	health   *transport.HealthSignal
	resolver *transport.Resolver
	mgr      *conn.Manager

	mu     sync.Mutex
	frames []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clk:    clock.Fake(time.Unix(1_700_000_000, 0)),
		dialer: &fakeDialer{},
		health: transport.NewHealthSignal(false),
	}
	f.resolver = transport.NewResolver("/radio", f.health, store.NewMemoryModeStore(domain.ModeAuto), nil)
	cfg := conn.Config{
		ServerURL: "http://srrt.test:8080",
		Topic:     "ucs://wave.tp",
		Graph:     domain.GraphPersonal,
		ConnID:    "conn-1",
	}
	f.mgr = conn.NewManager(cfg, f.dialer, f.resolver, f.clk, func(b []byte) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.frames = append(f.frames, string(b))
	}, conn.Options{Backoff: conn.NewBackoff(rand.New(rand.NewPCG(7, 9)))})
	t.Cleanup(f.mgr.Close)
	return f
}

func (f *fixture) waitState(t *testing.T, want domain.ConnState) domain.ConnStatus {
	t.Helper()
	var st domain.ConnStatus
	require.Eventually(t, func() bool {
		st = f.mgr.Status()
		if st.State != want {
			return false
		}
		return want != domain.StateReconnecting || st.ReconnectIn > 0
	}, 2*time.Second, time.Millisecond)
	return st
}

func TestManager_OpensAgainstDirectBase(t *testing.T) {
	f := newFixture(t)
	f.mgr.Start()
	st := f.waitState(t, domain.StateOpen)
	require.True(t, st.Open)
	require.Equal(t, "", st.Base)

	u, err := url.Parse(f.dialer.lastURL())
	require.NoError(t, err)
	require.Equal(t, "ws", u.Scheme)
	require.Equal(t, "/ws/glyphnet", u.Path)
	q := u.Query()
	require.Equal(t, "ucs://wave.tp", q.Get("topic"))
	require.Equal(t, "personal", q.Get("graph"))
	require.Equal(t, "dev-token", q.Get("token"))
	require.Equal(t, "conn-1", q.Get("conn_id"))
}

func TestManager_DeliversFramesInOrder(t *testing.T) {
	f := newFixture(t)
	f.mgr.Start()
	f.waitState(t, domain.StateOpen)

	c := f.dialer.last()
	for _, s := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		c.in <- []byte(s)
	}
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.frames) == 3
	}, time.Second, time.Millisecond)
	require.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, f.frames)
}

func TestManager_Heartbeat(t *testing.T) {
	f := newFixture(t)
	f.mgr.Start()
	f.waitState(t, domain.StateOpen)

	c := f.dialer.last()
	f.clk.Advance(25 * time.Second)
	require.Eventually(t, func() bool { return len(c.written()) == 1 }, time.Second, time.Millisecond)

	var p map[string]any
	require.NoError(t, json.Unmarshal(c.written()[0], &p))
	require.Equal(t, "ping", p["type"])
	require.Equal(t, "conn-1", p["conn_id"])
	require.EqualValues(t, f.clk.Now().UnixMilli(), p["ts"])
}

func TestManager_BackoffBoundsPerClose(t *testing.T) {
	f := newFixture(t)
	f.mgr.Start()
	f.waitState(t, domain.StateOpen)

	f.dialer.fail.Store(true)
	f.dialer.last().Close()
	st := f.waitState(t, domain.StateReconnecting)
	require.Equal(t, "connection reset", st.LastError)

	prev := conn.BackoffFloor
	for i := 0; i < 12; i++ {
		d := st.ReconnectIn
		base, j := conn.Bounds(prev)
		require.GreaterOrEqual(t, d.Milliseconds(), base-j, "close %d", i)
		require.LessOrEqual(t, d.Milliseconds(), base+j, "close %d", i)
		// exactly one reconnect is pending
		require.Equal(t, 1, f.clk.Pending(), "close %d", i)

		dials := f.dialer.dials()
		f.clk.Advance(d)
		require.Equal(t, dials+1, f.dialer.dials())
		st = f.mgr.Status()
		require.True(t, st.Reconnecting)
		require.Equal(t, "connection refused", st.LastError)
		prev = d
	}
	require.LessOrEqual(t, st.ReconnectIn, 18*time.Second)
}

func TestManager_OpenResetsBackoff(t *testing.T) {
	f := newFixture(t)
	f.mgr.Start()
	f.waitState(t, domain.StateOpen)

	f.dialer.fail.Store(true)
	f.dialer.last().Close()
	st := f.waitState(t, domain.StateReconnecting)
	f.clk.Advance(st.ReconnectIn)
	st = f.mgr.Status()

	f.dialer.fail.Store(false)
	f.clk.Advance(st.ReconnectIn)
	st = f.waitState(t, domain.StateOpen)
	require.Empty(t, st.LastError)

	f.dialer.last().Close()
	st = f.waitState(t, domain.StateReconnecting)
	base, j := conn.Bounds(conn.BackoffFloor)
	require.LessOrEqual(t, st.ReconnectIn.Milliseconds(), base+j)
}

func TestManager_NoReconnectAfterClose(t *testing.T) {
	f := newFixture(t)
	f.mgr.Start()
	f.waitState(t, domain.StateOpen)
	c := f.dialer.last()

	f.mgr.Close()
	c.Close()
	time.Sleep(10 * time.Millisecond)

	st := f.mgr.Status()
	require.Equal(t, domain.StateClosed, st.State)
	require.Zero(t, st.ReconnectIn)
	require.Zero(t, f.clk.Pending())

	f.clk.Advance(time.Minute)
	require.Equal(t, 1, f.dialer.dials())
}

func TestManager_CloseCancelsPendingReconnect(t *testing.T) {
	f := newFixture(t)
	f.dialer.fail.Store(true)
	f.mgr.Start()
	f.waitState(t, domain.StateReconnecting)
	require.Equal(t, 1, f.clk.Pending())

	f.mgr.Close()
	require.Zero(t, f.clk.Pending())
	f.clk.Advance(time.Minute)
	require.Equal(t, 1, f.dialer.dials())
}

func TestManager_RelayFlipReopensAgainstRelay(t *testing.T) {
	f := newFixture(t)
	f.resolver.OnChange(func(string) { f.mgr.ForceReopen() })
	f.resolver.Start()
	defer f.resolver.Stop()

	f.mgr.Start()
	st := f.waitState(t, domain.StateOpen)
	require.Equal(t, "", st.Base)

	f.health.Set(true)
	st = f.waitState(t, domain.StateReconnecting)
	require.Empty(t, st.LastError)
	base, j := conn.Bounds(conn.BackoffFloor)
	require.GreaterOrEqual(t, st.ReconnectIn.Milliseconds(), base-j)
	require.LessOrEqual(t, st.ReconnectIn.Milliseconds(), base+j)

	f.clk.Advance(st.ReconnectIn / 2)
	require.Less(t, f.mgr.Status().ReconnectIn, st.ReconnectIn)

	f.clk.Advance(st.ReconnectIn)
	st = f.waitState(t, domain.StateOpen)
	require.Equal(t, "/radio", st.Base)
	require.Zero(t, st.ReconnectIn)

	u, err := url.Parse(f.dialer.lastURL())
	require.NoError(t, err)
	require.Equal(t, "/radio/ws/glyphnet", u.Path)
	require.Equal(t, 2, f.dialer.dials())
}

func TestManager_BaseChangeWhileDiallingReopens(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.dialer.gate = gate
	f.resolver.OnChange(func(string) { f.mgr.ForceReopen() })
	f.resolver.Start()
	defer f.resolver.Stop()

	f.mgr.Start()
	require.Eventually(t, func() bool { return f.dialer.dials() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, domain.StateConnecting, f.mgr.Status().State)

	f.health.Set(true)
	require.Equal(t, "/radio", f.resolver.Current())
	close(gate)

	st := f.waitState(t, domain.StateReconnecting)
	require.Empty(t, st.LastError)
	require.Eventually(t, func() bool {
		select {
		case <-f.dialer.last().done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	f.clk.Advance(st.ReconnectIn)
	st = f.waitState(t, domain.StateOpen)
	require.Equal(t, "/radio", st.Base)
	require.Equal(t, 2, f.dialer.dials())

	u, err := url.Parse(f.dialer.lastURL())
	require.NoError(t, err)
	require.Equal(t, "/radio/ws/glyphnet", u.Path)
}

func TestManager_WatchSeesTransitions(t *testing.T) {
	f := newFixture(t)
	var (
		mu     sync.Mutex
		states []domain.ConnState
	)
	for range 2 {
		f.mgr.Watch(func(st domain.ConnStatus) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, st.State)
		})
	}

	f.mgr.Start()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 4
	}, 2*time.Second, time.Millisecond)
	f.mgr.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []domain.ConnState{
		domain.StateConnecting, domain.StateConnecting,
		domain.StateOpen, domain.StateOpen,
		domain.StateClosed, domain.StateClosed,
	}, states)
}

func TestManager_Send(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.mgr.Send([]byte(`{}`)), domain.ErrTransport)

	f.mgr.Start()
	f.waitState(t, domain.StateOpen)
	require.NoError(t, f.mgr.SendJSON(map[string]string{"type": "hello"}))
	require.Equal(t, [][]byte{[]byte(`{"type":"hello"}`)}, f.dialer.last().written())
}

func TestBuildURL(t *testing.T) {
	u, err := conn.BuildURL("https://example.org/", "/radio", "ws/glyphnet", "t1", domain.GraphWork, "tok", "c1")
	require.NoError(t, err)
	require.Equal(t, "wss://example.org/radio/ws/glyphnet?conn_id=c1&graph=work&token=tok&topic=t1", u)

	_, err = conn.BuildURL("ftp://example.org", "", "/ws", "t", "", "", "")
	require.Error(t, err)
}
