package transport_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"srrt/internal/clock"
	"srrt/internal/domain"
	"srrt/internal/store"
	"srrt/internal/transport"
)

func TestBase(t *testing.T) {
	cases := []struct {
		mode    domain.TransportMode
		healthy bool
		want    string
	}{
		{domain.ModeAuto, false, ""},
		{domain.ModeAuto, true, "/radio"},
		{domain.ModeDirect, true, ""},
		{domain.ModeRelay, false, "/radio"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, transport.Base(c.mode, c.healthy, "/radio"), "%s healthy=%v", c.mode, c.healthy)
	}
}

func TestResolver_RecomputeReportsChange(t *testing.T) {
	health := transport.NewHealthSignal(false)
	modes := store.NewMemoryModeStore(domain.ModeAuto)
	r := transport.NewResolver("", health, modes, nil)

	base, changed := r.Recompute()
	require.Equal(t, "", base)
	require.False(t, changed)

	health.Set(true)
	base, changed = r.Recompute()
	require.Equal(t, "/radio", base)
	require.True(t, changed)

	_, changed = r.Recompute()
	require.False(t, changed)
	require.Equal(t, "/radio", r.Current())
}

func TestResolver_NotifiesOnSignalChanges(t *testing.T) {
	health := transport.NewHealthSignal(false)
	modes := store.NewMemoryModeStore(domain.ModeAuto)
	r := transport.NewResolver("/relay", health, modes, nil)
	r.Recompute()
	r.Start()
	defer r.Stop()

	var mu sync.Mutex
	var seen []string
	cancel := r.OnChange(func(b string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, b)
	})
	defer cancel()

	health.Set(true)
	require.NoError(t, modes.SetMode(domain.ModeRelay)) // still /relay, no notification
	require.NoError(t, modes.SetMode(domain.ModeDirect))
	health.Set(false) // direct ignores health

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"/relay", ""}, seen)
}

func TestResolver_StopUnsubscribes(t *testing.T) {
	health := transport.NewHealthSignal(false)
	r := transport.NewResolver("", health, nil, nil)
	var calls atomic.Int32
	r.OnChange(func(string) { calls.Add(1) })
	r.Start()
	r.Stop()
	health.Set(true)
	require.Zero(t, calls.Load())
	require.Equal(t, "", r.Current())
}

func TestHealthPoller(t *testing.T) {
	var up atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if up.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	clk := clock.Fake(time.Unix(0, 0))
	signal := transport.NewHealthSignal(true)
	p := transport.NewHealthPoller(srv.URL, time.Second, signal, srv.Client(), clk, nil)
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool { return !signal.Healthy() }, 2*time.Second, 5*time.Millisecond)

	up.Store(true)
	require.Eventually(t, func() bool {
		clk.Advance(time.Second)
		return signal.Healthy()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHealthPoller_UnreachableIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := transport.NewHealthPoller(url, time.Second, transport.NewHealthSignal(true), nil, clock.Real(), nil)
	require.False(t, p.Probe(t.Context()))
}
