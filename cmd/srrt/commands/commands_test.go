package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"srrt/internal/app"
	"srrt/internal/devserver"
	"srrt/internal/domain"
)

func testApp(t *testing.T) {
	t.Helper()
	srv := httptest.NewServer(devserver.New(devserver.Config{LeaseTTL: time.Minute}, nil).Handler())
	t.Cleanup(srv.Close)

	cfg, err := app.Load(nil, func(c *app.Config) {
		c.Server.URL = srv.URL
		c.Transport.ModeFile = filepath.Join(t.TempDir(), "mode.json")
		c.Relay.DisableHealthPoll = true
		c.Logging.Disable = true
	})
	require.NoError(t, err)
	w, err := app.NewWire(cfg)
	require.NoError(t, err)
	appCtx = app.New(w)
	t.Cleanup(func() {
		appCtx.Stop()
		appCtx = nil
	})
}

func TestApplyFlags(t *testing.T) {
	serverURL, topic, graph, logLevel = "ws://h:1", "ucs://t", "Work", "debug"
	t.Cleanup(func() { serverURL, topic, graph, logLevel = "", "", "", "" })

	cfg, err := app.Load(nil, applyFlags, func(c *app.Config) {
		c.Transport.ModeFile = "/tmp/srrt-mode.json"
	})
	require.NoError(t, err)
	require.Equal(t, "ws://h:1", cfg.Server.URL)
	require.Equal(t, "http://h:1/api/lease", cfg.Lease.URL)
	require.Equal(t, "ucs://t", cfg.Session.Topic)
	require.Equal(t, "work", cfg.Session.Graph)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestSealOpen(t *testing.T) {
	testApp(t)

	var sealedOut bytes.Buffer
	seal := sealCmd()
	seal.SetOut(&sealedOut)
	seal.SetArgs([]string{"⊕ hello"})
	require.NoError(t, seal.Execute())

	var in sealed
	require.NoError(t, json.Unmarshal(sealedOut.Bytes(), &in))
	require.Equal(t, "glyph", in.Enc.AAD)
	require.NotEmpty(t, in.CiphertextB64)

	var plain bytes.Buffer
	open := openCmd()
	open.SetOut(&plain)
	open.SetIn(bytes.NewReader(sealedOut.Bytes()))
	open.SetArgs(nil)
	require.NoError(t, open.Execute())
	require.Equal(t, "⊕ hello\n", plain.String())

	// A different tuple leases a different key.
	open = openCmd()
	open.SetOut(&plain)
	open.SetArgs([]string{sealedOut.String(), "--remote", "ucs://other"})
	err := open.Execute()
	require.True(t, errors.Is(err, domain.ErrAuthenticationFailed), "got %v", err)
	remotePeer = ""
}

func TestLease(t *testing.T) {
	testApp(t)

	var out bytes.Buffer
	cmd := leaseCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--purpose", "voice_frame"})
	require.NoError(t, cmd.Execute())

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "voice_frame", got["purpose"])
	require.Equal(t, "personal", got["graph"])
	require.NotEmpty(t, got["fingerprint"])
	purpose = string(domain.PurposeGlyph)

	cmd = leaseCmd()
	cmd.SetArgs([]string{"--purpose", "nope"})
	require.Error(t, cmd.Execute())
	purpose = string(domain.PurposeGlyph)
}

func TestMode(t *testing.T) {
	testApp(t)

	var out bytes.Buffer
	cmd := modeCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"relay"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "mode: relay")
	require.Contains(t, out.String(), `base: "/radio"`)

	m, err := appCtx.Modes.Mode()
	require.NoError(t, err)
	require.Equal(t, domain.ModeRelay, m)

	cmd = modeCmd()
	cmd.SetArgs([]string{"sideways"})
	require.Error(t, cmd.Execute())
}

func TestEventLine(t *testing.T) {
	ev := domain.Event{
		Kind:       domain.KindCapsule,
		Type:       "glyphnet_capsule",
		ID:         "e1",
		Capsule:    map[string]any{"glyphs": []any{"x"}},
		DecryptErr: domain.ErrLeaseUnavailable,
	}
	line := eventLine(ev)
	require.Equal(t, ev.Kind.String(), line["kind"])
	require.Equal(t, "e1", line["id"])
	require.NotContains(t, line, "ts")
	require.Equal(t, domain.ErrLeaseUnavailable.Error(), line["decrypt_error"])
}
