package app_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"srrt/internal/app"
	"srrt/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := app.Load([]byte(`
[Transport]
ModeFile = "/tmp/srrt-mode.json"
`))
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8080", cfg.Server.URL)
	require.Equal(t, "/ws/glyphnet", cfg.Server.Path)
	require.Equal(t, "dev-token", cfg.Server.Token)
	require.Equal(t, 25, cfg.Server.HeartbeatSec)
	require.Equal(t, "/radio", cfg.Relay.Prefix)
	require.Equal(t, "http://127.0.0.1:8080/radio/health", cfg.Relay.HealthURL)
	require.Equal(t, 5, cfg.Relay.HealthPollSec)
	require.Equal(t, "http://127.0.0.1:8080/api/lease", cfg.Lease.URL)
	require.Equal(t, "ucs://local/self", cfg.Lease.LocalPeer)
	require.Equal(t, "NOTICE", cfg.Logging.Level)
	require.Equal(t, "aes-256-gcm", cfg.Session.Scheme)
	require.Empty(t, cfg.Metrics.Address)
}

func TestLoad_Sections(t *testing.T) {
	cfg, err := app.Load([]byte(`
[Server]
URL = "wss://srrt.example.org/"
Token = "t0k"

[Relay]
Prefix = "/relay"

[Session]
Topic = "ucs://wave.tp"
Graph = "Work"
Scheme = "chacha20-poly1305"

[Transport]
ModeFile = "/tmp/m.json"
ModePollMs = 250

[Logging]
Level = "debug"

[Metrics]
Address = "127.0.0.1:9100"
`))
	require.NoError(t, err)
	require.Equal(t, "wss://srrt.example.org", cfg.Server.URL)
	require.Equal(t, "https://srrt.example.org/relay/health", cfg.Relay.HealthURL)
	require.Equal(t, "https://srrt.example.org/api/lease", cfg.Lease.URL)
	require.Equal(t, string(domain.GraphWork), cfg.Session.Graph)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, 250, cfg.Transport.ModePollMs)
}

func TestLoad_Rejects(t *testing.T) {
	for name, body := range map[string]string{
		"undecoded key": "[Server]\nURL = \"http://x\"\nBogus = 1\n",
		"bad scheme":    "[Server]\nURL = \"ftp://x\"\n",
		"bad graph":     "[Session]\nGraph = \"galaxy\"\n",
		"bad aead":      "[Session]\nScheme = \"rot13\"\n",
		"bad level":     "[Logging]\nLevel = \"LOUD\"\n",
		"bad prefix":    "[Relay]\nPrefix = \"radio\"\n",
		"bad toml":      "[Server\n",
	} {
		_, err := app.Load([]byte(body))
		require.Error(t, err, name)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "srrt.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Session]\nTopic = \"t-file\"\n[Transport]\nModeFile = \"/tmp/x.json\"\n"), 0o600))

	cfg, err := app.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "t-file", cfg.Session.Topic)

	t.Setenv("HOME", dir)
	cfg, err = app.LoadFile(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, ".srrt", "transport_mode.json"), cfg.Transport.ModeFile)
}

func TestNewWire(t *testing.T) {
	cfg, err := app.Load([]byte("[Transport]\nModeFile = \"" + filepath.Join(t.TempDir(), "m.json") + "\"\n[Logging]\nDisable = true\n"))
	require.NoError(t, err)
	w, err := app.NewWire(cfg)
	require.NoError(t, err)
	require.NotNil(t, w.Poller)

	sc := w.SessionConfig()
	require.Equal(t, cfg.Session.Topic, sc.Topic)
	require.Equal(t, "/radio", sc.RelayPrefix)

	s, err := w.NewSession(nil)
	require.NoError(t, err)
	require.NotEmpty(t, s.ConnID())
	s.Close()

	a := app.New(w)
	require.NoError(t, a.Start())
	a.Stop()
}

func TestLoadOverride(t *testing.T) {
	cfg, err := app.Load([]byte("[Server]\nURL = \"http://a:1\"\n[Transport]\nModeFile = \"/tmp/x.json\"\n"),
		func(c *app.Config) { c.Server.URL = "wss://b:2" })
	require.NoError(t, err)
	require.Equal(t, "wss://b:2", cfg.Server.URL)
	require.Equal(t, "https://b:2/api/lease", cfg.Lease.URL)
	require.Equal(t, "https://b:2/radio/health", cfg.Relay.HealthURL)
}
