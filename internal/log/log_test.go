package log_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"srrt/internal/log"
)

func TestBackend_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srrt.log")
	b, err := log.New(path, "info", false)
	require.NoError(t, err)

	b.GetLogger("conn").Info("socket open")
	b.GetLogger("conn").Debug("hidden")
	require.NoError(t, b.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "INFO conn: socket open")
	require.NotContains(t, string(data), "hidden")
}

func TestBackend_RejectsUnknownLevel(t *testing.T) {
	_, err := log.New("", "LOUD", false)
	require.Error(t, err)
	require.False(t, log.ValidLevel("LOUD"))
	require.True(t, log.ValidLevel("warning"))
}
