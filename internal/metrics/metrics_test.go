package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"srrt/internal/metrics"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.Open()
	m.Frame(metrics.FrameEcho)
	m.LeaseRequest("glyph", nil)
	m.Flush(3)
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Open()
	m.Reconnect()
	m.Frame(metrics.FrameDelivered)
	m.Frame(metrics.FrameDelivered)
	m.LeaseRequest("voice_frame", errors.New("down"))
	m.Flush(2)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	require.Contains(t, out, "srrt_connection_opens_total 1")
	require.Contains(t, out, `srrt_inbound_frames_total{result="delivered"} 2`)
	require.Contains(t, out, `srrt_lease_requests_total{outcome="error",purpose="voice_frame"} 1`)
	require.Contains(t, out, "srrt_delivery_evicted_total 2")
}
