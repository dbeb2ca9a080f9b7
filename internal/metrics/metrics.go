// Package metrics exposes SRRT counters to Prometheus.
//
// A nil *Metrics is valid and records nothing, so components take one
// optionally.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame results recorded by Frame.
const (
	FrameDelivered = "delivered"
	FrameMalformed = "malformed"
	FrameEcho      = "echo"
	FrameGraph     = "graph"
	FrameControl   = "control"
)

// Metrics holds the SRRT collectors of one registry.
type Metrics struct {
	opens           prometheus.Counter
	reconnects      prometheus.Counter
	dialFailures    prometheus.Counter
	frames          *prometheus.CounterVec
	decryptFailures prometheus.Counter
	leaseRequests   *prometheus.CounterVec
	flushes         prometheus.Counter
	evicted         prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "srrt_connection_opens_total",
			Help: "Number of successfully opened live connections",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "srrt_reconnects_scheduled_total",
			Help: "Number of reconnects scheduled after an unexpected close",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "srrt_dial_failures_total",
			Help: "Number of failed connection attempts",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "srrt_inbound_frames_total",
			Help: "Number of inbound frames by classification result",
		}, []string{"result"}),
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "srrt_decrypt_failures_total",
			Help: "Number of capsules whose ciphertext could not be opened",
		}),
		leaseRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "srrt_lease_requests_total",
			Help: "Number of lease requests by purpose and outcome",
		}, []string{"purpose", "outcome"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "srrt_delivery_flushes_total",
			Help: "Number of delivery batches handed to the consumer",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "srrt_delivery_evicted_total",
			Help: "Number of events dropped from the bounded delivery list",
		}),
	}
	reg.MustRegister(m.opens, m.reconnects, m.dialFailures, m.frames,
		m.decryptFailures, m.leaseRequests, m.flushes, m.evicted)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Open() {
	if m != nil {
		m.opens.Inc()
	}
}

func (m *Metrics) Reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) DialFailure() {
	if m != nil {
		m.dialFailures.Inc()
	}
}

// Frame counts one inbound frame under result.
func (m *Metrics) Frame(result string) {
	if m != nil {
		m.frames.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) DecryptFailure() {
	if m != nil {
		m.decryptFailures.Inc()
	}
}

// LeaseRequest counts a lease request for purpose.
func (m *Metrics) LeaseRequest(purpose string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.leaseRequests.WithLabelValues(purpose, outcome).Inc()
}

// Flush counts a delivered batch and the events evicted by it.
func (m *Metrics) Flush(evicted int) {
	if m == nil {
		return
	}
	m.flushes.Inc()
	if evicted > 0 {
		m.evicted.Add(float64(evicted))
	}
}
