package gateway

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the instrumentation surface of the gateway. A nil *Metrics
// disables collection, so the gateway never guards individual calls.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  *prometheus.CounterVec
	RequestsTotal     *prometheus.CounterVec
	EventsTotal       *prometheus.CounterVec
}

// NewMetrics builds and registers the gateway collectors. Pass
// prometheus.DefaultRegisterer in production wiring; tests use a private
// registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_connections_active",
			Help: "Number of currently open control-plane connections",
		}),
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_connections_total",
			Help: "Total control-plane connections accepted, by handshake outcome",
		}, []string{"outcome"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total operations dispatched, by op and outcome",
		}, []string{"op", "outcome"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_events_total",
			Help: "Total events broadcast, by event name",
		}, []string{"event"}),
	}

	reg.MustRegister(m.ConnectionsActive, m.ConnectionsTotal, m.RequestsTotal, m.EventsTotal)
	return m
}

func (m *Metrics) connectionOpened(outcome string) {
	if m == nil {
		return
	}
	m.ConnectionsTotal.WithLabelValues(outcome).Inc()
	if outcome == "accepted" {
		m.ConnectionsActive.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

func (m *Metrics) requestHandled(op string, success bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	m.RequestsTotal.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) eventBroadcast(event string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(event).Inc()
}
