package wsflow

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/hub"
)

// Metrics exports hub and transport activity in Prometheus format.
// It implements hub.Metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	connectionsLive prometheus.Gauge
	sessionsLive    prometheus.Gauge
	sessionsTotal   prometheus.Counter
	ticksTotal      prometheus.Counter
	tickDeliveries  prometheus.Counter
	eventsTotal     prometheus.Counter
	eventDeliveries prometheus.Counter
	requestsTotal   *prometheus.CounterVec
	droppedTotal    prometheus.Counter
}

var _ hub.Metrics = (*Metrics)(nil)

// NewMetrics creates the collectors under namespace and registers them with
// a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		connectionsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_live_count",
			Help:      "Number of open WebSocket connections.",
		}),
		sessionsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live_count",
			Help:      "Number of sessions currently bound to a play.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions opened since start.",
		}),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of ticks accepted.",
		}),
		tickDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_deliveries_total",
			Help:      "Total number of tick deliveries to sessions.",
		}),
		eventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of events accepted.",
		}),
		eventDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_deliveries_total",
			Help:      "Total number of event deliveries to sessions.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Completed operations by method and outcome.",
		}, []string{"method", "outcome"}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_connections_total",
			Help:      "Connections closed because their outbound queue overflowed.",
		}),
	}

	reg.MustRegister(
		m.connectionsLive,
		m.sessionsLive,
		m.sessionsTotal,
		m.ticksTotal,
		m.tickDeliveries,
		m.eventsTotal,
		m.eventDeliveries,
		m.requestsTotal,
		m.droppedTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened(string) {
	m.sessionsLive.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) SessionClosed(string) {
	m.sessionsLive.Dec()
}

func (m *Metrics) TickSent(_ string, delivered int) {
	m.ticksTotal.Inc()
	m.tickDeliveries.Add(float64(delivered))
}

func (m *Metrics) EventSent(_ string, delivered int) {
	m.eventsTotal.Inc()
	m.eventDeliveries.Add(float64(delivered))
}

// Request counts by outcome: "ok", or the error kind ("error" for errors
// without one).
func (m *Metrics) Request(op amflow.Operation, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(amflow.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.requestsTotal.WithLabelValues(op.String(), outcome).Inc()
}

// Connection hooks are called by Server, which may run without metrics.

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.connectionsLive.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.connectionsLive.Dec()
	}
}

func (m *Metrics) connectionDropped() {
	if m != nil {
		m.droppedTotal.Inc()
	}
}
