package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by the core. Every method
// is safe on a nil *Metrics, so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	gateOpen        prometheus.Gauge
	gateTrips       prometheus.Counter
	querySource     *prometheus.CounterVec
	flowsProcessed  prometheus.Counter
	alertsDetected  *prometheus.CounterVec
	escalations     prometheus.Counter
	classifyErrors  prometheus.Counter
	runDuration     prometheus.Histogram
	mitigationsSent *prometheus.CounterVec
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gateOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_store_gate_open",
			Help: "1 while the primary store circuit is open, 0 while closed.",
		}),
		gateTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_store_gate_trips_total",
			Help: "Times the primary store circuit opened.",
		}),
		querySource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_store_queries_total",
			Help: "Alert queries by the store that answered them.",
		}, []string{"source"}),
		flowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_detection_flows_total",
			Help: "Flow records run through the detection pipeline.",
		}),
		alertsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_detection_alerts_total",
			Help: "Alerts produced by the detection pipeline by category.",
		}, []string{"category"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_risk_escalations_total",
			Help: "Alerts whose risk was escalated for a repeat offender.",
		}),
		classifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_detection_classification_errors_total",
			Help: "Flow records skipped because vectorization or classification failed.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_detection_run_seconds",
			Help:    "Wall time of one detection run.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		mitigationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_mitigations_total",
			Help: "Block requests by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.gateOpen, m.gateTrips, m.querySource,
		m.flowsProcessed, m.alertsDetected, m.escalations, m.classifyErrors, m.runDuration,
		m.mitigationsSent,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetGateOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.gateOpen.Set(1)
		m.gateTrips.Inc()
		return
	}
	m.gateOpen.Set(0)
}

func (m *Metrics) ObserveQuery(source string) {
	if m == nil {
		return
	}
	m.querySource.WithLabelValues(source).Inc()
}

func (m *Metrics) AddFlows(n int) {
	if m == nil {
		return
	}
	m.flowsProcessed.Add(float64(n))
}

func (m *Metrics) ObserveAlert(category string, escalated bool) {
	if m == nil {
		return
	}
	m.alertsDetected.WithLabelValues(category).Inc()
	if escalated {
		m.escalations.Inc()
	}
}

func (m *Metrics) IncClassificationError() {
	if m == nil {
		return
	}
	m.classifyErrors.Inc()
}

func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveMitigation(outcome string) {
	if m == nil {
		return
	}
	m.mitigationsSent.WithLabelValues(outcome).Inc()
}
