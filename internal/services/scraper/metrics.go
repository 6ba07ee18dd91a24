package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the scraper collectors. A nil *Metrics records nothing.
type Metrics struct {
	cycles       *prometheus.CounterVec
	attempts     *prometheus.CounterVec
	uploads      *prometheus.CounterVec
	mirrorErrors *prometheus.CounterVec
	cycleSeconds prometheus.Histogram
	agents       prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "road", Subsystem: "scraper", Name: "cycles_total",
			Help: "Polling cycles by result.",
		}, []string{"result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "road", Subsystem: "scraper", Name: "fetch_attempts_total",
			Help: "Sensor fetch attempts by outcome class.",
		}, []string{"class"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "road", Subsystem: "scraper", Name: "uploads_total",
			Help: "Sink uploads by outcome class.",
		}, []string{"class"}),
		mirrorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "road", Subsystem: "scraper", Name: "mirror_errors_total",
			Help: "Failed mirror writes.",
		}, []string{"mirror"}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "road", Subsystem: "scraper", Name: "cycle_duration_seconds",
			Help:    "Time from fetch start to end of upload.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "road", Subsystem: "scraper", Name: "agents",
			Help: "Running sensor agents.",
		}),
	}
	reg.MustRegister(m.cycles, m.attempts, m.uploads, m.mirrorErrors, m.cycleSeconds, m.agents)
	return m
}

func (m *Metrics) cycle(result string, seconds float64) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleSeconds.Observe(seconds)
}

func (m *Metrics) attempt(class string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(class).Inc()
}

func (m *Metrics) upload(class string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(class).Inc()
}

func (m *Metrics) mirrorFailed(name string) {
	if m == nil {
		return
	}
	m.mirrorErrors.WithLabelValues(name).Inc()
}

func (m *Metrics) agentStarted() {
	if m != nil {
		m.agents.Inc()
	}
}

func (m *Metrics) agentStopped() {
	if m != nil {
		m.agents.Dec()
	}
}
