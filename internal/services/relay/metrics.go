package relay

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName groups relay metrics on the Pushgateway.
const JobName = "road_conditions_relay"

// Metrics describes one relay run. They are pushed once the run ends since
// the process does not live long enough to be scraped.
type Metrics struct {
	reg           *prometheus.Registry
	rowsPulled    prometheus.Gauge
	rowsDropped   prometheus.Gauge
	rowsPushed    prometheus.Gauge
	chunkFailures prometheus.Gauge
	duration      prometheus.Gauge
	lastSuccess   prometheus.Gauge
	runInfo       *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "road", Subsystem: "relay", Name: name, Help: help,
		})
	}
	m := &Metrics{
		reg:           prometheus.NewRegistry(),
		rowsPulled:    gauge("rows_pulled", "Rows read from the sink in the last run."),
		rowsDropped:   gauge("rows_duplicate", "Repeated rows skipped in the last run."),
		rowsPushed:    gauge("rows_pushed", "Rows upserted to the portal in the last run."),
		chunkFailures: gauge("chunk_failures", "Chunks the portal rejected in the last run."),
		duration:      gauge("duration_seconds", "Wall time of the last run."),
		lastSuccess:   gauge("last_success_timestamp_seconds", "Unix time of the last run without failures."),
		runInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "road", Subsystem: "relay", Name: "last_run_info",
			Help: "Identifier of the last run.",
		}, []string{"run_id"}),
	}
	m.reg.MustRegister(m.rowsPulled, m.rowsDropped, m.rowsPushed, m.chunkFailures,
		m.duration, m.lastSuccess, m.runInfo)
	return m
}

// Gatherer exposes the run registry, mostly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }

func (m *Metrics) observe(s Summary, failed bool) {
	if m == nil {
		return
	}
	m.rowsPulled.Set(float64(s.Pulled))
	m.rowsDropped.Set(float64(s.Duplicates))
	m.rowsPushed.Set(float64(s.Pushed))
	m.chunkFailures.Set(float64(s.FailedChunks))
	m.duration.Set(s.Duration.Seconds())
	m.runInfo.Reset()
	m.runInfo.WithLabelValues(s.RunID).Set(1)
	if !failed {
		m.lastSuccess.SetToCurrentTime()
	}
}

// Push replaces the relay group on the Pushgateway at url.
func (m *Metrics) Push(ctx context.Context, url string) error {
	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "relay"
	}
	return push.New(url, JobName).
		Gatherer(m.reg).
		Grouping("instance", instance).
		PushContext(ctx)
}
