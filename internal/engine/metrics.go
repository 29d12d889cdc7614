package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation label values.
const (
	OpBackup  = "backup"
	OpRestore = "restore"
)

// Outcome label values of docsnap_documents_total.
const (
	OutcomeWritten = "written"
	OutcomeMissing = "missing"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics holds the collectors a run updates. Backups run as batch jobs, so
// the registry is written to a node_exporter textfile rather than served.
type Metrics struct {
	registry *prometheus.Registry

	documents   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	duration    *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics registers the docsnap collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		documents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docsnap_documents_total",
			Help: "Documents processed by operation and outcome",
		}, []string{"operation", "outcome"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docsnap_dropped_fields_total",
			Help: "Fields dropped because their type could not be encoded or decoded",
		}, []string{"operation"}),
		duration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docsnap_last_run_duration_seconds",
			Help: "Duration of the most recent run",
		}, []string{"operation"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docsnap_last_success_timestamp_seconds",
			Help: "Unix time of the most recent successful run",
		}, []string{"operation"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) document(op, outcome string) {
	m.documents.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) droppedFields(op string, n int) {
	if n > 0 {
		m.dropped.WithLabelValues(op).Add(float64(n))
	}
}

func (m *Metrics) finished(op string, took time.Duration, at time.Time, err error) {
	m.duration.WithLabelValues(op).Set(took.Seconds())
	if err == nil {
		m.lastSuccess.WithLabelValues(op).Set(float64(at.Unix()))
	}
}
