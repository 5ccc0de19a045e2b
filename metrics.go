package tabcsv

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by an Output. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	RowsWritten   prometheus.Counter
	HeaderPatches prometheus.Counter
	Rewrites      prometheus.Counter
	Warnings      prometheus.Counter
	SchemaFields  prometheus.Gauge
}

// NewMetrics creates the collectors under namespace and registers them with
// reg. A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csv_output",
			Name:      "rows_written_total",
			Help:      "Total number of data rows written",
		}),
		HeaderPatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csv_output",
			Name:      "header_patches_total",
			Help:      "Total number of in-place header rewrites in fixed-header-length mode",
		}),
		Rewrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csv_output",
			Name:      "rewrites_total",
			Help:      "Total number of close-time file rewrites in copy-on-close mode",
		}),
		Warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "csv_output",
			Name:      "warnings_total",
			Help:      "Total number of inconsistent-key warnings emitted",
		}),
		SchemaFields: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "csv_output",
			Name:      "schema_fields",
			Help:      "Number of fields in the committed schema",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.RowsWritten, m.HeaderPatches, m.Rewrites, m.Warnings, m.SchemaFields} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) rowWritten() {
	if m != nil {
		m.RowsWritten.Inc()
	}
}

func (m *Metrics) headerPatched() {
	if m != nil {
		m.HeaderPatches.Inc()
	}
}

func (m *Metrics) rewritten() {
	if m != nil {
		m.Rewrites.Inc()
	}
}

func (m *Metrics) warningEmitted() {
	if m != nil {
		m.Warnings.Inc()
	}
}

func (m *Metrics) schemaSize(n int) {
	if m != nil {
		m.SchemaFields.Set(float64(n))
	}
}
