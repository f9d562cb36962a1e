package monitor

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for a harness batch.
type Metrics struct {
	Registry *prometheus.Registry

	FilesDiscovered    prometheus.Gauge
	RecordsTotal       *prometheus.CounterVec
	InvocationDuration prometheus.Histogram
	InvocationErrors   *prometheus.CounterVec
	ActiveInvocations  prometheus.Gauge
	FilesMoved         *prometheus.CounterVec
	InputSizeBytes     prometheus.Histogram
	BatchDuration      prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		FilesDiscovered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bouncer_harness",
				Name:      "files_discovered",
				Help:      "Number of input files discovered in the corpus.",
			},
		),

		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bouncer_harness",
				Name:      "records_total",
				Help:      "Result records written, by outcome kind and pass/fail class.",
			},
			[]string{"kind", "class"},
		),

		InvocationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "bouncer_harness",
				Name:      "invocation_duration_seconds",
				Help:      "Wall-clock duration of import tool invocations.",
				Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 240, 360, 720},
			},
		),

		InvocationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bouncer_harness",
				Name:      "invocation_errors_total",
				Help:      "Invocations that failed before an exit code was available, by type.",
			},
			[]string{"type"},
		),

		ActiveInvocations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bouncer_harness",
				Name:      "active_invocations",
				Help:      "Number of import tool processes currently running.",
			},
		),

		FilesMoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bouncer_harness",
				Subsystem: "sorter",
				Name:      "files_moved_total",
				Help:      "Files moved by the sorter, by category.",
			},
			[]string{"category"},
		),

		InputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "bouncer_harness",
				Name:      "input_size_bytes",
				Help:      "Size of tested input files in bytes.",
				Buckets:   prometheus.ExponentialBuckets(1024, 8, 9),
			},
		),

		BatchDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bouncer_harness",
				Name:      "batch_duration_seconds",
				Help:      "Wall-clock duration of the last batch.",
			},
		),
	}

	reg.MustRegister(
		m.FilesDiscovered,
		m.RecordsTotal,
		m.InvocationDuration,
		m.InvocationErrors,
		m.ActiveInvocations,
		m.FilesMoved,
		m.InputSizeBytes,
		m.BatchDuration,
	)

	return m
}

// RecordOutcome counts a written record.
func (m *Metrics) RecordOutcome(kind, class string) {
	m.RecordsTotal.WithLabelValues(kind, class).Inc()
}

// RecordInvocation observes a finished tool invocation.
func (m *Metrics) RecordInvocation(durationSec float64) {
	m.InvocationDuration.Observe(durationSec)
}

// RecordError records an invocation error by type.
func (m *Metrics) RecordError(errType string) {
	m.InvocationErrors.WithLabelValues(errType).Inc()
}

// RecordMove records a sorter move into category.
func (m *Metrics) RecordMove(category string) {
	m.FilesMoved.WithLabelValues(category).Inc()
}

// WriteTextfile exports the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
