package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the accounts module.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	AccountsCreated  prometheus.Counter
	AccountsImported prometheus.Counter
	AccountsDeleted  *prometheus.CounterVec
	Exports          *prometheus.CounterVec
	TransferFailures *prometheus.CounterVec
	ImportDuration   prometheus.Histogram
	ExportDuration   prometheus.Histogram
}

var transferBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// New registers the accounts metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics with reg, so tests can use a
// private registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AccountsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "accman_accounts_created_total",
			Help: "Total number of accounts created one at a time",
		}),
		AccountsImported: factory.NewCounter(prometheus.CounterOpts{
			Name: "accman_accounts_imported_total",
			Help: "Total number of accounts created from uploaded files",
		}),
		AccountsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accman_accounts_deleted_total",
			Help: "Total number of accounts deleted, by mode",
		}, []string{"mode"}),
		Exports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accman_exports_total",
			Help: "Total number of export files produced, by format",
		}, []string{"format"}),
		TransferFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accman_transfer_failures_total",
			Help: "Import and export failures, by direction",
		}, []string{"direction"}),
		ImportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "accman_import_duration_seconds",
			Help:    "Duration of account imports including parsing and storage",
			Buckets: transferBuckets,
		}),
		ExportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "accman_export_duration_seconds",
			Help:    "Duration of account exports including loading and writing",
			Buckets: transferBuckets,
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.AccountsCreated.Inc()
}

func (m *Metrics) AddImported(n int) {
	if m == nil {
		return
	}
	m.AccountsImported.Add(float64(n))
}

func (m *Metrics) AddDeleted(mode string, n int) {
	if m == nil {
		return
	}
	m.AccountsDeleted.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) IncrementExport(format string) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(format).Inc()
}

func (m *Metrics) IncrementTransferFailure(direction string) {
	if m == nil {
		return
	}
	m.TransferFailures.WithLabelValues(direction).Inc()
}

// ObserveImport records the duration of an import.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveImport(start time.Time) {
	if m == nil {
		return
	}
	m.ImportDuration.Observe(time.Since(start).Seconds())
}

// ObserveExport records the duration of an export.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveExport(start time.Time) {
	if m == nil {
		return
	}
	m.ExportDuration.Observe(time.Since(start).Seconds())
}
