// Package metrics exposes Prometheus collectors for index and coordinator
// activity. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered against one registerer.
type Metrics struct {
	registered   *prometheus.CounterVec
	pruned       *prometheus.CounterVec
	size         *prometheus.GaugeVec
	scans        *prometheus.CounterVec
	scanDuration prometheus.Histogram
	resolutions  *prometheus.CounterVec
	fileErrors   prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// registered counts entries inserted or overwritten per index.
		// Labels: index (handlers, publishers)
		registered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgxref",
			Subsystem: "index",
			Name:      "registered_total",
			Help:      "Entries registered per index",
		}, []string{"index"}),

		pruned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgxref",
			Subsystem: "index",
			Name:      "pruned_total",
			Help:      "Stale entries removed during registration",
		}, []string{"index"}),

		size: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "msgxref",
			Subsystem: "index",
			Name:      "entries",
			Help:      "Entries currently held per index",
		}, []string{"index"}),

		// scans counts scan runs by result (ok, error, canceled).
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgxref",
			Subsystem: "coordinator",
			Name:      "scans_total",
			Help:      "Scan runs by result",
		}, []string{"result"}),

		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "msgxref",
			Subsystem: "coordinator",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of scan runs",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),

		// resolutions counts on-demand resolutions.
		// Labels: element (handler, publisher), outcome (hit, miss)
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgxref",
			Subsystem: "coordinator",
			Name:      "resolutions_total",
			Help:      "On-demand single element resolutions",
		}, []string{"element", "outcome"}),

		fileErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "msgxref",
			Subsystem: "coordinator",
			Name:      "file_errors_total",
			Help:      "Source files that failed to load during a scan",
		}),
	}
}

// Registered implements index.Observer.
func (m *Metrics) Registered(index string, n int) {
	if m == nil {
		return
	}
	m.registered.WithLabelValues(index).Add(float64(n))
}

// Pruned implements index.Observer.
func (m *Metrics) Pruned(index string, n int) {
	if m == nil {
		return
	}
	m.pruned.WithLabelValues(index).Add(float64(n))
}

// Size implements index.Observer.
func (m *Metrics) Size(index string, n int) {
	if m == nil {
		return
	}
	m.size.WithLabelValues(index).Set(float64(n))
}

// ScanFinished records one scan run.
func (m *Metrics) ScanFinished(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(result).Inc()
	m.scanDuration.Observe(d.Seconds())
}

// Resolved records one on-demand resolution.
func (m *Metrics) Resolved(element string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.resolutions.WithLabelValues(element, outcome).Inc()
}

// FileError records a source file that could not be loaded.
func (m *Metrics) FileError() {
	if m == nil {
		return
	}
	m.fileErrors.Inc()
}
