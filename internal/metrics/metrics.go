// Package metrics holds the Prometheus collectors for scans and CRM calls on
// a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mailcrm"

// Scan outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeNoMessage = "no_message"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	scansTotal      *prometheus.CounterVec
	productsCreated prometheus.Counter
	rowsSkipped     prometheus.Counter
	crmRequests     *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	lastSuccess     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Trigger invocations by outcome.",
		}, []string{"outcome"}),
		productsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_created_total",
			Help:      "Products created in the CRM.",
		}),
		rowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Spreadsheet rows dropped for a non-numeric key.",
		}),
		crmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crm_requests_total",
			Help:      "CRM HTTP attempts by outcome.",
		}, []string{"outcome"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of one trigger invocation.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful invocation.",
		}),
	}

	m.registry.MustRegister(
		m.scansTotal,
		m.productsCreated,
		m.rowsSkipped,
		m.crmRequests,
		m.scanDuration,
		m.lastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveScan(outcome string, created, skipped int, elapsed time.Duration) {
	m.scansTotal.WithLabelValues(outcome).Inc()
	m.productsCreated.Add(float64(created))
	m.rowsSkipped.Add(float64(skipped))
	m.scanDuration.Observe(elapsed.Seconds())
	if outcome != OutcomeFailed {
		m.lastSuccess.SetToCurrentTime()
	}
}

// ObserveCRMRequest satisfies crm.Observer.
func (m *Metrics) ObserveCRMRequest(outcome string) {
	m.crmRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
