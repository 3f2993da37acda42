// Package telemetry exposes the gateway's Prometheus metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metric names, without namespace.
const (
	MetricDispatchTotal       = "dispatch_requests_total"
	MetricCatalogReloadsTotal = "catalog_reloads_total"
	MetricCatalogChangesTotal = "catalog_changes_total"
	MetricCatalogArticles     = "catalog_articles"
	MetricERPCallSeconds      = "erp_call_duration_seconds"
)

// Outcome label values
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the gateway collectors on a private registry.
// A nil *Metrics is valid and records nothing.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Metrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	reloadsTotal     *prometheus.CounterVec
	changesTotal     *prometheus.CounterVec
	catalogArticles  *prometheus.GaugeVec
	erpCallDurations *prometheus.HistogramVec
}

// NewMetrics creates the collectors under namespace and registers them,
// together with the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricDispatchTotal,
			Help:      "Dispatched device calls by module, function and result class.",
		},
		[]string{"module", "function", "status"},
	)
	m.reloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricCatalogReloadsTotal,
			Help:      "Weighed-article catalog reloads by environment and outcome.",
		},
		[]string{"env", "trigger", "outcome"},
	)
	m.changesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricCatalogChangesTotal,
			Help:      "Reloads that produced a new catalog digest.",
		},
		[]string{"env"},
	)
	m.catalogArticles = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricCatalogArticles,
			Help:      "Number of articles in the cached catalog.",
		},
		[]string{"env"},
	)
	m.erpCallDurations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricERPCallSeconds,
			Help:      "Duration of outbound ERP calls in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "outcome"},
	)

	m.registry.MustRegister(
		m.dispatchTotal,
		m.reloadsTotal,
		m.changesTotal,
		m.catalogArticles,
		m.erpCallDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordDispatch counts one dispatched call. status is "ok" or the error class.
func (m *Metrics) RecordDispatch(module, function, status string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(module, function, status).Inc()
}

// RecordReload counts one catalog reload attempt.
func (m *Metrics) RecordReload(env, trigger string, err error) {
	if m == nil {
		return
	}
	m.reloadsTotal.WithLabelValues(env, trigger, outcome(err)).Inc()
}

// RecordCatalog records the size of a freshly installed catalog and whether
// its digest changed.
func (m *Metrics) RecordCatalog(env string, articles int, changed bool) {
	if m == nil {
		return
	}
	m.catalogArticles.WithLabelValues(env).Set(float64(articles))
	if changed {
		m.changesTotal.WithLabelValues(env).Inc()
	}
}

// ObserveERPCall records the duration of one outbound ERP call.
func (m *Metrics) ObserveERPCall(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.erpCallDurations.WithLabelValues(operation, outcome(err)).Observe(time.Since(started).Seconds())
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
