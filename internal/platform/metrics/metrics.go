// Package metrics owns the Prometheus collectors for the sync pipeline.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "manager_sync"

type Metrics struct {
	gatherer prometheus.Gatherer

	partnerRequests *prometheus.CounterVec
	partnerDuration *prometheus.HistogramVec
	partnerRetries  *prometheus.CounterVec
	breakerState    prometheus.Gauge
	budgetDecisions *prometheus.CounterVec
	syncRuns        *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	rowsUpserted    *prometheus.CounterVec
	failedBatches   *prometheus.CounterVec
	skippedPages    prometheus.Counter
	eventsPublished *prometheus.CounterVec
}

// New registers every collector on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: gatherer,
		partnerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partner_api_requests_total",
			Help:      "Partner API request attempts by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		partnerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "partner_api_request_duration_seconds",
			Help:      "Partner API request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		partnerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partner_api_retries_total",
			Help:      "Partner API retries by reason.",
		}, []string{"reason"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partner_api_circuit_open",
			Help:      "1 while the partner API circuit breaker is open or half open.",
		}),
		budgetDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_budget_decisions_total",
			Help:      "Daily request budget decisions.",
		}, []string{"decision"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Game sync runs by trigger and final status.",
		}, []string{"trigger", "status"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_run_duration_seconds",
			Help:      "Duration of a full game sync.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		rowsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_rows_upserted_total",
			Help:      "Rows written by the sync pipeline.",
		}, []string{"kind"}),
		failedBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failed_batches_total",
			Help:      "Upsert batches that failed and were skipped.",
		}, []string{"kind"}),
		skippedPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partner_api_skipped_pages_total",
			Help:      "Pages that failed during a paginated fetch and were skipped.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_events_published_total",
			Help:      "Sync events handed to the publisher.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.partnerRequests,
		m.partnerDuration,
		m.partnerRetries,
		m.breakerState,
		m.budgetDecisions,
		m.syncRuns,
		m.syncDuration,
		m.rowsUpserted,
		m.failedBatches,
		m.skippedPages,
		m.eventsPublished,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePartnerRequest(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.partnerRequests.WithLabelValues(endpoint, outcome).Inc()
	m.partnerDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) IncPartnerRetry(reason string) {
	if m == nil {
		return
	}
	m.partnerRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.breakerState.Set(1)
		return
	}
	m.breakerState.Set(0)
}

// Budget decision labels.
const (
	BudgetAllowed  = "allowed"
	BudgetDenied   = "denied"
	BudgetFailOpen = "fail_open"
)

func (m *Metrics) IncBudgetDecision(decision string) {
	if m == nil {
		return
	}
	m.budgetDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveSyncRun(trigger, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(trigger, status).Inc()
	m.syncDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) AddRowsUpserted(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsUpserted.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncFailedBatch(kind string) {
	if m == nil {
		return
	}
	m.failedBatches.WithLabelValues(kind).Inc()
}

func (m *Metrics) AddSkippedPages(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skippedPages.Add(float64(n))
}

func (m *Metrics) IncEventPublished(result string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(result).Inc()
}
