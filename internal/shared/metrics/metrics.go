package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all engine metrics. A nil *Metrics disables recording, so
// components can treat metrics as optional without guarding every call site.
type Metrics struct {
	// Decision metrics
	DecisionsTotal *prometheus.CounterVec

	// Accounting metrics
	JobsAccountedTotal  *prometheus.CounterVec
	PagesAccountedTotal *prometheus.CounterVec
	RefundsTotal        prometheus.Counter

	// Cache metrics
	CacheHitsTotal    *prometheus.CounterVec
	CacheMissesTotal  *prometheus.CounterVec
	CacheFlushesTotal *prometheus.CounterVec

	// Backend metrics
	BackendRetriesTotal prometheus.Counter
	BackendErrorsTotal  *prometheus.CounterVec
}

// New creates a new Metrics instance registered on the default registry.
func New(namespace string) *Metrics {
	return NewWith(prometheus.DefaultRegisterer, namespace)
}

// NewWith creates a new Metrics instance registered on reg. Tests pass a
// private registry to avoid duplicate registration.
func NewWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "printquota"
	}
	factory := promauto.With(reg)

	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quota",
				Name:      "decisions_total",
				Help:      "Total number of quota decisions by result",
			},
			[]string{"result"},
		),
		JobsAccountedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "accounting",
				Name:      "jobs_total",
				Help:      "Total number of jobs accounted by printer",
			},
			[]string{"printer"},
		),
		PagesAccountedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "accounting",
				Name:      "pages_total",
				Help:      "Total number of pages accounted by printer",
			},
			[]string{"printer"},
		),
		RefundsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "accounting",
				Name:      "refunds_total",
				Help:      "Total number of refunded jobs",
			},
		),
		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits by entity kind",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses by entity kind",
			},
			[]string{"kind"},
		),
		CacheFlushesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "flushes_total",
				Help:      "Total number of cache invalidations by entity kind",
			},
			[]string{"kind"},
		),
		BackendRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "retries_total",
				Help:      "Total number of retried backend operations",
			},
		),
		BackendErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "errors_total",
				Help:      "Total number of backend errors by operation",
			},
			[]string{"op"},
		),
	}
}

// RecordDecision increments the decision counter for a result.
func (m *Metrics) RecordDecision(result string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(result).Inc()
}

// RecordJob records an accounted job and its page count.
func (m *Metrics) RecordJob(printer string, pages int) {
	if m == nil {
		return
	}
	m.JobsAccountedTotal.WithLabelValues(printer).Inc()
	m.PagesAccountedTotal.WithLabelValues(printer).Add(float64(pages))
}

// RecordRefund records a refunded job.
func (m *Metrics) RecordRefund() {
	if m == nil {
		return
	}
	m.RefundsTotal.Inc()
}

// RecordCacheHit records a cache hit for an entity kind.
func (m *Metrics) RecordCacheHit(kind string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss for an entity kind.
func (m *Metrics) RecordCacheMiss(kind string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(kind).Inc()
}

// RecordCacheFlush records a cache invalidation for an entity kind.
func (m *Metrics) RecordCacheFlush(kind string) {
	if m == nil {
		return
	}
	m.CacheFlushesTotal.WithLabelValues(kind).Inc()
}

// RecordBackendRetry records a retried backend operation.
func (m *Metrics) RecordBackendRetry() {
	if m == nil {
		return
	}
	m.BackendRetriesTotal.Inc()
}

// RecordBackendError records a failed backend operation.
func (m *Metrics) RecordBackendError(op string) {
	if m == nil {
		return
	}
	m.BackendErrorsTotal.WithLabelValues(op).Inc()
}
