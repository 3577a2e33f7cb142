package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "inventory"

// Metrics groups the counters recorded by the grant engine and the
// reconciler.
type Metrics struct {
	Grants               *prometheus.CounterVec
	PublishFailures      prometheus.Counter
	ConcurrencyRetries   prometheus.Counter
	ReconcileItems       *prometheus.CounterVec
	ReconcileSkipped     *prometheus.CounterVec
	ReconcileDuration    prometheus.Histogram
	DeadLetteredMessages *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grants_total",
			Help:      "Grant commands consumed, by result.",
		}, []string{"result"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Grant commands whose events could not be published.",
		}),
		ConcurrencyRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grant_concurrency_retries_total",
			Help:      "Read-modify-write retries caused by concurrent modification.",
		}),
		ReconcileItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reconcile_items_total",
			Help:      "Catalog projection writes performed by reconciliation, by operation.",
		}, []string{"op"}),
		ReconcileSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reconcile_skipped_total",
			Help:      "Reconciliation passes skipped, by reason.",
		}, []string{"reason"}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_reconcile_duration_seconds",
			Help:      "Duration of completed reconciliation passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		DeadLetteredMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_lettered_messages_total",
			Help:      "Inbound grant messages handed to the dead-letter path, by transport.",
		}, []string{"transport"}),
	}

	reg.MustRegister(
		m.Grants,
		m.PublishFailures,
		m.ConcurrencyRetries,
		m.ReconcileItems,
		m.ReconcileSkipped,
		m.ReconcileDuration,
		m.DeadLetteredMessages,
	)
	return m
}
