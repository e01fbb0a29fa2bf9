package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Checkout attempts by outcome.
	CheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Checkout attempts by result.",
		},
		[]string{"result"}, // held | rejected | busy | publisher_unavailable | error
	)

	// Units currently held by live batches.
	HoldsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_holds_active",
			Help: "Units currently held in the reservation ledger.",
		},
	)

	ListingPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_listing_publish_total",
			Help: "Listing channel operations by action and result.",
		},
		[]string{"action", "result"}, // action = publish | update | remove
	)

	ListingPublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_listing_publish_latency_seconds",
			Help:    "Time taken to push a listing change.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	BatchTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_batch_transitions_total",
			Help: "Reservation batch state transitions.",
		},
		[]string{"to"},
	)

	ExpiriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_expiries_total",
			Help: "Expiry callbacks by outcome.",
		},
		[]string{"result"}, // released | already_processed | skipped
	)

	// Catalog and ledger disagreed about a unit.
	InconsistenciesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_inconsistencies_total",
			Help: "Detected catalog/ledger desynchronisations.",
		},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_errors_total",
			Help: "Count of errors by component.",
		},
		[]string{"component", "reason"},
	)

	LastReconcileTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_last_reconcile_timestamp",
			Help: "Timestamp (unix seconds) of the last completed listing reconcile.",
		},
	)
)

// ObserveDuration records the time since start on a histogram or summary.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
	}
}

func IncCheckout(result string) {
	CheckoutsTotal.WithLabelValues(result).Inc()
}

func SetHoldsActive(n int) {
	HoldsActive.Set(float64(n))
}

func IncListingPublish(action, result string) {
	ListingPublishTotal.WithLabelValues(action, result).Inc()
}

func IncTransition(to string) {
	BatchTransitions.WithLabelValues(to).Inc()
}

func IncExpiry(result string) {
	ExpiriesTotal.WithLabelValues(result).Inc()
}

func IncInconsistency() {
	InconsistenciesTotal.Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastReconcile(t time.Time) {
	LastReconcileTimestamp.Set(float64(t.Unix()))
}
