package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for monitoring the tracking core.
var (
	TransitionsAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_transitions_applied_total",
			Help: "Total number of committed delivery status transitions",
		},
	)

	TransitionsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_transitions_rejected_total",
			Help: "Total number of rejected transition attempts (invalid, stale, or lost races)",
		},
	)

	PingsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rider_pings_total",
			Help: "Total number of rider location pings received",
		},
	)

	PingsDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rider_pings_duplicate_total",
			Help: "Total number of pings dropped as idempotency-key duplicates",
		},
	)

	PingsInvalidTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rider_pings_invalid_total",
			Help: "Total number of pings rejected for malformed coordinates",
		},
	)

	ProximityTriggersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proximity_triggers_total",
			Help: "Total number of proximity-derived transition attempts",
		},
	)

	NotificationsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Total number of notification records created",
		},
	)

	NotificationsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications delivered to a channel sender",
		},
	)

	NotificationRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_retries_total",
			Help: "Total number of notification send attempts scheduled for retry",
		},
	)

	NotificationsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of notifications that exhausted their retries",
		},
	)

	NotificationSendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_send_duration_seconds",
			Help:    "Duration of channel sender attempts",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers all Prometheus metrics.
func Register() {
	prometheus.MustRegister(TransitionsAppliedTotal)
	prometheus.MustRegister(TransitionsRejectedTotal)
	prometheus.MustRegister(PingsTotal)
	prometheus.MustRegister(PingsDuplicateTotal)
	prometheus.MustRegister(PingsInvalidTotal)
	prometheus.MustRegister(ProximityTriggersTotal)
	prometheus.MustRegister(NotificationsEnqueuedTotal)
	prometheus.MustRegister(NotificationsSentTotal)
	prometheus.MustRegister(NotificationRetriesTotal)
	prometheus.MustRegister(NotificationsFailedTotal)
	prometheus.MustRegister(NotificationSendDuration)
}
