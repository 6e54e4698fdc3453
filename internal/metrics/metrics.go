package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// messagesTotal counts per-recipient send outcomes.
	// Labels:
	// - result: delivered | failed
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mail",
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Per-recipient send outcomes by result.",
		},
		[]string{"result"},
	)

	// windowsTotal counts dispatched windows.
	windowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mail",
			Subsystem: "dispatch",
			Name:      "windows_total",
			Help:      "Number of dispatched windows.",
		},
	)

	// windowDuration observes how long a window takes to settle.
	windowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mail",
			Subsystem: "dispatch",
			Name:      "window_duration_seconds",
			Help:      "Time for all sends of one window to settle.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// notificationsTotal counts milestone notifications.
	// Labels:
	// - result: success | failure
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mail",
			Subsystem: "dispatch",
			Name:      "notifications_total",
			Help:      "Milestone notifications by result.",
		},
		[]string{"result"},
	)
)

// AddMessages adds window outcome counts.
func AddMessages(delivered, failed int) {
	if delivered > 0 {
		messagesTotal.WithLabelValues("delivered").Add(float64(delivered))
	}
	if failed > 0 {
		messagesTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

// ObserveWindow records one settled window.
func ObserveWindow(d time.Duration) {
	windowsTotal.Inc()
	windowDuration.Observe(d.Seconds())
}

// IncNotification increments the notification counter.
func IncNotification(result string) {
	if result == "" {
		result = "unknown"
	}
	notificationsTotal.WithLabelValues(result).Inc()
}
