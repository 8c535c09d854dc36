package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "incidentconsole"

var (
	notificationsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "published_total",
		Help:      "Lifecycle events handed to publishers, by outcome",
	}, []string{"publisher", "outcome"})

	notificationPublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "publish_duration_seconds",
		Help:      "Latency of a single publish call",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2.5, 8),
	}, []string{"publisher"})
)

// observePublish records the outcome and latency of one publish call.
func observePublish(publisher string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	notificationsPublished.WithLabelValues(publisher, outcome).Inc()
	notificationPublishDuration.WithLabelValues(publisher).Observe(time.Since(started).Seconds())
}
