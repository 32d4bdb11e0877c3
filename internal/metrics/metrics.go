// Package metrics exposes the Prometheus counters every event-bus
// component increments; it's ambient instrumentation, not something any
// spec component asked for directly, but every service built on this
// module gets it for free via the default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_events_published_total",
			Help: "Total number of events published, by topic.",
		},
		[]string{"topic"},
	)

	PublishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_publish_errors_total",
			Help: "Total number of failed publish attempts, by topic.",
		},
		[]string{"topic"},
	)

	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_events_consumed_total",
			Help: "Total number of events delivered to a handler, by topic and outcome (succeeded/failed). Acknowledgements are not counted.",
		},
		[]string{"topic", "outcome"},
	)

	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventbus_handler_duration_seconds",
			Help:    "Business handler execution time, by topic.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	ActiveSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventbus_active_subscriptions",
			Help: "Number of currently running subscription goroutines, by consumer group.",
		},
		[]string{"service"},
	)
)

func init() {
	prometheus.MustRegister(
		EventsPublishedTotal,
		PublishErrorsTotal,
		EventsConsumedTotal,
		HandlerDuration,
		ActiveSubscriptions,
	)
}

// Handler returns the HTTP handler a service mounts at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed handler execution time for HandlerDuration.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveTopic records the elapsed duration against topic's histogram
// bucket.
func (t *Timer) ObserveTopic(topic string) {
	HandlerDuration.WithLabelValues(topic).Observe(time.Since(t.start).Seconds())
}
