package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	MessagesSent          *prometheus.CounterVec
	MessagesFailed        *prometheus.CounterVec
	SendLatency           *prometheus.HistogramVec
	QueueDepthAlert       prometheus.Gauge
	QueueDepthTimed       prometheus.Gauge
	CasePropertyFallbacks prometheus.Counter
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total number of schedule events successfully delivered to the gateway.",
		}, []string{"content_type"}),

		MessagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_failed_total",
			Help: "Total number of gateway send failures (the sweep retries them).",
		}, []string{"content_type"}),

		SendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "message_send_seconds",
			Help:    "End-to-end latency from dequeue to gateway ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"content_type"}),

		QueueDepthAlert: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_alert",
			Help: "Current number of items in the alert-tier queue.",
		}),
		QueueDepthTimed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_timed",
			Help: "Current number of items in the timed-tier queue.",
		}),

		CasePropertyFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "case_property_time_fallbacks_total",
			Help: "Times a case-property send time was missing or unparseable and noon was used.",
		}),
	}

	reg.MustRegister(
		m.MessagesSent,
		m.MessagesFailed,
		m.SendLatency,
		m.QueueDepthAlert,
		m.QueueDepthTimed,
		m.CasePropertyFallbacks,
	)

	return m
}

// WorkerHooks returns the metric callback functions expected by worker.MetricHooks.
// Centralises the prometheus observation calls so worker.go stays import-free.
func (m *Metrics) WorkerHooks() (
	onSent func(scheduling.ContentType, time.Duration),
	onFailed func(scheduling.ContentType),
) {
	onSent = func(ct scheduling.ContentType, latency time.Duration) {
		m.MessagesSent.WithLabelValues(string(ct)).Inc()
		m.SendLatency.WithLabelValues(string(ct)).Observe(latency.Seconds())
	}
	onFailed = func(ct scheduling.ContentType) {
		m.MessagesFailed.WithLabelValues(string(ct)).Inc()
	}
	return
}
