package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	webhookLabels = []string{"endpoint", "shape", "outcome"}

	WebhooksReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calllog_webhooks_received_total",
			Help: "Total number of webhook deliveries, labeled by endpoint, payload shape and outcome.",
		},
		webhookLabels,
	)

	StoreOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calllog_store_operation_duration_seconds",
			Help:    "Histogram of record store operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"operation", "status"},
	)

	PushMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calllog_push_messages_total",
			Help: "Push channel messages per viewer, labeled by result (delivered, dropped, skipped, out_of_scope).",
		},
		[]string{"result"},
	)

	ActiveViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calllog_push_viewers_active",
		Help: "Current number of registered push channel viewers.",
	})

	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calllog_login_attempts_total",
			Help: "Total number of dashboard login attempts, labeled by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	LoadgenDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calllog_loadgen_deliveries_total",
			Help: "Synthetic webhook deliveries sent by the load generator, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

// IncWebhook records one webhook delivery.
func IncWebhook(endpoint, shape, outcome string) {
	if shape == "" {
		shape = "unknown"
	}
	WebhooksReceivedTotal.WithLabelValues(endpoint, shape, outcome).Inc()
}

// ObserveStoreOperation records the duration of one store call.
func ObserveStoreOperation(operation string, started time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreOperationDurationSeconds.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}

func IncPush(result string) { PushMessagesTotal.WithLabelValues(result).Inc() }

func IncLogin(mode, outcome string) { LoginAttemptsTotal.WithLabelValues(mode, outcome).Inc() }

func IncLoadgen(outcome string) { LoadgenDeliveriesTotal.WithLabelValues(outcome).Inc() }

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
