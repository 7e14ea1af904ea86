package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhookUpdatesTotal, webhookAnomaliesTotal) }

var webhookUpdatesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "image_worker_webhook_updates_total",
		Help: "Webhook updates received from the external worker, labeled by kind.",
	},
	[]string{"kind"}, // 'processing', 'done', 'fail', 'unknown_ref'
)

var webhookAnomaliesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "image_worker_webhook_anomalies_total",
		Help: "Webhook updates ignored because they would move a job backward.",
	},
)

func IncWebhook(kind string) { webhookUpdatesTotal.WithLabelValues(norm(kind)).Inc() }

func IncWebhookAnomaly() { webhookAnomaliesTotal.Inc() }
