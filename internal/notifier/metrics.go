package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	alertSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "k8s_ai_monitor_alert_send_total",
			Help: "Total alert send attempts by sender and status.",
		},
		[]string{"sender", "status"},
	)
	alertDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "k8s_ai_monitor_alert_dropped_total",
			Help: "Alerts dropped before dispatch, by reason.",
		},
		[]string{"reason"},
	)
	slackSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "k8s_ai_monitor_slack_send_duration_seconds",
			Help:    "Duration of Slack chat.postMessage requests.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
)
