package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "k8s_ai_monitor_cycles_total",
			Help: "Completed poll cycles by cluster and status.",
		},
		[]string{"cluster", "status"},
	)
	cycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "k8s_ai_monitor_cycle_duration_seconds",
			Help:    "Duration of one cluster's poll-detect-reconcile-dispatch cycle.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"cluster"},
	)
	issuesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "k8s_ai_monitor_issues_detected_total",
			Help: "Issues detected per cycle by cluster and kind.",
		},
		[]string{"cluster", "kind"},
	)
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "k8s_ai_monitor_transitions_total",
			Help: "Issue lifecycle transitions by type.",
		},
		[]string{"transition"},
	)
	diagnosisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "k8s_ai_monitor_diagnosis_total",
			Help: "Diagnosis attempts by status.",
		},
		[]string{"status"},
	)
)
