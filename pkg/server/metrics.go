package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics registered on the default registry.
var (
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dynr53_updates_total",
		Help: "Total number of update requests by result.",
	}, []string{"result"})

	updateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dynr53_update_duration_seconds",
		Help:    "Duration of update request handling in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	providerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dynr53_provider_errors_total",
		Help: "Total number of DNS provider and secret store failures by kind.",
	}, []string{"kind"})
)

// Metric result label values.
const (
	resultGood       = "good"
	resultNoChange   = "nochg"
	resultBadAuth    = "badauth"
	resultBadRequest = "badrequest"
	resultError      = "error"
)
