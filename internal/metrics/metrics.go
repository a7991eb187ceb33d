// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_upstream_requests_total",
			Help: "Outbound calls to the panel, daemons and billing provider",
		},
		[]string{"target", "operation", "outcome"},
	)

	provisionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_provision_total",
			Help: "Server provisioning attempts by outcome",
		},
		[]string{"outcome"},
	)

	provisionRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_provision_retries_total",
			Help: "Create requests retried after a transport failure",
		},
	)

	syncItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_sync_items_total",
			Help: "Items processed by background syncs",
		},
		[]string{"sync", "outcome"},
	)
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ObserveUpstream counts one outbound call.
func ObserveUpstream(target, operation string, err error) {
	upstreamRequestsTotal.WithLabelValues(target, operation, outcome(err)).Inc()
}

// ObserveProvision counts a finished provisioning run.
func ObserveProvision(outcome string) {
	provisionTotal.WithLabelValues(outcome).Inc()
}

// ObserveProvisionRetry counts a retried panel create call.
func ObserveProvisionRetry() {
	provisionRetriesTotal.Inc()
}

// ObserveSyncItem counts one item of a sync loop by outcome.
func ObserveSyncItem(sync string, err error) {
	syncItemsTotal.WithLabelValues(sync, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
