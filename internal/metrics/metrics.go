// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostel_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hostel_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})

	// AllocationOutcomes counts engine results by operation and reason.
	// Successful calls use reason "OK".
	AllocationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostel_allocation_outcomes_total",
		Help: "Allocation engine outcomes by operation and reason",
	}, []string{"operation", "reason"})

	AllocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hostel_allocation_unit_duration_seconds",
		Help:    "Time spent inside one allocate or vacate unit, lock waits included",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
	}, []string{"operation"})

	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostel_audit_events_dropped_total",
		Help: "Audit events dropped because the dispatch buffer was full",
	})

	AuditFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostel_audit_events_failed_total",
		Help: "Audit events the sink failed to record",
	})
)

const OutcomeOK = "OK"
