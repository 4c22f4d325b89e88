package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabricbridge_requests_total",
			Help: "Total number of HTTP attempts by method and status code.",
		},
		[]string{"method", "code"}, // code is "error" when no response was received
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabricbridge_retries_total",
			Help: "Total number of request retries by reason.",
		},
		[]string{"reason"}, // http_5xx, timeout, network
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabricbridge_operations_total",
			Help: "Total number of long-running operations by outcome.",
		},
		[]string{"outcome"}, // succeeded, failed, unexpected_status, timed_out, untracked
	)

	OperationPollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fabricbridge_operation_polls_total",
			Help: "Total number of operation status checks.",
		},
	)

	OperationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fabricbridge_operation_duration_seconds",
			Help:    "Time from operation acceptance to a terminal state.",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)
)

// MustRegister registers every collector of this package with reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(RequestsTotal, RetriesTotal, OperationsTotal, OperationPollsTotal, OperationDuration)
}

// RecordAttempt counts one HTTP attempt. A zero code means the attempt failed
// before a response arrived.
func RecordAttempt(method string, code int) {
	label := "error"
	if code != 0 {
		label = strconv.Itoa(code)
	}
	RequestsTotal.WithLabelValues(method, label).Inc()
}

// RecordRetry counts one retry, labeled by what triggered it.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordPoll counts one operation status check.
func RecordPoll() {
	OperationPollsTotal.Inc()
}

// RecordOperation counts a finished operation and, unless it was never
// tracked, observes how long it took.
func RecordOperation(outcome string, elapsed time.Duration) {
	OperationsTotal.WithLabelValues(outcome).Inc()
	if outcome != "untracked" {
		OperationDuration.Observe(elapsed.Seconds())
	}
}
