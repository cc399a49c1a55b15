package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soothe",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "soothe",
			Name:      "bookings_created_total",
			Help:      "Bookings accepted into the assignment pipeline.",
		},
	)

	dispatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "soothe",
			Name:      "dispatches_total",
			Help:      "Therapist requests dispatched.",
		},
	)

	dispatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "soothe",
			Name:      "dispatch_failures_total",
			Help:      "Therapist requests that failed to send.",
		},
	)

	responses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soothe",
			Name:      "responses_total",
			Help:      "Therapist responses by outcome.",
		},
		[]string{"outcome"},
	)

	bookingsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soothe",
			Name:      "bookings_resolved_total",
			Help:      "Bookings that reached a terminal status.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			dispatches,
			dispatchFailures,
			responses,
			bookingsResolved,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingCreated() {
	bookingsCreated.Inc()
}

func IncDispatch() {
	dispatches.Inc()
}

func IncDispatchFailure() {
	dispatchFailures.Inc()
}

// IncResponse records a therapist response outcome
// (confirmed, advanced, declined, stale, already_resolved).
func IncResponse(outcome string) {
	responses.WithLabelValues(outcome).Inc()
}

// IncResolved records a booking reaching a terminal status.
func IncResolved(status string) {
	bookingsResolved.WithLabelValues(status).Inc()
}
