// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bookingOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kart_booking_operations_total",
		Help: "Booking engine operations by outcome",
	}, []string{"operation", "outcome"})

	ledgerMovements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kart_ledger_movements_total",
		Help: "Number of balance debits and credits",
	}, []string{"direction"})

	ledgerAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kart_ledger_amount_total",
		Help: "Sum of debited and credited balance units",
	}, []string{"direction"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kart_http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kart_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kart_booking_events_published_total",
		Help: "Booking events handed to the broker by result",
	}, []string{"result"})
)

// Recorder feeds booking engine outcomes into the package collectors.
type Recorder struct{}

func (Recorder) ObserveOperation(op, outcome string) {
	bookingOperations.WithLabelValues(op, outcome).Inc()
}

func (Recorder) ObserveLedger(direction string, amount float64) {
	ledgerMovements.WithLabelValues(direction).Inc()
	ledgerAmount.WithLabelValues(direction).Add(amount)
}

// ObserveHTTP records one served request.
func ObserveHTTP(route, method, status string, seconds float64) {
	httpRequests.WithLabelValues(route, method, status).Inc()
	httpDuration.WithLabelValues(route, method).Observe(seconds)
}

// ObservePublish counts a publish attempt; result is "ok" or "error".
func ObservePublish(result string) {
	eventsPublished.WithLabelValues(result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler { return promhttp.Handler() }
