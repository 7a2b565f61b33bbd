// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fulfillment_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_checkouts_total",
			Help: "Checkout attempts by outcome",
		},
		[]string{"result"},
	)

	stockAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_stock_adjustments_total",
			Help: "Inventory ledger adjustments by movement type and outcome",
		},
		[]string{"type", "result"},
	)

	refundTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_refund_transitions_total",
			Help: "Refund state transitions by target status",
		},
		[]string{"status"},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_events_published_total",
			Help: "Domain events handed to the publisher by outcome",
		},
		[]string{"event", "result"},
	)
)

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordCheckout counts a checkout attempt. result is a short reason such as
// "success" or an error kind.
func RecordCheckout(result string) {
	checkouts.WithLabelValues(result).Inc()
}

func RecordStockAdjustment(movementType string, success bool) {
	stockAdjustments.WithLabelValues(movementType, outcome(success)).Inc()
}

func RecordRefundTransition(status string) {
	refundTransitions.WithLabelValues(status).Inc()
}

func RecordEventPublished(event string, success bool) {
	eventsPublished.WithLabelValues(event, outcome(success)).Inc()
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
