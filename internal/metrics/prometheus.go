package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all prometheus metrics of the booking service.
type Metrics struct {
	registry *prometheus.Registry

	BookingsCreated       prometheus.Counter
	StatusTransitions     *prometheus.CounterVec
	PaymentInitiations    *prometheus.CounterVec
	CallbacksDeduplicated prometheus.Counter
	CapacityRejections    *prometheus.CounterVec
	PromoOverflow         prometheus.Counter
	ReadFallbacks         *prometheus.CounterVec
	ErrorsCount           *prometheus.CounterVec
	HTTPDuration          *prometheus.HistogramVec
	GatewayDuration       prometheus.Histogram
}

// NewMetrics registers the service metrics on a private registry so tests can
// build as many instances as they like.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BookingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "The total number of created bookings",
		}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_transitions_total",
			Help:      "Applied payment status transitions",
		}, []string{"status"}),
		PaymentInitiations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_initiations_total",
			Help:      "Hosted checkout sessions requested, by result",
		}, []string{"result"}),
		CallbacksDeduplicated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callbacks_deduplicated_total",
			Help:      "Payment callbacks dropped as replays",
		}),
		CapacityRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_rejections_total",
			Help:      "Requests rejected for lack of capacity, by stage",
		}, []string{"stage"}),
		PromoOverflow: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_overflow_total",
			Help:      "Discounted bookings paid after the promotion ran out of order numbers",
		}),
		ReadFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_fallbacks_total",
			Help:      "Display reads answered with the unavailable fallback",
		}, []string{"check"}),
		ErrorsCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "The total number of errors",
		}, []string{"operation"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		GatewayDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_gateway_request_seconds",
			Help:      "Time taken by payment gateway calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
