package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checkout holds the collectors of the checkout flow. A nil *Checkout is
// valid and records nothing.
type Checkout struct {
	PollAttempts *prometheus.CounterVec
	Reservations *prometheus.CounterVec
	Redemptions  *prometheus.CounterVec
	Requests     *prometheus.CounterVec
	LatencyMS    *prometheus.HistogramVec
}

func NewCheckout(reg prometheus.Registerer, service string) *Checkout {
	m := &Checkout{
		PollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Subsystem: service,
			Name:      "payment_poll_attempts_total",
			Help:      "Order status polls issued while waiting for payment.",
		}, []string{"outcome"}),
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Subsystem: service,
			Name:      "reservations_total",
			Help:      "Order reservations attempted.",
		}, []string{"result"}),
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Subsystem: service,
			Name:      "cashback_redemptions_total",
			Help:      "Post-payment cashback redemptions attempted.",
		}, []string{"result"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkout",
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 30000},
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(m.PollAttempts, m.Reservations, m.Redemptions, m.Requests, m.LatencyMS)
	}
	return m
}

func (m *Checkout) Poll(outcome string) {
	if m == nil {
		return
	}
	m.PollAttempts.WithLabelValues(outcome).Inc()
}

func (m *Checkout) Reservation(result string) {
	if m == nil {
		return
	}
	m.Reservations.WithLabelValues(result).Inc()
}

func (m *Checkout) Redemption(result string) {
	if m == nil {
		return
	}
	m.Redemptions.WithLabelValues(result).Inc()
}

func (m *Checkout) Request(route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(float64(took.Milliseconds()))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
