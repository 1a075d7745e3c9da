package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/event-admin-services/common/gate"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_gateway_http_requests_total",
			Help: "Handled HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admin_gateway_http_request_duration_seconds",
			Help:    "Latency of handled HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	backendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_gateway_backend_calls_total",
			Help: "Outbound calls to the booking backend",
		},
		[]string{"method", "status_class"},
	)

	backendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admin_gateway_backend_call_duration_seconds",
			Help:    "Latency of backend calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"method"},
	)

	tokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_gateway_token_refreshes_total",
			Help: "Access token refresh attempts",
		},
		[]string{"result"},
	)

	gateEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_gateway_verification_events_total",
			Help: "Verification gate transitions",
		},
		[]string{"kind", "event"},
	)

	checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_gateway_boost_checkouts_total",
			Help: "Boost checkout outcomes",
		},
		[]string{"result"},
	)
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// TrackRequest records one handled HTTP request
func TrackRequest(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// TrackBackendCall records one outbound backend call; status 0 means transport failure.
func TrackBackendCall(method string, status int, d time.Duration) {
	backendCalls.WithLabelValues(method, statusClass(status)).Inc()
	backendDuration.WithLabelValues(method).Observe(d.Seconds())
}

// TrackRefresh records a refresh outcome ("ok", "failed")
func TrackRefresh(result string) {
	tokenRefreshes.WithLabelValues(result).Inc()
}

// TrackCheckout records a checkout outcome ("succeeded", "requires_action", "failed")
func TrackCheckout(result string) {
	checkouts.WithLabelValues(result).Inc()
}

// GateObserver counts gate transitions
func GateObserver() gate.Observer {
	return gate.ObserverFunc(func(e gate.Event) {
		gateEvents.WithLabelValues(string(e.Kind), e.Name).Inc()
	})
}

// RegisterGauge exposes a value sampled at scrape time (open flows, sessions with state)
func RegisterGauge(name, help string, fn func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
}

func statusClass(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
