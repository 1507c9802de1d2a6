package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks HTTP traffic per route group (custody, exchange,
// raffle, query) and the requests turned away before reaching a handler.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	rejected *prometheus.CounterVec
}

var (
	gatewayOnce     sync.Once
	gatewayRegistry *GatewayMetrics
)

// Gateway returns the process-wide gateway metrics.
func Gateway() *GatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sktvault_gateway_requests_total",
				Help: "HTTP requests by group, route and status class.",
			}, []string{"group", "route", "class"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "sktvault_gateway_request_seconds",
				Help:    "HTTP handler latency by group.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
			}, []string{"group"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sktvault_gateway_rejected_total",
				Help: "Requests refused by rate limits, replay protection or caller signatures.",
			}, []string{"group", "reason"}),
		}
		prometheus.MustRegister(gatewayRegistry.requests, gatewayRegistry.latency, gatewayRegistry.rejected)
	})
	return gatewayRegistry
}

// ObserveRequest records a served request. route is the matched pattern,
// never the raw path, so vault and raffle ids do not explode cardinality.
func (m *GatewayMetrics) ObserveRequest(group, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	group = labelOrUnknown(group)
	m.requests.WithLabelValues(group, labelOrUnknown(route), statusClass(status)).Inc()
	m.latency.WithLabelValues(group).Observe(d.Seconds())
}

// Reject counts a refused request. Reasons: rate_limit, replay, signature.
func (m *GatewayMetrics) Reject(group, reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(labelOrUnknown(group), labelOrUnknown(reason)).Inc()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
