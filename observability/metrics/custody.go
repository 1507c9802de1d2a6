package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CustodyMetrics tracks operation outcomes of the custody runtime.
type CustodyMetrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lockWait    *prometheus.HistogramVec
	inflight    prometheus.Gauge
	ticketsSold *prometheus.CounterVec
	tokensMoved *prometheus.CounterVec
}

var (
	custodyOnce     sync.Once
	custodyRegistry *CustodyMetrics
)

// Custody returns the process-wide custody metrics, registering them with the
// default prometheus registry on first use.
func Custody() *CustodyMetrics {
	custodyOnce.Do(func() {
		custodyRegistry = &CustodyMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sktvault_operations_total",
				Help: "Count of executed operations by name, result and error code.",
			}, []string{"op", "result", "code"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "sktvault_operation_duration_seconds",
				Help:    "Time spent executing an operation once its locks are held.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			}, []string{"op"}),
			lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "sktvault_lock_wait_seconds",
				Help:    "Time spent waiting for exclusive account locks.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			}, []string{"op"}),
			inflight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sktvault_operations_inflight",
				Help: "Operations currently holding their locks.",
			}),
			ticketsSold: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sktvault_raffle_tickets_sold_total",
				Help: "Raffle tickets sold by raffle id.",
			}, []string{"raffle"}),
			tokensMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sktvault_vault_tokens_out_total",
				Help: "Base token units paid out of vaults by operation.",
			}, []string{"op"}),
		}
		prometheus.MustRegister(
			custodyRegistry.operations,
			custodyRegistry.duration,
			custodyRegistry.lockWait,
			custodyRegistry.inflight,
			custodyRegistry.ticketsSold,
			custodyRegistry.tokensMoved,
		)
	})
	return custodyRegistry
}

// ObserveOperation records the outcome of an executed operation. code is the
// numeric error code, empty on success.
func (m *CustodyMetrics) ObserveOperation(op string, code string, d time.Duration) {
	if m == nil {
		return
	}
	op = labelOrUnknown(op)
	result := "ok"
	if code != "" {
		result = "error"
	}
	m.operations.WithLabelValues(op, result, code).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveLockWait records how long an operation waited for its locks.
func (m *CustodyMetrics) ObserveLockWait(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(labelOrUnknown(op)).Observe(d.Seconds())
}

// Inflight adjusts the in-flight gauge by delta.
func (m *CustodyMetrics) Inflight(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}

// RecordTicketsSold counts tickets sold for a raffle.
func (m *CustodyMetrics) RecordTicketsSold(raffle string, n uint32) {
	if m == nil || n == 0 {
		return
	}
	m.ticketsSold.WithLabelValues(labelOrUnknown(raffle)).Add(float64(n))
}

// RecordPayout counts base token units leaving a vault.
func (m *CustodyMetrics) RecordPayout(op string, amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.tokensMoved.WithLabelValues(labelOrUnknown(op)).Add(float64(amount))
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
