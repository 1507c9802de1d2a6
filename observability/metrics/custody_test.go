package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveOperationLabelsResult(t *testing.T) {
	m := Custody()
	m.ObserveOperation("metrics_test_op", "", 3*time.Millisecond)
	m.ObserveOperation("metrics_test_op", "6003", time.Millisecond)
	m.ObserveOperation("metrics_test_op", "6003", time.Millisecond)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("metrics_test_op", "ok", "")); got != 1 {
		t.Fatalf("ok count = %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("metrics_test_op", "error", "6003")); got != 2 {
		t.Fatalf("error count = %v", got)
	}

	var sample dto.Metric
	if err := m.duration.WithLabelValues("metrics_test_op").(prometheus.Metric).Write(&sample); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if sample.GetHistogram().GetSampleCount() != 3 {
		t.Fatalf("histogram samples = %d", sample.GetHistogram().GetSampleCount())
	}
}

func TestCountersIgnoreZero(t *testing.T) {
	m := Custody()
	m.RecordTicketsSold("metrics_test_raffle", 0)
	m.RecordTicketsSold("metrics_test_raffle", 4)
	m.RecordPayout("", 0)
	m.RecordPayout("", 250)

	if got := testutil.ToFloat64(m.ticketsSold.WithLabelValues("metrics_test_raffle")); got != 4 {
		t.Fatalf("tickets sold = %v", got)
	}
	if got := testutil.ToFloat64(m.tokensMoved.WithLabelValues("unknown")); got < 250 {
		t.Fatalf("payout counter = %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *CustodyMetrics
	m.ObserveOperation("op", "", time.Second)
	m.ObserveLockWait("op", time.Second)
	m.Inflight(1)
	m.RecordTicketsSold("r", 1)
	m.RecordPayout("op", 1)
}

func TestGatewayStatusClasses(t *testing.T) {
	g := Gateway()
	g.ObserveRequest("metrics_test", "GET /v1/vaults/{vault}", 200, time.Millisecond)
	g.ObserveRequest("metrics_test", "GET /v1/vaults/{vault}", 404, time.Millisecond)
	g.ObserveRequest("metrics_test", "GET /v1/vaults/{vault}", 409, time.Millisecond)
	g.Reject("metrics_test", "replay")

	if got := testutil.ToFloat64(g.requests.WithLabelValues("metrics_test", "GET /v1/vaults/{vault}", "4xx")); got != 2 {
		t.Fatalf("4xx count = %v", got)
	}
	if got := testutil.ToFloat64(g.rejected.WithLabelValues("metrics_test", "replay")); got != 1 {
		t.Fatalf("rejected = %v", got)
	}
	if statusClass(42) != "other" || statusClass(503) != "5xx" {
		t.Fatalf("unexpected status classes")
	}
}

type namedEvent string

func (n namedEvent) EventType() string { return string(n) }

func TestEventCounterSplitsModule(t *testing.T) {
	c := Events()
	c.Emit(namedEvent("metricstest.buy"))
	c.Emit(namedEvent("metricstest.buy"))
	c.Emit(namedEvent("metricstest_bare"))
	c.Emit(nil)

	if got := testutil.ToFloat64(c.committed.WithLabelValues("metricstest", "buy")); got != 2 {
		t.Fatalf("buy count = %v", got)
	}
	if got := testutil.ToFloat64(c.committed.WithLabelValues("unknown", "metricstest_bare")); got != 1 {
		t.Fatalf("bare count = %v", got)
	}
}
