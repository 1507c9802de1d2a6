package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"sktvault/core/events"
)

// EventCounter counts committed events. It implements events.Emitter so the
// node can place it next to the broker.
type EventCounter struct {
	committed *prometheus.CounterVec
}

var (
	eventsOnce     sync.Once
	eventsRegistry *EventCounter
)

// Events returns the process-wide committed event counter.
func Events() *EventCounter {
	eventsOnce.Do(func() {
		eventsRegistry = &EventCounter{
			committed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sktvault_events_committed_total",
				Help: "Committed events by module and name.",
			}, []string{"module", "name"}),
		}
		prometheus.MustRegister(eventsRegistry.committed)
	})
	return eventsRegistry
}

// Emit splits the dotted type ("raffle.buy") into module and name labels.
func (c *EventCounter) Emit(e events.Event) {
	if c == nil || e == nil {
		return
	}
	module, name, ok := strings.Cut(e.EventType(), ".")
	if !ok {
		module, name = "", module
	}
	c.committed.WithLabelValues(labelOrUnknown(module), labelOrUnknown(name)).Inc()
}
