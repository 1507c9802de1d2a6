package events

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"sktvault/core/types"
)

const defaultHistoryLimit = 256

// Record is a committed event with its stream sequence.
type Record struct {
	Sequence uint64
	Cursor   string
	Event    types.Event
}

// Sink receives every record synchronously and in sequence order.
type Sink interface {
	Consume(Record)
}

// Broker fans committed events out to live subscribers and keeps a short
// history so reconnecting clients can resume from a cursor. Subscribers are
// best effort; attached sinks see every record.
type Broker struct {
	// deliver orders sink delivery across concurrent emitters. It is always
	// taken before mu.
	deliver sync.Mutex

	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	limit   int
	history []Record
	subs    map[uint64]chan Record
	sinks   map[uint64]Sink
}

// NewBroker returns a broker retaining up to limit past events.
func NewBroker(limit int) *Broker {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &Broker{limit: limit, subs: make(map[uint64]chan Record), sinks: make(map[uint64]Sink)}
}

// Emit implements Emitter.
func (b *Broker) Emit(e Event) {
	if b == nil || e == nil {
		return
	}
	flat := Flatten(e)
	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.mu.Lock()
	b.seq++
	rec := Record{Sequence: b.seq, Cursor: strconv.FormatUint(b.seq, 10), Event: flat.Clone()}
	b.history = append(b.history, rec)
	if len(b.history) > b.limit {
		excess := len(b.history) - b.limit
		trimmed := make([]Record, b.limit)
		copy(trimmed, b.history[excess:])
		b.history = trimmed
	}
	// Cancel closes subscriber channels under mu, so sends stay under it too.
	for _, ch := range b.subs {
		select {
		case ch <- rec:
		default:
		}
	}
	sinks := make([]Sink, 0, len(b.sinks))
	for _, s := range b.sinks {
		sinks = append(sinks, s)
	}
	b.mu.Unlock()

	for _, s := range sinks {
		s.Consume(rec)
	}
}

// Attach replays the retained history into s and then delivers every later
// record to it from Emit. The returned function detaches the sink.
func (b *Broker) Attach(s Sink) func() {
	if b == nil || s == nil {
		return func() {}
	}
	b.deliver.Lock()
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.sinks[id] = s
	backlog := make([]Record, len(b.history))
	copy(backlog, b.history)
	b.mu.Unlock()
	for _, rec := range backlog {
		s.Consume(rec)
	}
	b.deliver.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.sinks, id)
		b.mu.Unlock()
	}
}

// Subscribe registers a subscriber and returns the backlog after cursor.
// Slow subscribers miss events rather than stall emitters.
func (b *Broker) Subscribe(ctx context.Context, cursor string) (<-chan Record, func(), []Record) {
	updates := make(chan Record, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = updates
	backlog := make([]Record, 0, len(b.history))
	for _, rec := range b.history {
		if rec.Sequence > since {
			backlog = append(backlog, rec)
		}
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog
}

