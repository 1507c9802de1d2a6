package events

import (
	"sync"

	"sktvault/core/types"
)

// Event represents a structured state change emitted by an operation.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render themselves as a generic
// attribute map for indexers and streaming clients.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events raised during an operation until the operation
// commits. Discarded operations never reach downstream emitters.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit queues the event.
func (b *Buffer) Emit(e Event) {
	if e == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

// Events returns the queued events in emission order.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush forwards queued events to dst and clears the buffer.
func (b *Buffer) Flush(dst Emitter) {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if dst == nil {
		return
	}
	for _, e := range pending {
		dst.Emit(e)
	}
}

// Reset drops queued events.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(e Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(e)
		}
	}
}

// Flatten converts an event into its attribute form. Events that do not
// implement Typed are rendered with only their type.
func Flatten(e Event) *types.Event {
	if e == nil {
		return nil
	}
	if typed, ok := e.(Typed); ok {
		if ev := typed.Event(); ev != nil {
			return ev
		}
	}
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{}}
}
