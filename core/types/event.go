package types

import (
	"sort"
	"strings"
)

// Event is the flattened form of a committed domain event. Type is dotted,
// "<module>.<name>", and attribute values are display strings (bech32
// addresses, decimal amounts).
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Module returns the part of Type before the first dot, or Type itself.
func (e Event) Module() string {
	module, _, _ := strings.Cut(e.Type, ".")
	return module
}

// Keys returns the attribute names in sorted order.
func (e Event) Keys() []string {
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy that shares no map with e.
func (e Event) Clone() Event {
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return Event{Type: e.Type, Attributes: attrs}
}
