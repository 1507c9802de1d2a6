package auth

import (
	"sync"
	"time"
)

// callerWindow is the replay state kept for one signing account: the nonces
// it used recently, in the order they were first observed, and the newest
// timestamp it signed with.
type callerWindow struct {
	newest int64
	seen   map[string]time.Time
	order  []string
}

// replayGuard remembers (timestamp, nonce) pairs per caller for ttl, keeping
// at most capacity pairs per caller.
type replayGuard struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	callers map[string]*callerWindow
}

func newReplayGuard(ttl time.Duration, capacity int) *replayGuard {
	if ttl <= 0 || ttl > maxNonceWindow {
		ttl = maxNonceWindow
	}
	if capacity <= 0 || capacity > maxNonceCapacity {
		capacity = defaultNonceCapacity
	}
	return &replayGuard{ttl: ttl, capacity: capacity, callers: make(map[string]*callerWindow)}
}

// windowLocked returns the caller's window after dropping expired nonces.
func (g *replayGuard) windowLocked(caller string, now time.Time) *callerWindow {
	w, ok := g.callers[caller]
	if !ok {
		w = &callerWindow{seen: make(map[string]time.Time)}
		g.callers[caller] = w
	}
	cutoff := now.Add(-g.ttl)
	for len(w.order) > 0 {
		at, ok := w.seen[w.order[0]]
		if ok && !at.Before(cutoff) {
			break
		}
		delete(w.seen, w.order[0])
		w.order = w.order[1:]
	}
	return w
}

func (g *replayGuard) rememberLocked(w *callerWindow, key string, at time.Time) {
	if _, ok := w.seen[key]; ok {
		w.seen[key] = at
		return
	}
	for len(w.order) >= g.capacity {
		delete(w.seen, w.order[0])
		w.order = w.order[1:]
	}
	w.seen[key] = at
	w.order = append(w.order, key)
}

// Contains reports whether caller used key inside the window.
func (g *replayGuard) Contains(caller, key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.windowLocked(caller, now).seen[key]
	return ok
}

// Remember records key for caller and reports whether it was already there.
func (g *replayGuard) Remember(caller, key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.windowLocked(caller, now)
	if _, ok := w.seen[key]; ok {
		return true
	}
	g.rememberLocked(w, key, now)
	return false
}

// Restore loads a persisted nonce observed at the given time.
func (g *replayGuard) Restore(caller, key string, observed, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rememberLocked(g.windowLocked(caller, now), key, observed)
}

// Regressed reports whether ts is older than the newest timestamp the caller
// signed with while that newest one is still inside skew of now. Otherwise
// ts becomes the new high-water mark when it is newer.
func (g *replayGuard) Regressed(caller string, ts time.Time, skew time.Duration, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.windowLocked(caller, now)
	current := ts.Unix()
	if w.newest != 0 && time.Unix(w.newest, 0).After(now.Add(-skew)) && current < w.newest {
		return true
	}
	if current > w.newest {
		w.newest = current
	}
	return false
}
