package executor

import (
	"context"
	"sort"
	"sync"
)

// lockSet hands out exclusive per-key locks. Entries are reference counted
// so idle keys do not accumulate.
type lockSet struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func newLockSet() *lockSet {
	return &lockSet{locks: make(map[string]*keyLock)}
}

func (s *lockSet) ref(key string) *keyLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	l.refs++
	return l
}

func (s *lockSet) unref(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(s.locks, key)
	}
}

// canonicalKeys sorts and de-duplicates keys. Every caller acquires in this
// order, which rules out lock-order deadlocks.
func canonicalKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// acquire locks every key in canonical order. If ctx ends while waiting, the
// locks taken so far are released and ctx.Err() is returned. The returned
// function releases all locks.
func (s *lockSet) acquire(ctx context.Context, keys []string) (func(), error) {
	ordered := canonicalKeys(keys)
	held := make([]string, 0, len(ordered))
	taken := make([]*keyLock, 0, len(ordered))
	unlock := func() {
		for i := len(taken) - 1; i >= 0; i-- {
			<-taken[i].sem
			s.unref(held[i])
		}
	}
	for _, key := range ordered {
		l := s.ref(key)
		select {
		case l.sem <- struct{}{}:
			taken = append(taken, l)
			held = append(held, key)
		case <-ctx.Done():
			s.unref(key)
			unlock()
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() { once.Do(unlock) }, nil
}
