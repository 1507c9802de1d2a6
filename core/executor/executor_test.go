package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreerrors "sktvault/core/errors"
	"sktvault/core/events"
	"sktvault/core/state"
	"sktvault/storage"
)

type testEvent struct{ name string }

func (e testEvent) EventType() string { return e.name }

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var alice = [20]byte{0xA1}

func TestExecuteCommitsAndFlushes(t *testing.T) {
	db := storage.NewMemDB()
	rec := &recorder{}
	x := New(db, rec)

	err := x.Execute(context.Background(), "credit", []string{"acct:a"}, func(m *state.Manager, emit events.Emitter) error {
		if err := m.CreditNative(alice, 50); err != nil {
			return err
		}
		emit.Emit(testEvent{name: "test.credit"})
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, rec.count())

	require.NoError(t, x.View(func(m *state.Manager) error {
		bal, err := m.NativeBalance(alice)
		require.NoError(t, err)
		require.Equal(t, uint64(50), bal)
		return nil
	}))
}

func TestExecuteRollsBackOnError(t *testing.T) {
	db := storage.NewMemDB()
	rec := &recorder{}
	x := New(db, rec)

	err := x.Execute(context.Background(), "partial", []string{"acct:a"}, func(m *state.Manager, emit events.Emitter) error {
		require.NoError(t, m.CreditNative(alice, 10))
		emit.Emit(testEvent{name: "test.credit"})
		return m.DebitNative(alice, 11)
	})
	require.ErrorIs(t, err, coreerrors.ErrNotEnoughTokens)
	require.Zero(t, rec.count())

	require.NoError(t, x.View(func(m *state.Manager) error {
		bal, err := m.NativeBalance(alice)
		require.NoError(t, err)
		require.Zero(t, bal)
		return nil
	}))
}

func TestViewDropsWrites(t *testing.T) {
	x := New(storage.NewMemDB(), nil)
	require.NoError(t, x.View(func(m *state.Manager) error {
		return m.CreditNative(alice, 5)
	}))
	require.NoError(t, x.View(func(m *state.Manager) error {
		bal, _ := m.NativeBalance(alice)
		require.Zero(t, bal)
		return nil
	}))
}

func TestExecuteSerialisesSharedKeys(t *testing.T) {
	x := New(storage.NewMemDB(), nil)
	const workers = 16
	var wg sync.WaitGroup
	var active, maxActive int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := x.Execute(context.Background(), "credit", []string{"acct:a", "global"}, func(m *state.Manager, _ events.Emitter) error {
				n := atomic.AddInt32(&active, 1)
				for {
					cur := atomic.LoadInt32(&maxActive)
					if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
						break
					}
				}
				defer atomic.AddInt32(&active, -1)
				return m.CreditNative(alice, 1)
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxActive)
	require.NoError(t, x.View(func(m *state.Manager) error {
		bal, _ := m.NativeBalance(alice)
		require.Equal(t, uint64(workers), bal)
		return nil
	}))
}

func TestExecuteDisjointKeysRunConcurrently(t *testing.T) {
	x := New(storage.NewMemDB(), nil)
	entered := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- x.Execute(context.Background(), "hold", []string{"acct:a"}, func(*state.Manager, events.Emitter) error {
			<-entered
			return nil
		})
	}()
	// Runs while the first operation still holds acct:a.
	err := x.Execute(context.Background(), "other", []string{"acct:b"}, func(*state.Manager, events.Emitter) error {
		close(entered)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestExecuteHonoursContextWhileWaiting(t *testing.T) {
	x := New(storage.NewMemDB(), nil)
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = x.Execute(context.Background(), "hold", []string{"acct:a"}, func(*state.Manager, events.Emitter) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := x.Execute(ctx, "blocked", []string{"acct:b", "acct:a"}, func(*state.Manager, events.Emitter) error {
		ran = true
		return nil
	})
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.False(t, ran)
	close(hold)

	// acct:b must have been released by the aborted waiter.
	require.NoError(t, x.Execute(context.Background(), "after", []string{"acct:b"}, func(*state.Manager, events.Emitter) error { return nil }))
}

func TestExecuteAfterClose(t *testing.T) {
	x := New(storage.NewMemDB(), nil)
	x.Close()
	x.Close()
	err := x.Execute(context.Background(), "late", nil, func(*state.Manager, events.Emitter) error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}

func TestCanonicalKeys(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, canonicalKeys([]string{"c", "", "a", "b", "a"}))
}

func TestLockSetReleasesEntries(t *testing.T) {
	s := newLockSet()
	release, err := s.acquire(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	release()
	release()
	require.Empty(t, s.locks)
}
