package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sktvault/core/events"
	"sktvault/core/types"
	"sktvault/crypto"
	"sktvault/native/custody"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestStoreIgnoresRedelivery(t *testing.T) {
	idx, err := New(setupTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	rec := events.Record{Sequence: 7, Cursor: "7", Event: *custody.NewClaimEvent(addr(1), addr(2), 50)}
	require.NoError(t, idx.Store(ctx, rec))
	require.NoError(t, idx.Store(ctx, rec))

	n, err := idx.Count(ctx, Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	rows, err := idx.Query(ctx, Filter{Type: custody.EventTypeClaim})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "custody", rows[0].Module)
	require.Equal(t, crypto.FromRaw(addr(1)).String(), rows[0].Actor)
	require.Equal(t, crypto.FromRaw(addr(2)).String(), rows[0].Vault)
	require.Equal(t, idx.Session(), rows[0].Session)

	evt, err := rows[0].Event()
	require.NoError(t, err)
	require.Equal(t, "50", evt.Attributes["amount"])
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	a := types.Event{Type: "custody.claim", Attributes: map[string]string{"a": "1", "b": "2"}}
	b := types.Event{Type: "custody.claim", Attributes: map[string]string{"b": "2", "a": "1"}}
	require.Equal(t, Fingerprint("s", 1, a), Fingerprint("s", 1, b))
	require.NotEqual(t, Fingerprint("s", 1, a), Fingerprint("s", 2, a))
	require.NotEqual(t, Fingerprint("s", 1, a), Fingerprint("t", 1, a))
	require.Len(t, Fingerprint("s", 1, a), 64)
}

func TestAttachConsumesBacklogAndUpdates(t *testing.T) {
	idx, err := New(setupTestDB(t))
	require.NoError(t, err)
	broker := events.NewBroker(16)
	vault := addr(0x22)

	broker.Emit(custody.WrapEvent(custody.NewClaimEvent(addr(1), vault, 10)))

	detach := broker.Attach(idx)
	defer detach()

	n, err := idx.Count(context.Background(), Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	broker.Emit(custody.WrapEvent(custody.NewWithdrawEvent(addr(3), vault, 5, 0)))
	broker.Emit(custody.WrapEvent(custody.NewClaimEvent(addr(4), addr(0x33), 1)))

	n, err = idx.Count(context.Background(), Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	rows, err := idx.Query(context.Background(), Filter{Vault: crypto.FromRaw(vault).String()})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, custody.EventTypeClaim, rows[0].Type)
	require.Equal(t, custody.EventTypeWithdraw, rows[1].Type)

	rows, err = idx.Query(context.Background(), Filter{AfterSequence: 2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 3, rows[0].Sequence)
}

func TestAttachedIndexerKeepsBursts(t *testing.T) {
	idx, err := New(setupTestDB(t))
	require.NoError(t, err)
	broker := events.NewBroker(8)
	detach := broker.Attach(idx)
	defer detach()

	// A slow websocket subscriber alongside must not affect the index.
	_, stop, _ := broker.Subscribe(context.Background(), "")
	defer stop()

	const burst = 500
	for i := 0; i < burst; i++ {
		broker.Emit(custody.WrapEvent(custody.NewClaimEvent(addr(1), addr(2), uint64(i+1))))
	}

	n, err := idx.Count(context.Background(), Filter{})
	require.NoError(t, err)
	require.EqualValues(t, burst, n)

	rows, err := idx.Query(context.Background(), Filter{AfterSequence: burst - 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, burst, rows[0].Sequence)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
	_, err = Open(DriverSQLite, " ")
	require.Error(t, err)

	db, err := Open(DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.True(t, db.Migrator().HasTable(&EventRecord{}))
}
