package auth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	seenPrefix     = []byte("gw/nonce/")
	observedPrefix = []byte("gw/observed/")
)

// LevelDBNonces persists caller nonces in LevelDB. Each nonce is stored twice:
// once under its composite key holding the observation time, and once under
// a time-ordered key used for hydration and pruning.
type LevelDBNonces struct {
	db *leveldb.DB
}

// OpenLevelDBNonces opens (or creates) the nonce database at path.
func OpenLevelDBNonces(path string) (*LevelDBNonces, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("auth: nonce store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("auth: resolve nonce store path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: open nonce store: %w", err)
	}
	return &LevelDBNonces{db: db}, nil
}

// Close releases the underlying database.
func (p *LevelDBNonces) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// EnsureNonce records the nonce and reports whether it had been seen before.
func (p *LevelDBNonces) EnsureNonce(_ context.Context, record NonceRecord) (bool, error) {
	if record.Caller == "" || record.Timestamp == "" || record.Nonce == "" {
		return false, fmt.Errorf("auth: nonce record incomplete")
	}
	observed := record.ObservedAt.UTC()
	if observed.IsZero() {
		observed = time.Now().UTC()
	}
	composite := strings.Join([]string{record.Caller, record.Timestamp, record.Nonce}, "|")
	seenKey := append(append([]byte(nil), seenPrefix...), composite...)
	_, err := p.db.Get(seenKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("auth: load nonce: %w", err)
	default:
		return true, nil
	}
	nanos := observed.UnixNano()
	stamp := make([]byte, 8)
	binary.BigEndian.PutUint64(stamp, uint64(nanos))
	batch := new(leveldb.Batch)
	batch.Put(seenKey, stamp)
	batch.Put(observedKey(nanos, composite), nil)
	if err := p.db.Write(batch, nil); err != nil {
		return false, fmt.Errorf("auth: record nonce: %w", err)
	}
	return false, nil
}

// RecentNonces returns nonces observed at or after cutoff.
func (p *LevelDBNonces) RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error) {
	iter := p.db.NewIterator(util.BytesPrefix(observedPrefix), nil)
	defer iter.Release()

	var records []NonceRecord
	for ok := iter.Seek(observedKey(cutoff.UTC().UnixNano(), "")); ok; ok = iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		composite, nanos, ok := parseObservedKey(iter.Key())
		if !ok {
			continue
		}
		parts := strings.SplitN(composite, "|", 3)
		if len(parts) != 3 {
			continue
		}
		records = append(records, NonceRecord{
			Caller:     parts[0],
			Timestamp:  parts[1],
			Nonce:      parts[2],
			ObservedAt: time.Unix(0, nanos).UTC(),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("auth: iterate nonces: %w", err)
	}
	return records, nil
}

// PruneNonces deletes nonces observed before cutoff.
func (p *LevelDBNonces) PruneNonces(ctx context.Context, cutoff time.Time) error {
	limit := observedKey(cutoff.UTC().UnixNano(), "")
	iter := p.db.NewIterator(util.BytesPrefix(observedPrefix), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if bytes.Compare(iter.Key(), limit) >= 0 {
			break
		}
		composite, _, ok := parseObservedKey(iter.Key())
		if !ok {
			continue
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
		batch.Delete(append(append([]byte(nil), seenPrefix...), composite...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("auth: iterate nonces: %w", err)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := p.db.Write(batch, nil); err != nil {
		return fmt.Errorf("auth: prune nonces: %w", err)
	}
	return nil
}

func observedKey(nanos int64, composite string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", observedPrefix, nanos, composite))
}

func parseObservedKey(key []byte) (string, int64, bool) {
	rest := strings.TrimPrefix(string(key), string(observedPrefix))
	stamp, composite, found := strings.Cut(rest, "/")
	if !found {
		return "", 0, false
	}
	nanos, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return composite, nanos, true
}

var _ NoncePersistence = (*LevelDBNonces)(nil)
