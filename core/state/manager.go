package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"sktvault/storage"
)

var errManagerClosed = errors.New("state: manager already committed or discarded")

// Manager is a journaled view over a storage.Database. Writes land in an
// overlay and only reach the database on Commit, in a single batch.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
	deleted map[string]struct{}
	closed  bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		overlay: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	if m.closed {
		return nil, errManagerClosed
	}
	k := string(hashed)
	if _, gone := m.deleted[k]; gone {
		return nil, nil
	}
	if v, ok := m.overlay[k]; ok {
		return v, nil
	}
	v, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func (m *Manager) put(hashed []byte, value []byte) error {
	if m.closed {
		return errManagerClosed
	}
	k := string(hashed)
	delete(m.deleted, k)
	m.overlay[k] = append([]byte(nil), value...)
	return nil
}

func (m *Manager) del(hashed []byte) error {
	if m.closed {
		return errManagerClosed
	}
	k := string(hashed)
	delete(m.overlay, k)
	m.deleted[k] = struct{}{}
	return nil
}

// Dirty reports whether the manager holds uncommitted writes.
func (m *Manager) Dirty() bool {
	return len(m.overlay) > 0 || len(m.deleted) > 0
}

// Commit writes all pending changes atomically. The manager cannot be used
// afterwards.
func (m *Manager) Commit() error {
	if m.closed {
		return errManagerClosed
	}
	batch := m.db.NewBatch()
	keys := make([]string, 0, len(m.overlay))
	for k := range m.overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		batch.Put([]byte(k), m.overlay[k])
	}
	gone := make([]string, 0, len(m.deleted))
	for k := range m.deleted {
		gone = append(gone, k)
	}
	sort.Strings(gone)
	for _, k := range gone {
		batch.Delete([]byte(k))
	}
	if batch.Len() > 0 {
		if err := batch.Write(); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	m.closed = true
	return nil
}

// Discard drops all pending changes.
func (m *Manager) Discard() {
	m.overlay = make(map[string][]byte)
	m.deleted = make(map[string]struct{})
	m.closed = true
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches storage.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.put(kvKey(key), encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.del(kvKey(key))
}

// KVAppend appends value to the byte-slice list stored under key. Duplicate
// values are ignored to keep the index deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	var list [][]byte
	if _, err := m.KVGet(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return m.KVPut(key, list)
}

// KVGetList decodes the list stored under key into out, which must be a
// pointer to a slice. Missing keys yield an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	ok, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	}
	return nil
}
