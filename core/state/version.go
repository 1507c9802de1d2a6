package state

import (
	"errors"
	"fmt"

	"sktvault/storage"
)

// StateVersion is the record layout this binary reads and writes. Bump it
// when a stored record (vault, global config, raffle, token account) changes
// shape.
const StateVersion uint32 = 1

// stateLayout names the key scheme: keccak256-hashed keys, RLP values.
const stateLayout = "keccak-rlp"

var schemaKey = []byte("state/schema")

// ErrStateVersionMismatch is returned when the database was written by a
// binary with a different record layout.
var ErrStateVersionMismatch = errors.New("state: schema version mismatch")

type schemaRecord struct {
	Version uint32
	Layout  string
}

// SetStateVersion stamps the schema record with version.
func (m *Manager) SetStateVersion(version uint32) error {
	return m.KVPut(schemaKey, schemaRecord{Version: version, Layout: stateLayout})
}

// StateVersion returns the stamped schema version, if any.
func (m *Manager) StateVersion() (uint32, bool, error) {
	var rec schemaRecord
	ok, err := m.KVGet(schemaKey, &rec)
	if err != nil || !ok {
		return 0, false, err
	}
	if rec.Layout != stateLayout {
		return rec.Version, true, fmt.Errorf("%w: layout %q", ErrStateVersionMismatch, rec.Layout)
	}
	return rec.Version, true, nil
}

// EnsureStateVersion stamps an empty database and otherwise refuses to open
// one written with another version, unless allowMigrate is set.
func EnsureStateVersion(db storage.Database, allowMigrate bool) error {
	if db == nil {
		return errors.New("state: nil database")
	}
	m := NewManager(db)
	version, ok, err := m.StateVersion()
	switch {
	case err != nil && !(allowMigrate && errors.Is(err, ErrStateVersionMismatch)):
		return err
	case !ok:
		if err := m.SetStateVersion(StateVersion); err != nil {
			return err
		}
		return m.Commit()
	case version != StateVersion && !allowMigrate:
		return fmt.Errorf("%w: stored %d, binary %d", ErrStateVersionMismatch, version, StateVersion)
	}
	return nil
}
