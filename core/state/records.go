package state

import (
	"fmt"

	"sktvault/native/custody"
	"sktvault/native/raffle"
)

var (
	vaultPrefix    = []byte("custody/vault:")
	vaultIndexKey  = []byte("custody/vault-index")
	globalKey      = []byte("custody/global")
	rafflePrefix   = []byte("raffle/record:")
	raffleIndexKey = []byte("raffle/index")
)

// VaultGet loads a vault record.
func (m *Manager) VaultGet(addr [20]byte) (*custody.Vault, bool, error) {
	vault := new(custody.Vault)
	ok, err := m.KVGet(prefixed(vaultPrefix, addr), vault)
	if err != nil || !ok {
		return nil, false, err
	}
	return vault, true, nil
}

// VaultPut stores a vault record and indexes it.
func (m *Manager) VaultPut(v *custody.Vault) error {
	if v == nil {
		return fmt.Errorf("state: nil vault")
	}
	if err := m.KVPut(prefixed(vaultPrefix, v.Address), v); err != nil {
		return err
	}
	return m.KVAppend(vaultIndexKey, v.Address[:])
}

// Vaults lists indexed vault addresses in creation order.
func (m *Manager) Vaults() ([][20]byte, error) {
	return m.addressIndex(vaultIndexKey)
}

// GlobalConfig loads the configuration record.
func (m *Manager) GlobalConfig() (*custody.GlobalConfig, bool, error) {
	cfg := new(custody.GlobalConfig)
	ok, err := m.KVGet(globalKey, cfg)
	if err != nil || !ok {
		return nil, false, err
	}
	return cfg, true, nil
}

// PutGlobalConfig stores the configuration record.
func (m *Manager) PutGlobalConfig(cfg *custody.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: nil global config")
	}
	if len(cfg.Admins) > custody.MaxAdmins {
		return fmt.Errorf("state: %d admins exceeds limit %d", len(cfg.Admins), custody.MaxAdmins)
	}
	return m.KVPut(globalKey, cfg)
}

// RaffleGet loads a raffle record.
func (m *Manager) RaffleGet(id [20]byte) (*raffle.Raffle, bool, error) {
	r := new(raffle.Raffle)
	ok, err := m.KVGet(prefixed(rafflePrefix, id), r)
	if err != nil || !ok {
		return nil, false, err
	}
	return r, true, nil
}

// RafflePut stores a raffle record and indexes it.
func (m *Manager) RafflePut(r *raffle.Raffle) error {
	if r == nil {
		return fmt.Errorf("state: nil raffle")
	}
	if r.SoldTickets > r.TotalTickets {
		return fmt.Errorf("state: raffle sold %d exceeds total %d", r.SoldTickets, r.TotalTickets)
	}
	if err := m.KVPut(prefixed(rafflePrefix, r.ID), r); err != nil {
		return err
	}
	return m.KVAppend(raffleIndexKey, r.ID[:])
}

// Raffles lists indexed raffle ids in creation order.
func (m *Manager) Raffles() ([][20]byte, error) {
	return m.addressIndex(raffleIndexKey)
}

func (m *Manager) addressIndex(key []byte) ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, b := range raw {
		var addr [20]byte
		copy(addr[:], b)
		out = append(out, addr)
	}
	return out, nil
}

var (
	_ custody.State = (*Manager)(nil)
	_ raffle.State  = (*Manager)(nil)
)
