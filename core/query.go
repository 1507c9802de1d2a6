package core

import (
	"errors"
	"fmt"

	coreerrors "sktvault/core/errors"
	"sktvault/core/state"
	"sktvault/core/types"
	"sktvault/crypto"
	"sktvault/native/custody"
	"sktvault/native/raffle"
)

// ErrQueryNotFound wraps lookups for records that do not exist.
var ErrQueryNotFound = coreerrors.ErrNotFound

// AccountView summarises an address's balances.
type AccountView struct {
	Address [20]byte
	Native  uint64
	Tokens  []types.TokenAccount
}

// VaultView pairs a vault with its current balances.
type VaultView struct {
	Vault         *custody.Vault
	PoolBalance   uint64
	NativeBalance uint64
}

// Global returns the stored configuration.
func (n *Node) Global() (*custody.GlobalConfig, error) {
	var out *custody.GlobalConfig
	err := n.exec.View(func(m *state.Manager) error {
		cfg, err := loadGlobal(m)
		out = cfg
		return err
	})
	return out, err
}

// Vault returns a vault with its custody and native balances.
func (n *Node) Vault(addr [20]byte) (*VaultView, error) {
	var out *VaultView
	err := n.exec.View(func(m *state.Manager) error {
		v, ok, err := m.VaultGet(addr)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("vault %s: %w", crypto.FromRaw(addr), ErrQueryNotFound)
		}
		pool, err := m.TokenBalance(v.PoolTokenAccount)
		if err != nil {
			return err
		}
		native, err := m.NativeBalance(v.Address)
		if err != nil {
			return err
		}
		out = &VaultView{Vault: v, PoolBalance: pool, NativeBalance: native}
		return nil
	})
	return out, err
}

// Vaults lists vault addresses in creation order.
func (n *Node) Vaults() ([][20]byte, error) {
	var out [][20]byte
	err := n.exec.View(func(m *state.Manager) error {
		list, err := m.Vaults()
		out = list
		return err
	})
	return out, err
}

// Raffle returns a raffle record.
func (n *Node) Raffle(id [20]byte) (*raffle.Raffle, error) {
	var out *raffle.Raffle
	err := n.exec.View(func(m *state.Manager) error {
		r, ok, err := m.RaffleGet(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("raffle %s: %w", crypto.FromRaw(id), ErrQueryNotFound)
		}
		out = r
		return nil
	})
	return out, err
}

// Raffles lists raffle ids in creation order.
func (n *Node) Raffles() ([][20]byte, error) {
	var out [][20]byte
	err := n.exec.View(func(m *state.Manager) error {
		list, err := m.Raffles()
		out = list
		return err
	})
	return out, err
}

// Account reports the native balance of addr and every token account it
// owns for a registered mint.
func (n *Node) Account(addr [20]byte) (*AccountView, error) {
	out := &AccountView{Address: addr}
	err := n.exec.View(func(m *state.Manager) error {
		native, err := m.NativeBalance(addr)
		if err != nil {
			return err
		}
		out.Native = native
		mints, err := m.Mints()
		if err != nil {
			return err
		}
		for _, mint := range mints {
			acct, ok, err := m.TokenAccount(m.TokenAccountAddress(addr, mint))
			if err != nil {
				return err
			}
			if ok {
				out.Tokens = append(out.Tokens, *acct)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Mints lists registered token mints.
func (n *Node) Mints() ([]state.Mint, error) {
	var out []state.Mint
	err := n.exec.View(func(m *state.Manager) error {
		addrs, err := m.Mints()
		if err != nil {
			return err
		}
		for _, a := range addrs {
			mint, ok, err := m.GetMint(a)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, *mint)
			}
		}
		return nil
	})
	return out, err
}

// IsNotFound reports whether err denotes a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, coreerrors.ErrNotFound)
}
