package state

import (
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "sktvault/core/errors"
	"sktvault/core/types"
)

var accountPrefix = []byte("account:")

func accountKey(addr [20]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return buf
}

// GetAccount returns the native account for addr, zero-valued when absent.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	account := new(types.Account)
	if _, err := m.KVGet(accountKey(addr), account); err != nil {
		return nil, err
	}
	return account, nil
}

// PutAccount stores the native account for addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	return m.KVPut(accountKey(addr), account)
}

// NativeBalance returns the native balance of addr.
func (m *Manager) NativeBalance(addr [20]byte) (uint64, error) {
	account, err := m.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// CreditNative adds amount to addr's native balance.
func (m *Manager) CreditNative(addr [20]byte, amount uint64) error {
	account, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(account.Balance), uint256.NewInt(amount))
	if overflow || !sum.IsUint64() {
		return fmt.Errorf("state: native balance overflow: %w", coreerrors.ErrInvalidAmount)
	}
	account.Balance = sum.Uint64()
	return m.PutAccount(addr, account)
}

// DebitNative removes amount from addr's native balance.
func (m *Manager) DebitNative(addr [20]byte, amount uint64) error {
	account, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	if account.Balance < amount {
		return fmt.Errorf("state: native balance %d below %d: %w", account.Balance, amount, coreerrors.ErrNotEnoughTokens)
	}
	account.Balance -= amount
	return m.PutAccount(addr, account)
}

// TransferNative moves amount between two native accounts.
func (m *Manager) TransferNative(from, to [20]byte, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	if err := m.DebitNative(from, amount); err != nil {
		return err
	}
	return m.CreditNative(to, amount)
}
