package custody

import (
	"bytes"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	coreerrors "sktvault/core/errors"
	"sktvault/core/events"
	"sktvault/core/types"
)

type mockState struct {
	native map[[20]byte]uint64
	tokens map[[20]byte]*types.TokenAccount
	vaults map[[20]byte]*Vault
	// creates counts CreateTokenAccount calls.
	creates int
}

func newMockState() *mockState {
	return &mockState{
		native: make(map[[20]byte]uint64),
		tokens: make(map[[20]byte]*types.TokenAccount),
		vaults: make(map[[20]byte]*Vault),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (m *mockState) TokenAccountAddress(owner, mint [20]byte) [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256(owner[:], mint[:])[12:])
	return out
}

func (m *mockState) TokenAccount(addr [20]byte) (*types.TokenAccount, bool, error) {
	acct, ok := m.tokens[addr]
	if !ok {
		return nil, false, nil
	}
	return acct.Clone(), true, nil
}

func (m *mockState) CreateTokenAccount(payer, owner, mint [20]byte) (*types.TokenAccount, error) {
	addr := m.TokenAccountAddress(owner, mint)
	if _, ok := m.tokens[addr]; ok {
		return nil, fmt.Errorf("token account exists")
	}
	m.creates++
	acct := &types.TokenAccount{Address: addr, Mint: mint, Owner: owner}
	m.tokens[addr] = acct
	return acct.Clone(), nil
}

func (m *mockState) TransferToken(from, to, signer [20]byte, amount uint64) error {
	src, ok := m.tokens[from]
	if !ok {
		return coreerrors.ErrNotFound
	}
	dst, ok := m.tokens[to]
	if !ok {
		return coreerrors.ErrNotFound
	}
	if src.Owner != signer {
		return fmt.Errorf("signer mismatch")
	}
	if src.Amount < amount {
		return coreerrors.ErrNotEnoughTokens
	}
	src.Amount -= amount
	dst.Amount += amount
	return nil
}

func (m *mockState) TokenBalance(addr [20]byte) (uint64, error) {
	if acct, ok := m.tokens[addr]; ok {
		return acct.Amount, nil
	}
	return 0, nil
}

func (m *mockState) NativeBalance(addr [20]byte) (uint64, error) { return m.native[addr], nil }

func (m *mockState) TransferNative(from, to [20]byte, amount uint64) error {
	if err := m.DebitNative(from, amount); err != nil {
		return err
	}
	return m.CreditNative(to, amount)
}

func (m *mockState) DebitNative(addr [20]byte, amount uint64) error {
	if m.native[addr] < amount {
		return coreerrors.ErrNotEnoughTokens
	}
	m.native[addr] -= amount
	return nil
}

func (m *mockState) CreditNative(addr [20]byte, amount uint64) error {
	m.native[addr] += amount
	return nil
}

func (m *mockState) VaultGet(addr [20]byte) (*Vault, bool, error) {
	v, ok := m.vaults[addr]
	if !ok {
		return nil, false, nil
	}
	return v.Clone(), true, nil
}

func (m *mockState) VaultPut(v *Vault) error {
	m.vaults[v.Address] = v.Clone()
	return nil
}

func (m *mockState) fund(addr [20]byte, amount uint64) {
	m.tokens[addr].Amount += amount
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }
