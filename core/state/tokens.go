package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	coreerrors "sktvault/core/errors"
	"sktvault/core/types"
	"sktvault/crypto"
)

var (
	tokenAccountPrefix = []byte("token-account:")
	mintPrefix         = []byte("mint:")
	mintIndexKey       = []byte("mint-index")
)

// Mint describes a fungible token.
type Mint struct {
	Address  [20]byte
	Symbol   string
	Decimals uint8
	Supply   uint64
}

func prefixed(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, len(prefix)+len(addr))
	copy(buf, prefix)
	copy(buf[len(prefix):], addr[:])
	return buf
}

// TokenAccountAddress derives the canonical token account for (owner, mint).
func TokenAccountAddress(owner, mint [20]byte) [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256(tokenAccountPrefix, owner[:], mint[:])[12:])
	return out
}

// TokenAccountAddress derives the canonical token account for (owner, mint).
func (m *Manager) TokenAccountAddress(owner, mint [20]byte) [20]byte {
	return TokenAccountAddress(owner, mint)
}

// RegisterMint records a token mint. Registering the same address twice fails.
func (m *Manager) RegisterMint(mint *Mint) error {
	if mint == nil || mint.Address == ([20]byte{}) {
		return fmt.Errorf("state: mint address required")
	}
	if _, ok, err := m.GetMint(mint.Address); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("state: mint %s already registered", crypto.FromRaw(mint.Address))
	}
	if err := m.KVPut(prefixed(mintPrefix, mint.Address), mint); err != nil {
		return err
	}
	return m.KVAppend(mintIndexKey, mint.Address[:])
}

// GetMint loads a mint record.
func (m *Manager) GetMint(addr [20]byte) (*Mint, bool, error) {
	mint := new(Mint)
	ok, err := m.KVGet(prefixed(mintPrefix, addr), mint)
	if err != nil || !ok {
		return nil, false, err
	}
	return mint, true, nil
}

// Mints lists every registered mint address.
func (m *Manager) Mints() ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(mintIndexKey, &raw); err != nil {
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

// TokenAccount loads a token account.
func (m *Manager) TokenAccount(addr [20]byte) (*types.TokenAccount, bool, error) {
	acct := new(types.TokenAccount)
	ok, err := m.KVGet(prefixed(tokenAccountPrefix, addr), acct)
	if err != nil || !ok {
		return nil, false, err
	}
	return acct, true, nil
}

func (m *Manager) putTokenAccount(acct *types.TokenAccount) error {
	return m.KVPut(prefixed(tokenAccountPrefix, acct.Address), acct)
}

// CreateTokenAccount provisions the canonical (owner, mint) account. The
// payer is recorded only for auditing; account storage is not charged.
func (m *Manager) CreateTokenAccount(payer, owner, mint [20]byte) (*types.TokenAccount, error) {
	if owner == ([20]byte{}) {
		return nil, fmt.Errorf("state: token account owner required")
	}
	if _, ok, err := m.GetMint(mint); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("state: mint %s: %w", crypto.FromRaw(mint), coreerrors.ErrNotFound)
	}
	addr := m.TokenAccountAddress(owner, mint)
	if _, ok, err := m.TokenAccount(addr); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("state: token account %s already exists", crypto.FromRaw(addr))
	}
	acct := &types.TokenAccount{Address: addr, Mint: mint, Owner: owner}
	if err := m.putTokenAccount(acct); err != nil {
		return nil, err
	}
	return acct.Clone(), nil
}

// TransferToken moves amount between two token accounts of the same mint.
// signer must own the source account.
func (m *Manager) TransferToken(from, to, signer [20]byte, amount uint64) error {
	src, ok, err := m.TokenAccount(from)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: source token account %s: %w", crypto.FromRaw(from), coreerrors.ErrNotFound)
	}
	dst, ok, err := m.TokenAccount(to)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: destination token account %s: %w", crypto.FromRaw(to), coreerrors.ErrNotFound)
	}
	if src.Owner != signer {
		return fmt.Errorf("state: %s is not the owner of %s", crypto.FromRaw(signer), crypto.FromRaw(from))
	}
	if src.Mint != dst.Mint {
		return coreerrors.ErrRaffleTokenSPLAddressMismatched
	}
	if amount == 0 || from == to {
		return nil
	}
	if src.Amount < amount {
		return fmt.Errorf("state: token balance %d below %d: %w", src.Amount, amount, coreerrors.ErrNotEnoughTokens)
	}
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(dst.Amount), uint256.NewInt(amount))
	if overflow || !sum.IsUint64() {
		return fmt.Errorf("state: token balance overflow: %w", coreerrors.ErrInvalidAmount)
	}
	src.Amount -= amount
	dst.Amount = sum.Uint64()
	if err := m.putTokenAccount(src); err != nil {
		return err
	}
	return m.putTokenAccount(dst)
}

// TokenBalance returns the balance of a token account, zero when absent.
func (m *Manager) TokenBalance(addr [20]byte) (uint64, error) {
	acct, ok, err := m.TokenAccount(addr)
	if err != nil || !ok {
		return 0, err
	}
	return acct.Amount, nil
}

// MintTo issues new supply into the (owner, mint) account, creating it when
// needed. Used when seeding state from genesis.
func (m *Manager) MintTo(mint, owner [20]byte, amount uint64) error {
	record, ok, err := m.GetMint(mint)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: mint %s: %w", crypto.FromRaw(mint), coreerrors.ErrNotFound)
	}
	addr := m.TokenAccountAddress(owner, mint)
	acct, ok, err := m.TokenAccount(addr)
	if err != nil {
		return err
	}
	if !ok {
		if acct, err = m.CreateTokenAccount(owner, owner, mint); err != nil {
			return err
		}
	}
	supply, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(record.Supply), uint256.NewInt(amount))
	if overflow || !supply.IsUint64() {
		return fmt.Errorf("state: supply overflow: %w", coreerrors.ErrInvalidAmount)
	}
	record.Supply = supply.Uint64()
	acct.Amount += amount
	if err := m.putTokenAccount(acct); err != nil {
		return err
	}
	return m.KVPut(prefixed(mintPrefix, mint), record)
}
