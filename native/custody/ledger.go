package custody

import "sktvault/core/types"

// TokenLedger moves fungible tokens between token accounts. Engines never
// touch storage directly; every token movement goes through this interface.
type TokenLedger interface {
	TokenAccountAddress(owner, mint [20]byte) [20]byte
	TokenAccount(addr [20]byte) (*types.TokenAccount, bool, error)
	// CreateTokenAccount provisions the (owner, mint) account paid for by payer.
	CreateTokenAccount(payer, owner, mint [20]byte) (*types.TokenAccount, error)
	// TransferToken moves amount from one token account to another. signer
	// must be the owner recorded on the source account.
	TransferToken(from, to, signer [20]byte, amount uint64) error
	TokenBalance(addr [20]byte) (uint64, error)
}

// NativeLedger exposes native currency balances.
type NativeLedger interface {
	NativeBalance(addr [20]byte) (uint64, error)
	// TransferNative is a caller-signed movement between two accounts.
	TransferNative(from, to [20]byte, amount uint64) error
	// DebitNative and CreditNative adjust raw balances without delegation.
	DebitNative(addr [20]byte, amount uint64) error
	CreditNative(addr [20]byte, amount uint64) error
}

// VaultStore persists vault records.
type VaultStore interface {
	VaultGet(addr [20]byte) (*Vault, bool, error)
	VaultPut(v *Vault) error
}

// State bundles everything the engine needs from the host.
type State interface {
	TokenLedger
	NativeLedger
	VaultStore
}
