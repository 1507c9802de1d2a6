package custody

import (
	"fmt"

	"sktvault/crypto"
)

// SigningAuthority proves that program logic, not an external key holder,
// authorizes movement out of a custody account.
type SigningAuthority interface {
	// Address is the identity recorded as owner of custody token accounts.
	Address() [20]byte
	// Authorize fails unless this authority may sign for an account owned
	// by owner.
	Authorize(owner [20]byte) error
}

// DerivedAuthority reconstructs the custody signer from (tag, owner, nonce)
// on every use. No secret is stored.
type DerivedAuthority struct {
	Tag   string
	Owner [20]byte
	Nonce uint8

	addr [20]byte
}

// NewDerivedAuthority validates the derivation up front so a bad nonce fails
// at construction rather than at transfer time.
func NewDerivedAuthority(tag string, owner [20]byte, nonce uint8) (*DerivedAuthority, error) {
	addr, err := crypto.DeriveAuthority(tag, owner, nonce)
	if err != nil {
		return nil, fmt.Errorf("custody: derive %s authority for %s nonce %d: %w", tag, crypto.FromRaw(owner), nonce, err)
	}
	return &DerivedAuthority{Tag: tag, Owner: owner, Nonce: nonce, addr: addr}, nil
}

// VaultAuthority returns the derived signer for vault.
func VaultAuthority(v *Vault) (*DerivedAuthority, error) {
	if v == nil {
		return nil, fmt.Errorf("custody: nil vault")
	}
	return NewDerivedAuthority(VaultSeedPrefix, v.Address, v.DerivationNonce)
}

func (d *DerivedAuthority) Address() [20]byte { return d.addr }

func (d *DerivedAuthority) Authorize(owner [20]byte) error {
	derived, err := crypto.DeriveAuthority(d.Tag, d.Owner, d.Nonce)
	if err != nil {
		return err
	}
	if derived != owner {
		return fmt.Errorf("custody: authority %s cannot sign for %s", crypto.FromRaw(derived), crypto.FromRaw(owner))
	}
	return nil
}

// StubAuthority authorizes everything. It exists for unit tests that do not
// exercise derivation.
type StubAuthority struct {
	Addr [20]byte
}

func (s StubAuthority) Address() [20]byte { return s.Addr }

func (StubAuthority) Authorize([20]byte) error { return nil }
