package custody

import (
	"bytes"
	"sort"
)

const (
	// ModuleName is used for pause switches and metrics labels.
	ModuleName = "custody"
	// Version is reported in vault lifecycle logs.
	Version = "1.1.0"

	// MaxAdmins bounds GlobalConfig.Admins.
	MaxAdmins = 5
	// UnitScale is the number of base units per display unit.
	UnitScale uint64 = 1_000_000_000
	// MaxWithdrawTokens is the exclusive upper bound on a single token withdrawal.
	MaxWithdrawTokens = 10_000 * UnitScale

	// VaultSeedPrefix is the purpose tag used to derive a vault's custody authority.
	VaultSeedPrefix = "vault-skt"
	// VaultCreatedMemo is recorded when a vault is first initialised.
	VaultCreatedMemo = "Vault Created"
)

// Vault is one custody relationship for one token type. The nonce is fixed
// for the vault's lifetime.
type Vault struct {
	Address          [20]byte
	TokenType        [20]byte
	DerivationNonce  uint8
	Pool             [20]byte
	PoolTokenAccount [20]byte
	CreatedAt        uint64
}

// Clone returns a detached copy of the vault.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// GlobalConfig carries the config authority and the admin set. It is loaded
// by the caller and passed to every privileged operation.
type GlobalConfig struct {
	Authority [20]byte
	Admins    [][20]byte
}

// Clone returns a detached copy of the configuration.
func (g *GlobalConfig) Clone() *GlobalConfig {
	if g == nil {
		return nil
	}
	cp := &GlobalConfig{Authority: g.Authority}
	if len(g.Admins) > 0 {
		cp.Admins = make([][20]byte, len(g.Admins))
		copy(cp.Admins, g.Admins)
	}
	return cp
}

// IsAdmin reports whether addr is in the admin set.
func (g *GlobalConfig) IsAdmin(addr [20]byte) bool {
	if g == nil {
		return false
	}
	for _, admin := range g.Admins {
		if admin == addr {
			return true
		}
	}
	return false
}

func sortAdmins(admins [][20]byte) {
	sort.Slice(admins, func(i, j int) bool {
		return bytes.Compare(admins[i][:], admins[j][:]) < 0
	})
}
