package types

// Account is the native-currency record held for every address. Vault
// records keep their native balance here too.
type Account struct {
	Balance uint64 `json:"balance"`
}

// TokenAccount holds a fungible token balance for one (owner, mint) pair.
// Owner is the only party allowed to authorize outbound transfers.
type TokenAccount struct {
	Address [20]byte `json:"address"`
	Mint    [20]byte `json:"mint"`
	Owner   [20]byte `json:"owner"`
	Amount  uint64   `json:"amount"`
}

// Clone returns a detached copy.
func (t *TokenAccount) Clone() *TokenAccount {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
