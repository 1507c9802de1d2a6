package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"sktvault/core"
	"sktvault/core/types"
	"sktvault/crypto"
	"sktvault/native/custody"
	"sktvault/native/raffle"
)

// Address is a 20-byte account rendered as bech32 in JSON.
type Address [20]byte

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(crypto.FromRaw(a).String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("address must be a string: %w", err)
	}
	raw, err := crypto.ParseRaw(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*a = raw
	return nil
}

// Amount is a base-unit quantity. JSON carries it as a decimal string so
// values above 2^53 survive JavaScript clients; bare numbers are accepted.
type Amount uint64

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(a), 10))
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(strings.Trim(string(data), `"`))
	v, err := parseAmount(s)
	if err != nil {
		return err
	}
	*a = Amount(v)
	return nil
}

func parseAmount(s string) (uint64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if cleaned == "" {
		return 0, fmt.Errorf("amount required")
	}
	v, err := uint256.FromDecimal(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("amount %q exceeds 64 bits", s)
	}
	return v.Uint64(), nil
}

type globalView struct {
	Authority Address   `json:"authority"`
	Admins    []Address `json:"admins"`
}

func newGlobalView(cfg *custody.GlobalConfig) globalView {
	out := globalView{Authority: cfg.Authority, Admins: make([]Address, 0, len(cfg.Admins))}
	for _, a := range cfg.Admins {
		out.Admins = append(out.Admins, a)
	}
	return out
}

type vaultView struct {
	Address          Address `json:"address"`
	TokenType        Address `json:"tokenType"`
	Nonce            uint8   `json:"nonce"`
	Pool             Address `json:"pool"`
	PoolTokenAccount Address `json:"poolTokenAccount"`
	CreatedAt        uint64  `json:"createdAt"`
	PoolBalance      *Amount `json:"poolBalance,omitempty"`
	NativeBalance    *Amount `json:"nativeBalance,omitempty"`
}

func newVaultView(v *custody.Vault) vaultView {
	return vaultView{
		Address:          v.Address,
		TokenType:        v.TokenType,
		Nonce:            v.DerivationNonce,
		Pool:             v.Pool,
		PoolTokenAccount: v.PoolTokenAccount,
		CreatedAt:        v.CreatedAt,
	}
}

func newVaultBalanceView(v *core.VaultView) vaultView {
	out := newVaultView(v.Vault)
	pool, native := Amount(v.PoolBalance), Amount(v.NativeBalance)
	out.PoolBalance, out.NativeBalance = &pool, &native
	return out
}

type buyerView struct {
	Buyer   Address `json:"buyer"`
	Tickets uint32  `json:"tickets"`
}

type raffleView struct {
	ID               Address `json:"id"`
	Owner            Address `json:"owner"`
	Token            Address `json:"token"`
	NFTMint          Address `json:"nftMint"`
	Pool             Address `json:"pool"`
	PoolTokenAccount Address `json:"poolTokenAccount"`
	PoolNonce        uint8   `json:"poolNonce"`
	PricePerTicket   Amount  `json:"pricePerTicket"`
	TotalTickets     uint32  `json:"totalTickets"`
	SoldTickets      uint32  `json:"soldTickets"`
	Remaining        uint32  `json:"remainingTickets"`
	StoreBuyers      bool    `json:"storeBuyers"`
	Finalized        bool    `json:"finalized"`
	BuyerCount       int     `json:"buyerCount"`
}

func newRaffleView(r *raffle.Raffle) raffleView {
	return raffleView{
		ID:               r.ID,
		Owner:            r.Owner,
		Token:            r.TokenAddress,
		NFTMint:          r.NFTMintAddress,
		Pool:             r.Pool,
		PoolTokenAccount: r.PoolTokenAccount,
		PoolNonce:        r.PoolNonce,
		PricePerTicket:   Amount(r.PricePerTicket),
		TotalTickets:     r.TotalTickets,
		SoldTickets:      r.SoldTickets,
		Remaining:        r.Remaining(),
		StoreBuyers:      r.StoreBuyers,
		Finalized:        r.IsFinalized,
		BuyerCount:       len(r.Buyers),
	}
}

type tokenAccountView struct {
	Address Address `json:"address"`
	Mint    Address `json:"mint"`
	Amount  Amount  `json:"amount"`
}

type accountView struct {
	Address Address            `json:"address"`
	Native  Amount             `json:"native"`
	Tokens  []tokenAccountView `json:"tokens"`
}

func newAccountView(a *core.AccountView) accountView {
	out := accountView{Address: a.Address, Native: Amount(a.Native), Tokens: make([]tokenAccountView, 0, len(a.Tokens))}
	for _, t := range a.Tokens {
		out.Tokens = append(out.Tokens, newTokenAccountView(t))
	}
	return out
}

func newTokenAccountView(t types.TokenAccount) tokenAccountView {
	return tokenAccountView{Address: t.Address, Mint: t.Mint, Amount: Amount(t.Amount)}
}

type eventView struct {
	Sequence   uint64            `json:"sequence"`
	Cursor     string            `json:"cursor,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
