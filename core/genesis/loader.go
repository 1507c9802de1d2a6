package genesis

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"sktvault/core/state"
	"sktvault/crypto"
	"sktvault/native/custody"
	"sktvault/native/raffle"
	"sktvault/storage"
)

// ErrAlreadyInitialised is returned when the database already carries a
// global configuration.
var ErrAlreadyInitialised = fmt.Errorf("genesis: state already initialised")

// BuildGenesisFromSpec seeds db from spec in one atomic commit. Every list is
// applied in a canonical order so identical specs yield identical state.
func BuildGenesisFromSpec(spec *GenesisSpec, db storage.Database) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return fmt.Errorf("database must not be nil")
	}
	manager := state.NewManager(db)
	if err := applyGenesis(spec, manager); err != nil {
		manager.Discard()
		return err
	}
	if err := manager.Commit(); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	return nil
}

func applyGenesis(spec *GenesisSpec, manager *state.Manager) error {
	if _, ok, err := manager.GlobalConfig(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialised
	}

	// 1) Global config
	authority, err := ParseAccount(spec.Authority)
	if err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	cfg, err := custody.NewGlobalConfig(authority)
	if err != nil {
		return err
	}
	admins, err := parseAccounts("admins", spec.Admins)
	if err != nil {
		return err
	}
	for _, admin := range admins {
		if cfg, err = custody.AddAdmin(authority, cfg, admin); err != nil {
			return fmt.Errorf("admin %s: %w", crypto.FromRaw(admin), err)
		}
	}
	if err := manager.PutGlobalConfig(cfg); err != nil {
		return err
	}

	// 2) Mints (sorted by address)
	mints := append([]MintSpec(nil), spec.Mints...)
	sort.Slice(mints, func(i, j int) bool { return mints[i].Address < mints[j].Address })
	for _, m := range mints {
		addr, err := ParseAccount(m.Address)
		if err != nil {
			return err
		}
		record := &state.Mint{Address: addr, Symbol: strings.ToUpper(strings.TrimSpace(m.Symbol)), Decimals: m.Decimals}
		if err := manager.RegisterMint(record); err != nil {
			return fmt.Errorf("mint %q: %w", m.Symbol, err)
		}
	}

	// 3) Native balances (sorted by address)
	holders := make([]string, 0, len(spec.Balances))
	for addr := range spec.Balances {
		holders = append(holders, addr)
	}
	sort.Strings(holders)
	for _, addrStr := range holders {
		addr, err := ParseAccount(addrStr)
		if err != nil {
			return err
		}
		amount, err := parseAmount(spec.Balances[addrStr])
		if err != nil {
			return fmt.Errorf("balances[%q]: %w", addrStr, err)
		}
		if err := manager.CreditNative(addr, amount); err != nil {
			return fmt.Errorf("balances[%q]: %w", addrStr, err)
		}
	}

	// 4) Token allocations
	tokens := append([]TokenAllocSpec(nil), spec.Tokens...)
	sort.SliceStable(tokens, func(i, j int) bool {
		if tokens[i].Mint != tokens[j].Mint {
			return tokens[i].Mint < tokens[j].Mint
		}
		return tokens[i].Owner < tokens[j].Owner
	})
	for _, t := range tokens {
		owner, _ := ParseAccount(t.Owner)
		mint, _ := ParseAccount(t.Mint)
		amount, err := parseAmount(t.Amount)
		if err != nil {
			return err
		}
		if err := manager.MintTo(mint, owner, amount); err != nil {
			return fmt.Errorf("tokens %s/%s: %w", t.Owner, t.Mint, err)
		}
	}

	// 5) Vaults
	engine := custody.NewEngine()
	engine.SetState(manager)
	if ts := spec.GenesisTimestamp(); !ts.IsZero() {
		engine.SetNowFunc(func() int64 { return ts.Unix() })
	}
	vaults := append([]VaultSpec(nil), spec.Vaults...)
	sort.Slice(vaults, func(i, j int) bool { return vaults[i].Address < vaults[j].Address })
	for _, v := range vaults {
		addr, _ := ParseAccount(v.Address)
		mint, _ := ParseAccount(v.TokenType)
		nonce, err := resolveNonce(custody.VaultSeedPrefix, addr, v.Nonce)
		if err != nil {
			return fmt.Errorf("vault %s: %w", v.Address, err)
		}
		vault, err := engine.InitializeVault(custody.InitParams{Vault: addr, TokenType: mint, Nonce: nonce, Payer: authority})
		if err != nil {
			return fmt.Errorf("vault %s: %w", v.Address, err)
		}
		if funding, _ := parseOptionalAmount(v.Funding); funding > 0 {
			if err := manager.MintTo(mint, vault.Pool, funding); err != nil {
				return fmt.Errorf("vault %s funding: %w", v.Address, err)
			}
		}
		if native, _ := parseOptionalAmount(v.Native); native > 0 {
			if err := manager.CreditNative(addr, native); err != nil {
				return fmt.Errorf("vault %s native: %w", v.Address, err)
			}
		}
	}

	// 6) Raffles
	ledger := raffle.NewLedger()
	ledger.SetState(manager)
	raffles := append([]RaffleSpec(nil), spec.Raffles...)
	sort.Slice(raffles, func(i, j int) bool { return bytes.Compare([]byte(raffles[i].ID), []byte(raffles[j].ID)) < 0 })
	for _, r := range raffles {
		id, _ := ParseAccount(r.ID)
		owner, _ := ParseAccount(r.Owner)
		token, _ := ParseAccount(r.Token)
		var nft [20]byte
		if strings.TrimSpace(r.NFTMint) != "" {
			nft, _ = ParseAccount(r.NFTMint)
		}
		price, _ := parseAmount(r.PricePerTicket)
		nonce, err := resolveNonce(raffle.PoolSeedPrefix, id, r.PoolNonce)
		if err != nil {
			return fmt.Errorf("raffle %s: %w", r.ID, err)
		}
		if _, err := ledger.Create(owner, raffle.CreateParams{
			ID:             id,
			PoolNonce:      nonce,
			TotalTickets:   r.TotalTickets,
			PricePerTicket: price,
			TokenAddress:   token,
			NFTMintAddress: nft,
			StoreBuyers:    r.StoreBuyers,
		}); err != nil {
			return fmt.Errorf("raffle %s: %w", r.ID, err)
		}
	}
	return nil
}

func resolveNonce(tag string, owner [20]byte, declared *uint8) (uint8, error) {
	if declared != nil {
		return *declared, nil
	}
	_, nonce, err := crypto.FindAuthority(tag, owner)
	return nonce, err
}
