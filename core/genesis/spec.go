package genesis

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"sktvault/crypto"
	"sktvault/native/custody"
)

// GenesisSpec is the YAML document that seeds an empty state database.
type GenesisSpec struct {
	GenesisTime string            `yaml:"genesisTime,omitempty"`
	Authority   string            `yaml:"authority"`
	Admins      []string          `yaml:"admins,omitempty"`
	Mints       []MintSpec        `yaml:"mints,omitempty"`
	Balances    map[string]string `yaml:"balances,omitempty"` // addr -> native base units
	Tokens      []TokenAllocSpec  `yaml:"tokens,omitempty"`
	Vaults      []VaultSpec       `yaml:"vaults,omitempty"`
	Raffles     []RaffleSpec      `yaml:"raffles,omitempty"`

	genesisTimestamp time.Time
}

type MintSpec struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

type TokenAllocSpec struct {
	Owner  string `yaml:"owner"`
	Mint   string `yaml:"mint"`
	Amount string `yaml:"amount"`
}

// VaultSpec pre-creates a vault. When Nonce is omitted the highest viable
// nonce is searched for.
type VaultSpec struct {
	Address   string `yaml:"address"`
	TokenType string `yaml:"tokenType"`
	Nonce     *uint8 `yaml:"nonce,omitempty"`
	// Funding is minted straight into the vault's custody account.
	Funding string `yaml:"funding,omitempty"`
	Native  string `yaml:"native,omitempty"`
}

type RaffleSpec struct {
	ID             string `yaml:"id"`
	Owner          string `yaml:"owner"`
	PoolNonce      *uint8 `yaml:"poolNonce,omitempty"`
	TotalTickets   uint32 `yaml:"totalTickets"`
	PricePerTicket string `yaml:"pricePerTicket"`
	Token          string `yaml:"token"`
	NFTMint        string `yaml:"nftMint,omitempty"`
	StoreBuyers    bool   `yaml:"storeBuyers"`
}

// LoadGenesisSpec reads and validates a YAML genesis file. Unknown fields
// are rejected.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates YAML genesis bytes.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// GenesisTimestamp is the parsed genesis time, or the zero time when the
// document omits it.
func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

func (s *GenesisSpec) validate() error {
	if strings.TrimSpace(s.GenesisTime) != "" {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s.GenesisTime))
		if err != nil {
			return fmt.Errorf("genesisTime: %w", err)
		}
		s.genesisTimestamp = ts.UTC()
	}
	if _, err := ParseAccount(s.Authority); err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	admins, err := parseAccounts("admins", s.Admins)
	if err != nil {
		return err
	}
	if len(admins) > custody.MaxAdmins {
		return fmt.Errorf("admins: %d entries exceeds limit %d", len(admins), custody.MaxAdmins)
	}
	seen := make(map[[20]byte]struct{}, len(admins))
	for _, a := range admins {
		if _, dup := seen[a]; dup {
			return fmt.Errorf("admins: duplicate %s", crypto.FromRaw(a))
		}
		seen[a] = struct{}{}
	}

	mints := make(map[[20]byte]struct{}, len(s.Mints))
	for i, m := range s.Mints {
		addr, err := ParseAccount(m.Address)
		if err != nil {
			return fmt.Errorf("mints[%d]: %w", i, err)
		}
		if strings.TrimSpace(m.Symbol) == "" {
			return fmt.Errorf("mints[%d]: symbol required", i)
		}
		if _, dup := mints[addr]; dup {
			return fmt.Errorf("mints[%d]: duplicate address", i)
		}
		mints[addr] = struct{}{}
	}
	knownMint := func(field, v string) error {
		addr, err := ParseAccount(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if _, ok := mints[addr]; !ok {
			return fmt.Errorf("%s: mint %s not declared", field, v)
		}
		return nil
	}

	for addr, amount := range s.Balances {
		if _, err := ParseAccount(addr); err != nil {
			return fmt.Errorf("balances: %w", err)
		}
		if _, err := parseAmount(amount); err != nil {
			return fmt.Errorf("balances[%q]: %w", addr, err)
		}
	}
	for i, t := range s.Tokens {
		if _, err := ParseAccount(t.Owner); err != nil {
			return fmt.Errorf("tokens[%d].owner: %w", i, err)
		}
		if err := knownMint(fmt.Sprintf("tokens[%d].mint", i), t.Mint); err != nil {
			return err
		}
		if _, err := parseAmount(t.Amount); err != nil {
			return fmt.Errorf("tokens[%d].amount: %w", i, err)
		}
	}
	for i, v := range s.Vaults {
		if _, err := ParseAccount(v.Address); err != nil {
			return fmt.Errorf("vaults[%d].address: %w", i, err)
		}
		if err := knownMint(fmt.Sprintf("vaults[%d].tokenType", i), v.TokenType); err != nil {
			return err
		}
		if _, err := parseOptionalAmount(v.Funding); err != nil {
			return fmt.Errorf("vaults[%d].funding: %w", i, err)
		}
		if _, err := parseOptionalAmount(v.Native); err != nil {
			return fmt.Errorf("vaults[%d].native: %w", i, err)
		}
	}
	for i, r := range s.Raffles {
		if _, err := ParseAccount(r.ID); err != nil {
			return fmt.Errorf("raffles[%d].id: %w", i, err)
		}
		if _, err := ParseAccount(r.Owner); err != nil {
			return fmt.Errorf("raffles[%d].owner: %w", i, err)
		}
		if err := knownMint(fmt.Sprintf("raffles[%d].token", i), r.Token); err != nil {
			return err
		}
		if r.TotalTickets == 0 {
			return fmt.Errorf("raffles[%d].totalTickets must be positive", i)
		}
		if price, err := parseAmount(r.PricePerTicket); err != nil || price == 0 {
			return fmt.Errorf("raffles[%d].pricePerTicket must be a positive integer", i)
		}
		if strings.TrimSpace(r.NFTMint) != "" {
			if _, err := ParseAccount(r.NFTMint); err != nil {
				return fmt.Errorf("raffles[%d].nftMint: %w", i, err)
			}
		}
	}
	return nil
}

func parseAmount(value string) (uint64, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return 0, fmt.Errorf("amount required")
	}
	v, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("amount %q exceeds 64 bits", value)
	}
	return v.Uint64(), nil
}

func parseOptionalAmount(value string) (uint64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	return parseAmount(value)
}
