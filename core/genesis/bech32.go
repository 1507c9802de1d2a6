package genesis

import (
	"fmt"
	"strings"

	"sktvault/crypto"
)

// ParseAccount decodes an skt1… address from a genesis file.
func ParseAccount(addr string) ([20]byte, error) {
	raw, err := crypto.ParseRaw(strings.TrimSpace(addr))
	if err != nil {
		return raw, fmt.Errorf("decode account %q: %w", addr, err)
	}
	return raw, nil
}

func parseAccounts(field string, addrs []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(addrs))
	for i, a := range addrs {
		raw, err := ParseAccount(a)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}
