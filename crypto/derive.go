package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxSeedLength bounds the purpose tag mixed into a derivation.
	MaxSeedLength = 32

	derivationDomain = "sktvault/derived-authority"
)

var (
	// ErrInvalidSeeds is returned when the purpose tag is empty or too long.
	ErrInvalidSeeds = errors.New("crypto: invalid derivation seeds")
	// ErrOnCurve is returned when the candidate digest could belong to a
	// real secp256k1 key and therefore cannot act as a derived authority.
	ErrOnCurve = errors.New("crypto: derived candidate lies on curve")
	// ErrNoViableNonce is returned when no nonce in [0,255] yields a valid authority.
	ErrNoViableNonce = errors.New("crypto: no viable derivation nonce")
)

// DeriveAuthority computes the program-controlled address for (tag, owner,
// nonce). The digest must not be the x-coordinate of a secp256k1 point so
// that no private key can ever sign for the resulting address.
func DeriveAuthority(tag string, owner [20]byte, nonce uint8) ([20]byte, error) {
	var out [20]byte
	if len(tag) == 0 || len(tag) > MaxSeedLength {
		return out, ErrInvalidSeeds
	}
	digest := crypto.Keccak256([]byte(tag), owner[:], []byte{nonce}, []byte(derivationDomain))
	if onCurve(digest) {
		return out, ErrOnCurve
	}
	copy(out[:], crypto.Keccak256(digest)[12:])
	return out, nil
}

// FindAuthority returns the first valid derivation scanning nonces downward
// from 255.
func FindAuthority(tag string, owner [20]byte) ([20]byte, uint8, error) {
	for n := 255; n >= 0; n-- {
		addr, err := DeriveAuthority(tag, owner, uint8(n))
		switch {
		case err == nil:
			return addr, uint8(n), nil
		case errors.Is(err, ErrOnCurve):
			continue
		default:
			return [20]byte{}, 0, err
		}
	}
	return [20]byte{}, 0, fmt.Errorf("%w: tag %q", ErrNoViableNonce, tag)
}

// VerifyAuthority re-derives the address for nonce and checks it matches
// target.
func VerifyAuthority(tag string, owner [20]byte, nonce uint8, target [20]byte) error {
	addr, err := DeriveAuthority(tag, owner, nonce)
	if err != nil {
		return err
	}
	if addr != target {
		return fmt.Errorf("crypto: nonce %d derives %s, want %s", nonce, FromRaw(addr), FromRaw(target))
	}
	return nil
}

func onCurve(x []byte) bool {
	compressed := make([]byte, 33)
	compressed[0] = 0x02
	copy(compressed[1:], x)
	_, err := crypto.DecompressPubkey(compressed)
	return err == nil
}
