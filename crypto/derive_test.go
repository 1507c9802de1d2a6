package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func testOwner(fill byte) [20]byte {
	var out [20]byte
	copy(out[:], bytes.Repeat([]byte{fill}, 20))
	return out
}

func TestFindAuthorityDeterministic(t *testing.T) {
	owner := testOwner(0x11)
	first, nonce, err := FindAuthority("vault-skt", owner)
	if err != nil {
		t.Fatalf("find authority: %v", err)
	}
	second, again, err := FindAuthority("vault-skt", owner)
	if err != nil {
		t.Fatalf("find authority again: %v", err)
	}
	if first != second || nonce != again {
		t.Fatalf("derivation not deterministic: %x/%d vs %x/%d", first, nonce, second, again)
	}
	derived, err := DeriveAuthority("vault-skt", owner, nonce)
	if err != nil {
		t.Fatalf("derive with found nonce: %v", err)
	}
	if derived != first {
		t.Fatalf("derive mismatch")
	}
	if err := VerifyAuthority("vault-skt", owner, nonce, first); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestDeriveAuthoritySeparatesInputs(t *testing.T) {
	a, _, err := FindAuthority("vault-skt", testOwner(0x01))
	if err != nil {
		t.Fatalf("derive a: %v", err)
	}
	b, _, err := FindAuthority("vault-skt", testOwner(0x02))
	if err != nil {
		t.Fatalf("derive b: %v", err)
	}
	c, _, err := FindAuthority("raffle-pool", testOwner(0x01))
	if err != nil {
		t.Fatalf("derive c: %v", err)
	}
	if a == b || a == c || b == c {
		t.Fatalf("expected distinct authorities")
	}
}

func TestDeriveAuthorityRejectsBadSeeds(t *testing.T) {
	if _, err := DeriveAuthority("", testOwner(1), 255); !errors.Is(err, ErrInvalidSeeds) {
		t.Fatalf("expected ErrInvalidSeeds, got %v", err)
	}
	long := string(bytes.Repeat([]byte{'x'}, MaxSeedLength+1))
	if _, _, err := FindAuthority(long, testOwner(1)); !errors.Is(err, ErrInvalidSeeds) {
		t.Fatalf("expected ErrInvalidSeeds, got %v", err)
	}
}

func TestVerifyAuthorityWrongTarget(t *testing.T) {
	owner := testOwner(0x33)
	_, nonce, err := FindAuthority("vault-skt", owner)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := VerifyAuthority("vault-skt", owner, nonce, testOwner(0x44)); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestSignAndRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	payload := []byte("withdraw")
	sig, err := key.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signer, err := RecoverSigner(payload, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signer.String() != key.PubKey().Address().String() {
		t.Fatalf("recovered %s want %s", signer, key.PubKey().Address())
	}
	decoded, err := DecodeAddress(signer.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Raw() != signer.Raw() {
		t.Fatalf("round trip mismatch")
	}
}
