package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

func init() {
	keystoreScryptN = keystore.LightScryptN
	keystoreScryptP = keystore.LightScryptP
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "operator.keystore")
	if err := SaveToKeystore(path, key, "hunter2"); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("keystore mode %v", info.Mode().Perm())
	}
	loaded, err := LoadFromKeystore(path, "hunter2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("address changed across round trip")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %d entries", len(entries))
	}
}

func TestSaveToKeystoreRejectsBadInput(t *testing.T) {
	if err := SaveToKeystore(filepath.Join(t.TempDir(), "k"), nil, ""); err == nil {
		t.Fatalf("expected nil key error")
	}
	key, _ := GeneratePrivateKey()
	if err := SaveToKeystore("", key, ""); err == nil {
		t.Fatalf("expected empty path error")
	}
}
