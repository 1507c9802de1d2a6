package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"sktvault/cmd/internal/passphrase"
	"sktvault/crypto"
	"sktvault/native/custody"
	"sktvault/native/raffle"
)

const keyPassEnv = "SKT_KEY_PASS"

var keyPassphrase = passphrase.NewSource(keyPassEnv, "key").Get

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("generate-key", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "operator.keystore", "keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", *out)
		return 1
	}
	pass, err := keyPassphrase()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error: save keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Generated key in %s\n", *out)
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyFile := fs.String("key", "operator.keystore", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func runFindAuthority(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("find-authority", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kind := fs.String("kind", "vault", "vault or raffle")
	addr := fs.String("addr", "", "vault or raffle address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	var tag string
	switch *kind {
	case "vault":
		tag = custody.VaultSeedPrefix
	case "raffle":
		tag = raffle.PoolSeedPrefix
	default:
		fmt.Fprintf(stderr, "Error: unknown kind %q\n", *kind)
		return 1
	}
	owner, err := crypto.ParseRaw(strings.TrimSpace(*addr))
	if err != nil {
		fmt.Fprintf(stderr, "Error: --addr: %v\n", err)
		return 1
	}
	authority, nonce, err := crypto.FindAuthority(tag, owner)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "authority: %s\nnonce: %d\n", crypto.FromRaw(authority).String(), nonce)
	return 0
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("--key is required for signed commands")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("keystore %s not found. run skt-cli generate-key first", path)
		}
		return nil, err
	}
	pass, err := keyPassphrase()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("unlock %s: %w", path, err)
	}
	return key, nil
}
