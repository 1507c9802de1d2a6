package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var gatewayEndpoint = defaultEndpoint() // SKT_GATEWAY_URL or --gateway

func defaultEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("SKT_GATEWAY_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "generate-key":
		return runGenerateKey(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "find-authority":
		return runFindAuthority(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	}
	c, err := buildCall(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintln(stderr, usage())
		return 1
	}
	client := newClient(gatewayEndpoint)
	if c.signed {
		key, err := loadKey(c.keyFile)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		client.key = key
	}
	if err := client.do(c, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--gateway" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --gateway")
			}
			gatewayEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--gateway=") {
			gatewayEndpoint = strings.TrimPrefix(arg, "--gateway=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func usage() string {
	return `Usage: skt-cli [--gateway URL] <command> [flags]

Keys:
  generate-key [--out operator.keystore]
  address --key FILE
  find-authority --kind vault|raffle --addr ADDR

Custody (signed, --key FILE):
  global init | global add-admin --admin ADDR | global remove-admin --admin ADDR
  vault init --vault ADDR --token MINT [--nonce N] [--pool ADDR]
  vault withdraw --vault ADDR [--tokens N] [--native N]
  vault claim --vault ADDR --amount N
  vault convert --vault ADDR --option N [--holder]
  raffle create --id ADDR --token MINT --tickets N --price N [--nft MINT] [--store-buyers]
  raffle buy --id ADDR --tickets N --price N [--token-account ADDR]
  raffle finalize --id ADDR
  pause --module NAME [--off]

Queries:
  global show | vault show --vault ADDR | vault list | raffle show --id ADDR
  raffle list | raffle buyers --id ADDR [--offset N] [--limit N]
  account --addr ADDR | mints | rates | pauses
  events [--module M] [--type T] [--actor ADDR] [--limit N]`
}
