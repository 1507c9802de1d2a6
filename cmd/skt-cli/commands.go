package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// call is one gateway request assembled from command-line arguments.
type call struct {
	method  string
	path    string
	body    map[string]interface{}
	signed  bool
	keyFile string
}

func buildCall(args []string) (*call, error) {
	switch args[0] {
	case "global":
		return buildGlobal(args[1:])
	case "vault":
		return buildVault(args[1:])
	case "raffle":
		return buildRaffle(args[1:])
	case "pause":
		fs, keyFile := newFlags("pause")
		module := fs.String("module", "", "custody, exchange or raffle")
		off := fs.Bool("off", false, "resume instead of pausing")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		if err := required("module", *module); err != nil {
			return nil, err
		}
		return signedCall("POST", "/v1/admin/pauses", *keyFile, map[string]interface{}{"module": *module, "paused": !*off}), nil
	case "pauses":
		return &call{method: "GET", path: "/v1/admin/pauses"}, nil
	case "account":
		fs, _ := newFlags("account")
		addr := fs.String("addr", "", "account address")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		if err := required("addr", *addr); err != nil {
			return nil, err
		}
		return &call{method: "GET", path: "/v1/accounts/" + url.PathEscape(*addr)}, nil
	case "mints":
		return &call{method: "GET", path: "/v1/mints"}, nil
	case "rates":
		return &call{method: "GET", path: "/v1/exchange/rates"}, nil
	case "events":
		fs, _ := newFlags("events")
		module := fs.String("module", "", "module filter")
		typ := fs.String("type", "", "event type filter")
		actor := fs.String("actor", "", "actor address filter")
		limit := fs.Int("limit", 0, "maximum events")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		q := url.Values{}
		setIf(q, "module", *module)
		setIf(q, "type", *typ)
		setIf(q, "actor", *actor)
		if *limit > 0 {
			q.Set("limit", strconv.Itoa(*limit))
		}
		return &call{method: "GET", path: withQuery("/v1/events", q)}, nil
	}
	return nil, fmt.Errorf("unknown command %q", args[0])
}

func buildGlobal(args []string) (*call, error) {
	if len(args) == 0 {
		return nil, errors.New("global needs a subcommand")
	}
	fs, keyFile := newFlags("global " + args[0])
	admin := fs.String("admin", "", "admin address")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	switch args[0] {
	case "show":
		return &call{method: "GET", path: "/v1/global"}, nil
	case "init":
		return signedCall("POST", "/v1/global/init", *keyFile, nil), nil
	case "add-admin":
		if err := required("admin", *admin); err != nil {
			return nil, err
		}
		return signedCall("POST", "/v1/global/admins", *keyFile, map[string]interface{}{"admin": *admin}), nil
	case "remove-admin":
		if err := required("admin", *admin); err != nil {
			return nil, err
		}
		return signedCall("DELETE", "/v1/global/admins/"+url.PathEscape(*admin), *keyFile, nil), nil
	}
	return nil, fmt.Errorf("unknown global subcommand %q", args[0])
}

func buildVault(args []string) (*call, error) {
	if len(args) == 0 {
		return nil, errors.New("vault needs a subcommand")
	}
	fs, keyFile := newFlags("vault " + args[0])
	vault := fs.String("vault", "", "vault address")
	token := fs.String("token", "", "token mint")
	nonce := fs.Int("nonce", -1, "derivation nonce (default: search)")
	pool := fs.String("pool", "", "expected custody authority")
	tokens := fs.String("tokens", "0", "token base units to withdraw")
	native := fs.String("native", "0", "native base units to withdraw")
	amount := fs.String("amount", "", "token base units to claim")
	option := fs.Uint("option", 0, "conversion option")
	holder := fs.Bool("holder", false, "apply the holder rate")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	if args[0] == "list" {
		return &call{method: "GET", path: "/v1/vaults"}, nil
	}
	if err := required("vault", *vault); err != nil {
		return nil, err
	}
	base := "/v1/vaults/" + url.PathEscape(*vault)
	switch args[0] {
	case "show":
		return &call{method: "GET", path: base}, nil
	case "init":
		if err := required("token", *token); err != nil {
			return nil, err
		}
		body := map[string]interface{}{"vault": *vault, "tokenType": *token}
		if *nonce >= 0 {
			if *nonce > 255 {
				return nil, fmt.Errorf("--nonce must be below 256")
			}
			body["nonce"] = *nonce
		}
		if *pool != "" {
			body["pool"] = *pool
		}
		return signedCall("POST", "/v1/vaults", *keyFile, body), nil
	case "withdraw":
		return signedCall("POST", base+"/withdraw", *keyFile, map[string]interface{}{"tokenAmount": *tokens, "nativeAmount": *native}), nil
	case "claim":
		if err := required("amount", *amount); err != nil {
			return nil, err
		}
		return signedCall("POST", base+"/claim", *keyFile, map[string]interface{}{"amount": *amount}), nil
	case "convert":
		if *option > 255 {
			return nil, fmt.Errorf("--option must be below 256")
		}
		return signedCall("POST", base+"/convert", *keyFile, map[string]interface{}{"option": *option, "isHolder": *holder}), nil
	}
	return nil, fmt.Errorf("unknown vault subcommand %q", args[0])
}

func buildRaffle(args []string) (*call, error) {
	if len(args) == 0 {
		return nil, errors.New("raffle needs a subcommand")
	}
	fs, keyFile := newFlags("raffle " + args[0])
	id := fs.String("id", "", "raffle id")
	token := fs.String("token", "", "payment token mint")
	nft := fs.String("nft", "", "prize NFT mint")
	tickets := fs.Uint("tickets", 0, "ticket count")
	price := fs.String("price", "", "price per ticket in base units")
	storeBuyers := fs.Bool("store-buyers", false, "keep the per-buyer ledger")
	tokenAccount := fs.String("token-account", "", "paying token account (default: canonical)")
	offset := fs.Int("offset", 0, "buyer page offset")
	limit := fs.Int("limit", 0, "buyer page size")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	if args[0] == "list" {
		return &call{method: "GET", path: "/v1/raffles"}, nil
	}
	if err := required("id", *id); err != nil {
		return nil, err
	}
	base := "/v1/raffles/" + url.PathEscape(*id)
	switch args[0] {
	case "show":
		return &call{method: "GET", path: base}, nil
	case "buyers":
		q := url.Values{}
		if *offset > 0 {
			q.Set("offset", strconv.Itoa(*offset))
		}
		if *limit > 0 {
			q.Set("limit", strconv.Itoa(*limit))
		}
		return &call{method: "GET", path: withQuery(base+"/buyers", q)}, nil
	case "create":
		if err := required("token", *token); err != nil {
			return nil, err
		}
		if err := required("price", *price); err != nil {
			return nil, err
		}
		body := map[string]interface{}{
			"id": *id, "token": *token, "totalTickets": *tickets,
			"pricePerTicket": *price, "storeBuyers": *storeBuyers,
		}
		if *nft != "" {
			body["nftMint"] = *nft
		}
		return signedCall("POST", "/v1/raffles", *keyFile, body), nil
	case "buy":
		if err := required("price", *price); err != nil {
			return nil, err
		}
		body := map[string]interface{}{"tickets": *tickets, "price": *price}
		if *tokenAccount != "" {
			body["tokenAccount"] = *tokenAccount
		}
		return signedCall("POST", base+"/buy", *keyFile, body), nil
	case "finalize":
		return signedCall("POST", base+"/finalize", *keyFile, nil), nil
	}
	return nil, fmt.Errorf("unknown raffle subcommand %q", args[0])
}

func newFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	keyFile := fs.String("key", "operator.keystore", "keystore used to sign the request")
	return fs, keyFile
}

func signedCall(method, path, keyFile string, body map[string]interface{}) *call {
	return &call{method: method, path: path, body: body, signed: true, keyFile: keyFile}
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

func setIf(q url.Values, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		q.Set(key, v)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
