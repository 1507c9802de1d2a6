package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"sktvault/core"
	"sktvault/core/state"
	"sktvault/crypto"
	"sktvault/gateway/auth"
	"sktvault/integrations/indexer"
	"sktvault/native/common"
	"sktvault/native/custody"
	"sktvault/native/raffle"
	"sktvault/storage"
)

var (
	testMint   = [20]byte{0x55, 0x55, 0x55}
	testVault  = [20]byte{0x30, 0x30, 0x30}
	testRaffle = [20]byte{0x40, 0x40, 0x40}
)

type testEnv struct {
	srv    *httptest.Server
	node   *core.Node
	db     *storage.MemDB
	pauses *common.Pauses
	index  *indexer.Indexer
	nonce  atomic.Uint64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	m := state.NewManager(db)
	require.NoError(t, m.RegisterMint(&state.Mint{Address: testMint, Symbol: "SKT", Decimals: 9}))
	require.NoError(t, m.Commit())

	pauses := common.NewPauses()
	node, err := core.NewNode(db, core.Options{Pauses: pauses})
	require.NoError(t, err)

	gdb, err := indexer.Open(indexer.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	idx, err := indexer.New(gdb)
	require.NoError(t, err)

	server, err := New(Config{
		Backend:       node,
		Authenticator: auth.NewAuthenticator(time.Minute, 0, time.Now, nil),
		Index:         idx,
		Pauses:        pauses,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, node: node, db: db, pauses: pauses, index: idx}
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func keyAddr(key *crypto.PrivateKey) [20]byte { return key.PubKey().Address().Raw() }

func (e *testEnv) signed(t *testing.T, key *crypto.PrivateKey, method, path string, body interface{}) *http.Response {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	nonce := fmt.Sprintf("n-%d", e.nonce.Add(1))
	require.NoError(t, auth.SignRequest(req, key, payload, time.Now(), nonce))
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.srv.Client().Get(e.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) fund(t *testing.T, owner [20]byte, amount uint64) {
	t.Helper()
	m := state.NewManager(e.db)
	require.NoError(t, m.MintTo(testMint, owner, amount))
	require.NoError(t, m.Commit())
}

func readJSON(t *testing.T, resp *http.Response, want int, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equalf(t, want, resp.StatusCode, "body: %s", data)
	if out != nil {
		require.NoError(t, json.Unmarshal(data, out))
	}
}

func addr(raw [20]byte) string { return crypto.FromRaw(raw).String() }

func TestCustodyLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	authorityKey, adminKey, outsiderKey := newKey(t), newKey(t), newKey(t)

	var global globalView
	readJSON(t, env.signed(t, authorityKey, http.MethodPost, "/v1/global/init", nil), http.StatusCreated, &global)
	require.Equal(t, Address(keyAddr(authorityKey)), global.Authority)
	readJSON(t, env.signed(t, authorityKey, http.MethodPost, "/v1/global/init", nil), http.StatusConflict, nil)

	readJSON(t, env.signed(t, outsiderKey, http.MethodPost, "/v1/global/admins", map[string]string{"admin": addr(keyAddr(outsiderKey))}), http.StatusForbidden, nil)
	readJSON(t, env.signed(t, authorityKey, http.MethodPost, "/v1/global/admins", map[string]string{"admin": addr(keyAddr(adminKey))}), http.StatusOK, &global)
	require.Len(t, global.Admins, 1)

	var vault vaultView
	readJSON(t, env.signed(t, authorityKey, http.MethodPost, "/v1/vaults", map[string]string{
		"vault":     addr(testVault),
		"tokenType": addr(testMint),
	}), http.StatusOK, &vault)
	pool, nonce, err := crypto.FindAuthority(custody.VaultSeedPrefix, testVault)
	require.NoError(t, err)
	require.Equal(t, Address(pool), vault.Pool)
	require.Equal(t, nonce, vault.Nonce)

	var authority authorityView
	readJSON(t, env.get(t, "/v1/vaults/"+addr(testVault)+"/authority"), http.StatusOK, &authority)
	require.Equal(t, Address(pool), authority.Authority)

	env.fund(t, pool, 10_000)

	withdraw := map[string]string{"tokenAmount": "1000"}
	readJSON(t, env.signed(t, outsiderKey, http.MethodPost, "/v1/vaults/"+addr(testVault)+"/withdraw", withdraw), http.StatusForbidden, nil)
	readJSON(t, env.signed(t, adminKey, http.MethodPost, "/v1/vaults/"+addr(testVault)+"/withdraw", withdraw), http.StatusOK, &vault)
	require.NotNil(t, vault.PoolBalance)
	require.Equal(t, Amount(9_000), *vault.PoolBalance)

	readJSON(t, env.signed(t, outsiderKey, http.MethodPost, "/v1/vaults/"+addr(testVault)+"/claim", map[string]string{"amount": "500"}), http.StatusOK, &vault)
	require.Equal(t, Amount(8_500), *vault.PoolBalance)

	var acct accountView
	readJSON(t, env.get(t, "/v1/accounts/"+addr(keyAddr(outsiderKey))), http.StatusOK, &acct)
	require.Len(t, acct.Tokens, 1)
	require.Equal(t, Amount(500), acct.Tokens[0].Amount)

	readJSON(t, env.signed(t, adminKey, http.MethodPost, "/v1/vaults/"+addr(testVault)+"/withdraw", map[string]string{"tokenAmount": "10000000000000"}), http.StatusUnprocessableEntity, nil)
}

func TestSignatureRequired(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.srv.Client().Post(env.srv.URL+"/v1/global/init", "application/json", nil)
	require.NoError(t, err)
	readJSON(t, resp, http.StatusUnauthorized, nil)

	key := newKey(t)
	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/v1/global/init", nil)
	require.NoError(t, err)
	require.NoError(t, auth.SignRequest(req, key, nil, time.Now(), "fixed"))
	first, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	readJSON(t, first, http.StatusCreated, nil)

	replay, err := http.NewRequest(http.MethodPost, env.srv.URL+"/v1/global/init", nil)
	require.NoError(t, err)
	replay.Header = req.Header.Clone()
	second, err := env.srv.Client().Do(replay)
	require.NoError(t, err)
	readJSON(t, second, http.StatusUnauthorized, nil)
}

func TestRaffleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ownerKey, buyerKey := newKey(t), newKey(t)
	env.fund(t, keyAddr(buyerKey), 1_000)

	var created raffleView
	readJSON(t, env.signed(t, ownerKey, http.MethodPost, "/v1/raffles", map[string]interface{}{
		"id":             addr(testRaffle),
		"totalTickets":   5,
		"pricePerTicket": "100",
		"token":          addr(testMint),
		"nftMint":        addr([20]byte{0x77}),
		"storeBuyers":    true,
	}), http.StatusCreated, &created)
	require.Equal(t, uint32(5), created.Remaining)

	path := "/v1/raffles/" + addr(testRaffle)
	var after raffleView
	readJSON(t, env.signed(t, buyerKey, http.MethodPost, path+"/buy", map[string]interface{}{"tickets": 3, "price": "100"}), http.StatusOK, &after)
	require.Equal(t, uint32(3), after.SoldTickets)
	require.Equal(t, 1, after.BuyerCount)

	readJSON(t, env.signed(t, buyerKey, http.MethodPost, path+"/buy", map[string]interface{}{"tickets": 3, "price": "100"}), http.StatusConflict, nil)
	readJSON(t, env.signed(t, buyerKey, http.MethodPost, path+"/buy", map[string]interface{}{"tickets": 1, "price": "99"}), http.StatusUnprocessableEntity, nil)

	var page buyersPageView
	readJSON(t, env.get(t, path+"/buyers?limit=10"), http.StatusOK, &page)
	require.Equal(t, 1, page.Total)
	require.Equal(t, Address(keyAddr(buyerKey)), page.Buyers[0].Buyer)
	require.Equal(t, uint32(3), page.Buyers[0].Tickets)

	readJSON(t, env.signed(t, buyerKey, http.MethodPost, path+"/finalize", nil), http.StatusForbidden, nil)
	readJSON(t, env.signed(t, ownerKey, http.MethodPost, path+"/finalize", nil), http.StatusOK, &after)
	require.True(t, after.Finalized)

	var list []raffleView
	readJSON(t, env.get(t, "/v1/raffles"), http.StatusOK, &list)
	require.Len(t, list, 1)
}

func TestQueriesAndErrors(t *testing.T) {
	env := newTestEnv(t)
	readJSON(t, env.get(t, "/v1/vaults/"+addr(testVault)), http.StatusNotFound, nil)
	readJSON(t, env.get(t, "/v1/global"), http.StatusNotFound, nil)
	readJSON(t, env.get(t, "/v1/vaults/not-an-address"), http.StatusBadRequest, nil)

	var rates []rateView
	readJSON(t, env.get(t, "/v1/exchange/rates"), http.StatusOK, &rates)
	require.Len(t, rates, 4)
	require.Equal(t, Amount(400_000_000), rates[0].HolderCost)

	var mints []mintView
	readJSON(t, env.get(t, "/v1/mints"), http.StatusOK, &mints)
	require.Len(t, mints, 1)
	require.Equal(t, "SKT", mints[0].Symbol)

	readJSON(t, env.get(t, "/healthz"), http.StatusOK, nil)

	key := newKey(t)
	readJSON(t, env.signed(t, key, http.MethodPost, "/v1/vaults", map[string]string{"vault": addr(testVault), "bogus": "x"}), http.StatusBadRequest, nil)
}

func TestPauseSwitch(t *testing.T) {
	env := newTestEnv(t)
	authorityKey, outsiderKey := newKey(t), newKey(t)
	readJSON(t, env.signed(t, authorityKey, http.MethodPost, "/v1/global/init", nil), http.StatusCreated, nil)

	readJSON(t, env.signed(t, outsiderKey, http.MethodPost, "/v1/admin/pauses", pauseRequest{Module: custody.ModuleName, Paused: true}), http.StatusForbidden, nil)
	readJSON(t, env.signed(t, authorityKey, http.MethodPost, "/v1/admin/pauses", pauseRequest{Module: "lending", Paused: true}), http.StatusBadRequest, nil)

	var view pausesView
	readJSON(t, env.signed(t, authorityKey, http.MethodPost, "/v1/admin/pauses", pauseRequest{Module: custody.ModuleName, Paused: true}), http.StatusOK, &view)
	require.Equal(t, []string{custody.ModuleName}, view.Paused)
	require.True(t, env.pauses.IsPaused(custody.ModuleName))

	readJSON(t, env.signed(t, authorityKey, http.MethodPost, "/v1/vaults", map[string]string{
		"vault":     addr(testVault),
		"tokenType": addr(testMint),
	}), http.StatusServiceUnavailable, nil)
}

func TestEventsIndexAndExport(t *testing.T) {
	env := newTestEnv(t)
	key := newKey(t)
	readJSON(t, env.signed(t, key, http.MethodPost, "/v1/global/init", nil), http.StatusCreated, nil)

	_, cancel, backlog := env.node.Events().Subscribe(context.Background(), "")
	cancel()
	require.NotEmpty(t, backlog)
	for _, rec := range backlog {
		require.NoError(t, env.index.Store(context.Background(), rec))
	}

	var events []eventView
	readJSON(t, env.get(t, "/v1/events?module=custody"), http.StatusOK, &events)
	require.Len(t, events, 1)
	require.Equal(t, custody.EventTypeGlobalInit, events[0].Type)

	resp := env.get(t, "/v1/events/export?format=csv")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Checksum"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "sequence,type"))

	readJSON(t, env.get(t, "/v1/events/export?format=xml"), http.StatusBadRequest, nil)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	key := newKey(t)
	readJSON(t, env.signed(t, key, http.MethodPost, "/v1/global/init", nil), http.StatusCreated, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/v1/events/stream?type=custody."
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt eventView
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, custody.EventTypeGlobalInit, evt.Type)
	require.Equal(t, "1", evt.Cursor)

	_, nonce, err := crypto.FindAuthority(raffle.PoolSeedPrefix, testRaffle)
	require.NoError(t, err)
	_, err = env.node.CreateRaffle(ctx, keyAddr(key), raffle.CreateParams{
		ID: testRaffle, PoolNonce: nonce, TotalTickets: 1, PricePerTicket: 1, TokenAddress: testMint,
	})
	require.NoError(t, err)
	_, err = env.node.AddAdmin(ctx, keyAddr(key), [20]byte{0x0A})
	require.NoError(t, err)

	// The raffle event is filtered out by the type prefix.
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, custody.EventTypeAdminAdded, evt.Type)
}
