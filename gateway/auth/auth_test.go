package auth

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"sktvault/crypto"
)

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func signedRequest(t *testing.T, key *crypto.PrivateKey, path string, body []byte, ts time.Time, nonce string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "https://example.test"+path, bytes.NewReader(body))
	if err := SignRequest(req, key, body, ts, nonce); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return req
}

func TestAuthenticateRecoversCaller(t *testing.T) {
	now := time.Unix(1_717_787_717, 0).UTC()
	key := newKey(t)
	a := NewAuthenticator(time.Minute, 32, func() time.Time { return now }, nil)
	body := []byte(`{"amount":"5"}`)

	p, err := a.Authenticate(signedRequest(t, key, "/v1/vaults/x/claim?b=2&a=1", body, now, "n-1"), body)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Address != key.PubKey().Address().Raw() {
		t.Fatalf("unexpected principal %s", p)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	now := time.Unix(1_717_787_717, 0).UTC()
	key := newKey(t)
	other := newKey(t)
	body := []byte("payload")

	t.Run("tampered body", func(t *testing.T) {
		a := NewAuthenticator(time.Minute, 32, func() time.Time { return now }, nil)
		req := signedRequest(t, key, "/v1/global/admins", body, now, "n")
		if _, err := a.Authenticate(req, []byte("other")); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("expected bad signature, got %v", err)
		}
	})
	t.Run("caller swap", func(t *testing.T) {
		a := NewAuthenticator(time.Minute, 32, func() time.Time { return now }, nil)
		req := signedRequest(t, key, "/v1/global/admins", body, now, "n")
		req.Header.Set(HeaderCaller, other.PubKey().Address().String())
		if _, err := a.Authenticate(req, body); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("expected bad signature, got %v", err)
		}
	})
	t.Run("stale", func(t *testing.T) {
		a := NewAuthenticator(time.Minute, 32, func() time.Time { return now }, nil)
		req := signedRequest(t, key, "/v1/global/admins", body, now.Add(-2*time.Minute), "n")
		if _, err := a.Authenticate(req, body); !errors.Is(err, ErrStaleTimestamp) {
			t.Fatalf("expected stale timestamp, got %v", err)
		}
	})
	t.Run("missing header", func(t *testing.T) {
		a := NewAuthenticator(time.Minute, 32, func() time.Time { return now }, nil)
		req := signedRequest(t, key, "/v1/global/admins", body, now, "n")
		req.Header.Del(HeaderNonce)
		if _, err := a.Authenticate(req, body); !errors.Is(err, ErrMissingHeader) {
			t.Fatalf("expected missing header, got %v", err)
		}
	})
	t.Run("replay", func(t *testing.T) {
		a := NewAuthenticator(time.Minute, 32, func() time.Time { return now }, nil)
		if _, err := a.Authenticate(signedRequest(t, key, "/v1/x", body, now, "same"), body); err != nil {
			t.Fatalf("first: %v", err)
		}
		if _, err := a.Authenticate(signedRequest(t, key, "/v1/x", body, now, "same"), body); !errors.Is(err, ErrNonceReused) {
			t.Fatalf("expected replay rejection, got %v", err)
		}
		if _, err := a.Authenticate(signedRequest(t, key, "/v1/x", body, now, "fresh"), body); err != nil {
			t.Fatalf("same-second request with new nonce: %v", err)
		}
		if _, err := a.Authenticate(signedRequest(t, key, "/v1/x", body, now.Add(-10*time.Second), "older"), body); !errors.Is(err, ErrTimestampReplay) {
			t.Fatalf("expected timestamp replay, got %v", err)
		}
	})
}

func TestRegressedTimestampKeepsNonceUnused(t *testing.T) {
	now := time.Unix(1_717_787_717, 0).UTC()
	key := newKey(t)
	body := []byte("payload")
	a := NewAuthenticator(time.Minute, 32, func() time.Time { return now }, nil)
	if _, err := a.Authenticate(signedRequest(t, key, "/v1/x", body, now, "first"), body); err != nil {
		t.Fatalf("first: %v", err)
	}
	older := now.Add(-5 * time.Second)
	if _, err := a.Authenticate(signedRequest(t, key, "/v1/x", body, older, "late"), body); !errors.Is(err, ErrTimestampReplay) {
		t.Fatalf("expected timestamp replay, got %v", err)
	}
	caller := key.PubKey().Address().Raw()
	composite := strconv.FormatInt(older.Unix(), 10) + "|late"
	if a.guard.Contains(hex.EncodeToString(caller[:]), composite, now) {
		t.Fatalf("rejected request consumed its nonce")
	}
}

func TestCanonicalQuery(t *testing.T) {
	if got := CanonicalQuery("b=2&a=1&c=3"); got != "a=1&b=2&c=3" {
		t.Fatalf("got %s", got)
	}
	if CanonicalQuery("") != "" {
		t.Fatalf("empty query must stay empty")
	}
}

func TestReplayGuardEvictsByCapacityAndAge(t *testing.T) {
	now := time.Unix(1000, 0)
	guard := newReplayGuard(time.Minute, 2)
	for _, key := range []string{"a", "b", "c"} {
		if guard.Remember("caller", key, now) {
			t.Fatalf("%s reported as duplicate", key)
		}
	}
	if guard.Contains("caller", "a", now) {
		t.Fatalf("oldest entry should be evicted by capacity")
	}
	if !guard.Contains("caller", "c", now) || !guard.Remember("caller", "c", now) {
		t.Fatalf("newest entry missing")
	}
	if guard.Contains("other", "c", now) {
		t.Fatalf("windows must be per caller")
	}
	if guard.Contains("caller", "c", now.Add(2*time.Minute)) {
		t.Fatalf("entries should expire after ttl")
	}
}

func TestReplayGuardTimestampRegression(t *testing.T) {
	now := time.Unix(10_000, 0)
	guard := newReplayGuard(time.Minute, 8)
	if guard.Regressed("caller", now, time.Minute, now) {
		t.Fatalf("first timestamp cannot regress")
	}
	if !guard.Regressed("caller", now.Add(-time.Second), time.Minute, now) {
		t.Fatalf("older timestamp inside the window must be rejected")
	}
	if guard.Regressed("caller", now, time.Minute, now) {
		t.Fatalf("equal timestamp is allowed")
	}
	later := now.Add(5 * time.Minute)
	if guard.Regressed("caller", now.Add(-time.Second), time.Minute, later) {
		t.Fatalf("high-water mark outside the window must not block")
	}
}

func TestLevelDBNoncesSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonces")
	now := time.Unix(1_717_787_717, 0).UTC()
	key := newKey(t)
	body := []byte("payload")

	backend, err := OpenLevelDBNonces(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	a := NewAuthenticator(time.Minute, 32, func() time.Time { return now }, backend)
	if _, err := a.Authenticate(signedRequest(t, key, "/v1/x", body, now, "restart"), body); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenLevelDBNonces(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	warm := NewAuthenticator(time.Minute, 32, func() time.Time { return now }, reopened)
	if err := warm.HydrateNonces(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if _, err := warm.Authenticate(signedRequest(t, key, "/v1/x", body, now, "restart"), body); !errors.Is(err, ErrNonceReused) {
		t.Fatalf("expected replay after restart, got %v", err)
	}

	cold := NewAuthenticator(time.Minute, 32, func() time.Time { return now }, reopened)
	if _, err := cold.Authenticate(signedRequest(t, key, "/v1/x", body, now, "restart"), body); !errors.Is(err, ErrNonceReused) {
		t.Fatalf("expected persistence to reject replay, got %v", err)
	}

	records, err := reopened.RecentNonces(context.Background(), now.Add(-time.Minute))
	if err != nil || len(records) != 1 {
		t.Fatalf("recent nonces = %v, %v", records, err)
	}
	if records[0].Timestamp != strconv.FormatInt(now.Unix(), 10) || records[0].Nonce != "restart" {
		t.Fatalf("unexpected record %+v", records[0])
	}
	if err := reopened.PruneNonces(context.Background(), now.Add(time.Second)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	records, _ = reopened.RecentNonces(context.Background(), time.Unix(0, 0))
	if len(records) != 0 {
		t.Fatalf("expected pruned store, got %d", len(records))
	}
}
