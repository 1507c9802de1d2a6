package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"sktvault/crypto"
)

const (
	// HeaderCaller carries the bech32 address of the signing account.
	HeaderCaller = "X-Caller"
	// HeaderTimestamp is the unix timestamp (seconds) used when signing the request.
	HeaderTimestamp = "X-Timestamp"
	// HeaderNonce provides replay protection when combined with the timestamp.
	HeaderNonce = "X-Nonce"
	// HeaderSignature carries the hex-encoded 65-byte secp256k1 signature.
	HeaderSignature = "X-Signature"
	// MaxBodyForSignature is the maximum body size we will hash when authenticating.
	MaxBodyForSignature int = 1 << 20

	maxAllowedTimestampSkew  = time.Hour
	defaultTimestampSkew     = 2 * time.Minute
	maxNonceWindow           = 2 * time.Hour
	defaultNonceCapacity     = 4096
	maxNonceCapacity         = 65536
	persistencePruneInterval = time.Minute
)

var (
	ErrMissingHeader   = errors.New("auth: missing signature header")
	ErrBadSignature    = errors.New("auth: signature does not match caller")
	ErrNonceReused     = errors.New("auth: nonce already used")
	ErrStaleTimestamp  = errors.New("auth: timestamp outside allowed skew")
	ErrTimestampReplay = errors.New("auth: timestamp not increasing")
)

// Principal is the account that signed a request.
type Principal struct {
	Address [20]byte
}

// String renders the principal as a bech32 address.
func (p Principal) String() string { return crypto.FromRaw(p.Address).String() }

// NonceRecord captures persisted nonce usage metadata.
type NonceRecord struct {
	Caller     string
	Timestamp  string
	Nonce      string
	ObservedAt time.Time
}

// NoncePersistence provides durable storage for caller nonce usage so replays
// are rejected across restarts.
type NoncePersistence interface {
	EnsureNonce(ctx context.Context, record NonceRecord) (bool, error)
	RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error)
	PruneNonces(ctx context.Context, cutoff time.Time) error
}

// Authenticator verifies caller signatures on incoming requests.
type Authenticator struct {
	allowedTimestampSkew time.Duration
	nonceTTL             time.Duration
	nowFn                func() time.Time
	guard                *replayGuard

	persistMu   sync.Mutex
	persistence NoncePersistence
	lastPruned  time.Time
}

// NewAuthenticator builds an Authenticator. Nonces are remembered for twice
// the timestamp skew so a replay inside the window is always caught.
func NewAuthenticator(skew time.Duration, nonceCapacity int, nowFn func() time.Time, persistence NoncePersistence) *Authenticator {
	if nowFn == nil {
		nowFn = time.Now
	}
	if skew <= 0 {
		skew = defaultTimestampSkew
	}
	if skew > maxAllowedTimestampSkew {
		skew = maxAllowedTimestampSkew
	}
	return &Authenticator{
		allowedTimestampSkew: skew,
		nonceTTL:             2 * skew,
		nowFn:                nowFn,
		guard:                newReplayGuard(2*skew, nonceCapacity),
		persistence:          persistence,
	}
}

// Authenticate validates headers and signature, returning the caller principal.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > MaxBodyForSignature {
		return nil, fmt.Errorf("auth: request body exceeds %d bytes", MaxBodyForSignature)
	}
	callerHeader := strings.TrimSpace(r.Header.Get(HeaderCaller))
	timestampHeader := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	providedSig := strings.TrimPrefix(strings.TrimSpace(r.Header.Get(HeaderSignature)), "0x")
	for name, v := range map[string]string{HeaderCaller: callerHeader, HeaderTimestamp: timestampHeader, HeaderNonce: nonce, HeaderSignature: providedSig} {
		if v == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingHeader, name)
		}
	}
	caller, err := crypto.ParseRaw(callerHeader)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid caller: %w", err)
	}
	ts, err := parseUnixTimestamp(timestampHeader)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid timestamp: %w", err)
	}
	now := a.nowFn().UTC()
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > a.allowedTimestampSkew {
		return nil, fmt.Errorf("%w of %s", ErrStaleTimestamp, a.allowedTimestampSkew)
	}
	sig, err := hex.DecodeString(providedSig)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid signature encoding: %w", err)
	}
	if len(sig) == 65 && sig[64] >= 27 {
		sig[64] -= 27
	}
	signer, err := crypto.RecoverSigner(SigningPayload(r.Method, CanonicalRequestPath(r), timestampHeader, nonce, body), sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer.Raw() != caller {
		return nil, ErrBadSignature
	}
	key := hex.EncodeToString(caller[:])
	// A rejected request must not consume its nonce.
	if a.guard.Regressed(key, ts, a.allowedTimestampSkew, now) {
		return nil, ErrTimestampReplay
	}
	duplicate, err := a.registerNonce(r.Context(), key, timestampHeader, nonce, now)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, ErrNonceReused
	}
	return &Principal{Address: caller}, nil
}

// HydrateNonces warms the in-memory cache with persisted nonce usage records.
func (a *Authenticator) HydrateNonces(ctx context.Context) error {
	if a == nil || a.persistence == nil {
		return nil
	}
	now := a.nowFn().UTC()
	cutoff := now.Add(-a.nonceTTL)
	records, err := a.persistence.RecentNonces(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("auth: load persistent nonces: %w", err)
	}
	for _, rec := range records {
		if rec.Caller == "" || rec.Timestamp == "" || rec.Nonce == "" {
			continue
		}
		observed := rec.ObservedAt
		if observed.IsZero() {
			observed = cutoff
		}
		a.guard.Restore(rec.Caller, rec.Timestamp+"|"+rec.Nonce, observed, now)
	}
	return nil
}

func (a *Authenticator) registerNonce(ctx context.Context, caller, timestamp, nonce string, now time.Time) (bool, error) {
	composite := timestamp + "|" + nonce
	if a.guard.Contains(caller, composite, now) {
		return true, nil
	}
	if a.persistence != nil {
		if err := a.prunePersistent(ctx, now); err != nil {
			return false, err
		}
		existed, err := a.persistence.EnsureNonce(ctx, NonceRecord{
			Caller:     caller,
			Timestamp:  timestamp,
			Nonce:      nonce,
			ObservedAt: now,
		})
		if err != nil {
			return false, fmt.Errorf("auth: persist nonce: %w", err)
		}
		if existed {
			a.guard.Restore(caller, composite, now, now)
			return true, nil
		}
	}
	return a.guard.Remember(caller, composite, now), nil
}

func (a *Authenticator) prunePersistent(ctx context.Context, now time.Time) error {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()
	if !a.lastPruned.IsZero() && now.Sub(a.lastPruned) < persistencePruneInterval {
		return nil
	}
	if err := a.persistence.PruneNonces(ctx, now.Add(-a.nonceTTL)); err != nil {
		return fmt.Errorf("auth: prune persistent nonces: %w", err)
	}
	a.lastPruned = now
	return nil
}

// CanonicalRequestPath normalises URL paths and query ordering for signing.
func CanonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		path += "?" + CanonicalQuery(r.URL.RawQuery)
	}
	return path
}

// CanonicalQuery sorts raw query parameters for stable signing.
func CanonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// SigningPayload is the byte string a caller signs. Its keccak256 digest is
// what the secp256k1 signature covers.
func SigningPayload(method, path, timestamp, nonce string, body []byte) []byte {
	head := strings.Join([]string{strings.ToUpper(method), path, timestamp, nonce}, "\n")
	out := make([]byte, 0, len(head)+1+len(body))
	out = append(out, head...)
	out = append(out, '\n')
	return append(out, body...)
}

// SignRequest sets the caller signature headers on r.
func SignRequest(r *http.Request, key *crypto.PrivateKey, body []byte, ts time.Time, nonce string) error {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	sig, err := key.Sign(SigningPayload(r.Method, CanonicalRequestPath(r), timestamp, nonce, body))
	if err != nil {
		return err
	}
	r.Header.Set(HeaderCaller, key.PubKey().Address().String())
	r.Header.Set(HeaderTimestamp, timestamp)
	r.Header.Set(HeaderNonce, nonce)
	r.Header.Set(HeaderSignature, hex.EncodeToString(sig))
	return nil
}

func parseUnixTimestamp(v string) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}
