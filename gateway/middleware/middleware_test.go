package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"custody": {RatePerSecond: 1, Burst: 1}}, nil)
	handler := limiter.Middleware("custody")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/vaults/x/claim", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusTooManyRequests, res.Code)

	other := httptest.NewRequest(http.MethodPost, "/v1/vaults/x/claim", nil)
	other.RemoteAddr = "198.51.100.7:4000"
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, other)
	require.Equal(t, http.StatusOK, res.Code, "remote addresses have separate buckets")
}

func TestRateLimiterIgnoresClientSuppliedIdentity(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"custody": {RatePerSecond: 0.001, Burst: 1}}, nil)
	handler := limiter.Middleware("custody")(okHandler())

	send := func(remote string, headers map[string]string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/vaults/x/claim", nil)
		req.RemoteAddr = remote
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		return res.Code
	}

	passed := 0
	for i := 0; i < 20; i++ {
		code := send("203.0.113.9:5000", map[string]string{
			"X-Caller":        fmt.Sprintf("skt1rotating%d", i),
			"X-Real-IP":       fmt.Sprintf("10.0.0.%d", i),
			"X-Forwarded-For": fmt.Sprintf("10.1.0.%d", i),
		})
		if code == http.StatusOK {
			passed++
		}
	}
	require.Equal(t, 1, passed, "rotating headers must not refill the bucket")

	// Naming another caller from a different address leaves that caller's
	// bucket untouched.
	require.Equal(t, http.StatusOK, send("203.0.113.10:5000", map[string]string{"X-Caller": "skt1victim"}))
	require.Equal(t, http.StatusTooManyRequests, send("203.0.113.10:5001", map[string]string{"X-Caller": "skt1victim"}))
	require.Equal(t, http.StatusOK, send("192.0.2.44:6000", map[string]string{"X-Caller": "skt1victim"}))
}

func TestRateLimiterSeparatesGroupsAndSkipsUnknown(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"custody": {RatePerSecond: 1, Burst: 1},
		"raffle":  {RatePerSecond: 1, Burst: 1},
	}, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, group := range []string{"custody", "raffle"} {
		res := httptest.NewRecorder()
		limiter.Middleware(group)(okHandler()).ServeHTTP(res, req)
		require.Equal(t, http.StatusOK, res.Code, group)
	}
	for i := 0; i < 3; i++ {
		res := httptest.NewRecorder()
		limiter.Middleware("query")(okHandler()).ServeHTTP(res, req)
		require.Equal(t, http.StatusOK, res.Code)
	}
}

func TestRateLimiterForgetsIdleVisitors(t *testing.T) {
	now := time.Unix(1000, 0)
	limiter := NewRateLimiter(map[string]RateLimit{"custody": {RatePerSecond: 1, Burst: 1}}, nil)
	limiter.clockNow = func() time.Time { return now }
	limiter.obtainLimiter("custody|a", RateLimit{RatePerSecond: 1, Burst: 1})
	now = now.Add(2 * visitorIdleTimeout)
	limiter.obtainLimiter("custody|b", RateLimit{RatePerSecond: 1, Burst: 1})
	require.Len(t, limiter.visitors, 1)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestBearerAuth(t *testing.T) {
	auth := NewBearerAuth(JWTConfig{
		Enabled:       true,
		Secret:        "s3cret",
		Issuer:        "skt-issuer",
		Audience:      "sktvault",
		OptionalPaths: []string{"/healthz"},
	}, nil)
	handler := auth.Middleware("vault:write")(okHandler())
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"optional path", "/healthz", "", http.StatusOK},
		{"missing", "/v1/global", "", http.StatusUnauthorized},
		{"wrong secret", "/v1/global", "Bearer " + signToken(t, "other", jwt.MapClaims{"iss": "skt-issuer", "aud": "sktvault", "exp": exp, "scope": "vault:write"}), http.StatusUnauthorized},
		{"wrong audience", "/v1/global", "Bearer " + signToken(t, "s3cret", jwt.MapClaims{"iss": "skt-issuer", "aud": "else", "exp": exp, "scope": "vault:write"}), http.StatusUnauthorized},
		{"no expiry", "/v1/global", "Bearer " + signToken(t, "s3cret", jwt.MapClaims{"iss": "skt-issuer", "aud": "sktvault", "scope": "vault:write"}), http.StatusUnauthorized},
		{"missing scope", "/v1/global", "Bearer " + signToken(t, "s3cret", jwt.MapClaims{"iss": "skt-issuer", "aud": "sktvault", "exp": exp, "scope": "read"}), http.StatusForbidden},
		{"valid", "/v1/global", "Bearer " + signToken(t, "s3cret", jwt.MapClaims{"iss": "skt-issuer", "aud": "sktvault", "exp": exp, "scope": "read vault:write", "sub": "ops"}), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, tc.want, res.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/global", nil)
	req.Header.Set("Origin", "https://app.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "https://app.example", res.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, res.Header().Get("Access-Control-Allow-Headers"), "X-Signature")

	req = httptest.NewRequest(http.MethodGet, "/v1/global", nil)
	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
}

func TestObservabilitySetsRequestID(t *testing.T) {
	handler := NewObservability("test", nil, true).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusTeapot, res.Code)
	require.NotEmpty(t, res.Header().Get(HeaderRequestID))
}
