package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sktvault/config"
	"sktvault/gateway"
)

func TestOpenDatabaseBackends(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{"memory", "leveldb", "bolt"} {
		db, err := openDatabase(config.StorageConfig{Backend: backend, Path: filepath.Join(dir, backend)})
		require.NoError(t, err, backend)
		require.NoError(t, db.Put([]byte("k"), []byte("v")))
		got, err := db.Get([]byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("v"), got)
		require.NoError(t, db.Close())
	}
	_, err := openDatabase(config.StorageConfig{Backend: "rocks"})
	require.Error(t, err)
}

func TestRateLimitsCoverEveryGroup(t *testing.T) {
	limits := rateLimits(config.GatewayConfig{RateLimitPerSecond: 2})
	for _, group := range []string{gateway.GroupCustody, gateway.GroupExchange, gateway.GroupRaffle, gateway.GroupQuery} {
		require.Contains(t, limits, group)
	}
	require.Equal(t, 3, limits[gateway.GroupCustody].Burst)
	require.Equal(t, 10.0, limits[gateway.GroupQuery].RatePerSecond)
}

func TestBuildWebhooksRequiresSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Setenv("SKT_TEST_HOOK_SECRET", "")
	_, err := buildWebhooks([]config.WebhookConfig{{URL: "https://example.com/hook", SecretEnv: "SKT_TEST_HOOK_SECRET"}}, logger)
	require.Error(t, err)

	t.Setenv("SKT_TEST_HOOK_SECRET", "s3cret")
	hooks, err := buildWebhooks([]config.WebhookConfig{{URL: "https://example.com/hook", SecretEnv: "SKT_TEST_HOOK_SECRET", Topics: []string{"custody."}}}, logger)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	for _, h := range hooks {
		h.Close()
	}
}
