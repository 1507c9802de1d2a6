package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	MaxSignatureWindowSeconds = 3600
)

// ValidateGlobal checks runtime policy values.
func ValidateGlobal(g Global) error {
	if g.Raffle.BuyerWarnThreshold < -1 {
		return fmt.Errorf("raffle: buyer_warn_threshold must be >= -1")
	}
	return nil
}

// ValidateConfig checks a loaded node configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	switch strings.ToLower(cfg.Storage.Backend) {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("storage: unsupported backend %q", cfg.Storage.Backend)
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.ListenAddress); err != nil {
		return fmt.Errorf("gateway: listen address %q: %w", cfg.Gateway.ListenAddress, err)
	}
	if cfg.Gateway.SignatureWindowSeconds <= 0 || cfg.Gateway.SignatureWindowSeconds > MaxSignatureWindowSeconds {
		return fmt.Errorf("gateway: signature window must be within (0, %d] seconds", MaxSignatureWindowSeconds)
	}
	if cfg.Gateway.RateLimitPerSecond < 0 || cfg.Gateway.RateLimitBurst < 0 {
		return fmt.Errorf("gateway: rate limits must not be negative")
	}
	if cfg.Gateway.RequireJWT && strings.TrimSpace(cfg.Gateway.JWTSecretEnv) == "" {
		return fmt.Errorf("gateway: RequireJWT needs JWTSecretEnv")
	}
	switch strings.ToLower(cfg.Indexer.Driver) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("indexer: unsupported driver %q", cfg.Indexer.Driver)
	}
	if cfg.Indexer.Driver != "" && strings.TrimSpace(cfg.Indexer.DSN) == "" {
		return fmt.Errorf("indexer: DSN required for driver %q", cfg.Indexer.Driver)
	}
	for i, hook := range cfg.Webhooks {
		u, err := url.Parse(strings.TrimSpace(hook.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhooks[%d]: invalid URL %q", i, hook.URL)
		}
		if strings.TrimSpace(hook.SecretEnv) == "" {
			return fmt.Errorf("webhooks[%d]: SecretEnv required", i)
		}
	}
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: sample ratio %v outside [0,1]", r)
	}
	return ValidateGlobal(cfg.Global)
}
