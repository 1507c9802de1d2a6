package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"sktvault/crypto"
)

// Config is the sktd node configuration.
type Config struct {
	DataDir              string          `toml:"DataDir"`
	GenesisFile          string          `toml:"GenesisFile"`
	OperatorKeystorePath string          `toml:"OperatorKeystorePath"`
	Environment          string          `toml:"Environment"`
	Storage              StorageConfig   `toml:"storage"`
	Gateway              GatewayConfig   `toml:"gateway"`
	Logging              LoggingConfig   `toml:"logging"`
	Telemetry            TelemetryConfig `toml:"telemetry"`
	Indexer              IndexerConfig   `toml:"indexer"`
	Webhooks             []WebhookConfig `toml:"webhooks"`
	Global               Global          `toml:"global"`
}

// Load loads the configuration from path, creating a default file and an
// operator keystore when it does not exist yet. Environment overrides are
// applied last.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		created, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		cfg = created
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
		}
		if err := ensureKeystore(path, cfg); err != nil {
			return nil, err
		}
	}
	applyDefaults(cfg)
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile reads KEY=VALUE pairs from a dotenv file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays SKT_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("SKT_DATA_DIR", &cfg.DataDir)
	str("SKT_GENESIS_FILE", &cfg.GenesisFile)
	str("SKT_KEYSTORE", &cfg.OperatorKeystorePath)
	str("SKT_ENV", &cfg.Environment)
	str("SKT_STORAGE_BACKEND", &cfg.Storage.Backend)
	str("SKT_STORAGE_PATH", &cfg.Storage.Path)
	str("SKT_LISTEN_ADDRESS", &cfg.Gateway.ListenAddress)
	str("SKT_LOG_LEVEL", &cfg.Logging.Level)
	str("SKT_LOG_FILE", &cfg.Logging.File)
	str("SKT_INDEXER_DRIVER", &cfg.Indexer.Driver)
	str("SKT_INDEXER_DSN", &cfg.Indexer.DSN)
	if v, ok := os.LookupEnv("SKT_REQUIRE_JWT"); ok && strings.TrimSpace(v) != "" {
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("SKT_REQUIRE_JWT: %w", err)
		}
		cfg.Gateway.RequireJWT = parsed
	}
	if v, ok := os.LookupEnv("SKT_RATE_LIMIT"); ok && strings.TrimSpace(v) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("SKT_RATE_LIMIT: %w", err)
		}
		cfg.Gateway.RateLimitPerSecond = parsed
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./skt-data"
	}
	if strings.TrimSpace(cfg.Storage.Backend) == "" {
		cfg.Storage.Backend = "leveldb"
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = filepath.Join(cfg.DataDir, "state")
	}
	if strings.TrimSpace(cfg.Gateway.ListenAddress) == "" {
		cfg.Gateway.ListenAddress = "127.0.0.1:8080"
	}
	if cfg.Gateway.SignatureWindowSeconds == 0 {
		cfg.Gateway.SignatureWindowSeconds = 120
	}
	if cfg.Gateway.ReadTimeoutSeconds == 0 {
		cfg.Gateway.ReadTimeoutSeconds = 15
	}
	if cfg.Gateway.WriteTimeoutSeconds == 0 {
		cfg.Gateway.WriteTimeoutSeconds = 15
	}
	if strings.TrimSpace(cfg.Gateway.NonceStorePath) == "" {
		cfg.Gateway.NonceStorePath = filepath.Join(cfg.DataDir, "nonces")
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Gateway.AllowedOrigins == nil {
		cfg.Gateway.AllowedOrigins = []string{}
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}
	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	if cfg.OperatorKeystorePath != keystorePath {
		cfg.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}
	cfg := &Config{
		DataDir:              "./skt-data",
		OperatorKeystorePath: keystorePath,
		Environment:          "local",
		Storage:              StorageConfig{Backend: "leveldb"},
		Gateway: GatewayConfig{
			ListenAddress:          "127.0.0.1:8080",
			AllowedOrigins:         []string{},
			JWTSecretEnv:           "SKT_JWT_SECRET",
			RateLimitPerSecond:     20,
			RateLimitBurst:         40,
			SignatureWindowSeconds: 120,
		},
		Logging: LoggingConfig{Level: "info"},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
