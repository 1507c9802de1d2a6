package config

// Pauses toggles whole modules off at start-up.
type Pauses struct {
	Custody  bool
	Exchange bool
	Raffle   bool
}

// Raffle holds raffle ledger knobs.
type Raffle struct {
	// BuyerWarnThreshold logs a warning once a raffle's buyer list grows
	// past this many entries. -1 disables the warning.
	BuyerWarnThreshold int
}

// Global bundles the runtime policy values enforced by ValidateGlobal.
type Global struct {
	Pauses Pauses
	Raffle Raffle
}

// StorageConfig selects the state database backend.
type StorageConfig struct {
	// Backend is one of "leveldb", "bolt" or "memory".
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// GatewayConfig configures the HTTP API.
type GatewayConfig struct {
	ListenAddress      string   `toml:"ListenAddress"`
	AllowedOrigins     []string `toml:"AllowedOrigins"`
	RequireJWT         bool     `toml:"RequireJWT"`
	JWTSecretEnv       string   `toml:"JWTSecretEnv"`
	JWTIssuer          string   `toml:"JWTIssuer"`
	JWTAudience        string   `toml:"JWTAudience"`
	RateLimitPerSecond float64  `toml:"RateLimitPerSecond"`
	RateLimitBurst     int      `toml:"RateLimitBurst"`
	// SignatureWindowSeconds bounds the accepted clock skew of signed requests.
	SignatureWindowSeconds int    `toml:"SignatureWindowSeconds"`
	NonceStorePath         string `toml:"NonceStorePath"`
	ReadTimeoutSeconds     int    `toml:"ReadTimeoutSeconds"`
	WriteTimeoutSeconds    int    `toml:"WriteTimeoutSeconds"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// IndexerConfig configures the optional SQL event index.
type IndexerConfig struct {
	// Driver is "sqlite", "postgres" or empty to disable indexing.
	Driver    string `toml:"Driver"`
	DSN       string `toml:"DSN"`
	ExportDir string `toml:"ExportDir"`
}

// WebhookConfig registers an HTTP endpoint that receives committed events.
type WebhookConfig struct {
	URL       string   `toml:"URL"`
	SecretEnv string   `toml:"SecretEnv"`
	Topics    []string `toml:"Topics"`
}
