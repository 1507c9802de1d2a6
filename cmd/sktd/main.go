package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sktvault/cmd/internal/passphrase"
	"sktvault/config"
	"sktvault/core"
	"sktvault/core/events"
	"sktvault/core/genesis"
	"sktvault/crypto"
	"sktvault/gateway"
	"sktvault/gateway/auth"
	"sktvault/gateway/middleware"
	"sktvault/integrations/indexer"
	"sktvault/integrations/webhooks"
	"sktvault/observability/logging"
	telemetry "sktvault/observability/otel"
)

const operatorPassEnv = "SKT_OPERATOR_PASS"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "export" {
		if err := runExport(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "export:", err)
			os.Exit(1)
		}
		return
	}

	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides SKT_GENESIS_FILE and GenesisFile)")
	allowMigrate := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*genesisFlag) != "" {
		cfg.GenesisFile = strings.TrimSpace(*genesisFlag)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "sktd",
		Env:        cfg.Environment,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	if err := run(cfg, logger, *allowMigrate); err != nil {
		logger.Error("sktd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, allowMigrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdown, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(telemetry.Config{
			ServiceName: "sktd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Traces:      cfg.Telemetry.Traces,
			Metrics:     cfg.Telemetry.Metrics,
			SampleRatio: cfg.Telemetry.SampleRatio,
		}))
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("telemetry shutdown", slog.Any("error", err))
			}
		}()
	}

	if err := logOperator(cfg, logger); err != nil {
		return err
	}

	db, err := openDatabase(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s database: %w", cfg.Storage.Backend, err)
	}

	if path := strings.TrimSpace(cfg.GenesisFile); path != "" {
		spec, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			db.Close()
			return fmt.Errorf("load genesis: %w", err)
		}
		switch err := genesis.BuildGenesisFromSpec(spec, db); {
		case errors.Is(err, genesis.ErrAlreadyInitialised):
			logger.Info("genesis skipped, state already initialised", slog.String("file", path))
		case err != nil:
			db.Close()
			return fmt.Errorf("apply genesis: %w", err)
		default:
			logger.Info("genesis applied", slog.String("file", path))
		}
	}

	dispatchers, err := buildWebhooks(cfg.Webhooks, logger)
	if err != nil {
		db.Close()
		return err
	}
	defer func() {
		for _, d := range dispatchers {
			d.Close()
		}
	}()
	emitters := make([]events.Emitter, 0, len(dispatchers))
	for _, d := range dispatchers {
		emitters = append(emitters, d)
	}

	pauses := cfg.Global.PauseSwitches()
	node, err := core.NewNode(db, core.Options{
		Logger:             logger.With(slog.String("component", "node")),
		Pauses:             pauses,
		Emitters:           emitters,
		BuyerWarnThreshold: cfg.Global.Raffle.BuyerWarnThreshold,
		AllowMigrate:       allowMigrate,
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("create node: %w", err)
	}
	// Closes db as well.
	defer node.Close()
	if paused := pauses.Paused(); len(paused) > 0 {
		logger.Warn("modules paused at start-up", slog.Any("modules", paused))
	}

	var index *indexer.Indexer
	if driver := strings.TrimSpace(cfg.Indexer.Driver); driver != "" {
		gdb, err := indexer.Open(driver, cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		if index, err = indexer.New(gdb); err != nil {
			return fmt.Errorf("create indexer: %w", err)
		}
		index.SetLogger(logger.With(slog.String("component", "indexer")))
		defer node.Events().Attach(index)()
	}

	nonces, err := auth.OpenLevelDBNonces(cfg.Gateway.NonceStorePath)
	if err != nil {
		return fmt.Errorf("open nonce store: %w", err)
	}
	defer nonces.Close()
	window := time.Duration(cfg.Gateway.SignatureWindowSeconds) * time.Second
	authenticator := auth.NewAuthenticator(window, 0, time.Now, nonces)
	if err := authenticator.HydrateNonces(ctx); err != nil {
		return fmt.Errorf("hydrate nonces: %w", err)
	}

	gwCfg := gateway.Config{
		Backend:       node,
		Authenticator: authenticator,
		Pauses:        pauses,
		CORS:          middleware.CORSConfig{AllowedOrigins: cfg.Gateway.AllowedOrigins},
		Logger:        logger.With(slog.String("component", "gateway")),
		LogRequests:   strings.EqualFold(cfg.Logging.Level, "debug"),
	}
	if index != nil {
		gwCfg.Index = index
	}
	if cfg.Gateway.RateLimitPerSecond > 0 {
		gwCfg.RateLimiter = middleware.NewRateLimiter(rateLimits(cfg.Gateway), logger)
	}
	if cfg.Gateway.RequireJWT {
		secret := strings.TrimSpace(os.Getenv(cfg.Gateway.JWTSecretEnv))
		if secret == "" {
			return fmt.Errorf("gateway: %s must hold the JWT secret", cfg.Gateway.JWTSecretEnv)
		}
		gwCfg.Bearer = middleware.NewBearerAuth(middleware.JWTConfig{
			Enabled:       true,
			Secret:        secret,
			Issuer:        cfg.Gateway.JWTIssuer,
			Audience:      cfg.Gateway.JWTAudience,
			OptionalPaths: []string{"/healthz", "/metrics"},
			ClockSkew:     30 * time.Second,
		}, logger)
	}
	server, err := gateway.New(gwCfg)
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx, cfg.Gateway.ListenAddress,
		time.Duration(cfg.Gateway.ReadTimeoutSeconds)*time.Second,
		time.Duration(cfg.Gateway.WriteTimeoutSeconds)*time.Second)
}

func rateLimits(gw config.GatewayConfig) map[string]middleware.RateLimit {
	burst := gw.RateLimitBurst
	if burst <= 0 {
		burst = int(gw.RateLimitPerSecond) + 1
	}
	limit := middleware.RateLimit{RatePerSecond: gw.RateLimitPerSecond, Burst: burst}
	return map[string]middleware.RateLimit{
		gateway.GroupCustody:  limit,
		gateway.GroupExchange: limit,
		gateway.GroupRaffle:   limit,
		gateway.GroupQuery:    {RatePerSecond: gw.RateLimitPerSecond * 5, Burst: burst * 5},
	}
}

func buildWebhooks(hooks []config.WebhookConfig, logger *slog.Logger) ([]*webhooks.Dispatcher, error) {
	out := make([]*webhooks.Dispatcher, 0, len(hooks))
	for i, hook := range hooks {
		secret := os.Getenv(hook.SecretEnv)
		if strings.TrimSpace(secret) == "" {
			for _, d := range out {
				d.Close()
			}
			return nil, fmt.Errorf("webhooks[%d]: %s is empty", i, hook.SecretEnv)
		}
		d, err := webhooks.NewDispatcher(hook.URL, []byte(secret),
			webhooks.WithTopics(hook.Topics...),
			webhooks.WithLogger(logger.With(slog.String("component", "webhook"), slog.String("url", hook.URL))))
		if err != nil {
			for _, prev := range out {
				prev.Close()
			}
			return nil, fmt.Errorf("webhooks[%d]: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// logOperator unlocks the operator keystore so a wrong passphrase fails at
// start-up rather than on first use.
func logOperator(cfg *config.Config, logger *slog.Logger) error {
	path := strings.TrimSpace(cfg.OperatorKeystorePath)
	if path == "" {
		return nil
	}
	pass := ""
	if _, ok := os.LookupEnv(operatorPassEnv); ok {
		var err error
		if pass, err = passphrase.NewSource(operatorPassEnv, "operator").Get(); err != nil {
			return err
		}
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return fmt.Errorf("unlock operator keystore: %w", err)
	}
	logger.Info("operator key loaded", slog.String("address", key.PubKey().Address().String()))
	return nil
}
