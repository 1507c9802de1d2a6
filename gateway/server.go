package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sktvault/core"
	"sktvault/core/events"
	"sktvault/core/state"
	"sktvault/gateway/auth"
	"sktvault/gateway/middleware"
	"sktvault/integrations/indexer"
	"sktvault/native/common"
	"sktvault/native/custody"
	"sktvault/native/exchange"
	"sktvault/native/raffle"
	"sktvault/observability/metrics"
)

// Rate limit groups.
const (
	GroupCustody  = custody.ModuleName
	GroupExchange = exchange.ModuleName
	GroupRaffle   = raffle.ModuleName
	GroupQuery    = "query"
)

// Backend is the node surface served over HTTP. *core.Node satisfies it.
type Backend interface {
	InitGlobal(ctx context.Context, caller [20]byte) (*custody.GlobalConfig, error)
	AddAdmin(ctx context.Context, caller, admin [20]byte) (*custody.GlobalConfig, error)
	RemoveAdmin(ctx context.Context, caller, admin [20]byte) (*custody.GlobalConfig, error)
	InitializeVault(ctx context.Context, payer [20]byte, p custody.InitParams) (*custody.Vault, error)
	Withdraw(ctx context.Context, caller, vault [20]byte, tokenAmount, nativeAmount uint64) error
	Claim(ctx context.Context, caller, vault [20]byte, amount uint64) error
	Convert(ctx context.Context, caller, vault [20]byte, option uint8, isHolder bool) (*exchange.Result, error)
	CreateRaffle(ctx context.Context, owner [20]byte, p raffle.CreateParams) (*raffle.Raffle, error)
	BuyTickets(ctx context.Context, buyer, id [20]byte, p raffle.BuyParams) (*raffle.Raffle, error)
	FinalizeRaffle(ctx context.Context, caller, id [20]byte) (*raffle.Raffle, error)

	Global() (*custody.GlobalConfig, error)
	Vault(addr [20]byte) (*core.VaultView, error)
	Vaults() ([][20]byte, error)
	Raffle(id [20]byte) (*raffle.Raffle, error)
	Raffles() ([][20]byte, error)
	Account(addr [20]byte) (*core.AccountView, error)
	Mints() ([]state.Mint, error)
	Events() *events.Broker
}

// EventIndex answers historical event queries.
type EventIndex interface {
	Query(ctx context.Context, f indexer.Filter) ([]indexer.EventRecord, error)
}

// Config wires the gateway's collaborators. Backend and Authenticator are
// required; everything else is optional.
type Config struct {
	Backend       Backend
	Authenticator *auth.Authenticator
	Index         EventIndex
	Pauses        *common.Pauses
	Bearer        *middleware.BearerAuth
	RateLimiter   *middleware.RateLimiter
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
	LogRequests   bool
}

// Server exposes the custody node over HTTP.
type Server struct {
	backend Backend
	auth    *auth.Authenticator
	index   EventIndex
	pauses  *common.Pauses
	logger  *slog.Logger
	handler http.Handler
}

// New builds the HTTP handler tree.
func New(cfg Config) (*Server, error) {
	if cfg.Backend == nil {
		return nil, errors.New("gateway: backend required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("gateway: authenticator required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		backend: cfg.Backend,
		auth:    cfg.Authenticator,
		index:   cfg.Index,
		pauses:  cfg.Pauses,
		logger:  logger,
	}
	s.handler = otelhttp.NewHandler(s.routes(cfg), "sktvault.gateway")
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.NewObservability("gateway", s.logger, cfg.LogRequests).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	limit := func(group string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.RateLimiter.Middleware(group)
	}
	bearer := func(scopes ...string) func(http.Handler) http.Handler {
		if cfg.Bearer == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.Bearer.Middleware(scopes...)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(q chi.Router) {
			q.Use(bearer(), limit(GroupQuery))
			q.Get("/global", s.handleGlobal)
			q.Get("/vaults", s.handleListVaults)
			q.Get("/vaults/{vault}", s.handleVault)
			q.Get("/vaults/{vault}/authority", s.handleVaultAuthority)
			q.Get("/raffles", s.handleListRaffles)
			q.Get("/raffles/{id}", s.handleRaffle)
			q.Get("/raffles/{id}/buyers", s.handleRaffleBuyers)
			q.Get("/accounts/{addr}", s.handleAccount)
			q.Get("/mints", s.handleMints)
			q.Get("/exchange/rates", s.handleRates)
			q.Get("/events", s.handleEvents)
			q.Get("/events/export", s.handleExport)
			q.Get("/events/stream", s.handleStream)
			q.Get("/admin/pauses", s.handlePauses)
		})
		v1.Group(func(m chi.Router) {
			m.Use(bearer(), limit(GroupCustody), s.requireCaller)
			m.Post("/global/init", s.handleInitGlobal)
			m.Post("/global/admins", s.handleAddAdmin)
			m.Delete("/global/admins/{addr}", s.handleRemoveAdmin)
			m.Post("/vaults", s.handleInitializeVault)
			m.Post("/vaults/{vault}/withdraw", s.handleWithdraw)
			m.Post("/vaults/{vault}/claim", s.handleClaim)
			m.Post("/admin/pauses", s.handleSetPause)
		})
		v1.Group(func(m chi.Router) {
			m.Use(bearer(), limit(GroupExchange), s.requireCaller)
			m.Post("/vaults/{vault}/convert", s.handleConvert)
		})
		v1.Group(func(m chi.Router) {
			m.Use(bearer(), limit(GroupRaffle), s.requireCaller)
			m.Post("/raffles", s.handleCreateRaffle)
			m.Post("/raffles/{id}/buy", s.handleBuy)
			m.Post("/raffles/{id}/finalize", s.handleFinalize)
		})
	})
	return r
}

type principalKey struct{}

// requireCaller authenticates the request signature and stores the caller.
func (s *Server) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, int64(auth.MaxBodyForSignature)+1))
		if err != nil {
			s.writeError(w, r, badRequest("read body: %v", err))
			return
		}
		_ = r.Body.Close()
		principal, err := s.auth.Authenticate(r, body)
		if err != nil {
			reason := "signature"
			if errors.Is(err, auth.ErrNonceReused) || errors.Is(err, auth.ErrTimestampReplay) {
				reason = "replay"
			}
			metrics.Gateway().Reject("signed", reason)
			writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: apiError{Name: "Unauthorized", Message: err.Error()}})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), principalKey{}, *principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(r *http.Request) [20]byte {
	p, _ := r.Context().Value(principalKey{}).(auth.Principal)
	return p.Address
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway: shutdown: %w", err)
		}
		return nil
	}
}
