package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	coreerrors "sktvault/core/errors"
	"sktvault/core/events"
	"sktvault/core/executor"
	"sktvault/core/state"
	"sktvault/crypto"
	"sktvault/native/common"
	"sktvault/native/custody"
	"sktvault/native/exchange"
	"sktvault/native/raffle"
	"sktvault/observability/metrics"
	"sktvault/storage"
)

// ErrGlobalConfigExists is returned by InitGlobal once a configuration is
// already stored.
var ErrGlobalConfigExists = &coreerrors.Error{Code: coreerrors.CodeErrorCustom, Msg: "global config already initialised"}

const (
	lockGlobal      = "global"
	lockVaultIndex  = "index:vault"
	lockRaffleIndex = "index:raffle"
)

func accountLock(addr [20]byte) string { return "acct:" + hex.EncodeToString(addr[:]) }

// Options tunes a Node.
type Options struct {
	Logger *slog.Logger
	Pauses common.PauseView
	// Emitters receive every committed event in addition to the broker.
	Emitters           []events.Emitter
	BuyerWarnThreshold int
	HistoryLimit       int
	// AllowMigrate tolerates a state schema version mismatch.
	AllowMigrate bool
}

// Node is the central controller. It exposes one method per external
// operation and runs each through the executor so that the accounts it
// names are locked and its effects commit atomically.
type Node struct {
	db        storage.Database
	exec      *executor.Executor
	broker    *events.Broker
	pauses    common.PauseView
	logger    *slog.Logger
	metrics   *metrics.CustodyMetrics
	buyerWarn int
}

// NewNode wires the executor, event broker and engines over db.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database must not be nil")
	}
	if err := state.EnsureStateVersion(db, opts.AllowMigrate); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	broker := events.NewBroker(opts.HistoryLimit)
	sinks := events.Multi{broker, metrics.Events()}
	sinks = append(sinks, opts.Emitters...)

	exec := executor.New(db, sinks)
	exec.SetLogger(logger.With(slog.String("component", "executor")))
	m := metrics.Custody()
	exec.SetMetrics(m)

	warn := opts.BuyerWarnThreshold
	if warn == 0 {
		warn = raffle.DefaultBuyerWarnThreshold
	}
	return &Node{
		db:        db,
		exec:      exec,
		broker:    broker,
		pauses:    opts.Pauses,
		logger:    logger,
		metrics:   m,
		buyerWarn: warn,
	}, nil
}

// Events exposes the committed event stream.
func (n *Node) Events() *events.Broker { return n.broker }

// Close stops accepting operations and closes the database.
func (n *Node) Close() error {
	n.exec.Close()
	return n.db.Close()
}

func (n *Node) custodyEngine(m *state.Manager, emit events.Emitter) *custody.Engine {
	e := custody.NewEngine()
	e.SetState(m)
	e.SetEmitter(emit)
	e.SetPauses(n.pauses)
	e.SetLogger(n.logger.With(slog.String("module", custody.ModuleName)))
	return e
}

func (n *Node) exchangeEngine(m *state.Manager, emit events.Emitter) *exchange.Engine {
	e := exchange.NewEngine()
	e.SetNativeLedger(m)
	e.SetCustodian(n.custodyEngine(m, events.NoopEmitter{}))
	e.SetEmitter(emit)
	e.SetPauses(n.pauses)
	e.SetLogger(n.logger.With(slog.String("module", exchange.ModuleName)))
	return e
}

func (n *Node) raffleLedger(m *state.Manager, emit events.Emitter) *raffle.Ledger {
	l := raffle.NewLedger()
	l.SetState(m)
	l.SetEmitter(emit)
	l.SetPauses(n.pauses)
	l.SetLogger(n.logger.With(slog.String("module", raffle.ModuleName)))
	l.SetBuyerWarnThreshold(n.buyerWarn)
	return l
}

func loadGlobal(m *state.Manager) (*custody.GlobalConfig, error) {
	cfg, ok, err := m.GlobalConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("global config: %w", coreerrors.ErrNotFound)
	}
	return cfg, nil
}

// InitGlobal stores an empty configuration with caller as authority.
func (n *Node) InitGlobal(ctx context.Context, caller [20]byte) (*custody.GlobalConfig, error) {
	var out *custody.GlobalConfig
	err := n.exec.Execute(ctx, "init_global", []string{lockGlobal}, func(m *state.Manager, emit events.Emitter) error {
		if _, ok, err := m.GlobalConfig(); err != nil {
			return err
		} else if ok {
			return ErrGlobalConfigExists
		}
		cfg, err := custody.NewGlobalConfig(caller)
		if err != nil {
			return err
		}
		if err := m.PutGlobalConfig(cfg); err != nil {
			return err
		}
		emit.Emit(custody.WrapEvent(custody.NewGlobalInitializedEvent(cfg)))
		out = cfg
		return nil
	})
	return out, err
}

// AddAdmin adds admin to the configuration. Only the authority may call it.
func (n *Node) AddAdmin(ctx context.Context, caller, admin [20]byte) (*custody.GlobalConfig, error) {
	return n.mutateAdmins(ctx, "add_admin", caller, admin, custody.AddAdmin, custody.EventTypeAdminAdded)
}

// RemoveAdmin drops admin from the configuration. Only the authority may
// call it.
func (n *Node) RemoveAdmin(ctx context.Context, caller, admin [20]byte) (*custody.GlobalConfig, error) {
	return n.mutateAdmins(ctx, "remove_admin", caller, admin, custody.RemoveAdmin, custody.EventTypeAdminRemoved)
}

type adminMutation func(caller [20]byte, cfg *custody.GlobalConfig, admin [20]byte) (*custody.GlobalConfig, error)

func (n *Node) mutateAdmins(ctx context.Context, op string, caller, admin [20]byte, mutate adminMutation, eventType string) (*custody.GlobalConfig, error) {
	var out *custody.GlobalConfig
	err := n.exec.Execute(ctx, op, []string{lockGlobal}, func(m *state.Manager, emit events.Emitter) error {
		if err := common.Guard(n.pauses, custody.ModuleName); err != nil {
			return err
		}
		cfg, err := loadGlobal(m)
		if err != nil {
			return err
		}
		next, err := mutate(caller, cfg, admin)
		if err != nil {
			return err
		}
		if err := m.PutGlobalConfig(next); err != nil {
			return err
		}
		emit.Emit(custody.WrapEvent(custody.NewAdminEvent(eventType, caller, admin, len(next.Admins))))
		out = next
		return nil
	})
	return out, err
}

// InitializeVault creates (or re-confirms) a vault and its custody account.
func (n *Node) InitializeVault(ctx context.Context, payer [20]byte, p custody.InitParams) (*custody.Vault, error) {
	p.Payer = payer
	var out *custody.Vault
	keys := []string{accountLock(p.Vault), accountLock(payer), lockVaultIndex}
	err := n.exec.Execute(ctx, "initialize_vault", keys, func(m *state.Manager, emit events.Emitter) error {
		v, err := n.custodyEngine(m, emit).InitializeVault(p)
		out = v
		return err
	})
	return out, err
}

// Withdraw pays tokenAmount tokens and nativeAmount native units out of a
// vault to an admin caller.
func (n *Node) Withdraw(ctx context.Context, caller, vault [20]byte, tokenAmount, nativeAmount uint64) error {
	keys := []string{lockGlobal, accountLock(caller), accountLock(vault)}
	err := n.exec.Execute(ctx, "withdraw_vault", keys, func(m *state.Manager, emit events.Emitter) error {
		cfg, err := loadGlobal(m)
		if err != nil {
			if errors.Is(err, coreerrors.ErrNotFound) {
				return coreerrors.ErrNotAuthorizedAdmin
			}
			return err
		}
		return n.custodyEngine(m, emit).Withdraw(caller, vault, cfg, tokenAmount, nativeAmount)
	})
	if err == nil {
		n.metrics.RecordPayout("withdraw", tokenAmount)
	}
	return err
}

// Claim transfers amount tokens out of custody to caller.
func (n *Node) Claim(ctx context.Context, caller, vault [20]byte, amount uint64) error {
	keys := []string{accountLock(caller), accountLock(vault)}
	err := n.exec.Execute(ctx, "claim_skt", keys, func(m *state.Manager, emit events.Emitter) error {
		return n.custodyEngine(m, emit).Claim(caller, vault, amount)
	})
	if err == nil {
		n.metrics.RecordPayout("claim", amount)
	}
	return err
}

// Convert exchanges native currency for custodied tokens at the tabled rate.
func (n *Node) Convert(ctx context.Context, caller, vault [20]byte, option uint8, isHolder bool) (*exchange.Result, error) {
	var out *exchange.Result
	keys := []string{accountLock(caller), accountLock(vault)}
	err := n.exec.Execute(ctx, "convert_skt_sol", keys, func(m *state.Manager, emit events.Emitter) error {
		res, err := n.exchangeEngine(m, emit).Convert(caller, vault, option, isHolder)
		out = res
		return err
	})
	if err == nil && out != nil {
		n.metrics.RecordPayout("convert", out.Granted)
	}
	return out, err
}

// CreateRaffle registers a raffle owned by owner.
func (n *Node) CreateRaffle(ctx context.Context, owner [20]byte, p raffle.CreateParams) (*raffle.Raffle, error) {
	var out *raffle.Raffle
	keys := []string{accountLock(owner), accountLock(p.ID), lockRaffleIndex}
	err := n.exec.Execute(ctx, "create_raffle", keys, func(m *state.Manager, emit events.Emitter) error {
		r, err := n.raffleLedger(m, emit).Create(owner, p)
		out = r
		return err
	})
	return out, err
}

// BuyTickets sells tickets to buyer.
func (n *Node) BuyTickets(ctx context.Context, buyer, id [20]byte, p raffle.BuyParams) (*raffle.Raffle, error) {
	var out *raffle.Raffle
	keys := []string{accountLock(buyer), accountLock(id)}
	err := n.exec.Execute(ctx, "buy_tickets", keys, func(m *state.Manager, emit events.Emitter) error {
		r, err := n.raffleLedger(m, emit).Buy(buyer, id, p)
		out = r
		return err
	})
	if err == nil {
		n.metrics.RecordTicketsSold(crypto.FromRaw(id).String(), p.Tickets)
	}
	return out, err
}

// FinalizeRaffle closes ticket sales. The owner or an admin may call it.
func (n *Node) FinalizeRaffle(ctx context.Context, caller, id [20]byte) (*raffle.Raffle, error) {
	var out *raffle.Raffle
	keys := []string{lockGlobal, accountLock(id)}
	err := n.exec.Execute(ctx, "finalize_raffle", keys, func(m *state.Manager, emit events.Emitter) error {
		cfg, ok, err := m.GlobalConfig()
		if err != nil {
			return err
		}
		if !ok {
			cfg = nil
		}
		r, err := n.raffleLedger(m, emit).Finalize(caller, id, cfg)
		out = r
		return err
	})
	return out, err
}
