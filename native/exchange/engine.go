package exchange

import (
	"errors"
	"io"
	"log/slog"
	"strconv"

	"sktvault/core/events"
	"sktvault/core/types"
	"sktvault/crypto"
	"sktvault/native/common"
	"sktvault/native/custody"
)

const (
	// ModuleName is used for pause switches and metrics labels.
	ModuleName = "exchange"

	EventTypeConvert = "exchange.convert"
)

var errNotConfigured = errors.New("exchange engine: not configured")

// Custodian pays tokens out of a vault. custody.Engine satisfies it.
type Custodian interface {
	Vault(addr [20]byte) (*custody.Vault, error)
	Payout(vault, recipient [20]byte, amount uint64) ([20]byte, error)
}

// Engine converts native currency into custodied tokens at fixed rates.
type Engine struct {
	native    custody.NativeLedger
	custodian Custodian
	emitter   events.Emitter
	pauses    common.PauseView
	logger    *slog.Logger
}

func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (e *Engine) SetNativeLedger(l custody.NativeLedger) { e.native = l }

func (e *Engine) SetCustodian(c Custodian) { e.custodian = c }

func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e.logger = logger
}

// Result reports what a conversion charged and granted.
type Result struct {
	Cost         uint64
	Granted      uint64
	TokenAccount [20]byte
}

// Convert charges the caller the tabled native cost, provisions the caller's
// token account if needed and pays out the tabled token amount. The host
// rolls everything back if any step fails.
func (e *Engine) Convert(caller, vaultAddr [20]byte, option uint8, isHolder bool) (*Result, error) {
	if e == nil || e.native == nil || e.custodian == nil {
		return nil, errNotConfigured
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	vault, err := e.custodian.Vault(vaultAddr)
	if err != nil {
		return nil, err
	}
	cost, granted := Quote(option, isHolder)

	if err := e.native.TransferNative(caller, vault.Address, cost); err != nil {
		return nil, err
	}
	dest, err := e.custodian.Payout(vault.Address, caller, granted)
	if err != nil {
		return nil, err
	}

	e.logger.Info("conversion settled",
		slog.String("version", custody.Version),
		slog.String("vault", crypto.FromRaw(vault.Address).String()),
		slog.String("pool", crypto.FromRaw(vault.Pool).String()),
		slog.String("pool_token_account", crypto.FromRaw(vault.PoolTokenAccount).String()),
		slog.Uint64("received", cost),
		slog.String("received_display", events.FormatUnits(cost, 9)),
		slog.Uint64("sent", granted),
		slog.String("sent_display", events.FormatUnits(granted, 9)))
	e.emitter.Emit(convertEvent{evt: NewConvertEvent(caller, vault.Address, option, isHolder, cost, granted)})
	return &Result{Cost: cost, Granted: granted, TokenAccount: dest}, nil
}

type convertEvent struct {
	evt *types.Event
}

func (e convertEvent) EventType() string { return EventTypeConvert }

func (e convertEvent) Event() *types.Event { return e.evt }

// NewConvertEvent records a settled conversion for auditors.
func NewConvertEvent(caller, vault [20]byte, option uint8, isHolder bool, cost, granted uint64) *types.Event {
	return &types.Event{Type: EventTypeConvert, Attributes: map[string]string{
		"caller":  crypto.FromRaw(caller).String(),
		"vault":   crypto.FromRaw(vault).String(),
		"option":  strconv.FormatUint(uint64(option), 10),
		"holder":  strconv.FormatBool(isHolder),
		"cost":    strconv.FormatUint(cost, 10),
		"granted": strconv.FormatUint(granted, 10),
	}}
}
