package custody

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	coreerrors "sktvault/core/errors"
	"sktvault/core/events"
	"sktvault/core/types"
	"sktvault/crypto"
	"sktvault/native/common"
)

var errNilState = errors.New("custody engine: state not configured")

// Engine implements vault initialisation, capped withdrawal and claims on
// top of an injected State.
type Engine struct {
	state   State
	emitter events.Emitter
	pauses  common.PauseView
	logger  *slog.Logger
	nowFn   func() int64
}

// NewEngine creates a custody engine with a no-op emitter and a discarding
// logger.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the ledgers and vault store used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetPauses wires the module pause switches.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e.logger = logger
}

// SetNowFunc overrides the time source. Intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(custodyEvent{evt: evt})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(e.nowFn())
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return common.Guard(e.pauses, ModuleName)
}

// InitParams describes a vault initialisation request.
type InitParams struct {
	Vault     [20]byte
	TokenType [20]byte
	Nonce     uint8
	// ExpectedPool, when set, must equal the derived custody authority.
	ExpectedPool *[20]byte
	Payer        [20]byte
}

// InitializeVault creates the vault record and its custody token account.
// Repeating the call with identical parameters is a no-op; differing
// parameters fail with ErrVaultMismatch.
func (e *Engine) InitializeVault(p InitParams) (*Vault, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if p.Vault == ([20]byte{}) || p.TokenType == ([20]byte{}) {
		return nil, fmt.Errorf("custody: vault and token type required: %w", coreerrors.ErrCustom)
	}
	authority, err := NewDerivedAuthority(VaultSeedPrefix, p.Vault, p.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerrors.ErrAuthorityMismatch, err)
	}
	pool := authority.Address()
	if p.ExpectedPool != nil && *p.ExpectedPool != pool {
		return nil, fmt.Errorf("%w: derived %s, expected %s", coreerrors.ErrAuthorityMismatch,
			crypto.FromRaw(pool), crypto.FromRaw(*p.ExpectedPool))
	}

	existing, ok, err := e.state.VaultGet(p.Vault)
	if err != nil {
		return nil, err
	}
	if ok {
		if existing.TokenType != p.TokenType || existing.DerivationNonce != p.Nonce {
			return nil, coreerrors.ErrVaultMismatch
		}
	}

	poolAccount := e.state.TokenAccountAddress(pool, p.TokenType)
	_, provisioned, err := e.state.TokenAccount(poolAccount)
	if err != nil {
		return nil, err
	}
	if !provisioned {
		payer := p.Payer
		if payer == ([20]byte{}) {
			payer = p.Vault
		}
		if _, err := e.state.CreateTokenAccount(payer, pool, p.TokenType); err != nil {
			return nil, fmt.Errorf("custody: create pool token account: %w", err)
		}
	}
	if ok && provisioned {
		e.logVault(existing, false)
		return existing.Clone(), nil
	}

	vault := &Vault{
		Address:          p.Vault,
		TokenType:        p.TokenType,
		DerivationNonce:  p.Nonce,
		Pool:             pool,
		PoolTokenAccount: poolAccount,
		CreatedAt:        e.now(),
	}
	if ok {
		vault.CreatedAt = existing.CreatedAt
	}
	if err := e.state.VaultPut(vault); err != nil {
		return nil, err
	}
	e.logVault(vault, !provisioned)
	if !ok {
		e.emit(NewVaultInitializedEvent(vault))
	}
	return vault.Clone(), nil
}

func (e *Engine) logVault(v *Vault, created bool) {
	e.logger.Info("vault initialised",
		slog.String("version", Version),
		slog.String("vault", crypto.FromRaw(v.Address).String()),
		slog.String("pool", crypto.FromRaw(v.Pool).String()),
		slog.String("pool_token_account", crypto.FromRaw(v.PoolTokenAccount).String()),
		slog.String("pool_owner", crypto.FromRaw(v.Pool).String()),
		slog.Bool("pool_created", created),
		slog.String("memo", VaultCreatedMemo))
}

// Vault loads a vault record.
func (e *Engine) Vault(addr [20]byte) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vault, ok, err := e.state.VaultGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("custody: vault %s: %w", crypto.FromRaw(addr), coreerrors.ErrNotFound)
	}
	return vault, nil
}

// Withdraw moves tokens and native currency out of a vault to an admin.
// Either leg may be skipped by passing zero.
func (e *Engine) Withdraw(caller, vaultAddr [20]byte, cfg *GlobalConfig, tokenAmount, nativeAmount uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := RequireAdmin(caller, cfg); err != nil {
		return err
	}
	if tokenAmount >= MaxWithdrawTokens {
		return coreerrors.ErrExceedMaxWithdrawAmount
	}
	vault, err := e.Vault(vaultAddr)
	if err != nil {
		return err
	}
	if tokenAmount > 0 {
		if _, err := e.payout(vault, caller, tokenAmount); err != nil {
			return err
		}
	}
	if nativeAmount > 0 {
		if err := e.state.DebitNative(vault.Address, nativeAmount); err != nil {
			return err
		}
		if err := e.state.CreditNative(caller, nativeAmount); err != nil {
			return err
		}
	}

	poolBalance, err := e.state.TokenBalance(vault.PoolTokenAccount)
	if err != nil {
		return err
	}
	nativeBalance, err := e.state.NativeBalance(vault.Address)
	if err != nil {
		return err
	}
	e.logger.Info("vault withdrawal",
		slog.String("vault", crypto.FromRaw(vault.Address).String()),
		slog.String("caller", crypto.FromRaw(caller).String()),
		slog.Uint64("token_amount", tokenAmount),
		slog.Uint64("native_amount", nativeAmount),
		slog.Uint64("pool_token_balance", poolBalance),
		slog.Uint64("vault_native_balance", nativeBalance))
	e.emit(NewWithdrawEvent(caller, vault.Address, tokenAmount, nativeAmount))
	return nil
}

// Claim transfers amount tokens from custody to the caller. It performs no
// admin check.
func (e *Engine) Claim(caller, vaultAddr [20]byte, amount uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	vault, err := e.Vault(vaultAddr)
	if err != nil {
		return err
	}
	if _, err := e.payout(vault, caller, amount); err != nil {
		return err
	}
	e.emit(NewClaimEvent(caller, vault.Address, amount))
	return nil
}

// Payout transfers amount tokens from the vault's custody account to the
// recipient's token account, provisioning that account (recipient-funded)
// when missing. It returns the recipient token account address.
func (e *Engine) Payout(vaultAddr, recipient [20]byte, amount uint64) ([20]byte, error) {
	if err := e.ready(); err != nil {
		return [20]byte{}, err
	}
	vault, err := e.Vault(vaultAddr)
	if err != nil {
		return [20]byte{}, err
	}
	return e.payout(vault, recipient, amount)
}

func (e *Engine) payout(vault *Vault, recipient [20]byte, amount uint64) ([20]byte, error) {
	dest, err := e.EnsureTokenAccount(recipient, recipient, vault.TokenType)
	if err != nil {
		return [20]byte{}, err
	}
	authority, err := VaultAuthority(vault)
	if err != nil {
		return [20]byte{}, err
	}
	source, ok, err := e.state.TokenAccount(vault.PoolTokenAccount)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, fmt.Errorf("custody: pool token account %s: %w", crypto.FromRaw(vault.PoolTokenAccount), coreerrors.ErrNotFound)
	}
	if err := authority.Authorize(source.Owner); err != nil {
		return [20]byte{}, err
	}
	if err := e.state.TransferToken(vault.PoolTokenAccount, dest, authority.Address(), amount); err != nil {
		return [20]byte{}, err
	}
	return dest, nil
}

// EnsureTokenAccount returns the (owner, mint) token account, creating it
// with payer funding when it does not exist yet.
func (e *Engine) EnsureTokenAccount(payer, owner, mint [20]byte) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	addr := e.state.TokenAccountAddress(owner, mint)
	_, ok, err := e.state.TokenAccount(addr)
	if err != nil {
		return [20]byte{}, err
	}
	if ok {
		return addr, nil
	}
	acct, err := e.state.CreateTokenAccount(payer, owner, mint)
	if err != nil {
		return [20]byte{}, err
	}
	return acct.Address, nil
}
