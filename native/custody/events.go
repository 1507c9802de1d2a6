package custody

import (
	"strconv"

	"sktvault/core/events"
	"sktvault/core/types"
	"sktvault/crypto"
)

const (
	EventTypeVaultInitialized = "custody.vault_initialized"
	EventTypeWithdraw         = "custody.withdraw"
	EventTypeClaim            = "custody.claim"
	EventTypeGlobalInit       = "custody.global_initialized"
	EventTypeAdminAdded       = "custody.admin_added"
	EventTypeAdminRemoved     = "custody.admin_removed"
)

type custodyEvent struct {
	evt *types.Event
}

func (e custodyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e custodyEvent) Event() *types.Event { return e.evt }

// WrapEvent adapts a raw event so it satisfies the emitter contract.
func WrapEvent(evt *types.Event) events.Event { return custodyEvent{evt: evt} }

// NewVaultInitializedEvent describes a freshly created vault.
func NewVaultInitializedEvent(v *Vault) *types.Event {
	return &types.Event{Type: EventTypeVaultInitialized, Attributes: map[string]string{
		"vault":            crypto.FromRaw(v.Address).String(),
		"tokenType":        crypto.FromRaw(v.TokenType).String(),
		"pool":             crypto.FromRaw(v.Pool).String(),
		"poolTokenAccount": crypto.FromRaw(v.PoolTokenAccount).String(),
		"nonce":            strconv.FormatUint(uint64(v.DerivationNonce), 10),
		"memo":             VaultCreatedMemo,
	}}
}

// NewClaimEvent mirrors the claim payload consumed by indexers.
func NewClaimEvent(claimer, vault [20]byte, amount uint64) *types.Event {
	return &types.Event{Type: EventTypeClaim, Attributes: map[string]string{
		"claimer": crypto.FromRaw(claimer).String(),
		"vault":   crypto.FromRaw(vault).String(),
		"amount":  strconv.FormatUint(amount, 10),
	}}
}

func NewWithdrawEvent(caller, vault [20]byte, tokenAmount, nativeAmount uint64) *types.Event {
	return &types.Event{Type: EventTypeWithdraw, Attributes: map[string]string{
		"caller":       crypto.FromRaw(caller).String(),
		"vault":        crypto.FromRaw(vault).String(),
		"tokenAmount":  strconv.FormatUint(tokenAmount, 10),
		"nativeAmount": strconv.FormatUint(nativeAmount, 10),
	}}
}

func NewGlobalInitializedEvent(cfg *GlobalConfig) *types.Event {
	return &types.Event{Type: EventTypeGlobalInit, Attributes: map[string]string{
		"authority": crypto.FromRaw(cfg.Authority).String(),
	}}
}

func NewAdminEvent(eventType string, authority, admin [20]byte, size int) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"authority": crypto.FromRaw(authority).String(),
		"admin":     crypto.FromRaw(admin).String(),
		"admins":    strconv.Itoa(size),
	}}
}
