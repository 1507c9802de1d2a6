package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is the stable numeric identifier surfaced to callers.
type Code uint32

const (
	CodeNoTicketsLeft Code = 6000 + iota
	CodeRafflePriceMismatched
	CodeRaffleTokenSPLAddressMismatched
	CodeNotEnoughTokens
	CodeErrorCustom
	CodeAlreadyAuthorizedAdmin
	CodeNotAuthorizedAdmin
	CodeExceedMaxWithdrawAmount
	CodeRaffleFinalized
)

var codeNames = map[Code]string{
	CodeNoTicketsLeft:                   "NoTicketsLeft",
	CodeRafflePriceMismatched:           "RafflePriceMismatched",
	CodeRaffleTokenSPLAddressMismatched: "RaffleTokenSPLAddressMismatched",
	CodeNotEnoughTokens:                 "NotEnoughTokens",
	CodeErrorCustom:                     "ErrorCustom",
	CodeAlreadyAuthorizedAdmin:          "AlreadyAuthorizedAdmin",
	CodeNotAuthorizedAdmin:              "NotAuthorizedAdmin",
	CodeExceedMaxWithdrawAmount:         "ExceedMaxWithdrawAmount",
	CodeRaffleFinalized:                 "RaffleFinalized",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// Error is a coded failure. Sentinels are compared by identity, so wrap
// them with %w to add context.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

var (
	ErrNoTicketsLeft                   = newError(CodeNoTicketsLeft, "raffle: no more tickets left for purchase")
	ErrRafflePriceMismatched           = newError(CodeRafflePriceMismatched, "raffle: price mismatched")
	ErrRaffleTokenSPLAddressMismatched = newError(CodeRaffleTokenSPLAddressMismatched, "raffle: token address mismatched")
	ErrNotEnoughTokens                 = newError(CodeNotEnoughTokens, "not enough tokens")
	ErrCustom                          = newError(CodeErrorCustom, "custom error")
	ErrAlreadyAuthorizedAdmin          = newError(CodeAlreadyAuthorizedAdmin, "admin already authorized")
	ErrNotAuthorizedAdmin              = newError(CodeNotAuthorizedAdmin, "not authorized admin")
	ErrExceedMaxWithdrawAmount         = newError(CodeExceedMaxWithdrawAmount, "cannot withdraw more than 10,000")
	ErrRaffleFinalized                 = newError(CodeRaffleFinalized, "raffle: already finalized")

	// The following refine ErrorCustom for conditions the base taxonomy
	// does not name.
	ErrAdminLimitReached = newError(CodeErrorCustom, "admin set is full")
	ErrNotAuthority      = newError(CodeErrorCustom, "caller is not the config authority")
	ErrVaultMismatch     = newError(CodeErrorCustom, "vault already initialized with different parameters")
	ErrAuthorityMismatch = newError(CodeErrorCustom, "derived authority does not match expected pool")
	ErrNotFound          = newError(CodeErrorCustom, "record not found")
	ErrInvalidAmount     = newError(CodeErrorCustom, "invalid amount")
)

// CodeOf extracts the code carried by err. Unclassified errors map to
// CodeErrorCustom; nil maps to zero.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return CodeErrorCustom
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
