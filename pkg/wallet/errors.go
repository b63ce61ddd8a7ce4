// Package wallet defines the single error kind shared by the session, chain and game layers.
package wallet

import (
	"errors"
	"fmt"
)

// Code is a short machine readable error code
type Code string

const (
	CodeNoProvider               Code = "no-provider-found"
	CodeRPCAllEndpointsFailed    Code = "rpc-all-endpoints-failed"
	CodeChainSwitchFailed        Code = "chain-switch-failed"
	CodeChainAddFailed           Code = "chain-add-failed"
	CodeConnectionTimeout        Code = "connection-timeout"
	CodeNoAccounts               Code = "no-accounts-returned"
	CodeInjectedConnectionFailed Code = "injected-connection-failed"
	CodeWalletConnectFailure     Code = "walletconnect-failure"
	CodeConnectInProgress        Code = "connect-in-progress"
	CodeNotConnected             Code = "not-connected"
	CodePlayFailed               Code = "play-failed"
	CodeHistoryFetchFailed       Code = "history-fetch-failed"
	CodeGameStateFetchFailed     Code = "game-state-fetch-failed"
	CodeEndRoundFailed           Code = "end-round-failed"
	CodeClaimFailed              Code = "claim-failed"
	CodeNoRewards                Code = "no-rewards"
	CodeNFTCheckFailed           Code = "nft-check-failed"
	CodeMintFailed               Code = "mint-failed"
)

// Error is the coded error kind; Cause keeps the underlying failure
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// NewError creates a wallet error
func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so errors.Is(err, &Error{Code: CodeNoRewards}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Ensure returns err unchanged when it already is a wallet error, otherwise wraps it with code and message
func Ensure(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	var werr *Error
	if errors.As(err, &werr) {
		return err
	}
	return NewError(code, message, err)
}

// CodeOf returns the code of the outermost wallet error in the chain, or "" if there is none
func CodeOf(err error) Code {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
