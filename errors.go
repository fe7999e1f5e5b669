package authsvc

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	// ErrInternal wraps every infrastructure failure surfaced by the engine.
	ErrInternal       = errors.New("internal error")
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidEvent marks a lifecycle event that can never be applied.
	ErrInvalidEvent  = errors.New("invalid account event")
	ErrInvalidStatus = errors.New("invalid account status")
	// ErrAccountExists is returned by AccountStore.Create on a duplicate id.
	ErrAccountExists = errors.New("account already exists")
)

// ResultCode is the caller-visible outcome of an RPC.
type ResultCode string

const (
	ResultSuccess            ResultCode = "SUCCESS"
	ResultAccountNotFound    ResultCode = "ACCOUNT_NOT_FOUND"
	ResultAccountLocked      ResultCode = "ACCOUNT_LOCKED"
	ResultAccountSuspended   ResultCode = "ACCOUNT_SUSPENDED"
	ResultInvalidCredentials ResultCode = "INVALID_CREDENTIALS"
	ResultSessionNotFound    ResultCode = "SESSION_NOT_FOUND"
	ResultInternalError      ResultCode = "INTERNAL_ERROR"
)

// ResultCodeOf maps an engine error to its result code. A nil error is
// SUCCESS; anything unrecognized is INTERNAL_ERROR.
func ResultCodeOf(err error) ResultCode {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrInternal), errors.Is(err, ErrEngineNotReady):
		return ResultInternalError
	case errors.Is(err, ErrAccountNotFound):
		return ResultAccountNotFound
	case errors.Is(err, ErrAccountLocked):
		return ResultAccountLocked
	case errors.Is(err, ErrAccountSuspended):
		return ResultAccountSuspended
	case errors.Is(err, ErrInvalidCredentials):
		return ResultInvalidCredentials
	case errors.Is(err, ErrSessionNotFound):
		return ResultSessionNotFound
	default:
		return ResultInternalError
	}
}

func internalError(err error) error {
	if err == nil || errors.Is(err, ErrInternal) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}
