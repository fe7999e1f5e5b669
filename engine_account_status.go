package authsvc

import (
	"context"
	"errors"
	"fmt"
)

// SuspendAccount blocks future logins and revokes every live session.
func (e *Engine) SuspendAccount(ctx context.Context, accountID int64) error {
	err := e.updateAccountStatusAndInvalidate(ctx, accountID, AccountSuspended)
	if err == nil {
		e.metricInc(MetricAccountSuspended)
	}
	return err
}

// ReactivateAccount returns a suspended or locked account to ACTIVE and
// clears its failure counter.
func (e *Engine) ReactivateAccount(ctx context.Context, accountID int64) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.updateStatus(ctx, accountID, AccountActive); err != nil {
		return e.statusChangeFailure(ctx, accountID, AccountActive, err)
	}
	if err := e.resetFailedAttempts(ctx, accountID); err != nil {
		return e.statusChangeFailure(ctx, accountID, AccountActive, err)
	}
	e.metricInc(MetricAccountReactivated)
	return nil
}

// UnlockAccount releases a lockout early. A suspended account stays
// suspended.
func (e *Engine) UnlockAccount(ctx context.Context, accountID int64) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if _, err := e.findAccount(ctx, accountID); err != nil {
		return e.storeFailure(err)
	}
	if err := e.resetFailedAttempts(ctx, accountID); err != nil {
		return e.statusChangeFailure(ctx, accountID, AccountActive, err)
	}
	e.metricInc(MetricAccountUnlocked)
	return nil
}

// GetAccountStatus returns the status a login would see right now, with
// elapsed locks folded into ACTIVE.
func (e *Engine) GetAccountStatus(ctx context.Context, accountID int64) (AccountStatus, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	acct, err := e.findAccount(ctx, accountID)
	if err != nil {
		return "", e.storeFailure(err)
	}
	return acct.effectiveStatus(e.now()), nil
}

func (e *Engine) updateAccountStatusAndInvalidate(ctx context.Context, accountID int64, status AccountStatus) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if !status.Valid() {
		return ErrInvalidStatus
	}

	if err := e.updateStatus(ctx, accountID, status); err != nil {
		return e.statusChangeFailure(ctx, accountID, status, err)
	}

	if _, err := e.LogoutAll(ctx, accountID); err != nil {
		return errors.Join(fmt.Errorf("status %s applied but sessions remain", status), err)
	}
	return nil
}

func (e *Engine) statusChangeFailure(ctx context.Context, accountID int64, status AccountStatus, err error) error {
	if errors.Is(err, ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	e.logError(ctx, "update_account_status", "account status change failed", err,
		"account_id", accountID, "status", string(status))
	return e.storeFailure(err)
}
