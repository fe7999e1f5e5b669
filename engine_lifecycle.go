package authsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hts/authsvc/password"
)

// ApplyAccountEvent applies one lifecycle event. Both kinds are idempotent:
// a replayed creation leaves the existing account untouched, and a replayed
// deletion still purges any sessions left for the account.
//
// Events that can never succeed are rejected with [ErrInvalidEvent].
func (e *Engine) ApplyAccountEvent(ctx context.Context, ev AccountEvent) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if ev.AccountID <= 0 {
		return fmt.Errorf("%w: account id %d", ErrInvalidEvent, ev.AccountID)
	}

	switch ev.Kind {
	case EventAccountCreated:
		return e.applyAccountCreated(ctx, ev)
	case EventAccountDeleted:
		return e.applyAccountDeleted(ctx, ev)
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidEvent, ev.Kind)
	}
}

func (e *Engine) applyAccountCreated(ctx context.Context, ev AccountEvent) error {
	hash, salt, err := e.hasher.Hash(ev.InitialCredential)
	if err != nil {
		if errors.Is(err, password.ErrEmptyPassword) || errors.Is(err, password.ErrPasswordTooLong) {
			return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		return internalError(err)
	}

	now := e.now().UTC()
	err = e.createAccount(ctx, Account{
		AccountID:      ev.AccountID,
		CredentialHash: hash,
		CredentialSalt: salt,
		Status:         AccountActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	switch {
	case err == nil:
		e.metricInc(MetricAccountCreated)
		e.logger.InfoContext(ctx, "account created",
			e.logAttrs(ctx, "account_created", "account_id", ev.AccountID, "outcome", "success")...)
		return nil
	case errors.Is(err, ErrAccountExists):
		e.metricInc(MetricAccountCreateDuplicate)
		e.logDebug(ctx, "account_created", "account already exists", "account_id", ev.AccountID)
		return nil
	default:
		return e.storeFailure(err)
	}
}

func (e *Engine) applyAccountDeleted(ctx context.Context, ev AccountEvent) error {
	existed, err := e.deleteAccount(ctx, ev.AccountID)
	if err != nil {
		return e.storeFailure(err)
	}

	removed, err := e.sessions.DeleteAllForAccount(ctx, ev.AccountID)
	if err != nil {
		e.metricInc(MetricSessionStoreError)
		return internalError(err)
	}

	e.metricInc(MetricAccountDeleted)
	e.logger.InfoContext(ctx, "account deleted",
		e.logAttrs(ctx, "account_deleted",
			"account_id", ev.AccountID, "existed", existed, "sessions_removed", removed, "outcome", "success")...)
	return nil
}

// HandleAccountEvent applies ev with bounded retries. Invalid events are
// not retried. After the last failed attempt the event is logged as lost
// and the error returned; the caller acknowledges it either way. If ctx
// ends first the returned error wraps ctx.Err() and the event is not
// counted as dropped.
func (e *Engine) HandleAccountEvent(ctx context.Context, ev AccountEvent) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	maxAttempts := e.config.Lifecycle.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = e.ApplyAccountEvent(ctx, ev)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.logWarn(ctx, "handle_account_event", "account event interrupted",
				"event", ev.Kind.String(), "account_id", ev.AccountID, "attempt", attempt, "error", err)
			return errors.Join(err, ctxErr)
		}
		if errors.Is(err, ErrInvalidEvent) {
			e.metricInc(MetricLifecycleInvalid)
			e.logWarn(ctx, "handle_account_event", "account event rejected",
				"event", ev.Kind.String(), "account_id", ev.AccountID, "error", err)
			return err
		}
		if attempt == maxAttempts {
			break
		}

		e.metricInc(MetricLifecycleRetry)
		e.logWarn(ctx, "handle_account_event", "account event failed, retrying",
			"event", ev.Kind.String(), "account_id", ev.AccountID, "attempt", attempt, "error", err)
		if waitErr := sleepContext(ctx, e.config.Lifecycle.RetryBackoff*time.Duration(attempt)); waitErr != nil {
			return errors.Join(err, waitErr)
		}
	}

	e.metricInc(MetricLifecycleDropped)
	e.logError(ctx, "handle_account_event", "account event dropped after retries", err,
		"event", ev.Kind.String(), "account_id", ev.AccountID, "attempts", maxAttempts)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
