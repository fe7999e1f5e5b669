package authsvc

import (
	"context"
	"errors"
	"time"

	"github.com/hts/authsvc/session"
)

// Login authenticates req and, on success, issues a new session.
//
// Domain rejections are returned as [ErrAccountNotFound], [ErrAccountLocked],
// [ErrAccountSuspended] or [ErrInvalidCredentials]. Store failures are
// wrapped in [ErrInternal]. Every decision writes one login-history entry.
//
// Counter writes happen before the session is created, so a session store
// outage after a correct password never counts as a failed attempt.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}

	start := time.Now()
	result, err := e.login(ctx, req)
	e.observe(MetricLoginLatency, start)
	e.countLogin(err)
	return result, err
}

func (e *Engine) login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	acct, err := e.findAccount(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.emitLoginAudit(ctx, req, AuditOutcomeFail, AuditReasonAccountNotFound)
			return LoginResult{}, ErrAccountNotFound
		}
		e.logError(ctx, "login", "account lookup failed", err, "account_id", req.AccountID)
		e.emitLoginAudit(ctx, req, AuditOutcomeFail, AuditReasonInternalError)
		return LoginResult{}, e.storeFailure(err)
	}

	now := e.now()
	if e.lockout.IsLocked(acct.LockedUntil, now) {
		e.emitLoginAudit(ctx, req, AuditOutcomeLocked, AuditReasonAccountLocked)
		return LoginResult{}, ErrAccountLocked
	}
	if acct.effectiveStatus(now) != AccountActive {
		e.emitLoginAudit(ctx, req, AuditOutcomeFail, AuditReasonAccountSuspended)
		return LoginResult{}, ErrAccountSuspended
	}

	ok, err := e.hasher.Verify(req.Password, acct.CredentialHash, acct.CredentialSalt)
	if err != nil {
		e.logError(ctx, "login", "credential verification failed", err, "account_id", req.AccountID)
		e.emitLoginAudit(ctx, req, AuditOutcomeFail, AuditReasonInternalError)
		return LoginResult{}, internalError(err)
	}
	if !ok {
		return LoginResult{}, e.loginFailed(ctx, req, now)
	}

	return e.loginSucceeded(ctx, req, acct)
}

func (e *Engine) loginFailed(ctx context.Context, req LoginRequest, now time.Time) error {
	failed, err := e.incrementFailedAttempts(ctx, req.AccountID, now)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// deleted between read and increment
			e.emitLoginAudit(ctx, req, AuditOutcomeFail, AuditReasonAccountNotFound)
			return ErrAccountNotFound
		}
		e.logError(ctx, "login", "failed attempt increment failed", err, "account_id", req.AccountID)
		e.emitLoginAudit(ctx, req, AuditOutcomeFail, AuditReasonInternalError)
		return e.storeFailure(err)
	}

	lock, until := e.lockout.Evaluate(failed, now)
	if !lock {
		e.emitLoginAudit(ctx, req, AuditOutcomeFail, AuditReasonInvalidPassword)
		return ErrInvalidCredentials
	}

	if err := e.lockAccount(ctx, req.AccountID, until); err != nil {
		// The counter stays at or above the threshold, so the next failure
		// retries the lock.
		e.storeFailure(err)
		e.logError(ctx, "login", "account lock write failed", err, "account_id", req.AccountID)
	} else {
		e.metricInc(MetricAccountLocked)
		e.logWarn(ctx, "login", "account locked after repeated failures",
			"account_id", req.AccountID, "failed_attempts", failed, "locked_until", until)
	}
	e.emitLoginAudit(ctx, req, AuditOutcomeLocked, AuditReasonMaxAttemptsExceeded)
	return ErrAccountLocked
}

func (e *Engine) loginSucceeded(ctx context.Context, req LoginRequest, acct *Account) (LoginResult, error) {
	// Unconditional: a concurrent failure may have bumped the counter after
	// acct was read.
	if err := e.resetFailedAttempts(ctx, req.AccountID); err != nil {
		e.logError(ctx, "login", "failed attempt reset failed", err, "account_id", req.AccountID)
		e.emitLoginAudit(ctx, req, AuditOutcomeFail, AuditReasonInternalError)
		return LoginResult{}, e.storeFailure(err)
	}

	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsUpgrade(acct.CredentialHash, acct.CredentialSalt) {
		e.upgradeCredential(ctx, req)
	}

	sessionID, err := e.sessions.Create(ctx, req.AccountID, e.config.Session.TTL, session.Meta{
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		e.metricInc(MetricSessionStoreError)
		e.logError(ctx, "login", "session create failed", err, "account_id", req.AccountID)
		e.emitLoginAudit(ctx, req, AuditOutcomeFail, AuditReasonInternalError)
		return LoginResult{}, internalError(err)
	}

	e.metricInc(MetricSessionCreated)
	e.emitLoginAudit(ctx, req, AuditOutcomeSuccess, "")
	return LoginResult{SessionID: sessionID, AccountID: req.AccountID}, nil
}

// upgradeCredential rehashes a verified password with the current
// parameters. It is best effort; the login proceeds either way.
func (e *Engine) upgradeCredential(ctx context.Context, req LoginRequest) {
	hash, salt, err := e.hasher.Hash(req.Password)
	if err != nil {
		e.logWarn(ctx, "login", "credential rehash failed", "account_id", req.AccountID, "error", err)
		return
	}
	if err := e.updateCredential(ctx, req.AccountID, hash, salt); err != nil {
		e.logWarn(ctx, "login", "credential upgrade write failed", "account_id", req.AccountID, "error", err)
		return
	}
	e.metricInc(MetricCredentialUpgraded)
}

func (e *Engine) countLogin(err error) {
	switch ResultCodeOf(err) {
	case ResultSuccess:
		e.metricInc(MetricLoginSuccess)
	case ResultAccountNotFound:
		e.metricInc(MetricLoginAccountNotFound)
	case ResultAccountLocked:
		e.metricInc(MetricLoginRejectedLocked)
	case ResultAccountSuspended:
		e.metricInc(MetricLoginRejectedSuspended)
	case ResultInvalidCredentials:
		e.metricInc(MetricLoginInvalidCredentials)
	default:
		e.metricInc(MetricLoginInternalError)
	}
}
