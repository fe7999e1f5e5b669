package authsvc

import (
	"context"
	"errors"
	"time"

	"github.com/hts/authsvc/session"
)

// ValidateSession resolves sessionID to its account and slides the session
// expiry. Unknown or expired sessions yield Valid=false with a nil error;
// only store failures return an error.
func (e *Engine) ValidateSession(ctx context.Context, sessionID string) (ValidateResult, error) {
	if e == nil || e.sessions == nil {
		return ValidateResult{}, ErrEngineNotReady
	}

	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	accountID, err := e.sessions.GetAndRefresh(ctx, sessionID, e.config.Session.TTL)
	if err != nil {
		if isSessionAbsent(err) {
			e.metricInc(MetricSessionInvalid)
			return ValidateResult{}, nil
		}
		e.metricInc(MetricSessionStoreError)
		e.logError(ctx, "validate_session", "session lookup failed", err)
		return ValidateResult{}, internalError(err)
	}

	e.metricInc(MetricSessionValidated)
	return ValidateResult{Valid: true, AccountID: accountID}, nil
}

// Logout deletes one session and its index entry. Deleting an absent
// session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string, accountID int64) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	start := time.Now()
	defer e.observe(MetricLogoutLatency, start)

	if err := e.sessions.Delete(ctx, sessionID, accountID); err != nil {
		e.metricInc(MetricSessionStoreError)
		e.logError(ctx, "logout", "session delete failed", err, "account_id", accountID)
		return internalError(err)
	}
	e.metricInc(MetricLogout)
	return nil
}

// LogoutSession resolves the owner of sessionID and deletes it. It returns
// [ErrSessionNotFound] when the session is already gone.
func (e *Engine) LogoutSession(ctx context.Context, sessionID string) error {
	res, err := e.ValidateSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !res.Valid {
		return ErrSessionNotFound
	}
	return e.Logout(ctx, sessionID, res.AccountID)
}

// LogoutAll deletes every session of accountID and returns how many live
// sessions were removed.
func (e *Engine) LogoutAll(ctx context.Context, accountID int64) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	removed, err := e.sessions.DeleteAllForAccount(ctx, accountID)
	if err != nil {
		e.metricInc(MetricSessionStoreError)
		e.logError(ctx, "logout_all", "session purge failed", err, "account_id", accountID)
		return 0, internalError(err)
	}
	e.metricInc(MetricLogoutAll)
	return removed, nil
}

// ActiveSessions lists the live session ids of accountID.
func (e *Engine) ActiveSessions(ctx context.Context, accountID int64) ([]string, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	ids, err := e.sessions.ActiveSessionIDs(ctx, accountID)
	if err != nil {
		return nil, internalError(err)
	}
	return ids, nil
}

// ListActiveSessions returns the stored metadata of every live session of
// accountID. Sessions that expire between listing and lookup are skipped.
func (e *Engine) ListActiveSessions(ctx context.Context, accountID int64) ([]SessionInfo, error) {
	ids, err := e.ActiveSessions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		rec, err := e.sessions.Lookup(ctx, id)
		if err != nil {
			if isSessionAbsent(err) {
				continue
			}
			return nil, internalError(err)
		}
		out = append(out, SessionInfo{
			SessionID: rec.SessionID,
			AccountID: rec.AccountID,
			CreatedAt: rec.CreatedAt,
			IP:        rec.IP,
			UserAgent: rec.UserAgent,
		})
	}
	return out, nil
}

// ActiveSessionCount is len(ActiveSessions).
func (e *Engine) ActiveSessionCount(ctx context.Context, accountID int64) (int, error) {
	ids, err := e.ActiveSessions(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// A corrupt record cannot be resolved to an account and is reported as
// absent rather than as an outage.
func isSessionAbsent(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, session.ErrSessionCorrupt) ||
		errors.Is(err, ErrSessionNotFound)
}
