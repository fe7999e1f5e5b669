// Package authsvc implements credential authentication, opaque server-side
// sessions, and brute-force lockout for internal service callers.
//
// An [Engine] is assembled once through [New] and the [Builder] methods and
// then shared by every transport. It owns four decisions:
//
//   - Login verifies a credential against the [AccountStore], applies the
//     lockout policy and issues a session through the [SessionStore].
//   - ValidateSession resolves a session id to its account and slides the
//     session expiry.
//   - Logout and LogoutAll revoke one or all sessions of an account.
//   - ApplyAccountEvent and HandleAccountEvent keep account state in step
//     with the account lifecycle stream.
//
// Domain outcomes are returned as sentinel errors ([ErrAccountLocked],
// [ErrInvalidCredentials], ...) and mapped to wire result codes with
// [ResultCodeOf]. Infrastructure failures are wrapped in [ErrInternal].
//
// Login history is written through an asynchronous [AuditSink]; a slow or
// failing sink never changes the outcome of an authentication decision.
package authsvc
