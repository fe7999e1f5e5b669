package authsvc

import "time"

// AccountStatus is the persisted lifecycle state of an account. A deleted
// account has no row at all.
type AccountStatus string

const (
	AccountActive    AccountStatus = "ACTIVE"
	AccountLocked    AccountStatus = "LOCKED"
	AccountSuspended AccountStatus = "SUSPENDED"
)

// Valid reports whether s is one of the known statuses.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountLocked, AccountSuspended:
		return true
	default:
		return false
	}
}

// Account is the credential record the engine authenticates against.
type Account struct {
	AccountID      int64
	CredentialHash string
	// CredentialSalt is only set for legacy salted digests.
	CredentialSalt string
	Status         AccountStatus
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// lockActive reports whether the lock window is still open at now.
func (a *Account) lockActive(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// effectiveStatus folds an elapsed lock back into ACTIVE. Locks expire
// lazily, so a LOCKED row with a past LockedUntil is loginable.
func (a *Account) effectiveStatus(now time.Time) AccountStatus {
	if a.Status == AccountLocked && !a.lockActive(now) {
		return AccountActive
	}
	return a.Status
}

// LoginRequest carries one credential check. IP and UserAgent only feed
// the session metadata and login history.
type LoginRequest struct {
	AccountID int64
	Password  string
	IP        string
	UserAgent string
}

type LoginResult struct {
	SessionID string
	AccountID int64
}

// ValidateResult is returned by ValidateSession. Valid is false for
// unknown or expired sessions; AccountID is zero in that case.
type ValidateResult struct {
	Valid     bool
	AccountID int64
}

// EventKind tags an [AccountEvent].
type EventKind uint8

const (
	EventAccountCreated EventKind = iota + 1
	EventAccountDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventAccountCreated:
		return "AccountCreated"
	case EventAccountDeleted:
		return "AccountDeleted"
	default:
		return "Unknown"
	}
}

// AccountEvent is a decoded lifecycle event. InitialCredential is only
// meaningful for EventAccountCreated.
type AccountEvent struct {
	Kind              EventKind
	AccountID         int64
	InitialCredential string
}

// AccountCreated builds a creation event.
func AccountCreated(accountID int64, credential string) AccountEvent {
	return AccountEvent{Kind: EventAccountCreated, AccountID: accountID, InitialCredential: credential}
}

// AccountDeleted builds a deletion event.
func AccountDeleted(accountID int64) AccountEvent {
	return AccountEvent{Kind: EventAccountDeleted, AccountID: accountID}
}

// SessionInfo is the read-only view of one live session.
type SessionInfo struct {
	SessionID string
	AccountID int64
	CreatedAt int64
	IP        string
	UserAgent string
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable    bool
	RedisLatency      time.Duration
	DatabaseAvailable bool
	DatabaseLatency   time.Duration
}
