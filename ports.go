package authsvc

import (
	"context"
	"time"

	"github.com/hts/authsvc/session"
)

// AccountStore persists account credential state. Implementations must be
// safe for concurrent use.
//
// FindByID, IncrementFailedAttempts, UpdateStatus and UpdateCredential
// return [ErrAccountNotFound] when no row exists.
type AccountStore interface {
	FindByID(ctx context.Context, accountID int64) (*Account, error)

	// IncrementFailedAttempts atomically adds one failed attempt and returns
	// the new count. When the stored lock has already elapsed at now the
	// counter restarts at 1 and the lock is cleared.
	IncrementFailedAttempts(ctx context.Context, accountID int64, now time.Time) (int, error)

	// Lock marks the account LOCKED until the given instant.
	Lock(ctx context.Context, accountID int64, until time.Time) error

	// ResetFailedAttempts zeroes the counter and clears any lock. A LOCKED
	// status returns to ACTIVE; SUSPENDED is left alone.
	ResetFailedAttempts(ctx context.Context, accountID int64) error

	// Create inserts a new account. A duplicate id returns
	// [ErrAccountExists] and leaves the stored row untouched.
	Create(ctx context.Context, account Account) error

	// Delete removes the account row and reports whether one existed.
	Delete(ctx context.Context, accountID int64) (bool, error)

	UpdateStatus(ctx context.Context, accountID int64, status AccountStatus) error
	UpdateCredential(ctx context.Context, accountID int64, hash, salt string) error
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Hasher verifies and produces stored credentials. Salt is empty for
// self-describing formats.
type Hasher interface {
	Hash(password string) (hash, salt string, err error)
	Verify(password, hash, salt string) (bool, error)
	NeedsUpgrade(hash, salt string) bool
}

// SessionStore is the session persistence contract. [session.Store] is the
// production implementation.
type SessionStore interface {
	Create(ctx context.Context, accountID int64, ttl time.Duration, meta session.Meta) (string, error)
	GetAndRefresh(ctx context.Context, sessionID string, ttl time.Duration) (int64, error)
	Lookup(ctx context.Context, sessionID string) (*session.Record, error)
	Delete(ctx context.Context, sessionID string, accountID int64) error
	DeleteAllForAccount(ctx context.Context, accountID int64) (int, error)
	ActiveSessionIDs(ctx context.Context, accountID int64) ([]string, error)
	Ping(ctx context.Context) (time.Duration, error)
}

var _ SessionStore = (*session.Store)(nil)
