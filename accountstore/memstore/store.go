// Package memstore is an in-process AccountStore for tests, the load test
// tool and single-node development runs.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/hts/authsvc"
)

// Store keeps accounts in a map guarded by one mutex, which makes the
// failed-attempt increment trivially atomic.
type Store struct {
	mu       sync.Mutex
	accounts map[int64]authsvc.Account
	now      func() time.Time
}

var _ authsvc.AccountStore = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: make(map[int64]authsvc.Account),
		now:      time.Now,
	}
}

// WithClock sets the clock used for UpdatedAt stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) FindByID(ctx context.Context, accountID int64) (*authsvc.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, authsvc.ErrAccountNotFound
	}
	out := acct
	out.LockedUntil = cloneTime(acct.LockedUntil)
	return &out, nil
}

func (s *Store) IncrementFailedAttempts(ctx context.Context, accountID int64, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return 0, authsvc.ErrAccountNotFound
	}
	if acct.LockedUntil != nil && !acct.LockedUntil.After(now) {
		acct.FailedAttempts = 0
		acct.LockedUntil = nil
		if acct.Status == authsvc.AccountLocked {
			acct.Status = authsvc.AccountActive
		}
	}
	acct.FailedAttempts++
	acct.UpdatedAt = s.now()
	s.accounts[accountID] = acct
	return acct.FailedAttempts, nil
}

// Lock records a lock until the given time. A suspended account keeps its
// status, so an expired lock never reads as ACTIVE.
func (s *Store) Lock(ctx context.Context, accountID int64, until time.Time) error {
	return s.update(ctx, accountID, func(acct *authsvc.Account) {
		if acct.Status != authsvc.AccountSuspended {
			acct.Status = authsvc.AccountLocked
		}
		acct.LockedUntil = &until
	})
}

func (s *Store) ResetFailedAttempts(ctx context.Context, accountID int64) error {
	return s.update(ctx, accountID, func(acct *authsvc.Account) {
		acct.FailedAttempts = 0
		acct.LockedUntil = nil
		if acct.Status == authsvc.AccountLocked {
			acct.Status = authsvc.AccountActive
		}
	})
}

func (s *Store) Create(ctx context.Context, account authsvc.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.AccountID]; exists {
		return authsvc.ErrAccountExists
	}
	if account.Status == "" {
		account.Status = authsvc.AccountActive
	}
	now := s.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.LockedUntil = cloneTime(account.LockedUntil)
	s.accounts[account.AccountID] = account
	return nil
}

func (s *Store) Delete(ctx context.Context, accountID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.accounts[accountID]
	delete(s.accounts, accountID)
	return existed, nil
}

func (s *Store) UpdateStatus(ctx context.Context, accountID int64, status authsvc.AccountStatus) error {
	if !status.Valid() {
		return authsvc.ErrInvalidStatus
	}
	return s.update(ctx, accountID, func(acct *authsvc.Account) {
		acct.Status = status
		if status != authsvc.AccountLocked {
			acct.LockedUntil = nil
		}
	})
}

func (s *Store) UpdateCredential(ctx context.Context, accountID int64, hash, salt string) error {
	return s.update(ctx, accountID, func(acct *authsvc.Account) {
		acct.CredentialHash = hash
		acct.CredentialSalt = salt
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len reports how many accounts are stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func (s *Store) update(ctx context.Context, accountID int64, fn func(*authsvc.Account)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return authsvc.ErrAccountNotFound
	}
	fn(&acct)
	acct.UpdatedAt = s.now()
	s.accounts[accountID] = acct
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
