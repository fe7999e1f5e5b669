package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hts/authsvc"
	"gorm.io/gorm"
)

// openTestDB connects to AUTHSVC_TEST_DATABASE_URL, applies migrations and
// empties both tables. Tests are skipped when the variable is unset.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	url := os.Getenv("AUTHSVC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("AUTHSVC_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, url, 8)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })

	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec("TRUNCATE accounts, login_history").Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

func TestStoreCreateIsConflictSafe(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()

	if err := s.Create(ctx, authsvc.Account{AccountID: 42, CredentialHash: "h1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.Create(ctx, authsvc.Account{AccountID: 42, CredentialHash: "h2"})
	if !errors.Is(err, authsvc.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	acct, err := s.FindByID(ctx, 42)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if acct.CredentialHash != "h1" || acct.Status != authsvc.AccountActive || acct.FailedAttempts != 0 {
		t.Fatalf("unexpected account %+v", acct)
	}
}

func TestStoreIncrementIsAtomic(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()
	if err := s.Create(ctx, authsvc.Account{AccountID: 1, CredentialHash: "h"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 20
	now := time.Now()
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.IncrementFailedAttempts(ctx, 1, now); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	acct, _ := s.FindByID(ctx, 1)
	if acct.FailedAttempts != n {
		t.Fatalf("expected %d failed attempts, got %d", n, acct.FailedAttempts)
	}
}

func TestStoreLockLifecycle(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()
	if err := s.Create(ctx, authsvc.Account{AccountID: 1, CredentialHash: "h"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now()
	if err := s.Lock(ctx, 1, now.Add(time.Minute)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	acct, _ := s.FindByID(ctx, 1)
	if acct.Status != authsvc.AccountLocked || acct.LockedUntil == nil {
		t.Fatalf("expected locked account, got %+v", acct)
	}

	n, err := s.IncrementFailedAttempts(ctx, 1, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected counter restart at 1, got %d", n)
	}
	acct, _ = s.FindByID(ctx, 1)
	if acct.Status != authsvc.AccountActive || acct.LockedUntil != nil {
		t.Fatalf("expected elapsed lock cleared, got %+v", acct)
	}

	if err := s.ResetFailedAttempts(ctx, 1); err != nil {
		t.Fatalf("reset: %v", err)
	}
	acct, _ = s.FindByID(ctx, 1)
	if acct.FailedAttempts != 0 {
		t.Fatalf("expected reset counter, got %d", acct.FailedAttempts)
	}
}

func TestStoreLockKeepsSuspension(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()
	if err := s.Create(ctx, authsvc.Account{AccountID: 1, CredentialHash: "h"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.UpdateStatus(ctx, 1, authsvc.AccountSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := s.Lock(ctx, 1, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	acct, _ := s.FindByID(ctx, 1)
	if acct.Status != authsvc.AccountSuspended || acct.LockedUntil == nil {
		t.Fatalf("expected suspended account with lock expiry, got %+v", acct)
	}
}

func TestStoreMissingAccount(t *testing.T) {
	s := New(openTestDB(t))
	ctx := context.Background()

	if _, err := s.FindByID(ctx, 404); !errors.Is(err, authsvc.ErrAccountNotFound) {
		t.Fatalf("find: %v", err)
	}
	if _, err := s.IncrementFailedAttempts(ctx, 404, time.Now()); !errors.Is(err, authsvc.ErrAccountNotFound) {
		t.Fatalf("increment: %v", err)
	}
	if err := s.UpdateStatus(ctx, 404, authsvc.AccountSuspended); !errors.Is(err, authsvc.ErrAccountNotFound) {
		t.Fatalf("update status: %v", err)
	}
	if existed, err := s.Delete(ctx, 404); err != nil || existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
}

func TestLoginHistorySinkAppends(t *testing.T) {
	db := openTestDB(t)
	sink := NewLoginHistorySink(db, nil)
	ctx := context.Background()

	ev := authsvc.AuditEvent{
		ID:        uuid.NewString(),
		AccountID: 42,
		Outcome:   authsvc.AuditOutcomeFail,
		Reason:    authsvc.AuditReasonInvalidPassword,
		IP:        "10.0.0.1",
		Timestamp: time.Now().UTC(),
	}
	sink.Emit(ctx, ev)
	sink.Emit(ctx, ev)

	got, err := sink.Recent(ctx, 42, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected redelivery to be ignored, got %d rows", len(got))
	}
	if got[0].Reason != authsvc.AuditReasonInvalidPassword || got[0].Outcome != authsvc.AuditOutcomeFail {
		t.Fatalf("unexpected row %+v", got[0])
	}
}

func TestModelMapping(t *testing.T) {
	until := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	acct := authsvc.Account{
		AccountID:      9,
		CredentialHash: "hash",
		CredentialSalt: "salt",
		FailedAttempts: 2,
		LockedUntil:    &until,
	}

	rec := toAccountModel(acct)
	if rec.Status != string(authsvc.AccountActive) {
		t.Fatalf("expected default ACTIVE status, got %q", rec.Status)
	}
	back := toDomainAccount(rec)
	if back.AccountID != 9 || back.CredentialSalt != "salt" || back.FailedAttempts != 2 || !back.LockedUntil.Equal(until) {
		t.Fatalf("round trip mismatch %+v", back)
	}

	hist := toLoginHistoryModel(authsvc.AuditEvent{ID: "not-a-uuid", AccountID: 9})
	if hist.EventID == uuid.Nil {
		t.Fatal("expected a generated event id for malformed ids")
	}
}
