// Package postgres is the relational AccountStore and login history sink,
// built on GORM with the pgx driver.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/hts/authsvc"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements authsvc.AccountStore over the accounts table.
type Store struct {
	db *gorm.DB
}

var (
	_ authsvc.AccountStore = (*Store)(nil)
	_ authsvc.Pinger       = (*Store)(nil)
)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindByID(ctx context.Context, accountID int64) (*authsvc.Account, error) {
	var rec accountModel
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authsvc.ErrAccountNotFound
		}
		return nil, err
	}
	return toDomainAccount(rec), nil
}

// A lock that elapsed at @now restarts the count at 1 and releases the
// LOCKED status in the same statement. All CASE arms read pre-update values.
const incrementFailedAttemptsSQL = `
UPDATE accounts SET
    failed_attempts = CASE
        WHEN locked_until IS NOT NULL AND locked_until <= @now THEN 1
        ELSE failed_attempts + 1
    END,
    status = CASE
        WHEN status = 'LOCKED' AND (locked_until IS NULL OR locked_until <= @now) THEN 'ACTIVE'
        ELSE status
    END,
    locked_until = CASE
        WHEN locked_until IS NOT NULL AND locked_until <= @now THEN NULL
        ELSE locked_until
    END,
    updated_at = @now
WHERE account_id = @id
RETURNING failed_attempts`

func (s *Store) IncrementFailedAttempts(ctx context.Context, accountID int64, now time.Time) (int, error) {
	var rows []struct {
		FailedAttempts int `gorm:"column:failed_attempts"`
	}
	err := s.db.WithContext(ctx).
		Raw(incrementFailedAttemptsSQL, map[string]any{"now": now.UTC(), "id": accountID}).
		Scan(&rows).Error
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, authsvc.ErrAccountNotFound
	}
	return rows[0].FailedAttempts, nil
}

// Lock never overwrites SUSPENDED; a suspension that lands between the
// login read and the lock write must survive the lock's expiry.
func (s *Store) Lock(ctx context.Context, accountID int64, until time.Time) error {
	return s.update(ctx, accountID, map[string]any{
		"status":       gorm.Expr("CASE WHEN status = ? THEN status ELSE ? END", string(authsvc.AccountSuspended), string(authsvc.AccountLocked)),
		"locked_until": until.UTC(),
	})
}

func (s *Store) ResetFailedAttempts(ctx context.Context, accountID int64) error {
	return s.update(ctx, accountID, map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"status":          gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", string(authsvc.AccountLocked), string(authsvc.AccountActive)),
	})
}

// Create inserts with ON CONFLICT DO NOTHING so replayed creations never
// overwrite an existing row.
func (s *Store) Create(ctx context.Context, account authsvc.Account) error {
	rec := toAccountModel(account)
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return authsvc.ErrAccountExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authsvc.ErrAccountExists
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, accountID int64) (bool, error) {
	res := s.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&accountModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) UpdateStatus(ctx context.Context, accountID int64, status authsvc.AccountStatus) error {
	if !status.Valid() {
		return authsvc.ErrInvalidStatus
	}
	fields := map[string]any{"status": string(status)}
	if status != authsvc.AccountLocked {
		fields["locked_until"] = nil
	}
	return s.update(ctx, accountID, fields)
}

func (s *Store) UpdateCredential(ctx context.Context, accountID int64, hash, salt string) error {
	return s.update(ctx, accountID, map[string]any{
		"password_hash": hash,
		"salt":          salt,
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) update(ctx context.Context, accountID int64, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_id = ?", accountID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authsvc.ErrAccountNotFound
	}
	return nil
}
