package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/hts/authsvc"
)

type accountModel struct {
	AccountID      int64      `gorm:"column:account_id;primaryKey;autoIncrement:false"`
	PasswordHash   string     `gorm:"column:password_hash"`
	Salt           string     `gorm:"column:salt"`
	Status         string     `gorm:"column:status"`
	FailedAttempts int        `gorm:"column:failed_attempts"`
	LockedUntil    *time.Time `gorm:"column:locked_until"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

type loginHistoryModel struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	EventID    uuid.UUID `gorm:"column:event_id;type:uuid"`
	AccountID  int64     `gorm:"column:account_id"`
	Status     string    `gorm:"column:status"`
	IPAddr     string    `gorm:"column:ip_addr"`
	UserAgent  string    `gorm:"column:user_agent"`
	FailReason string    `gorm:"column:fail_reason"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (loginHistoryModel) TableName() string { return "login_history" }

func toDomainAccount(rec accountModel) *authsvc.Account {
	return &authsvc.Account{
		AccountID:      rec.AccountID,
		CredentialHash: rec.PasswordHash,
		CredentialSalt: rec.Salt,
		Status:         authsvc.AccountStatus(rec.Status),
		FailedAttempts: rec.FailedAttempts,
		LockedUntil:    rec.LockedUntil,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func toAccountModel(acct authsvc.Account) accountModel {
	status := acct.Status
	if status == "" {
		status = authsvc.AccountActive
	}
	return accountModel{
		AccountID:      acct.AccountID,
		PasswordHash:   acct.CredentialHash,
		Salt:           acct.CredentialSalt,
		Status:         string(status),
		FailedAttempts: acct.FailedAttempts,
		LockedUntil:    acct.LockedUntil,
		CreatedAt:      acct.CreatedAt,
		UpdatedAt:      acct.UpdatedAt,
	}
}

func toLoginHistoryModel(ev authsvc.AuditEvent) loginHistoryModel {
	id, err := uuid.Parse(ev.ID)
	if err != nil {
		id = uuid.New()
	}
	return loginHistoryModel{
		EventID:    id,
		AccountID:  ev.AccountID,
		Status:     string(ev.Outcome),
		IPAddr:     ev.IP,
		UserAgent:  ev.UserAgent,
		FailReason: ev.Reason,
		CreatedAt:  ev.Timestamp,
	}
}
