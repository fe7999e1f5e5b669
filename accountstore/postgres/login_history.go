package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/hts/authsvc"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoginHistorySink appends audit events to login_history. It is meant to
// sit behind the engine's async dispatcher; write failures are logged and
// dropped.
type LoginHistorySink struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ authsvc.AuditSink = (*LoginHistorySink)(nil)

func NewLoginHistorySink(db *gorm.DB, logger *slog.Logger) *LoginHistorySink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginHistorySink{db: db, logger: logger}
}

func (s *LoginHistorySink) Emit(ctx context.Context, ev authsvc.AuditEvent) {
	rec := toLoginHistoryModel(ev)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	// event_id is unique, so a redelivered event is a no-op.
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		s.logger.WarnContext(ctx, "login history insert failed",
			"module", "postgres",
			"layer", "adapter",
			"operation", "insert_login_history",
			"outcome", "failure",
			"account_id", ev.AccountID,
			"error", err,
		)
	}
}

// Recent returns the latest login history entries of accountID, newest
// first.
func (s *LoginHistorySink) Recent(ctx context.Context, accountID int64, limit int) ([]authsvc.AuditEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []loginHistoryModel
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]authsvc.AuditEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, authsvc.AuditEvent{
			ID:        row.EventID.String(),
			AccountID: row.AccountID,
			Outcome:   authsvc.AuditOutcome(row.Status),
			Reason:    row.FailReason,
			IP:        row.IPAddr,
			UserAgent: row.UserAgent,
			Timestamp: row.CreatedAt,
		})
	}
	return out, nil
}
