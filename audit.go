package authsvc

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/hts/authsvc/internal/audit"
)

type (
	// AuditEvent is one login-history entry.
	AuditEvent = audit.Event
	// AuditSink receives login-history entries from the async dispatcher.
	AuditSink    = audit.Sink
	AuditOutcome = audit.Outcome
)

const (
	AuditOutcomeSuccess = audit.OutcomeSuccess
	AuditOutcomeFail    = audit.OutcomeFail
	AuditOutcomeLocked  = audit.OutcomeLocked
)

// Login-history failure reasons.
const (
	AuditReasonAccountNotFound     = "ACCOUNT_NOT_FOUND"
	AuditReasonAccountLocked       = "ACCOUNT_LOCKED"
	AuditReasonAccountSuspended    = "ACCOUNT_SUSPENDED"
	AuditReasonInvalidPassword     = "INVALID_PASSWORD"
	AuditReasonMaxAttemptsExceeded = "MAX_ATTEMPTS_EXCEEDED"
	AuditReasonInternalError       = "INTERNAL_ERROR"
)

// NewChannelSink returns a sink that buffers events in a channel, mostly
// useful for tests and in-process consumers.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per event to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func (e *Engine) emitLoginAudit(ctx context.Context, req LoginRequest, outcome AuditOutcome, reason string) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, AuditEvent{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		Outcome:   outcome,
		Reason:    reason,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Timestamp: e.now().UTC(),
	})
}
