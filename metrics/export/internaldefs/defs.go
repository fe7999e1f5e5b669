package internaldefs

import (
	"github.com/hts/authsvc"
)

type CounterDef struct {
	ID   authsvc.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authsvc.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in rendering order.
var CounterDefs = []CounterDef{
	{ID: authsvc.MetricLoginSuccess, Name: "authsvc_login_success_total", Help: "Successful logins."},
	{ID: authsvc.MetricLoginInvalidCredentials, Name: "authsvc_login_invalid_credentials_total", Help: "Logins rejected for a wrong password below the lockout threshold."},
	{ID: authsvc.MetricLoginAccountNotFound, Name: "authsvc_login_account_not_found_total", Help: "Logins for unknown accounts."},
	{ID: authsvc.MetricLoginRejectedLocked, Name: "authsvc_login_locked_total", Help: "Logins rejected because the account is locked."},
	{ID: authsvc.MetricLoginRejectedSuspended, Name: "authsvc_login_suspended_total", Help: "Logins rejected because the account is suspended."},
	{ID: authsvc.MetricLoginInternalError, Name: "authsvc_login_internal_error_total", Help: "Logins that failed on infrastructure errors."},
	{ID: authsvc.MetricAccountLocked, Name: "authsvc_account_locked_total", Help: "Accounts locked after reaching the failure threshold."},
	{ID: authsvc.MetricSessionCreated, Name: "authsvc_session_created_total", Help: "Sessions created."},
	{ID: authsvc.MetricSessionValidated, Name: "authsvc_session_validated_total", Help: "Session validations that found a live session."},
	{ID: authsvc.MetricSessionInvalid, Name: "authsvc_session_invalid_total", Help: "Session validations for unknown or expired sessions."},
	{ID: authsvc.MetricSessionStoreError, Name: "authsvc_session_store_error_total", Help: "Session store failures."},
	{ID: authsvc.MetricLogout, Name: "authsvc_logout_total", Help: "Single-session logouts."},
	{ID: authsvc.MetricLogoutAll, Name: "authsvc_logout_all_total", Help: "Logout-all operations."},
	{ID: authsvc.MetricCredentialUpgraded, Name: "authsvc_credential_upgraded_total", Help: "Stored credentials rehashed with the current algorithm on login."},
	{ID: authsvc.MetricAccountCreated, Name: "authsvc_account_created_total", Help: "Accounts created from lifecycle events."},
	{ID: authsvc.MetricAccountCreateDuplicate, Name: "authsvc_account_create_duplicate_total", Help: "Account-created events for existing accounts."},
	{ID: authsvc.MetricAccountDeleted, Name: "authsvc_account_deleted_total", Help: "Accounts deleted from lifecycle events."},
	{ID: authsvc.MetricAccountSuspended, Name: "authsvc_account_suspended_total", Help: "Account suspensions."},
	{ID: authsvc.MetricAccountReactivated, Name: "authsvc_account_reactivated_total", Help: "Account reactivations."},
	{ID: authsvc.MetricAccountUnlocked, Name: "authsvc_account_unlocked_total", Help: "Manual account unlocks."},
	{ID: authsvc.MetricLifecycleRetry, Name: "authsvc_lifecycle_retry_total", Help: "Lifecycle event retries."},
	{ID: authsvc.MetricLifecycleDropped, Name: "authsvc_lifecycle_dropped_total", Help: "Lifecycle events acknowledged after exhausting retries."},
	{ID: authsvc.MetricLifecycleInvalid, Name: "authsvc_lifecycle_invalid_total", Help: "Lifecycle events rejected as invalid."},
	{ID: authsvc.MetricAccountStoreError, Name: "authsvc_account_store_error_total", Help: "Account store failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: authsvc.MetricLoginLatency, Name: "authsvc_login_latency_seconds", Help: "Login latency histogram."},
	{ID: authsvc.MetricValidateLatency, Name: "authsvc_validate_latency_seconds", Help: "Session validation latency histogram."},
	{ID: authsvc.MetricLogoutLatency, Name: "authsvc_logout_latency_seconds", Help: "Logout latency histogram."},
}

// HistogramBounds are the Prometheus le labels matching
// authsvc.HistogramBucketBounds plus the overflow bucket.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form valid inside an
// instrument name.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
