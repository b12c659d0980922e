package internaldefs

import (
	"github.com/MrEthical07/deviceauth"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   deviceauth.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   deviceauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: deviceauth.MetricIssueSuccess, Name: "deviceauth_issue_success_total", Help: "Issued token pairs."},
	{ID: deviceauth.MetricIssueFailure, Name: "deviceauth_issue_failure_total", Help: "Failed token issuance attempts."},
	{ID: deviceauth.MetricLoginSuccess, Name: "deviceauth_login_success_total", Help: "Successful login attempts."},
	{ID: deviceauth.MetricLoginFailure, Name: "deviceauth_login_failure_total", Help: "Failed login attempts."},
	{ID: deviceauth.MetricLoginRateLimited, Name: "deviceauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: deviceauth.MetricRegisterSuccess, Name: "deviceauth_register_success_total", Help: "Successful registrations."},
	{ID: deviceauth.MetricRegisterDuplicate, Name: "deviceauth_register_duplicate_total", Help: "Registrations rejected because the email is taken."},
	{ID: deviceauth.MetricValidateSuccess, Name: "deviceauth_validate_success_total", Help: "Access tokens accepted by the validator."},
	{ID: deviceauth.MetricValidateFailure, Name: "deviceauth_validate_failure_total", Help: "Access tokens rejected by the validator."},
	{ID: deviceauth.MetricValidateLegacyToken, Name: "deviceauth_validate_legacy_token_total", Help: "Access tokens validated without a jti claim."},
	{ID: deviceauth.MetricTokenExpired, Name: "deviceauth_token_expired_total", Help: "Validations rejected for signed-token expiry."},
	{ID: deviceauth.MetricTokenRevoked, Name: "deviceauth_token_revoked_total", Help: "Validations rejected because the session record was absent."},
	{ID: deviceauth.MetricOwnershipMismatch, Name: "deviceauth_ownership_mismatch_total", Help: "Validations rejected because the session owner differed from the claim."},
	{ID: deviceauth.MetricVersionMismatch, Name: "deviceauth_version_mismatch_total", Help: "Validations and refreshes rejected for a stale token version."},
	{ID: deviceauth.MetricFreshnessRejected, Name: "deviceauth_freshness_rejected_total", Help: "Requests rejected because the session was not fresh enough."},
	{ID: deviceauth.MetricRefreshSuccess, Name: "deviceauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: deviceauth.MetricRefreshFailure, Name: "deviceauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: deviceauth.MetricRefreshExpired, Name: "deviceauth_refresh_expired_total", Help: "Refresh tokens flipped to revoked on expiry detection."},
	{ID: deviceauth.MetricSessionCreated, Name: "deviceauth_session_created_total", Help: "Created ephemeral sessions."},
	{ID: deviceauth.MetricSessionInvalidated, Name: "deviceauth_session_invalidated_total", Help: "Ephemeral sessions removed by revocation."},
	{ID: deviceauth.MetricLazyCleanup, Name: "deviceauth_lazy_cleanup_total", Help: "Stale sessions deleted during validation."},
	{ID: deviceauth.MetricCleanupFailure, Name: "deviceauth_cleanup_failure_total", Help: "Best-effort session deletes that failed."},
	{ID: deviceauth.MetricLogoutSession, Name: "deviceauth_logout_session_total", Help: "Single-session revocations."},
	{ID: deviceauth.MetricLogoutDevice, Name: "deviceauth_logout_device_total", Help: "Device revocations by refresh token id."},
	{ID: deviceauth.MetricLogoutAll, Name: "deviceauth_logout_all_total", Help: "Revoke-all operations."},
	{ID: deviceauth.MetricPasswordChangeSuccess, Name: "deviceauth_password_change_success_total", Help: "Successful password changes."},
	{ID: deviceauth.MetricPasswordChangeInvalidOld, Name: "deviceauth_password_change_invalid_old_total", Help: "Password change attempts with invalid old password."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: deviceauth.MetricValidateLatency, Name: "deviceauth_validate_latency_seconds", Help: "Validate latency histogram."},
}

// AuditDroppedName is the counter reporting audit events dropped under backpressure.
const AuditDroppedName = "deviceauth_audit_dropped_total"

// HistogramUpperBounds are the bucket upper bounds in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
