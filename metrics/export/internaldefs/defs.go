package internaldefs

import (
	ctxAuth "github.com/MrEthical07/ctxAuth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   ctxAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   ctxAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: ctxAuth.MetricLoginAllowed, Name: "ctxauth_login_allowed_total", Help: "Logins that issued credentials from a trusted context."},
	{ID: ctxAuth.MetricLoginBypassed, Name: "ctxauth_login_bypassed_total", Help: "Logins that skipped context checks by user preference."},
	{ID: ctxAuth.MetricLoginChallenged, Name: "ctxauth_login_challenged_total", Help: "Logins parked behind a login-context challenge."},
	{ID: ctxAuth.MetricLoginDenied, Name: "ctxauth_login_denied_total", Help: "Logins from blocked contexts."},
	{ID: ctxAuth.MetricLoginFailure, Name: "ctxauth_login_failure_total", Help: "Logins rejected for any other reason."},
	{ID: ctxAuth.MetricChallengeIssued, Name: "ctxauth_challenge_issued_total", Help: "Challenges persisted and delivered."},
	{ID: ctxAuth.MetricChallengeDeliveryFailed, Name: "ctxauth_challenge_delivery_failed_total", Help: "Challenges rolled back after a mailer failure."},
	{ID: ctxAuth.MetricChallengeVerified, Name: "ctxauth_challenge_verified_total", Help: "Successful code verifications."},
	{ID: ctxAuth.MetricChallengeFailed, Name: "ctxauth_challenge_failed_total", Help: "Not-found, expired and mismatched code verifications."},
	{ID: ctxAuth.MetricChallengeAttemptsExceeded, Name: "ctxauth_challenge_attempts_exceeded_total", Help: "Challenges destroyed by the attempt cap."},
	{ID: ctxAuth.MetricContextPromoted, Name: "ctxauth_context_promoted_total", Help: "Pending contexts promoted to trusted."},
	{ID: ctxAuth.MetricContextBlocked, Name: "ctxauth_context_blocked_total", Help: "Contexts moved to blocked."},
	{ID: ctxAuth.MetricContextUnblocked, Name: "ctxauth_context_unblocked_total", Help: "Blocked contexts reset to pending."},
	{ID: ctxAuth.MetricContextDeleted, Name: "ctxauth_context_deleted_total", Help: "Deleted contexts."},
	{ID: ctxAuth.MetricEmailVerified, Name: "ctxauth_email_verified_total", Help: "Completed signup email verifications."},
	{ID: ctxAuth.MetricCredentialsIssued, Name: "ctxauth_credentials_issued_total", Help: "Issued access and refresh token pairs."},
	{ID: ctxAuth.MetricAuthenticateSuccess, Name: "ctxauth_authenticate_success_total", Help: "Accepted access tokens."},
	{ID: ctxAuth.MetricAuthenticateFailure, Name: "ctxauth_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: ctxAuth.MetricAccessRotated, Name: "ctxauth_access_rotated_total", Help: "Access tokens rotated inside the rolling window."},
	{ID: ctxAuth.MetricLogout, Name: "ctxauth_logout_total", Help: "Refresh token revocations."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: ctxAuth.MetricAuthenticateLatency, Name: "ctxauth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// AuditDroppedName is the counter for events dropped by the audit dispatcher.
const AuditDroppedName = "ctxauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds; the eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabels are the Prometheus-style "le" values of the eight buckets.
var BucketLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
