package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef maps an engine counter to an exported metric.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine latency histogram to an exported metric.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricSignupSuccess, Name: "authcore_signup_success_total", Help: "Successful signups."},
	{ID: authcore.MetricSignupFailure, Name: "authcore_signup_failure_total", Help: "Failed signups."},
	{ID: authcore.MetricSignupDuplicate, Name: "authcore_signup_duplicate_total", Help: "Signups rejected because the email is taken."},
	{ID: authcore.MetricNotifyFailure, Name: "authcore_notify_failure_total", Help: "Verification emails the notifier failed to send."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Logins rejected for bad credentials or backend errors."},
	{ID: authcore.MetricLoginUnverified, Name: "authcore_login_unverified_total", Help: "Logins with a correct password for an unverified account."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authcore.MetricRefreshReplay, Name: "authcore_refresh_replay_total", Help: "Refresh attempts with a rotated or revoked token."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logouts."},
	{ID: authcore.MetricEmailVerificationSuccess, Name: "authcore_email_verification_success_total", Help: "Successful email verifications."},
	{ID: authcore.MetricEmailVerificationFailure, Name: "authcore_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: authcore.MetricValidateSuccess, Name: "authcore_validate_success_total", Help: "Accepted access tokens."},
	{ID: authcore.MetricValidateFailure, Name: "authcore_validate_failure_total", Help: "Rejected access tokens."},
	{ID: authcore.MetricVerificationResent, Name: "authcore_verification_resent_total", Help: "Verification tokens reissued."},
	{ID: authcore.MetricVerificationResendSkipped, Name: "authcore_verification_resend_skipped_total", Help: "Resend requests for unknown or already verified emails."},
	{ID: authcore.MetricVerificationResendFailure, Name: "authcore_verification_resend_failure_total", Help: "Resend requests that failed."},
	{ID: authcore.MetricPasswordUpgraded, Name: "authcore_password_upgraded_total", Help: "Password digests rewritten at login."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Login latency."},
	{ID: authcore.MetricRefreshLatency, Name: "authcore_refresh_latency_seconds", Help: "Refresh latency."},
}

// AuditDroppedName and AuditDroppedHelp describe the dispatcher drop counter.
const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped due to dispatcher backpressure."
)

// HistogramBounds are the finite upper bounds in seconds. The engine keeps
// one extra +Inf bucket.
var HistogramBounds = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

const BucketCount = 8

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
