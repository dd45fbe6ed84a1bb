package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSignupSuccess            = "signup_success"
	auditEventSignupFailure            = "signup_failure"
	auditEventSignupNotifyFailure      = "signup_notify_failure"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventRefreshReplayDetected    = "refresh_replay_detected"
	auditEventLogout                   = "logout"
	auditEventEmailVerificationSuccess = "email_verification_success"
	auditEventEmailVerificationFailure = "email_verification_failure"
	auditEventVerificationResent       = "verification_resent"
	auditEventVerificationResendSkip   = "verification_resend_skipped"
	auditEventVerificationResendFail   = "verification_resend_failure"
	auditEventResendNotifyFailure      = "verification_resend_notify_failure"
)

// AuditErrorCode is the stable, non-sensitive error label stored on audit
// events.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountUnverified  AuditErrorCode = "account_unverified"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode never returns the raw error text, which may carry store
// details.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrDependency):
		return auditErrUnavailable
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrDuplicateAccount):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountNotVerified):
		return auditErrAccountUnverified
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	default:
		return auditErrInternal
	}
}
