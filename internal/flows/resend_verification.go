package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/account"
)

// ResendVerificationStore is the store surface used to reissue a
// verification token.
type ResendVerificationStore interface {
	FindByEmail(ctx context.Context, email string) (*account.Account, error)
	ReplaceVerificationToken(ctx context.Context, id, oldHash, newHash string, exp time.Time) (bool, error)
}

// ResendVerificationMetrics carries metric IDs used by verification resend.
type ResendVerificationMetrics struct {
	Success       int
	Skipped       int
	Failure       int
	NotifyFailure int
}

// ResendVerificationEvents carries audit event names used by verification
// resend.
type ResendVerificationEvents struct {
	Success       string
	Skipped       string
	Failure       string
	NotifyFailure string
}

// ResendVerificationDeps captures verification resend dependencies.
type ResendVerificationDeps struct {
	Hooks

	Store                ResendVerificationStore
	NewVerificationToken func() (string, error)
	DigestToken          func(string) string
	Notify               func(ctx context.Context, to, displayName, token string) error

	// VerificationTTL of zero means the new token never expires.
	VerificationTTL time.Duration
	// StrictNotify fails the call when the notifier errors. The new token
	// stays stored either way; a later resend replaces it.
	StrictNotify bool

	Metrics ResendVerificationMetrics
	Events  ResendVerificationEvents
	Errors  Errors
}

// RunResendVerification replaces the pending verification token of an
// unverified account and sends the new one. The previous token stops
// working. Unknown and already verified emails return nil without sending
// anything.
func RunResendVerification(ctx context.Context, email string, deps ResendVerificationDeps) error {
	deps.normalize()
	if deps.Store == nil || deps.NewVerificationToken == nil || deps.DigestToken == nil || deps.Notify == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(accountID string, err error, why string) error {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, accountID, err, reason(why))
		return err
	}
	skip := func(accountID, why string) error {
		deps.MetricInc(deps.Metrics.Skipped)
		deps.EmitAudit(ctx, deps.Events.Skipped, true, accountID, nil, reason(why))
		return nil
	}

	key := account.NormalizeEmail(email)
	if key == "" {
		return fail("", deps.Errors.Validation, "missing_email")
	}

	acct, err := deps.Store.FindByEmail(ctx, key)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return skip("", "unknown_email")
		}
		return fail("", deps.Errors.dependency("find account", err), "store_error")
	}
	if acct.Verified {
		return skip(acct.ID, "already_verified")
	}

	token, err := deps.NewVerificationToken()
	if err != nil {
		return fail(acct.ID, deps.Errors.dependency("generate verification token", err), "token_error")
	}
	var expiresAt time.Time
	if deps.VerificationTTL > 0 {
		expiresAt = deps.Now().Add(deps.VerificationTTL)
	}

	replaced, err := deps.Store.ReplaceVerificationToken(ctx, acct.ID, acct.VerificationTokenHash, deps.DigestToken(token), expiresAt)
	if err != nil {
		return fail(acct.ID, deps.Errors.dependency("replace verification token", err), "store_error")
	}
	if !replaced {
		// Verified or reissued since the lookup.
		return skip(acct.ID, "state_changed")
	}

	if err := deps.Notify(ctx, acct.Email, acct.FirstName, token); err != nil {
		deps.MetricInc(deps.Metrics.NotifyFailure)
		deps.EmitAudit(ctx, deps.Events.NotifyFailure, false, acct.ID, err, func() map[string]string {
			return map[string]string{"strict": strconv.FormatBool(deps.StrictNotify)}
		})
		if deps.StrictNotify {
			return fail(acct.ID, deps.Errors.dependency("send verification email", err), "notify_error")
		}
		deps.Warn("authcore: verification email not resent", "account_id", acct.ID, "error", err)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, acct.ID, nil, nil)
	return nil
}
