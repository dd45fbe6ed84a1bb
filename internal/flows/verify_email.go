package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/account"
)

// VerifyEmailStore is the store surface used by email verification.
type VerifyEmailStore interface {
	FindByVerificationToken(ctx context.Context, tokenHash string) (*account.Account, error)
	MarkVerified(ctx context.Context, tokenHash string, now time.Time) (bool, error)
}

// VerifyEmailMetrics carries metric IDs used by email verification.
type VerifyEmailMetrics struct {
	Success int
	Failure int
}

// VerifyEmailEvents carries audit event names used by email verification.
type VerifyEmailEvents struct {
	Success string
	Failure string
}

// VerifyEmailDeps captures email verification dependencies.
type VerifyEmailDeps struct {
	Hooks

	Store       VerifyEmailStore
	DigestToken func(string) string

	Metrics VerifyEmailMetrics
	Events  VerifyEmailEvents
	Errors  Errors
}

// RunVerifyEmail consumes a verification token. The lookup only feeds audit
// and expiry reporting; MarkVerified alone decides the outcome, so of two
// concurrent calls with one token exactly one succeeds.
func RunVerifyEmail(ctx context.Context, token string, deps VerifyEmailDeps) error {
	deps.normalize()
	if deps.Store == nil || deps.DigestToken == nil {
		return deps.Errors.EngineNotReady
	}

	reject := func(accountID, why string) error {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, accountID, deps.Errors.VerificationInvalid, reason(why))
		return deps.Errors.VerificationInvalid
	}
	storeFailure := func(accountID, op string, err error) error {
		depErr := deps.Errors.dependency(op, err)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, accountID, depErr, reason("store_error"))
		return depErr
	}

	if token == "" {
		return reject("", "empty_token")
	}
	digest := deps.DigestToken(token)
	now := deps.Now()

	acct, err := deps.Store.FindByVerificationToken(ctx, digest)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return reject("", "unknown_token")
		}
		return storeFailure("", "find account by verification token", err)
	}
	if acct.VerificationExpired(now) {
		return reject(acct.ID, "expired")
	}

	ok, err := deps.Store.MarkVerified(ctx, digest, now)
	if err != nil {
		return storeFailure(acct.ID, "mark verified", err)
	}
	if !ok {
		return reject(acct.ID, "already_consumed")
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, acct.ID, nil, nil)
	return nil
}
