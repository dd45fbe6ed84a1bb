package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/account"
)

// SignupStore is the store surface used by signup.
type SignupStore interface {
	FindByEmail(ctx context.Context, email string) (*account.Account, error)
	Create(ctx context.Context, in account.CreateInput) (*account.Account, error)
	Delete(ctx context.Context, id string) error
}

// SignupInput is the request shape accepted by RunSignup.
type SignupInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// SignupMetrics carries metric IDs used by signup.
type SignupMetrics struct {
	Success       int
	Failure       int
	Duplicate     int
	NotifyFailure int
}

// SignupEvents carries audit event names used by signup.
type SignupEvents struct {
	Success       string
	Failure       string
	NotifyFailure string
}

// SignupDeps captures signup dependencies.
type SignupDeps struct {
	Hooks

	Store                SignupStore
	HashPassword         func(string) (string, error)
	NewVerificationToken func() (string, error)
	DigestToken          func(string) string
	Notify               func(ctx context.Context, to, displayName, token string) error

	// VerificationTTL of zero means pending tokens never expire.
	VerificationTTL time.Duration
	// StrictNotify deletes the new account and fails the signup when the
	// notifier errors. Otherwise notification is best effort.
	StrictNotify bool

	Metrics SignupMetrics
	Events  SignupEvents
	Errors  Errors
}

// RunSignup registers an unverified account and sends its verification token.
func RunSignup(ctx context.Context, in SignupInput, deps SignupDeps) error {
	deps.normalize()
	if deps.Store == nil || deps.HashPassword == nil || deps.NewVerificationToken == nil ||
		deps.DigestToken == nil || deps.Notify == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(err error, why string) error {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", err, reason(why))
		return err
	}

	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.Email == "" || in.Password == "" || in.FirstName == "" {
		return fail(deps.Errors.Validation, "missing_fields")
	}

	// Fast path only. Uniqueness is enforced by Create below.
	switch _, err := deps.Store.FindByEmail(ctx, account.NormalizeEmail(in.Email)); {
	case err == nil:
		deps.MetricInc(deps.Metrics.Duplicate)
		return fail(deps.Errors.DuplicateAccount, "duplicate_email")
	case !errors.Is(err, account.ErrNotFound):
		return fail(deps.Errors.dependency("find account", err), "store_error")
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, deps.Errors.Validation) {
			return fail(err, "password_rejected")
		}
		return fail(deps.Errors.dependency("hash password", err), "hash_error")
	}

	token, err := deps.NewVerificationToken()
	if err != nil {
		return fail(deps.Errors.dependency("generate verification token", err), "token_error")
	}

	create := account.CreateInput{
		FirstName:             in.FirstName,
		LastName:              in.LastName,
		Email:                 in.Email,
		PasswordHash:          hash,
		VerificationTokenHash: deps.DigestToken(token),
	}
	if deps.VerificationTTL > 0 {
		create.VerificationExpiresAt = deps.Now().Add(deps.VerificationTTL)
	}

	acct, err := deps.Store.Create(ctx, create)
	if err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			deps.MetricInc(deps.Metrics.Duplicate)
			return fail(deps.Errors.DuplicateAccount, "duplicate_email")
		}
		return fail(deps.Errors.dependency("create account", err), "store_error")
	}

	if err := deps.Notify(ctx, in.Email, in.FirstName, token); err != nil {
		deps.MetricInc(deps.Metrics.NotifyFailure)
		deps.EmitAudit(ctx, deps.Events.NotifyFailure, false, acct.ID, err, func() map[string]string {
			return map[string]string{"strict": strconv.FormatBool(deps.StrictNotify)}
		})

		if deps.StrictNotify {
			// The request context may already be done; the rollback must still run.
			if delErr := deps.Store.Delete(context.WithoutCancel(ctx), acct.ID); delErr != nil {
				deps.Warn("authcore: rollback after notify failure failed", "account_id", acct.ID, "error", delErr)
			}
			return fail(deps.Errors.dependency("send verification email", err), "notify_error")
		}
		deps.Warn("authcore: verification email not sent", "account_id", acct.ID, "error", err)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, acct.ID, nil, nil)
	return nil
}
