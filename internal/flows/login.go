package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/jwt"
)

// LoginStore is the store surface used by login.
type LoginStore interface {
	FindByEmail(ctx context.Context, email string) (*account.Account, error)
	SetRefreshToken(ctx context.Context, id, tokenHash string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// LoginMetrics carries metric IDs used by login.
type LoginMetrics struct {
	Success    int
	Failure    int
	Unverified int
	Upgraded   int
}

// LoginEvents carries audit event names used by login.
type LoginEvents struct {
	Success string
	Failure string
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Hooks

	Store          LoginStore
	VerifyPassword func(plaintext, digest string) bool
	// DummyHash is verified against when the email is unknown so both
	// failure paths cost one hash comparison.
	DummyHash   string
	IssuePair   func(accountID, email string) (jwt.Pair, error)
	DigestToken func(string) string

	// NeedsRehash reports whether a matched digest should be rewritten with
	// HashPassword. A nil NeedsRehash disables the rewrite.
	NeedsRehash  func(digest string) bool
	HashPassword func(string) (string, error)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  Errors
}

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Account *account.Account
	Pair    jwt.Pair
}

// RunLogin authenticates email/password and persists a fresh refresh token.
//
// Unknown email and wrong password both return Errors.InvalidCredentials.
// Errors.AccountNotVerified is only returned after the password matched.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*LoginResult, error) {
	deps.normalize()
	if deps.Store == nil || deps.VerifyPassword == nil || deps.IssuePair == nil || deps.DigestToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	reject := func(accountID, why string) (*LoginResult, error) {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, accountID, deps.Errors.InvalidCredentials, reason(why))
		return nil, deps.Errors.InvalidCredentials
	}

	key := account.NormalizeEmail(email)
	if key == "" || password == "" {
		return reject("", "empty_credentials")
	}

	acct, err := deps.Store.FindByEmail(ctx, key)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			_ = deps.VerifyPassword(password, deps.DummyHash)
			return reject("", "unknown_email")
		}
		depErr := deps.Errors.dependency("find account", err)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", depErr, reason("store_error"))
		return nil, depErr
	}

	if !deps.VerifyPassword(password, acct.PasswordHash) {
		return reject(acct.ID, "password_mismatch")
	}
	if deps.NeedsRehash != nil && deps.HashPassword != nil && deps.NeedsRehash(acct.PasswordHash) {
		acct = upgradePassword(ctx, acct, key, password, deps)
	}

	if !acct.Verified {
		deps.MetricInc(deps.Metrics.Unverified)
		deps.EmitAudit(ctx, deps.Events.Failure, false, acct.ID, deps.Errors.AccountNotVerified, reason("unverified"))
		return nil, deps.Errors.AccountNotVerified
	}

	pair, err := deps.IssuePair(acct.ID, acct.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	if err := deps.Store.SetRefreshToken(ctx, acct.ID, deps.DigestToken(pair.RefreshToken)); err != nil {
		depErr := deps.Errors.dependency("persist refresh token", err)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, acct.ID, depErr, reason("store_error"))
		return nil, depErr
	}
	acct.RefreshTokenHash = deps.DigestToken(pair.RefreshToken)

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, acct.ID, nil, nil)
	return &LoginResult{Account: acct, Pair: pair}, nil
}

// upgradePassword rewrites the digest of a matched password. Failures are
// logged and leave the login unaffected. On success the account is re-read
// so the caller sees the stored UpdatedAt.
func upgradePassword(ctx context.Context, acct *account.Account, key, password string, deps LoginDeps) *account.Account {
	digest, err := deps.HashPassword(password)
	if err != nil {
		deps.Warn("authcore: password rehash failed", "account_id", acct.ID, "error", err)
		return acct
	}
	if err := deps.Store.UpdatePasswordHash(ctx, acct.ID, digest); err != nil {
		deps.Warn("authcore: password rehash not stored", "account_id", acct.ID, "error", err)
		return acct
	}
	deps.MetricInc(deps.Metrics.Upgraded)

	fresh, err := deps.Store.FindByEmail(ctx, key)
	if err != nil || fresh.ID != acct.ID {
		acct.PasswordHash = digest
		return acct
	}
	return fresh
}
