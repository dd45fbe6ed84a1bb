package authcore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
)

// Engine is the credential and token lifecycle orchestrator. It holds no
// mutable state beyond metrics and the audit queue; every operation is
// independent and safe to call concurrently.
type Engine struct {
	config    Config
	store     AccountStore
	notifier  Notifier
	hasher    *password.Set
	dummyHash string
	tokens    *jwt.Manager
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
}

// Close flushes pending audit events. The store and notifier are owned by
// the caller and are not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events lost to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id int) {
	e.metrics.Inc(MetricID(id))
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.tokens != nil && e.hasher != nil
}

func (e *Engine) hooks() flows.Hooks {
	return flows.Hooks{
		MetricInc: e.metricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.logger.Warn,
	}
}

func flowErrors() flows.Errors {
	return flows.Errors{
		EngineNotReady:      ErrEngineNotReady,
		Validation:          ErrValidation,
		DuplicateAccount:    ErrDuplicateAccount,
		InvalidCredentials:  ErrInvalidCredentials,
		AccountNotVerified:  ErrAccountNotVerified,
		InvalidToken:        ErrInvalidToken,
		NotFound:            ErrNotFound,
		VerificationInvalid: ErrVerificationInvalid,
		Dependency:          ErrDependency,
	}
}

// Signup registers an unverified account and sends a verification email.
// It returns nil on success and never exposes the created record.
//
// When the notifier fails, NotifyBestEffort still returns nil while
// NotifyStrict removes the account and returns ErrDependency.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	return flows.RunSignup(ctx, flows.SignupInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	}, flows.SignupDeps{
		Hooks:        e.hooks(),
		Store:        e.store,
		HashPassword: e.hashPassword,
		NewVerificationToken: func() (string, error) {
			return internal.NewVerificationToken(e.config.Verification.TokenBytes)
		},
		DigestToken:     internal.DigestToken,
		Notify:          e.notify,
		VerificationTTL: e.config.Verification.TokenTTL,
		StrictNotify:    e.config.Verification.NotifyFailurePolicy == NotifyStrict,
		Metrics: flows.SignupMetrics{
			Success:       int(MetricSignupSuccess),
			Failure:       int(MetricSignupFailure),
			Duplicate:     int(MetricSignupDuplicate),
			NotifyFailure: int(MetricNotifyFailure),
		},
		Events: flows.SignupEvents{
			Success:       auditEventSignupSuccess,
			Failure:       auditEventSignupFailure,
			NotifyFailure: auditEventSignupNotifyFailure,
		},
		Errors: flowErrors(),
	})
}

func (e *Engine) hashPassword(plaintext string) (string, error) {
	if len(plaintext) > e.config.Password.MaxBytes {
		return "", fmt.Errorf("%w: password longer than %d bytes", ErrValidation, e.config.Password.MaxBytes)
	}
	return e.hasher.Hash(plaintext)
}

func (e *Engine) notify(ctx context.Context, to, displayName, token string) error {
	if timeout := e.config.Verification.NotifyTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return e.notifier.SendVerificationEmail(ctx, to, displayName, token)
}

// Login authenticates with email and password and returns the profile and
// a fresh token pair. The new refresh token replaces any previous one.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()

	res, err := flows.RunLogin(ctx, email, password, flows.LoginDeps{
		Hooks:          e.hooks(),
		Store:          e.store,
		VerifyPassword: e.hasher.Verify,
		DummyHash:      e.dummyHash,
		IssuePair:      e.tokens.IssuePair,
		DigestToken:    internal.DigestToken,
		NeedsRehash:    e.needsRehash(),
		HashPassword:   e.hashPassword,
		Metrics: flows.LoginMetrics{
			Success:    int(MetricLoginSuccess),
			Failure:    int(MetricLoginFailure),
			Unverified: int(MetricLoginUnverified),
			Upgraded:   int(MetricPasswordUpgraded),
		},
		Events: flows.LoginEvents{
			Success: auditEventLoginSuccess,
			Failure: auditEventLoginFailure,
		},
		Errors: flowErrors(),
	})
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Profile: profileOf(res.Account),
		Tokens:  tokenPairOf(res.Pair),
	}, nil
}

func (e *Engine) needsRehash() func(string) bool {
	if !e.config.Password.UpgradeOnLogin {
		return nil
	}
	return e.hasher.NeedsUpgrade
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// single use: once rotated, replaying it returns ErrInvalidCredentials.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()

	res, err := flows.RunRefresh(ctx, refreshToken, flows.RefreshDeps{
		Hooks:        e.hooks(),
		Store:        e.store,
		ParseRefresh: e.tokens.ParseRefresh,
		IssuePair:    e.tokens.IssuePair,
		DigestToken:  internal.DigestToken,
		Metrics: flows.RefreshMetrics{
			Success: int(MetricRefreshSuccess),
			Failure: int(MetricRefreshFailure),
			Replay:  int(MetricRefreshReplay),
		},
		Events: flows.RefreshEvents{
			Success: auditEventRefreshSuccess,
			Failure: auditEventRefreshInvalid,
			Replay:  auditEventRefreshReplayDetected,
		},
		Errors: flowErrors(),
	})
	if err != nil {
		return TokenPair{}, err
	}
	return tokenPairOf(res.Pair), nil
}

// Logout revokes the account's refresh token. It is idempotent. Access
// tokens already issued stay valid until they expire.
func (e *Engine) Logout(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunLogout(ctx, accountID, flows.LogoutDeps{
		Hooks:        e.hooks(),
		Store:        e.store,
		MetricLogout: int(MetricLogout),
		EventLogout:  auditEventLogout,
		Errors:       flowErrors(),
	})
}

// VerifyEmail consumes a verification token. A second call with the same
// token fails with ErrVerificationInvalid, which matches ErrNotFound.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunVerifyEmail(ctx, token, flows.VerifyEmailDeps{
		Hooks:       e.hooks(),
		Store:       e.store,
		DigestToken: internal.DigestToken,
		Metrics: flows.VerifyEmailMetrics{
			Success: int(MetricEmailVerificationSuccess),
			Failure: int(MetricEmailVerificationFailure),
		},
		Events: flows.VerifyEmailEvents{
			Success: auditEventEmailVerificationSuccess,
			Failure: auditEventEmailVerificationFailure,
		},
		Errors: flowErrors(),
	})
}

// ResendVerification issues a new verification token for an unverified
// account and sends it under the configured notify policy. The previous
// token stops working. Unknown and already verified emails return nil, so
// the result does not reveal whether an address is registered.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return flows.RunResendVerification(ctx, email, flows.ResendVerificationDeps{
		Hooks: e.hooks(),
		Store: e.store,
		NewVerificationToken: func() (string, error) {
			return internal.NewVerificationToken(e.config.Verification.TokenBytes)
		},
		DigestToken:     internal.DigestToken,
		Notify:          e.notify,
		VerificationTTL: e.config.Verification.TokenTTL,
		StrictNotify:    e.config.Verification.NotifyFailurePolicy == NotifyStrict,
		Metrics: flows.ResendVerificationMetrics{
			Success:       int(MetricVerificationResent),
			Skipped:       int(MetricVerificationResendSkipped),
			Failure:       int(MetricVerificationResendFailure),
			NotifyFailure: int(MetricNotifyFailure),
		},
		Events: flows.ResendVerificationEvents{
			Success:       auditEventVerificationResent,
			Skipped:       auditEventVerificationResendSkip,
			Failure:       auditEventVerificationResendFail,
			NotifyFailure: auditEventResendNotifyFailure,
		},
		Errors: flowErrors(),
	})
}

// Profile returns the public profile of an account, or ErrNotFound.
func (e *Engine) Profile(ctx context.Context, accountID string) (Profile, error) {
	if !e.ready() {
		return Profile{}, ErrEngineNotReady
	}
	acct, err := flows.RunProfile(ctx, accountID, e.store, flowErrors())
	if err != nil {
		return Profile{}, err
	}
	return profileOf(acct), nil
}

// ValidateAccess verifies an access token. It does not consult the store.
func (e *Engine) ValidateAccess(_ context.Context, token string) (*AccessClaims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	claims, err := flows.RunValidateAccess(token, flows.ValidateDeps{
		ParseAccess:   e.tokens.ParseAccess,
		MetricInc:     e.metricInc,
		MetricSuccess: int(MetricValidateSuccess),
		MetricFailure: int(MetricValidateFailure),
		Errors:        flowErrors(),
	})
	if err != nil {
		return nil, err
	}
	return &AccessClaims{
		AccountID: claims.AccountID(),
		Email:     claims.Email,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
