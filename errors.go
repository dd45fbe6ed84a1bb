package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation reports malformed input that reached the engine.
	ErrValidation = errors.New("invalid input")
	// ErrDuplicateAccount is returned by Signup when the email is taken.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrInvalidCredentials is the single failure for unknown email, wrong
	// password, and bad, revoked or replayed refresh tokens.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotVerified is returned by Login after a correct password
	// for an account whose email is not yet verified.
	ErrAccountNotVerified = errors.New("account not verified")
	// ErrInvalidToken is returned by ValidateAccess for any bad access token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNotFound reports a missing account or consumed verification token.
	ErrNotFound = errors.New("not found")
	// ErrDependency wraps store and notifier failures. Callers should treat
	// it as retryable.
	ErrDependency = errors.New("dependency unavailable")
	// ErrEngineNotReady is returned when an Engine was not built by Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrVerificationInvalid is returned by VerifyEmail when the token is
// unknown, already used or expired. It matches ErrNotFound.
var ErrVerificationInvalid = fmt.Errorf("%w: verification token invalid or already used", ErrNotFound)
