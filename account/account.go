package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Find* lookups when no account matches.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned by Create when the normalized email is
	// already taken.
	ErrDuplicateEmail = errors.New("account email already exists")
)

// Account is the persisted identity record.
//
// VerificationTokenHash and RefreshTokenHash hold SHA-256 digests, never the
// raw token values handed to clients.
type Account struct {
	ID                    string
	FirstName             string
	LastName              string
	Email                 string
	PasswordHash          string
	Verified              bool
	VerificationTokenHash string
	VerificationExpiresAt time.Time
	RefreshTokenHash      string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// LogValue keeps hashes out of structured logs.
func (a Account) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", a.ID),
		slog.String("email", a.Email),
		slog.Bool("verified", a.Verified),
	)
}

// CreateInput carries the fields a store needs to insert a new account. The
// store assigns ID and timestamps.
type CreateInput struct {
	FirstName             string
	LastName              string
	Email                 string
	PasswordHash          string
	VerificationTokenHash string
	// VerificationExpiresAt is zero when verification tokens do not expire.
	VerificationExpiresAt time.Time
}

// Store is the persistence contract. Implementations must be safe for
// concurrent use.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByVerificationToken(ctx context.Context, tokenHash string) (*Account, error)

	// Create inserts a new unverified account. It returns ErrDuplicateEmail
	// when NormalizeEmail(in.Email) collides with an existing account, and
	// that check must be enforced atomically by the store.
	Create(ctx context.Context, in CreateInput) (*Account, error)

	// SetRefreshToken overwrites the stored refresh digest. An empty
	// tokenHash clears it. Unknown ids are a no-op. Refresh digest writes
	// leave UpdatedAt unchanged.
	SetRefreshToken(ctx context.Context, id, tokenHash string) error

	// RotateRefreshTokenIfMatches replaces the stored refresh digest with
	// next only when the current value equals expected. It reports whether
	// the swap happened.
	RotateRefreshTokenIfMatches(ctx context.Context, id, expected, next string) (bool, error)

	// MarkVerified flips the matching account to verified and clears its
	// verification token in one step. Tokens whose expiry is at or before now
	// do not match. It reports whether an account was verified.
	MarkVerified(ctx context.Context, tokenHash string, now time.Time) (bool, error)

	// ReplaceVerificationToken swaps the pending verification digest and
	// expiry of an unverified account, only while the stored digest equals
	// oldHash. A zero exp means the new token never expires. The old digest
	// stops resolving. It reports whether the swap happened.
	ReplaceVerificationToken(ctx context.Context, id, oldHash, newHash string, exp time.Time) (bool, error)

	// UpdatePasswordHash overwrites the stored password digest. Unknown ids
	// are a no-op.
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// Delete removes an account. Unknown ids are a no-op.
	Delete(ctx context.Context, id string) error
}

// NormalizeEmail returns the uniqueness key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VerificationExpired reports whether a pending verification token has
// expired at now. A zero expiry never expires.
func (a *Account) VerificationExpired(now time.Time) bool {
	if a.VerificationExpiresAt.IsZero() {
		return false
	}
	return !now.Before(a.VerificationExpiresAt)
}

// Clone returns a copy that callers may mutate freely.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
