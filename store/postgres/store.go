package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/MrEthical07/authcore/account"
)

const emailUniqueConstraint = "accounts_email_normalized_idx"

// poolIface is the subset of *pgxpool.Pool the store uses. pgxmock satisfies
// it in unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL-backed account.Store.
type Store struct {
	pool poolIface
	now  func() time.Time
}

var _ account.Store = (*Store)(nil)

// New wraps an existing pool. The caller keeps ownership of the pool.
func New(pool poolIface) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Open connects a pgx pool and pings it.
func Open(ctx context.Context, dsn string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return New(pool), pool, nil
}

const selectAccount = `
	SELECT id, first_name, last_name, email, password_hash, is_verified,
	       verification_token_hash, verification_expires_at, refresh_token_hash,
	       created_at, updated_at
	FROM accounts`

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a          account.Account
		verifyHash *string
		verifyExp  *time.Time
		refresh    *string
	)
	err := row.Scan(
		&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.PasswordHash, &a.Verified,
		&verifyHash, &verifyExp, &refresh,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if verifyHash != nil {
		a.VerificationTokenHash = *verifyHash
	}
	if verifyExp != nil {
		a.VerificationExpiresAt = verifyExp.UTC()
	}
	if refresh != nil {
		a.RefreshTokenHash = *refresh
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func (s *Store) findOne(ctx context.Context, op, where string, arg any) (*account.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, selectAccount+" WHERE "+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_QUERY_FAILED").With("operation", op).Wrap(err)
	}
	return a, nil
}

// FindByEmail matches on email_normalized, which holds account.NormalizeEmail
// of the address so lookups and the unique index agree with the other stores.
func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.findOne(ctx, "find by email", "email_normalized = $1", account.NormalizeEmail(email))
}

// FindByID looks an account up by primary key.
func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	return s.findOne(ctx, "find by id", "id = $1", id)
}

// FindByVerificationToken looks an account up by its pending verification
// digest.
func (s *Store) FindByVerificationToken(ctx context.Context, tokenHash string) (*account.Account, error) {
	if tokenHash == "" {
		return nil, account.ErrNotFound
	}
	return s.findOne(ctx, "find by verification token", "verification_token_hash = $1", tokenHash)
}

// Create inserts an unverified account. A unique violation on the email
// index maps to account.ErrDuplicateEmail.
func (s *Store) Create(ctx context.Context, in account.CreateInput) (*account.Account, error) {
	// timestamptz keeps microseconds.
	now := s.now().UTC().Truncate(time.Microsecond)
	a := &account.Account{
		ID:                    uuid.NewString(),
		FirstName:             in.FirstName,
		LastName:              in.LastName,
		Email:                 in.Email,
		PasswordHash:          in.PasswordHash,
		VerificationTokenHash: in.VerificationTokenHash,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if !in.VerificationExpiresAt.IsZero() {
		a.VerificationExpiresAt = in.VerificationExpiresAt.UTC().Truncate(time.Microsecond)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, first_name, last_name, email, email_normalized, password_hash, is_verified,
		                      verification_token_hash, verification_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $9, $10)
	`, a.ID, a.FirstName, a.LastName, a.Email, account.NormalizeEmail(a.Email), a.PasswordHash,
		nullString(a.VerificationTokenHash), nullTime(a.VerificationExpiresAt), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isEmailUniqueViolation(err) {
			return nil, account.ErrDuplicateEmail
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").With("id", a.ID).Wrap(err)
	}
	return a, nil
}

func isEmailUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == emailUniqueConstraint
}

// SetRefreshToken overwrites or clears the refresh digest.
func (s *Store) SetRefreshToken(ctx context.Context, id, tokenHash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE accounts SET refresh_token_hash = $2 WHERE id = $1`,
		id, nullString(tokenHash))
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "set refresh token").With("id", id).Wrap(err)
	}
	return nil
}

// RotateRefreshTokenIfMatches swaps the refresh digest when it equals
// expected.
func (s *Store) RotateRefreshTokenIfMatches(ctx context.Context, id, expected, next string) (bool, error) {
	if expected == "" {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET refresh_token_hash = $3 WHERE id = $1 AND refresh_token_hash = $2`,
		id, expected, nullString(next))
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "rotate refresh token").With("id", id).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkVerified consumes an unexpired verification digest.
func (s *Store) MarkVerified(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	if tokenHash == "" {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET is_verified = TRUE, verification_token_hash = NULL, verification_expires_at = NULL, updated_at = $3
		WHERE verification_token_hash = $1
		  AND (verification_expires_at IS NULL OR verification_expires_at > $2)
	`, tokenHash, now.UTC(), s.now().UTC())
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "mark verified").Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReplaceVerificationToken swaps the pending verification digest of an
// unverified account whose current digest is oldHash.
func (s *Store) ReplaceVerificationToken(ctx context.Context, id, oldHash, newHash string, exp time.Time) (bool, error) {
	if id == "" || newHash == "" {
		return false, nil
	}
	var expiresAt time.Time
	if !exp.IsZero() {
		expiresAt = exp.UTC().Truncate(time.Microsecond)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET verification_token_hash = $3, verification_expires_at = $4, updated_at = $5
		WHERE id = $1 AND is_verified = FALSE
		  AND verification_token_hash IS NOT DISTINCT FROM $2
	`, id, nullString(oldHash), newHash, nullTime(expiresAt), s.now().UTC())
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "replace verification token").With("id", id).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePasswordHash overwrites the password digest.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, s.now().UTC())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "update password hash").With("id", id).Wrap(err)
	}
	return nil
}

// Delete removes an account.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").With("id", id).Wrap(err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
