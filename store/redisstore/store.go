package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/account"
)

// ErrRedisUnavailable wraps every transport or script failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// DefaultPrefix namespaces keys when New is given an empty prefix.
const DefaultPrefix = "authcore"

// Store is a Redis-backed account.Store. Every mutating operation runs as a
// single Lua script.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ account.Store = (*Store)(nil)

// New returns a store that keeps every key under one hash tag built from
// prefix, so cluster deployments route an account's keys to one slot.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		redis:  client,
		prefix: "{" + prefix + "}",
		now:    time.Now,
	}
}

func (s *Store) accountKey(id string) string {
	return s.prefix + ":acct:" + id
}

func (s *Store) emailKey(email string) string {
	return s.prefix + ":email:" + account.NormalizeEmail(email)
}

func (s *Store) verifyKey(tokenHash string) string {
	return s.prefix + ":verify:" + tokenHash
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRedisUnavailable, op, err)
}

// FindByEmail resolves the email index and loads the account.
func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find by email", err)
	}
	return s.FindByID(ctx, id)
}

// FindByID loads the account hash.
func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	if id == "" {
		return nil, account.ErrNotFound
	}
	fields, err := s.redis.HGetAll(ctx, s.accountKey(id)).Result()
	if err != nil {
		return nil, unavailable("find by id", err)
	}
	if len(fields) == 0 {
		return nil, account.ErrNotFound
	}
	return decodeAccount(fields)
}

// FindByVerificationToken resolves the verification index and loads the
// account.
func (s *Store) FindByVerificationToken(ctx context.Context, tokenHash string) (*account.Account, error) {
	if tokenHash == "" {
		return nil, account.ErrNotFound
	}
	id, err := s.redis.Get(ctx, s.verifyKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find by verification token", err)
	}
	return s.FindByID(ctx, id)
}

// Create claims the email key and writes the account hash in one script.
func (s *Store) Create(ctx context.Context, in account.CreateInput) (*account.Account, error) {
	now := s.now().UTC()
	a := &account.Account{
		ID:                    uuid.NewString(),
		FirstName:             in.FirstName,
		LastName:              in.LastName,
		Email:                 in.Email,
		PasswordHash:          in.PasswordHash,
		VerificationTokenHash: in.VerificationTokenHash,
		VerificationExpiresAt: in.VerificationExpiresAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	args := append([]any{a.ID}, encodeAccount(a)...)
	inserted, err := createLua.Run(ctx, s.redis,
		[]string{s.emailKey(a.Email), s.accountKey(a.ID), s.verifyKey(a.VerificationTokenHash)},
		args...,
	).Int64()
	if err != nil {
		return nil, unavailable("create", err)
	}
	if inserted == 0 {
		return nil, account.ErrDuplicateEmail
	}

	// Round-trip through the stored encoding so callers see the same
	// precision later lookups return.
	fields := make(map[string]string, len(args)/2)
	for i := 1; i+1 < len(args); i += 2 {
		fields[args[i].(string)] = args[i+1].(string)
	}
	return decodeAccount(fields)
}

// SetRefreshToken overwrites or clears the refresh digest.
func (s *Store) SetRefreshToken(ctx context.Context, id, tokenHash string) error {
	if id == "" {
		return nil
	}
	err := setRefreshLua.Run(ctx, s.redis, []string{s.accountKey(id)}, tokenHash).Err()
	if err != nil {
		return unavailable("set refresh token", err)
	}
	return nil
}

// RotateRefreshTokenIfMatches swaps the refresh digest when it equals
// expected.
func (s *Store) RotateRefreshTokenIfMatches(ctx context.Context, id, expected, next string) (bool, error) {
	if id == "" || expected == "" {
		return false, nil
	}
	swapped, err := rotateRefreshLua.Run(ctx, s.redis, []string{s.accountKey(id)}, expected, next).Int64()
	if err != nil {
		return false, unavailable("rotate refresh token", err)
	}
	return swapped == 1, nil
}

// MarkVerified consumes an unexpired verification digest.
func (s *Store) MarkVerified(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	if tokenHash == "" {
		return false, nil
	}
	id, err := s.redis.Get(ctx, s.verifyKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("mark verified", err)
	}

	verified, err := markVerifiedLua.Run(ctx, s.redis,
		[]string{s.verifyKey(tokenHash), s.accountKey(id)},
		id, strconv.FormatInt(now.UnixMilli(), 10), formatTime(s.now()),
	).Int64()
	if err != nil {
		return false, unavailable("mark verified", err)
	}
	return verified == 1, nil
}

// ReplaceVerificationToken swaps the pending verification digest of an
// unverified account whose current digest is oldHash.
func (s *Store) ReplaceVerificationToken(ctx context.Context, id, oldHash, newHash string, exp time.Time) (bool, error) {
	if id == "" || newHash == "" {
		return false, nil
	}
	var vexp int64
	if !exp.IsZero() {
		vexp = exp.UnixMilli()
	}
	replaced, err := replaceVerificationLua.Run(ctx, s.redis,
		[]string{s.accountKey(id), s.verifyKey(oldHash), s.verifyKey(newHash)},
		id, oldHash, newHash, strconv.FormatInt(vexp, 10), formatTime(s.now()),
	).Int64()
	if err != nil {
		return false, unavailable("replace verification token", err)
	}
	return replaced == 1, nil
}

// UpdatePasswordHash overwrites the password digest.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if id == "" {
		return nil
	}
	err := updatePasswordLua.Run(ctx, s.redis, []string{s.accountKey(id)}, hash, formatTime(s.now())).Err()
	if err != nil {
		return unavailable("update password hash", err)
	}
	return nil
}

// Delete removes the account hash and the index keys that still point at it.
func (s *Store) Delete(ctx context.Context, id string) error {
	a, err := s.FindByID(ctx, id)
	if errors.Is(err, account.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	verifyKey := s.verifyKey(a.VerificationTokenHash)
	err = deleteLua.Run(ctx, s.redis, []string{s.accountKey(id), s.emailKey(a.Email), verifyKey}, id).Err()
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}
