// Package memory is an in-process account store for tests and single-node
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/account"
)

// Store keeps accounts in maps guarded by one mutex, so every contract
// operation is atomic.
type Store struct {
	mu       sync.RWMutex
	byID     map[string]*account.Account
	byEmail  map[string]string
	byVerify map[string]string
	now      func() time.Time
}

var _ account.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:     make(map[string]*account.Account),
		byEmail:  make(map[string]string),
		byVerify: make(map[string]string),
		now:      time.Now,
	}
}

// FindByEmail looks an account up by its normalized email.
func (s *Store) FindByEmail(_ context.Context, email string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byEmail[account.NormalizeEmail(email)])
}

// FindByID looks an account up by id.
func (s *Store) FindByID(_ context.Context, id string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(id)
}

// FindByVerificationToken looks an account up by its pending verification
// digest.
func (s *Store) FindByVerificationToken(_ context.Context, tokenHash string) (*account.Account, error) {
	if tokenHash == "" {
		return nil, account.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byVerify[tokenHash])
}

// lookup returns a clone; callers never alias stored records.
func (s *Store) lookup(id string) (*account.Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return a.Clone(), nil
}

// Create inserts an unverified account, rejecting a taken email.
func (s *Store) Create(_ context.Context, in account.CreateInput) (*account.Account, error) {
	key := account.NormalizeEmail(in.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[key]; taken {
		return nil, account.ErrDuplicateEmail
	}

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
	s.byID[a.ID] = a
	s.byEmail[key] = a.ID
	if in.VerificationTokenHash != "" {
		s.byVerify[in.VerificationTokenHash] = a.ID
	}
	return a.Clone(), nil
}

// SetRefreshToken overwrites or clears the refresh digest.
func (s *Store) SetRefreshToken(_ context.Context, id, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.byID[id]; ok {
		a.RefreshTokenHash = tokenHash
	}
	return nil
}

// RotateRefreshTokenIfMatches swaps the refresh digest when it equals
// expected.
func (s *Store) RotateRefreshTokenIfMatches(_ context.Context, id, expected, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok || expected == "" || a.RefreshTokenHash != expected {
		return false, nil
	}
	a.RefreshTokenHash = next
	return true, nil
}

// MarkVerified consumes an unexpired verification digest.
func (s *Store) MarkVerified(_ context.Context, tokenHash string, now time.Time) (bool, error) {
	if tokenHash == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byVerify[tokenHash]
	if !ok {
		return false, nil
	}
	a := s.byID[id]
	if a.VerificationExpired(now) {
		return false, nil
	}

	delete(s.byVerify, tokenHash)
	a.Verified = true
	a.VerificationTokenHash = ""
	a.VerificationExpiresAt = time.Time{}
	a.UpdatedAt = s.now().UTC()
	return true, nil
}

// ReplaceVerificationToken swaps the pending verification digest of an
// unverified account whose current digest is oldHash.
func (s *Store) ReplaceVerificationToken(_ context.Context, id, oldHash, newHash string, exp time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok || a.Verified || a.VerificationTokenHash != oldHash || newHash == "" {
		return false, nil
	}
	if oldHash != "" {
		delete(s.byVerify, oldHash)
	}
	s.byVerify[newHash] = id
	a.VerificationTokenHash = newHash
	a.VerificationExpiresAt = exp
	a.UpdatedAt = s.now().UTC()
	return true, nil
}

// UpdatePasswordHash overwrites the password digest.
func (s *Store) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.byID[id]; ok {
		a.PasswordHash = hash
		a.UpdatedAt = s.now().UTC()
	}
	return nil
}

// Delete removes an account and frees its email.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	delete(s.byEmail, account.NormalizeEmail(a.Email))
	if a.VerificationTokenHash != "" {
		delete(s.byVerify, a.VerificationTokenHash)
	}
	return nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
