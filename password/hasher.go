package password

import (
	"errors"
	"fmt"
	"strings"
)

// Algorithm names accepted by [Config].
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Hasher is the credential hashing contract consumed by the engine.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// Config selects the hashing algorithm and its parameters.
type Config struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Config
}

// DefaultConfig returns bcrypt at cost 12.
func DefaultConfig() Config {
	return Config{
		Algorithm:  AlgorithmBcrypt,
		BcryptCost: DefaultBcryptCost,
		Argon2:     DefaultArgon2Config(),
	}
}

type prefixed interface {
	Hasher
	NeedsUpgrade(digest string) bool
	recognizes(digest string) bool
}

// Set hashes with a primary algorithm and verifies digests of every known
// algorithm.
type Set struct {
	primary prefixed
	all     []prefixed
}

// New builds a [Set] from cfg.
func New(cfg Config) (*Set, error) {
	bc, err := NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	// Argon2 parameters are only validated when argon2id is the primary
	// algorithm; otherwise verification reads parameters from the digest.
	argonCfg := cfg.Argon2
	if cfg.Algorithm != AlgorithmArgon2id {
		argonCfg = DefaultArgon2Config()
	}
	ar, err := NewArgon2(argonCfg)
	if err != nil {
		return nil, err
	}

	s := &Set{all: []prefixed{bc, ar}}
	switch strings.ToLower(cfg.Algorithm) {
	case "", AlgorithmBcrypt:
		s.primary = bc
	case AlgorithmArgon2id:
		s.primary = ar
	default:
		return nil, fmt.Errorf("password: unsupported algorithm %q", cfg.Algorithm)
	}
	return s, nil
}

// Hash digests plaintext with the primary algorithm.
func (s *Set) Hash(plaintext string) (string, error) {
	if s == nil || s.primary == nil {
		return "", errors.New("password: hasher not initialized")
	}
	return s.primary.Hash(plaintext)
}

// Verify reports whether plaintext matches digest under whichever known
// algorithm produced it.
func (s *Set) Verify(plaintext, digest string) bool {
	if s == nil {
		return false
	}
	for _, h := range s.all {
		if h.recognizes(digest) {
			return h.Verify(plaintext, digest)
		}
	}
	return false
}

// NeedsUpgrade reports whether digest should be replaced by a fresh Hash:
// either another known algorithm produced it, or the primary one did with
// weaker parameters than configured. Unrecognized digests report false.
func (s *Set) NeedsUpgrade(digest string) bool {
	if s == nil || s.primary == nil {
		return false
	}
	if s.primary.recognizes(digest) {
		return s.primary.NeedsUpgrade(digest)
	}
	for _, h := range s.all {
		if h.recognizes(digest) {
			return true
		}
	}
	return false
}
