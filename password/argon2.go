package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

var errMalformedDigest = errors.New("password: malformed argon2id digest")

// Argon2Config holds argon2id parameters. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config follows the RFC 9106 second recommended option.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return errors.New("password: argon2 memory must be >= 8192 KiB")
	case c.Time < 1:
		return errors.New("password: argon2 time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password: argon2 parallelism must be >= 1")
	case c.SaltLength < 16:
		return errors.New("password: argon2 salt length must be >= 16")
	case c.KeyLength < 16:
		return errors.New("password: argon2 key length must be >= 16")
	}
	return nil
}

// Argon2 hashes with argon2id.
type Argon2 struct {
	cfg Argon2Config
}

// NewArgon2 validates cfg and returns an argon2id hasher.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash derives a key with a random salt and encodes it in the PHC string
// format.
func (a *Argon2) Hash(plaintext string) (string, error) {
	salt := make([]byte, a.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)

	enc := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		a.cfg.Memory, a.cfg.Time, a.cfg.Parallelism,
		enc.EncodeToString(salt), enc.EncodeToString(key),
	), nil
}

// Verify recomputes the key with the parameters encoded in digest.
func (a *Argon2) Verify(plaintext, digest string) bool {
	d, err := decodeArgon2(digest)
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(plaintext), d.salt, d.params.Time, d.params.Memory, d.params.Parallelism, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(key, d.key) == 1
}

// NeedsUpgrade reports whether digest was produced with weaker parameters
// than the configured ones.
func (a *Argon2) NeedsUpgrade(digest string) bool {
	d, err := decodeArgon2(digest)
	if err != nil {
		return true
	}
	return d.params.Memory < a.cfg.Memory ||
		d.params.Time < a.cfg.Time ||
		d.params.Parallelism < a.cfg.Parallelism ||
		uint32(len(d.key)) != a.cfg.KeyLength
}

func (a *Argon2) recognizes(digest string) bool {
	return strings.HasPrefix(digest, argon2Prefix)
}

type argon2Digest struct {
	params Argon2Config
	salt   []byte
	key    []byte
}

func decodeArgon2(digest string) (*argon2Digest, error) {
	parts := strings.Split(digest, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, errMalformedDigest
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, errMalformedDigest
	}

	var d argon2Digest
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &d.params.Memory, &d.params.Time, &d.params.Parallelism); err != nil {
		return nil, errMalformedDigest
	}
	if d.params.Memory < 8*1024 || d.params.Time < 1 || d.params.Parallelism < 1 {
		return nil, errMalformedDigest
	}

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(d.salt) < 16 {
		return nil, errMalformedDigest
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(d.key) < 16 {
		return nil, errMalformedDigest
	}
	return &d, nil
}
