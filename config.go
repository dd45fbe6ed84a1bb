package authcore

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/password"
)

// Config is the full engine configuration. Build it from DefaultConfig and
// override what you need; the Builder validates it once.
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the two HS256 secrets and token lifetimes. The secrets
// must differ so a leaked access secret cannot mint refresh tokens.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the credential hashing algorithm.
type PasswordConfig struct {
	Algorithm  string // "bcrypt" (default) or "argon2id"
	BcryptCost int
	Argon2     password.Argon2Config
	// MaxBytes bounds plaintext length; bcrypt ignores anything past 72.
	MaxBytes int
	// UpgradeOnLogin rewrites a matched digest whose algorithm or cost no
	// longer matches the configuration.
	UpgradeOnLogin bool
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// NotifyFailurePolicy decides what Signup and ResendVerification do when the
// notifier fails.
type NotifyFailurePolicy string

const (
	// NotifyBestEffort logs the failure and still reports success.
	NotifyBestEffort NotifyFailurePolicy = "best_effort"
	// NotifyStrict returns ErrDependency. Signup also deletes the new
	// account; a resend keeps the replaced token.
	NotifyStrict NotifyFailurePolicy = "strict"
)

// VerificationConfig controls email verification tokens and delivery.
type VerificationConfig struct {
	TokenBytes int
	// TokenTTL of zero keeps tokens valid until used.
	TokenTTL            time.Duration
	NotifyFailurePolicy NotifyFailurePolicy
	// NotifyTimeout bounds one notifier call. Zero uses the caller's context
	// unchanged.
	NotifyTimeout time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. Secrets are left empty and must
// be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "authcore",
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Algorithm:      password.AlgorithmBcrypt,
			BcryptCost:     password.DefaultBcryptCost,
			Argon2:         password.DefaultArgon2Config(),
			MaxBytes:       72,
			UpgradeOnLogin: true,
		},
		Verification: VerificationConfig{
			TokenBytes:          internal.MinVerificationTokenBytes,
			TokenTTL:            24 * time.Hour,
			NotifyFailurePolicy: NotifyBestEffort,
			NotifyTimeout:       10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("JWT.AccessSecret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT.RefreshSecret must be at least 32 bytes")
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return errors.New("JWT.AccessSecret and JWT.RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT TTLs must be > 0")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT.AccessTTL must be shorter than JWT.RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT.Leeway must be within [0, 2m]")
	}

	switch c.Password.Algorithm {
	case password.AlgorithmBcrypt, password.AlgorithmArgon2id:
	default:
		return fmt.Errorf("Password.Algorithm %q is not supported", c.Password.Algorithm)
	}
	if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("Password.BcryptCost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Password.MaxBytes <= 0 {
		return errors.New("Password.MaxBytes must be > 0")
	}
	if c.Password.Algorithm == password.AlgorithmBcrypt && c.Password.MaxBytes > 72 {
		return errors.New("Password.MaxBytes must be <= 72 for bcrypt")
	}

	if c.Verification.TokenBytes < internal.MinVerificationTokenBytes {
		return fmt.Errorf("Verification.TokenBytes must be >= %d", internal.MinVerificationTokenBytes)
	}
	if c.Verification.TokenTTL < 0 {
		return errors.New("Verification.TokenTTL must be >= 0")
	}
	if c.Verification.NotifyTimeout < 0 {
		return errors.New("Verification.NotifyTimeout must be >= 0")
	}
	switch c.Verification.NotifyFailurePolicy {
	case NotifyBestEffort, NotifyStrict:
	default:
		return fmt.Errorf("Verification.NotifyFailurePolicy %q is not supported", c.Verification.NotifyFailurePolicy)
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when audit is enabled")
	}
	return nil
}
