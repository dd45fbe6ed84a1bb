package jwt

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is the only error returned by ParseAccess and ParseRefresh.
var ErrInvalidToken = errors.New("invalid token")

// TokenType distinguishes access and refresh tokens inside the claims.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	minSecretBytes = 32
)

// Config configures a [Manager]. Zero TTLs select the defaults.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	// Now overrides the clock. Tests only.
	Now func() time.Time
}

// Claims is the fixed payload of both token classes. Subject carries the
// account id and ID carries a random jti so two tokens issued in the same
// second never collide.
type Claims struct {
	Email string    `json:"email"`
	Type  TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// AccountID returns the subject claim.
func (c *Claims) AccountID() string { return c.Subject }

// Validate runs after signature and time checks.
func (c *Claims) Validate() error {
	switch {
	case c.Subject == "":
		return errors.New("missing sub")
	case c.Email == "":
		return errors.New("missing email")
	case c.ID == "":
		return errors.New("missing jti")
	case c.IssuedAt == nil:
		return errors.New("missing iat")
	case c.Type != TypeAccess && c.Type != TypeRefresh:
		return errors.New("unknown token type")
	}
	return nil
}

type claimsPayload Claims

// UnmarshalJSON rejects payloads carrying fields outside the claims struct.
func (c *Claims) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var p claimsPayload
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*c = Claims(p)
	return nil
}

// Pair is an issued access/refresh token pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Manager signs and verifies tokens. It is immutable after construction and
// safe for concurrent use.
type Manager struct {
	cfg Config
}

// NewManager validates cfg and fills in default TTLs.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < minSecretBytes || len(cfg.RefreshSecret) < minSecretBytes {
		return nil, errors.New("jwt: access and refresh secrets must be at least 32 bytes")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("jwt: access and refresh secrets must differ")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("jwt: invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	// Copy secrets so later mutation by the caller has no effect.
	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)
	return &Manager{cfg: cfg}, nil
}

// IssuePair signs a fresh access and refresh token for the account.
func (m *Manager) IssuePair(accountID, email string) (Pair, error) {
	now := m.cfg.Now()

	access, accessExp, err := m.sign(TypeAccess, accountID, email, now)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := m.sign(TypeRefresh, accountID, email, now)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ParseAccess verifies an access token.
func (m *Manager) ParseAccess(token string) (*Claims, error) {
	return m.parse(TypeAccess, token)
}

// ParseRefresh verifies a refresh token.
func (m *Manager) ParseRefresh(token string) (*Claims, error) {
	return m.parse(TypeRefresh, token)
}

func (m *Manager) sign(typ TokenType, accountID, email string, now time.Time) (string, time.Time, error) {
	if accountID == "" || email == "" {
		return "", time.Time{}, errors.New("jwt: account id and email are required")
	}

	exp := now.Add(m.ttl(typ))
	claims := Claims{
		Email: email,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        uuid.NewString(),
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret(typ))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *Manager) parse(typ TokenType, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.cfg.Now),
	}
	if m.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.cfg.Leeway))
	}
	if m.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.cfg.Issuer))
	}
	if m.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(m.cfg.Audience))
	}

	secret := m.secret(typ)
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Type != typ {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *Manager) ttl(typ TokenType) time.Duration {
	if typ == TypeRefresh {
		return m.cfg.RefreshTTL
	}
	return m.cfg.AccessTTL
}

func (m *Manager) secret(typ TokenType) []byte {
	if typ == TypeRefresh {
		return m.cfg.RefreshSecret
	}
	return m.cfg.AccessSecret
}
