package jwt

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	testAccessSecret  = []byte("access-secret-access-secret-0123456789")
	testRefreshSecret = []byte("refresh-secret-refresh-secret-0123456789")
)

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Issuer:        "authcore",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssuePairRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)

	pair, err := m.IssuePair("acct-1", "ann@x.com")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	access, err := m.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if access.AccountID() != "acct-1" || access.Email != "ann@x.com" || access.Type != TypeAccess {
		t.Fatalf("unexpected access claims: %+v", access)
	}

	refresh, err := m.ParseRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh: %v", err)
	}
	if refresh.AccountID() != "acct-1" || refresh.Type != TypeRefresh {
		t.Fatalf("unexpected refresh claims: %+v", refresh)
	}
}

func TestDefaultTTLs(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newTestManager(t, func(c *Config) { c.Now = func() time.Time { return now } })

	pair, err := m.IssuePair("acct-1", "ann@x.com")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if got := pair.AccessExpiresAt.Sub(now); got != 15*time.Minute {
		t.Fatalf("expected 15m access TTL, got %v", got)
	}
	if got := pair.RefreshExpiresAt.Sub(now); got != 7*24*time.Hour {
		t.Fatalf("expected 7d refresh TTL, got %v", got)
	}
}

func TestTokenClassesAreNotInterchangeable(t *testing.T) {
	m := newTestManager(t, nil)
	pair, err := m.IssuePair("acct-1", "ann@x.com")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if _, err := m.ParseAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
	if _, err := m.ParseRefresh(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
}

func TestRefreshTokenSignedWithAccessSecretRejected(t *testing.T) {
	m := newTestManager(t, nil)
	claims := Claims{
		Email: "ann@x.com",
		Type:  TypeRefresh,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "acct-1",
			ID:        "jti",
			Issuer:    "authcore",
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testAccessSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseRefresh(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	issued := time.Now().Add(-time.Hour)
	issuer := newTestManager(t, func(c *Config) { c.Now = func() time.Time { return issued } })
	verifier := newTestManager(t, nil)

	pair, err := issuer.IssuePair("acct-1", "ann@x.com")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := verifier.ParseAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired access token to fail, got %v", err)
	}
	if _, err := verifier.ParseRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("refresh token should still be valid: %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	m := newTestManager(t, nil)
	claims := Claims{
		Email: "ann@x.com",
		Type:  TypeAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "acct-1",
			ID:        "jti",
			Issuer:    "authcore",
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testAccessSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseAccess(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected HS512 token to be rejected, got %v", err)
	}

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.ParseAccess(none); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg=none token to be rejected, got %v", err)
	}
}

func TestParseRejectsUnknownAndMissingClaims(t *testing.T) {
	m := newTestManager(t, nil)
	now := time.Now()

	withExtra := gjwt.MapClaims{
		"sub":   "acct-1",
		"email": "ann@x.com",
		"typ":   "access",
		"jti":   "jti",
		"iss":   "authcore",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"role":  "admin",
	}
	tok, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, withExtra).SignedString(testAccessSecret)
	if _, err := m.ParseAccess(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected unknown claim to be rejected, got %v", err)
	}

	missingEmail := gjwt.MapClaims{
		"sub": "acct-1",
		"typ": "access",
		"jti": "jti",
		"iss": "authcore",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	tok, _ = gjwt.NewWithClaims(gjwt.SigningMethodHS256, missingEmail).SignedString(testAccessSecret)
	if _, err := m.ParseAccess(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected missing email to be rejected, got %v", err)
	}

	missingExp := gjwt.MapClaims{
		"sub":   "acct-1",
		"email": "ann@x.com",
		"typ":   "access",
		"jti":   "jti",
		"iss":   "authcore",
		"iat":   now.Unix(),
	}
	tok, _ = gjwt.NewWithClaims(gjwt.SigningMethodHS256, missingExp).SignedString(testAccessSecret)
	if _, err := m.ParseAccess(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected missing exp to be rejected, got %v", err)
	}
}

func TestParseRejectsTamperedAndMalformed(t *testing.T) {
	m := newTestManager(t, nil)
	pair, err := m.IssuePair("acct-1", "ann@x.com")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	parts := strings.Split(pair.AccessToken, ".")
	payload, _ := base64.RawURLEncoding.DecodeString(parts[1])
	tampered := strings.Replace(string(payload), "acct-1", "acct-2", 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(tampered))

	for _, tok := range []string{"", "abc", "a.b.c", strings.Join(parts, ".")} {
		if _, err := m.ParseAccess(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", tok, err)
		}
	}
}

func TestRotatedTokensDiffer(t *testing.T) {
	m := newTestManager(t, nil)
	a, _ := m.IssuePair("acct-1", "ann@x.com")
	b, _ := m.IssuePair("acct-1", "ann@x.com")
	if a.RefreshToken == b.RefreshToken {
		t.Fatal("expected distinct refresh tokens within the same second")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := map[string]Config{
		"short access":  {AccessSecret: []byte("short"), RefreshSecret: testRefreshSecret},
		"short refresh": {AccessSecret: testAccessSecret, RefreshSecret: []byte("short")},
		"shared secret": {AccessSecret: testAccessSecret, RefreshSecret: testAccessSecret},
		"negative ttl":  {AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, AccessTTL: -time.Second},
		"excess leeway": {AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, Leeway: time.Hour},
	}
	for name, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func FuzzParseAccess(f *testing.F) {
	m, err := NewManager(Config{AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret})
	if err != nil {
		f.Fatal(err)
	}
	pair, err := m.IssuePair("acct-1", "ann@x.com")
	if err != nil {
		f.Fatal(err)
	}
	f.Add(pair.AccessToken)
	f.Add(pair.RefreshToken)
	f.Add("")
	f.Add("eyJhbGciOiJub25lIn0.e30.")

	f.Fuzz(func(t *testing.T, tok string) {
		claims, err := m.ParseAccess(tok)
		if err != nil && !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("unexpected error class: %v", err)
		}
		if err == nil && claims.Type != TypeAccess {
			t.Fatalf("accepted non-access token: %+v", claims)
		}
	})
}
