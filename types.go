package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/jwt"
)

// AccountStore is the persistence contract the engine depends on.
type AccountStore = account.Store

// Notifier delivers verification emails.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, displayName, token string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, to, displayName, token string) error

// SendVerificationEmail calls f.
func (f NotifierFunc) SendVerificationEmail(ctx context.Context, to, displayName, token string) error {
	return f(ctx, to, displayName, token)
}

// SignupRequest is the input to Engine.Signup.
type SignupRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Profile is the public view of an account. It never carries hashes or
// tokens.
type Profile struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Verified  bool      `json:"isVerified"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func profileOf(a *account.Account) Profile {
	return Profile{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Verified:  a.Verified,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// TokenPair is an issued access/refresh pair.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

func tokenPairOf(p jwt.Pair) TokenPair {
	return TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// LoginResult is returned by Engine.Login.
type LoginResult struct {
	Profile Profile   `json:"user"`
	Tokens  TokenPair `json:"tokens"`
}

// AccessClaims are the verified claims of an access token.
type AccessClaims struct {
	AccountID string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
