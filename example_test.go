package authcore_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/memory"
)

func exampleConfig() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("example-access-secret-0123456789ab")
	cfg.JWT.RefreshSecret = []byte("example-refresh-secret-0123456789a")
	cfg.Password.BcryptCost = 4
	return cfg
}

// ExampleNew walks an account from signup to an authenticated session.
func ExampleNew() {
	ctx := context.Background()

	var link string
	engine, err := authcore.New().
		WithConfig(exampleConfig()).
		WithAccountStore(memory.New()).
		WithNotifier(authcore.NotifierFunc(func(_ context.Context, _, _, token string) error {
			link = token
			return nil
		})).
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer engine.Close()

	_ = engine.Signup(ctx, authcore.SignupRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Password:  "analytical-engine",
	})

	_, err = engine.Login(ctx, "ada@example.com", "analytical-engine")
	fmt.Println(errors.Is(err, authcore.ErrAccountNotVerified))

	if err := engine.VerifyEmail(ctx, link); err != nil {
		fmt.Println(err)
		return
	}

	res, err := engine.Login(ctx, "ada@example.com", "analytical-engine")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(res.Profile.Email, res.Profile.Verified)
	// Output:
	// true
	// ada@example.com true
}

// ExampleEngine_Refresh shows that a rotated refresh token cannot be reused.
func ExampleEngine_Refresh() {
	ctx := context.Background()

	var link string
	engine, _ := authcore.New().
		WithConfig(exampleConfig()).
		WithAccountStore(memory.New()).
		WithNotifier(authcore.NotifierFunc(func(_ context.Context, _, _, token string) error {
			link = token
			return nil
		})).
		Build()
	defer engine.Close()

	_ = engine.Signup(ctx, authcore.SignupRequest{FirstName: "Ada", Email: "ada@example.com", Password: "pw"})
	_ = engine.VerifyEmail(ctx, link)
	res, _ := engine.Login(ctx, "ada@example.com", "pw")

	if _, err := engine.Refresh(ctx, res.Tokens.RefreshToken); err != nil {
		fmt.Println(err)
		return
	}
	_, err := engine.Refresh(ctx, res.Tokens.RefreshToken)
	fmt.Println(errors.Is(err, authcore.ErrInvalidCredentials))
	// Output: true
}

// ExampleEngine_MetricsSnapshot reads in-process counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *authcore.Engine
	snapshot := engine.MetricsSnapshot()
	fmt.Println(snapshot.Counters[authcore.MetricLoginSuccess])
	// Output: 0
}
