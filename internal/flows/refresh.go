package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/jwt"
)

// RefreshStore is the store surface used by refresh.
type RefreshStore interface {
	FindByID(ctx context.Context, id string) (*account.Account, error)
	RotateRefreshTokenIfMatches(ctx context.Context, id, expected, next string) (bool, error)
}

// RefreshMetrics carries metric IDs used by refresh.
type RefreshMetrics struct {
	Success int
	Failure int
	Replay  int
}

// RefreshEvents carries audit event names used by refresh.
type RefreshEvents struct {
	Success string
	Failure string
	Replay  string
}

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	Hooks

	Store        RefreshStore
	ParseRefresh func(string) (*jwt.Claims, error)
	IssuePair    func(accountID, email string) (jwt.Pair, error)
	DigestToken  func(string) string

	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  Errors
}

// RefreshFailureKind classifies why a refresh was rejected. Callers only
// ever see Errors.InvalidCredentials; the kind feeds audit and tests.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureEmpty
	RefreshFailureToken
	RefreshFailureUnknownAccount
	RefreshFailureRevoked
	RefreshFailureReplay
	RefreshFailureLostRace
)

func (k RefreshFailureKind) String() string {
	switch k {
	case RefreshFailureEmpty:
		return "empty_token"
	case RefreshFailureToken:
		return "invalid_token"
	case RefreshFailureUnknownAccount:
		return "unknown_account"
	case RefreshFailureRevoked:
		return "revoked"
	case RefreshFailureReplay:
		return "replay"
	case RefreshFailureLostRace:
		return "lost_race"
	default:
		return "none"
	}
}

// RefreshResult carries the rotated pair or the failure kind.
type RefreshResult struct {
	Pair    jwt.Pair
	Failure RefreshFailureKind
}

// RunRefresh exchanges a refresh token for a new pair. Rotation is a single
// compare-and-swap on the stored digest, so a replayed token loses even when
// two requests race.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (RefreshResult, error) {
	deps.normalize()
	if deps.Store == nil || deps.ParseRefresh == nil || deps.IssuePair == nil || deps.DigestToken == nil {
		return RefreshResult{}, deps.Errors.EngineNotReady
	}

	reject := func(accountID string, kind RefreshFailureKind) (RefreshResult, error) {
		deps.MetricInc(deps.Metrics.Failure)
		event := deps.Events.Failure
		if kind == RefreshFailureReplay || kind == RefreshFailureLostRace {
			deps.MetricInc(deps.Metrics.Replay)
			event = deps.Events.Replay
		}
		deps.EmitAudit(ctx, event, false, accountID, deps.Errors.InvalidCredentials, reason(kind.String()))
		return RefreshResult{Failure: kind}, deps.Errors.InvalidCredentials
	}
	storeFailure := func(accountID, op string, err error) (RefreshResult, error) {
		depErr := deps.Errors.dependency(op, err)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, accountID, depErr, reason("store_error"))
		return RefreshResult{}, depErr
	}

	if refreshToken == "" {
		return reject("", RefreshFailureEmpty)
	}

	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return reject("", RefreshFailureToken)
	}

	acct, err := deps.Store.FindByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return reject(claims.AccountID(), RefreshFailureUnknownAccount)
		}
		return storeFailure(claims.AccountID(), "find account", err)
	}

	presented := deps.DigestToken(refreshToken)
	if acct.RefreshTokenHash == "" {
		return reject(acct.ID, RefreshFailureRevoked)
	}
	if subtle.ConstantTimeCompare([]byte(acct.RefreshTokenHash), []byte(presented)) != 1 {
		return reject(acct.ID, RefreshFailureReplay)
	}

	pair, err := deps.IssuePair(acct.ID, acct.Email)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("issue token pair: %w", err)
	}

	swapped, err := deps.Store.RotateRefreshTokenIfMatches(ctx, acct.ID, presented, deps.DigestToken(pair.RefreshToken))
	if err != nil {
		return storeFailure(acct.ID, "rotate refresh token", err)
	}
	if !swapped {
		return reject(acct.ID, RefreshFailureLostRace)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, acct.ID, nil, nil)
	return RefreshResult{Pair: pair}, nil
}
