package flows

import (
	"context"
	"strings"
)

// LogoutStore is the store surface used by logout.
type LogoutStore interface {
	SetRefreshToken(ctx context.Context, id, tokenHash string) error
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Hooks

	Store LogoutStore

	MetricLogout int
	EventLogout  string
	Errors       Errors
}

// RunLogout clears the stored refresh digest. Clearing an already empty
// value, or an unknown account, succeeds.
func RunLogout(ctx context.Context, accountID string, deps LogoutDeps) error {
	deps.normalize()
	if deps.Store == nil {
		return deps.Errors.EngineNotReady
	}
	if strings.TrimSpace(accountID) == "" {
		return deps.Errors.Validation
	}

	if err := deps.Store.SetRefreshToken(ctx, accountID, ""); err != nil {
		depErr := deps.Errors.dependency("clear refresh token", err)
		deps.EmitAudit(ctx, deps.EventLogout, false, accountID, depErr, reason("store_error"))
		return depErr
	}

	deps.MetricInc(deps.MetricLogout)
	deps.EmitAudit(ctx, deps.EventLogout, true, accountID, nil, nil)
	return nil
}
