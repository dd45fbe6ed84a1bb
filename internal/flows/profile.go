package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/account"
)

// ProfileStore is the store surface used by profile lookups.
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*account.Account, error)
}

// RunProfile loads an account for profile rendering.
func RunProfile(ctx context.Context, accountID string, store ProfileStore, errs Errors) (*account.Account, error) {
	if store == nil {
		return nil, errs.EngineNotReady
	}
	if accountID == "" {
		return nil, errs.NotFound
	}
	acct, err := store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, errs.NotFound
		}
		return nil, errs.dependency("find account", err)
	}
	return acct, nil
}
