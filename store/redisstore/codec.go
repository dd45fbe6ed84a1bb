package redisstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/account"
)

// Verification expiry is stored in unix milliseconds so Lua can compare it
// without losing precision to float64.
func encodeAccount(a *account.Account) []any {
	var vexp int64
	if !a.VerificationExpiresAt.IsZero() {
		vexp = a.VerificationExpiresAt.UnixMilli()
	}
	verified := "0"
	if a.Verified {
		verified = "1"
	}
	return []any{
		"id", a.ID,
		"first", a.FirstName,
		"last", a.LastName,
		"email", a.Email,
		"pw", a.PasswordHash,
		"verified", verified,
		"vhash", a.VerificationTokenHash,
		"vexp", strconv.FormatInt(vexp, 10),
		"rhash", a.RefreshTokenHash,
		"created", formatTime(a.CreatedAt),
		"updated", formatTime(a.UpdatedAt),
	}
}

func decodeAccount(f map[string]string) (*account.Account, error) {
	a := &account.Account{
		ID:                    f["id"],
		FirstName:             f["first"],
		LastName:              f["last"],
		Email:                 f["email"],
		PasswordHash:          f["pw"],
		Verified:              f["verified"] == "1",
		VerificationTokenHash: f["vhash"],
		RefreshTokenHash:      f["rhash"],
	}
	if a.ID == "" {
		return nil, fmt.Errorf("redisstore: account record missing id")
	}

	if raw := f["vexp"]; raw != "" && raw != "0" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redisstore: decode vexp: %w", err)
		}
		a.VerificationExpiresAt = time.UnixMilli(ms).UTC()
	}

	var err error
	if a.CreatedAt, err = parseTime(f["created"]); err != nil {
		return nil, fmt.Errorf("redisstore: decode created: %w", err)
	}
	if a.UpdatedAt, err = parseTime(f["updated"]); err != nil {
		return nil, fmt.Errorf("redisstore: decode updated: %w", err)
	}
	return a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
