package flows

import "github.com/MrEthical07/authcore/jwt"

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.Claims, error)
	MetricInc   func(int)

	MetricSuccess int
	MetricFailure int
	Errors        Errors
}

// RunValidateAccess verifies an access token without touching the store.
func RunValidateAccess(token string, deps ValidateDeps) (*jwt.Claims, error) {
	if deps.ParseAccess == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}

	claims, err := deps.ParseAccess(token)
	if err != nil {
		deps.MetricInc(deps.MetricFailure)
		return nil, deps.Errors.InvalidToken
	}
	deps.MetricInc(deps.MetricSuccess)
	return claims, nil
}
