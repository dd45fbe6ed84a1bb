package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Hooks are the observability callbacks every flow accepts. Nil hooks are
// replaced with no-ops.
type Hooks struct {
	Now       func() time.Time
	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID string, err error, metadata func() map[string]string)
	Warn      func(msg string, args ...any)
}

func (h *Hooks) normalize() {
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if h.Warn == nil {
		h.Warn = func(string, ...any) {}
	}
}

// Errors carries the host-level sentinels flows return. Flows never create
// their own error identities.
type Errors struct {
	EngineNotReady      error
	Validation          error
	DuplicateAccount    error
	InvalidCredentials  error
	AccountNotVerified  error
	InvalidToken        error
	NotFound            error
	VerificationInvalid error
	Dependency          error
}

// dependency tags a store or notifier failure while keeping its cause.
func (e Errors) dependency(op string, err error) error {
	return errors.Join(e.Dependency, fmt.Errorf("%s: %w", op, err))
}

func reason(r string) func() map[string]string {
	return func() map[string]string { return map[string]string{"reason": r} }
}
