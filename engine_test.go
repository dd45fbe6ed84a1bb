package authcore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/store/memory"
)

type captureNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{tokens: make(map[string]string)}
}

func (n *captureNotifier) SendVerificationEmail(_ context.Context, to, _, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.tokens[to] = token
	return nil
}

func (n *captureNotifier) token(t *testing.T, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	tok, ok := n.tokens[email]
	if !ok {
		t.Fatalf("no verification token sent to %s", email)
	}
	return tok
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memory.Store, *captureNotifier) {
	t.Helper()

	store := memory.New()
	notifier := newCaptureNotifier()
	engine, err := New().
		WithConfig(cfg).
		WithAccountStore(store).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, store, notifier
}

func signupAndVerify(t *testing.T, engine *Engine, notifier *captureNotifier, email, pw string) {
	t.Helper()
	ctx := context.Background()
	if err := engine.Signup(ctx, SignupRequest{FirstName: "Ada", LastName: "Lovelace", Email: email, Password: pw}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := engine.VerifyEmail(ctx, notifier.token(t, email)); err != nil {
		t.Fatalf("verify email: %v", err)
	}
}

func TestEngineLifecycle(t *testing.T) {
	engine, _, notifier := newTestEngine(t, validTestConfig())
	ctx := context.Background()

	req := SignupRequest{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "correct-horse-1"}
	if err := engine.Signup(ctx, req); err != nil {
		t.Fatalf("signup: %v", err)
	}

	if _, err := engine.Login(ctx, req.Email, req.Password); !errors.Is(err, ErrAccountNotVerified) {
		t.Fatalf("expected ErrAccountNotVerified before verification, got %v", err)
	}

	token := notifier.token(t, req.Email)
	if len(token) < 64 {
		t.Fatalf("verification token too short: %d hex chars", len(token))
	}
	if err := engine.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	if err := engine.VerifyEmail(ctx, token); !errors.Is(err, ErrVerificationInvalid) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected reused token to fail with not found, got %v", err)
	}

	res, err := engine.Login(ctx, "ADA@example.com", req.Password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.Profile.Verified || res.Profile.Email != req.Email || res.Profile.ID == "" {
		t.Fatalf("unexpected profile: %+v", res.Profile)
	}

	claims, err := engine.ValidateAccess(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if claims.AccountID != res.Profile.ID || claims.Email != req.Email {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != 15*time.Minute {
		t.Fatalf("expected 15m access lifetime, got %v", got)
	}
	if _, err := engine.ValidateAccess(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}

	pair, err := engine.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pair.RefreshToken == res.Tokens.RefreshToken {
		t.Fatal("refresh did not rotate the refresh token")
	}
	if _, err := engine.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected replayed token to fail, got %v", err)
	}

	profile, err := engine.Profile(ctx, res.Profile.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.FirstName != "Ada" || profile.LastName != "Lovelace" {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	if err := engine.Logout(ctx, res.Profile.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := engine.Logout(ctx, res.Profile.ID); err != nil {
		t.Fatalf("second logout should succeed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected refresh after logout to fail, got %v", err)
	}
	if _, err := engine.ValidateAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("access token should outlive logout: %v", err)
	}
}

func TestEngineSignupDuplicate(t *testing.T) {
	engine, store, _ := newTestEngine(t, validTestConfig())
	ctx := context.Background()

	req := SignupRequest{FirstName: "A", LastName: "B", Email: "dup@example.com", Password: "pw-123456"}
	if err := engine.Signup(ctx, req); err != nil {
		t.Fatalf("signup: %v", err)
	}
	req.Email = "  DUP@example.com "
	if err := engine.Signup(ctx, req); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one stored account, got %d", store.Len())
	}
}

func TestEngineSignupRejectsLongPassword(t *testing.T) {
	engine, store, _ := newTestEngine(t, validTestConfig())

	err := engine.Signup(context.Background(), SignupRequest{
		FirstName: "A",
		LastName:  "B",
		Email:     "long@example.com",
		Password:  strings.Repeat("p", 73),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("account created despite invalid password")
	}
}

func TestEngineNotifyPolicy(t *testing.T) {
	t.Run("best effort", func(t *testing.T) {
		engine, store, notifier := newTestEngine(t, validTestConfig())
		notifier.err = errors.New("smtp down")

		err := engine.Signup(context.Background(), SignupRequest{FirstName: "A", LastName: "B", Email: "be@example.com", Password: "pw-123456"})
		if err != nil {
			t.Fatalf("best-effort signup should succeed, got %v", err)
		}
		if store.Len() != 1 {
			t.Fatal("expected account to remain")
		}
		if got := engine.MetricsSnapshot().Counters[MetricNotifyFailure]; got != 1 {
			t.Fatalf("expected notify failure metric 1, got %d", got)
		}
	})

	t.Run("strict", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Verification.NotifyFailurePolicy = NotifyStrict
		engine, store, notifier := newTestEngine(t, cfg)
		notifier.err = errors.New("smtp down")

		err := engine.Signup(context.Background(), SignupRequest{FirstName: "A", LastName: "B", Email: "st@example.com", Password: "pw-123456"})
		if !errors.Is(err, ErrDependency) {
			t.Fatalf("expected ErrDependency, got %v", err)
		}
		if store.Len() != 0 {
			t.Fatal("expected account to be removed")
		}
	})
}

func TestEngineVerificationExpires(t *testing.T) {
	cfg := validTestConfig()
	cfg.Verification.TokenTTL = time.Nanosecond
	engine, _, notifier := newTestEngine(t, cfg)
	ctx := context.Background()

	if err := engine.Signup(ctx, SignupRequest{FirstName: "A", LastName: "B", Email: "exp@example.com", Password: "pw-123456"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := engine.VerifyEmail(ctx, notifier.token(t, "exp@example.com")); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestEngineLoginUniformFailure(t *testing.T) {
	engine, _, notifier := newTestEngine(t, validTestConfig())
	signupAndVerify(t, engine, notifier, "u@example.com", "right-password")
	ctx := context.Background()

	_, errUnknown := engine.Login(ctx, "nobody@example.com", "right-password")
	_, errWrong := engine.Login(ctx, "u@example.com", "wrong-password")
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("failure messages differ: %q vs %q", errUnknown, errWrong)
	}
}

func TestEngineConcurrentRefreshSingleWinner(t *testing.T) {
	engine, _, notifier := newTestEngine(t, validTestConfig())
	signupAndVerify(t, engine, notifier, "race@example.com", "pw-123456")

	res, err := engine.Login(context.Background(), "race@example.com", "pw-123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Refresh(context.Background(), res.Tokens.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}

func TestEngineProfileNotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t, validTestConfig())
	if _, err := engine.Profile(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEngineAuditEvents(t *testing.T) {
	sink := NewChannelSink(64)
	cfg := validTestConfig()
	store := memory.New()
	notifier := newCaptureNotifier()
	engine, err := New().
		WithConfig(cfg).
		WithAccountStore(store).
		WithNotifier(notifier).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.7"), "test-agent")
	if err := engine.Signup(ctx, SignupRequest{FirstName: "A", LastName: "B", Email: "audit@example.com", Password: "pw-123456"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := engine.Login(ctx, "audit@example.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected login failure, got %v", err)
	}
	engine.Close()

	var got []AuditEvent
	for len(sink.Events()) > 0 {
		got = append(got, <-sink.Events())
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 audit events, got %d: %+v", len(got), got)
	}
	if got[0].EventType != auditEventSignupSuccess || !got[0].Success {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	failure := got[1]
	if failure.EventType != auditEventLoginFailure || failure.Success {
		t.Fatalf("unexpected second event: %+v", failure)
	}
	if failure.Error != string(auditErrInvalidCredentials) {
		t.Fatalf("expected invalid_credentials code, got %q", failure.Error)
	}
	if failure.IP != "203.0.113.7" || failure.UserAgent != "test-agent" {
		t.Fatalf("request metadata missing: %+v", failure)
	}
}

func TestEngineMetrics(t *testing.T) {
	engine, _, notifier := newTestEngine(t, validTestConfig())
	signupAndVerify(t, engine, notifier, "m@example.com", "pw-123456")
	ctx := context.Background()

	res, err := engine.Login(ctx, "m@example.com", "pw-123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_, _ = engine.Login(ctx, "m@example.com", "bad")
	_, _ = engine.ValidateAccess(ctx, res.Tokens.AccessToken)
	_, _ = engine.ValidateAccess(ctx, "garbage")

	s := engine.MetricsSnapshot()
	checks := map[MetricID]uint64{
		MetricSignupSuccess:            1,
		MetricEmailVerificationSuccess: 1,
		MetricLoginSuccess:             1,
		MetricLoginFailure:             1,
		MetricValidateSuccess:          1,
		MetricValidateFailure:          1,
	}
	for id, want := range checks {
		if got := s.Counters[id]; got != want {
			t.Fatalf("metric %d: expected %d, got %d", id, want, got)
		}
	}

	var observed uint64
	for _, c := range s.Histograms[MetricLoginLatency] {
		observed += c
	}
	if observed != 2 {
		t.Fatalf("expected 2 login latency observations, got %d", observed)
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	if _, err := New().WithConfig(validTestConfig()).WithNotifier(newCaptureNotifier()).Build(); err == nil {
		t.Fatal("expected error without account store")
	}
	if _, err := New().WithConfig(validTestConfig()).WithAccountStore(memory.New()).Build(); err == nil {
		t.Fatal("expected error without notifier")
	}
	if _, err := New().WithAccountStore(memory.New()).WithNotifier(newCaptureNotifier()).Build(); err == nil {
		t.Fatal("expected error without secrets")
	}

	b := New().WithConfig(validTestConfig()).WithAccountStore(memory.New()).WithNotifier(newCaptureNotifier())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected reused builder to fail")
	}
}

func TestZeroEngineNotReady(t *testing.T) {
	var engine Engine
	ctx := context.Background()

	if err := engine.Signup(ctx, SignupRequest{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("signup: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.Login(ctx, "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("login: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.Refresh(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("refresh: expected ErrEngineNotReady, got %v", err)
	}
	if err := engine.Logout(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("logout: expected ErrEngineNotReady, got %v", err)
	}
	if err := engine.VerifyEmail(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("verify: expected ErrEngineNotReady, got %v", err)
	}
	if err := engine.ResendVerification(ctx, "x@example.com"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("resend: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.ValidateAccess(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("validate: expected ErrEngineNotReady, got %v", err)
	}
}

func TestEngineResendVerification(t *testing.T) {
	engine, _, notifier := newTestEngine(t, validTestConfig())
	ctx := context.Background()

	if err := engine.Signup(ctx, SignupRequest{FirstName: "Ada", Email: "ada@example.com", Password: "pw-123456"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	first := notifier.token(t, "ada@example.com")

	if err := engine.ResendVerification(ctx, "Ada@Example.com "); err != nil {
		t.Fatalf("resend: %v", err)
	}
	second := notifier.token(t, "ada@example.com")
	if second == first {
		t.Fatal("resend must issue a new token")
	}
	if err := engine.VerifyEmail(ctx, first); !errors.Is(err, ErrVerificationInvalid) {
		t.Fatalf("superseded token: expected ErrVerificationInvalid, got %v", err)
	}
	if err := engine.VerifyEmail(ctx, second); err != nil {
		t.Fatalf("verify with new token: %v", err)
	}
	if _, err := engine.Login(ctx, "ada@example.com", "pw-123456"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := engine.ResendVerification(ctx, "ada@example.com"); err != nil {
		t.Fatalf("resend for verified account must succeed silently, got %v", err)
	}
	if err := engine.ResendVerification(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("resend for unknown email must succeed silently, got %v", err)
	}
	if got := notifier.token(t, "ada@example.com"); got != second {
		t.Fatal("no mail may be sent for a verified account")
	}

	s := engine.MetricsSnapshot()
	if s.Counters[MetricVerificationResent] != 1 || s.Counters[MetricVerificationResendSkipped] != 2 {
		t.Fatalf("resent=%d skipped=%d, want 1/2",
			s.Counters[MetricVerificationResent], s.Counters[MetricVerificationResendSkipped])
	}
}

func TestEngineResendVerificationStrictNotify(t *testing.T) {
	cfg := validTestConfig()
	cfg.Verification.NotifyFailurePolicy = NotifyStrict
	engine, _, notifier := newTestEngine(t, cfg)
	ctx := context.Background()

	if err := engine.Signup(ctx, SignupRequest{FirstName: "Ada", Email: "ada@example.com", Password: "pw-123456"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	notifier.mu.Lock()
	notifier.err = errors.New("smtp down")
	notifier.mu.Unlock()

	if err := engine.ResendVerification(ctx, "ada@example.com"); !errors.Is(err, ErrDependency) {
		t.Fatalf("expected ErrDependency, got %v", err)
	}
}

// seedVerified stores an already verified account whose password digest was
// produced at cost.
func seedVerified(t *testing.T, store *memory.Store, email, password string, cost int) {
	t.Helper()
	ctx := context.Background()
	digest, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, err := store.Create(ctx, account.CreateInput{
		FirstName:             "Ada",
		Email:                 email,
		PasswordHash:          string(digest),
		VerificationTokenHash: internal.DigestToken("seed-" + email),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := store.MarkVerified(ctx, internal.DigestToken("seed-"+email), time.Now()); err != nil || !ok {
		t.Fatalf("mark verified: ok=%v err=%v", ok, err)
	}
}

func storedCost(t *testing.T, store *memory.Store, email string) int {
	t.Helper()
	a, err := store.FindByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(a.PasswordHash))
	if err != nil {
		t.Fatalf("stored digest is not bcrypt: %v", err)
	}
	return cost
}

func TestLoginUpgradesPasswordCost(t *testing.T) {
	cfg := validTestConfig()
	cfg.Password.BcryptCost = 12
	engine, store, _ := newTestEngine(t, cfg)
	seedVerified(t, store, "old@example.com", "pw-123456", 10)

	res, err := engine.Login(context.Background(), "old@example.com", "pw-123456")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := storedCost(t, store, "old@example.com"); got != 12 {
		t.Fatalf("stored cost = %d, want 12", got)
	}
	stored, _ := store.FindByEmail(context.Background(), "old@example.com")
	if !res.Profile.UpdatedAt.Equal(stored.UpdatedAt) {
		t.Fatalf("profile UpdatedAt %v, stored %v", res.Profile.UpdatedAt, stored.UpdatedAt)
	}
	if engine.MetricsSnapshot().Counters[MetricPasswordUpgraded] != 1 {
		t.Fatal("expected one password upgrade")
	}
	if _, err := engine.Login(context.Background(), "old@example.com", "pw-123456"); err != nil {
		t.Fatalf("login with upgraded digest: %v", err)
	}
}

func TestLoginUpgradeDisabled(t *testing.T) {
	cfg := validTestConfig()
	cfg.Password.BcryptCost = 6
	cfg.Password.UpgradeOnLogin = false
	engine, store, _ := newTestEngine(t, cfg)
	seedVerified(t, store, "old@example.com", "pw-123456", bcrypt.MinCost)

	if _, err := engine.Login(context.Background(), "old@example.com", "pw-123456"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := storedCost(t, store, "old@example.com"); got != bcrypt.MinCost {
		t.Fatalf("stored cost = %d, want %d", got, bcrypt.MinCost)
	}
}
