// Package storetest runs the account.Store contract against any
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/account"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) account.Store

// Run exercises every contract operation, including the concurrency
// guarantees, against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, account.Store)
	}{
		{"CreateAndFind", testCreateAndFind},
		{"DuplicateEmailCaseInsensitive", testDuplicateEmail},
		{"ConcurrentCreateSameEmail", testConcurrentCreate},
		{"FindMissing", testFindMissing},
		{"SetRefreshToken", testSetRefreshToken},
		{"RotateRefreshToken", testRotateRefreshToken},
		{"ConcurrentRotate", testConcurrentRotate},
		{"MarkVerified", testMarkVerified},
		{"MarkVerifiedExpired", testMarkVerifiedExpired},
		{"ConcurrentMarkVerified", testConcurrentMarkVerified},
		{"RefreshWritesLeaveUpdatedAt", testRefreshWritesLeaveUpdatedAt},
		{"ReplaceVerificationToken", testReplaceVerificationToken},
		{"ReplaceExpiredVerificationToken", testReplaceExpiredVerificationToken},
		{"ConcurrentReplaceVerificationToken", testConcurrentReplaceVerificationToken},
		{"UpdatePasswordHash", testUpdatePasswordHash},
		{"Delete", testDelete},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func mustCreate(t *testing.T, s account.Store, email, verifyHash string) *account.Account {
	t.Helper()
	a, err := s.Create(context.Background(), account.CreateInput{
		FirstName:             "Ann",
		LastName:              "Lee",
		Email:                 email,
		PasswordHash:          "$2a$04$abcdefghijklmnopqrstuv",
		VerificationTokenHash: verifyHash,
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", email, err)
	}
	return a
}

func testCreateAndFind(t *testing.T, s account.Store) {
	ctx := context.Background()
	created := mustCreate(t, s, "Ann@X.com", "vh-1")
	if created.ID == "" {
		t.Fatal("expected store-assigned id")
	}
	if created.Verified {
		t.Fatal("new accounts must be unverified")
	}

	byEmail, err := s.FindByEmail(ctx, "ann@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if byEmail.ID != created.ID || byEmail.Email != "Ann@X.com" || byEmail.FirstName != "Ann" {
		t.Fatalf("unexpected account: %+v", byEmail)
	}

	byID, err := s.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if byID.PasswordHash != created.PasswordHash {
		t.Fatal("password hash not persisted")
	}

	byToken, err := s.FindByVerificationToken(ctx, "vh-1")
	if err != nil {
		t.Fatalf("FindByVerificationToken: %v", err)
	}
	if byToken.ID != created.ID {
		t.Fatalf("verification lookup returned %s, want %s", byToken.ID, created.ID)
	}
}

func testDuplicateEmail(t *testing.T, s account.Store) {
	mustCreate(t, s, "ann@x.com", "vh-1")
	_, err := s.Create(context.Background(), account.CreateInput{
		FirstName: "Other", Email: "  ANN@x.COM ", PasswordHash: "h", VerificationTokenHash: "vh-2",
	})
	if !errors.Is(err, account.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func testConcurrentCreate(t *testing.T, s account.Store) {
	const workers = 16
	var (
		wg       sync.WaitGroup
		created  atomic.Int32
		dupes    atomic.Int32
		start    = make(chan struct{})
		failures = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.Create(context.Background(), account.CreateInput{
				FirstName:             "Ann",
				Email:                 "race@x.com",
				PasswordHash:          "h",
				VerificationTokenHash: fmt.Sprintf("vh-%d", i),
			})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, account.ErrDuplicateEmail):
				dupes.Add(1)
			default:
				failures <- err
			}
		}(i)
	}
	close(start)
	wg.Wait()
	close(failures)

	for err := range failures {
		t.Fatalf("unexpected create error: %v", err)
	}
	if created.Load() != 1 || dupes.Load() != workers-1 {
		t.Fatalf("created=%d dupes=%d, want 1/%d", created.Load(), dupes.Load(), workers-1)
	}
}

func testFindMissing(t *testing.T, s account.Store) {
	ctx := context.Background()
	if _, err := s.FindByEmail(ctx, "nobody@x.com"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("FindByEmail: expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindByID(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("FindByID: expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindByVerificationToken(ctx, "missing"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("FindByVerificationToken: expected ErrNotFound, got %v", err)
	}
}

func testSetRefreshToken(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "ann@x.com", "vh-1")

	if err := s.SetRefreshToken(ctx, a.ID, "rt-1"); err != nil {
		t.Fatalf("SetRefreshToken: %v", err)
	}
	got, _ := s.FindByID(ctx, a.ID)
	if got.RefreshTokenHash != "rt-1" {
		t.Fatalf("refresh digest = %q, want rt-1", got.RefreshTokenHash)
	}

	for i := 0; i < 2; i++ {
		if err := s.SetRefreshToken(ctx, a.ID, ""); err != nil {
			t.Fatalf("clear #%d: %v", i, err)
		}
	}
	got, _ = s.FindByID(ctx, a.ID)
	if got.RefreshTokenHash != "" {
		t.Fatalf("expected cleared refresh digest, got %q", got.RefreshTokenHash)
	}

	if err := s.SetRefreshToken(ctx, "00000000-0000-0000-0000-000000000000", ""); err != nil {
		t.Fatalf("unknown id must be a no-op, got %v", err)
	}
}

func testRotateRefreshToken(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "ann@x.com", "vh-1")
	_ = s.SetRefreshToken(ctx, a.ID, "rt-1")

	ok, err := s.RotateRefreshTokenIfMatches(ctx, a.ID, "rt-1", "rt-2")
	if err != nil || !ok {
		t.Fatalf("first rotate: ok=%v err=%v", ok, err)
	}
	ok, err = s.RotateRefreshTokenIfMatches(ctx, a.ID, "rt-1", "rt-3")
	if err != nil || ok {
		t.Fatalf("stale rotate must fail: ok=%v err=%v", ok, err)
	}
	got, _ := s.FindByID(ctx, a.ID)
	if got.RefreshTokenHash != "rt-2" {
		t.Fatalf("refresh digest = %q, want rt-2", got.RefreshTokenHash)
	}

	_ = s.SetRefreshToken(ctx, a.ID, "")
	ok, err = s.RotateRefreshTokenIfMatches(ctx, a.ID, "", "rt-4")
	if err != nil || ok {
		t.Fatalf("rotate against cleared token must fail: ok=%v err=%v", ok, err)
	}
}

func testConcurrentRotate(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "ann@x.com", "vh-1")
	_ = s.SetRefreshToken(ctx, a.ID, "rt-0")

	const workers = 16
	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ok, err := s.RotateRefreshTokenIfMatches(ctx, a.ID, "rt-0", fmt.Sprintf("rt-%d", i+1))
			if err != nil {
				t.Errorf("rotate: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", wins.Load())
	}
}

func testMarkVerified(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "ann@x.com", "vh-1")

	ok, err := s.MarkVerified(ctx, "vh-1", time.Now())
	if err != nil || !ok {
		t.Fatalf("MarkVerified: ok=%v err=%v", ok, err)
	}
	got, _ := s.FindByID(ctx, a.ID)
	if !got.Verified || got.VerificationTokenHash != "" {
		t.Fatalf("verified=%v token=%q, want true/empty", got.Verified, got.VerificationTokenHash)
	}

	ok, err = s.MarkVerified(ctx, "vh-1", time.Now())
	if err != nil || ok {
		t.Fatalf("second MarkVerified must fail: ok=%v err=%v", ok, err)
	}
	if _, err := s.FindByVerificationToken(ctx, "vh-1"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("consumed token still resolvable: %v", err)
	}
}

func testMarkVerifiedExpired(t *testing.T, s account.Store) {
	ctx := context.Background()
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	a, err := s.Create(ctx, account.CreateInput{
		FirstName:             "Ann",
		Email:                 "ann@x.com",
		PasswordHash:          "h",
		VerificationTokenHash: "vh-exp",
		VerificationExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := s.FindByID(ctx, a.ID)
	if !got.VerificationExpiresAt.Equal(expires) {
		t.Fatalf("expiry = %v, want %v", got.VerificationExpiresAt, expires)
	}

	ok, err := s.MarkVerified(ctx, "vh-exp", expires.Add(time.Second))
	if err != nil || ok {
		t.Fatalf("expired token must not verify: ok=%v err=%v", ok, err)
	}
	ok, err = s.MarkVerified(ctx, "vh-exp", expires.Add(-time.Minute))
	if err != nil || !ok {
		t.Fatalf("unexpired token must verify: ok=%v err=%v", ok, err)
	}
}

func testConcurrentMarkVerified(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "ann@x.com", "vh-race")

	const workers = 16
	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := s.MarkVerified(ctx, "vh-race", time.Now())
			if err != nil {
				t.Errorf("MarkVerified: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one verification winner, got %d", wins.Load())
	}
	got, _ := s.FindByID(ctx, a.ID)
	if !got.Verified {
		t.Fatal("account not verified after race")
	}
}

func testRefreshWritesLeaveUpdatedAt(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "ann@x.com", "vh-1")
	before, err := s.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := s.SetRefreshToken(ctx, a.ID, "rt-1"); err != nil {
		t.Fatalf("SetRefreshToken: %v", err)
	}
	if ok, err := s.RotateRefreshTokenIfMatches(ctx, a.ID, "rt-1", "rt-2"); err != nil || !ok {
		t.Fatalf("rotate: ok=%v err=%v", ok, err)
	}

	after, _ := s.FindByID(ctx, a.ID)
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("UpdatedAt moved from %v to %v on refresh writes", before.UpdatedAt, after.UpdatedAt)
	}
}

func testReplaceVerificationToken(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "ann@x.com", "vh-1")
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	ok, err := s.ReplaceVerificationToken(ctx, a.ID, "vh-other", "vh-2", expires)
	if err != nil || ok {
		t.Fatalf("replace with wrong old digest must fail: ok=%v err=%v", ok, err)
	}
	ok, err = s.ReplaceVerificationToken(ctx, a.ID, "vh-1", "vh-2", expires)
	if err != nil || !ok {
		t.Fatalf("ReplaceVerificationToken: ok=%v err=%v", ok, err)
	}

	if _, err := s.FindByVerificationToken(ctx, "vh-1"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("replaced token still resolvable: %v", err)
	}
	got, err := s.FindByVerificationToken(ctx, "vh-2")
	if err != nil {
		t.Fatalf("FindByVerificationToken: %v", err)
	}
	if got.ID != a.ID || !got.VerificationExpiresAt.Equal(expires) {
		t.Fatalf("unexpected record after replace: id=%s expires=%v", got.ID, got.VerificationExpiresAt)
	}

	if ok, _ := s.MarkVerified(ctx, "vh-1", time.Now()); ok {
		t.Fatal("replaced token must not verify")
	}
	if ok, err := s.MarkVerified(ctx, "vh-2", time.Now()); err != nil || !ok {
		t.Fatalf("new token must verify: ok=%v err=%v", ok, err)
	}

	ok, err = s.ReplaceVerificationToken(ctx, a.ID, "", "vh-3", expires)
	if err != nil || ok {
		t.Fatalf("replace on verified account must fail: ok=%v err=%v", ok, err)
	}
	if _, err := s.FindByVerificationToken(ctx, "vh-3"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("rejected replace left token resolvable: %v", err)
	}

	ok, err = s.ReplaceVerificationToken(ctx, "00000000-0000-0000-0000-000000000000", "vh-1", "vh-4", expires)
	if err != nil || ok {
		t.Fatalf("replace on unknown id must fail: ok=%v err=%v", ok, err)
	}
}

func testReplaceExpiredVerificationToken(t *testing.T, s account.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	a, err := s.Create(ctx, account.CreateInput{
		FirstName:             "Ann",
		Email:                 "ann@x.com",
		PasswordHash:          "h",
		VerificationTokenHash: "vh-old",
		VerificationExpiresAt: now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok, _ := s.MarkVerified(ctx, "vh-old", now); ok {
		t.Fatal("expired token must not verify")
	}

	ok, err := s.ReplaceVerificationToken(ctx, a.ID, "vh-old", "vh-new", now.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("ReplaceVerificationToken: ok=%v err=%v", ok, err)
	}
	if ok, err := s.MarkVerified(ctx, "vh-new", now); err != nil || !ok {
		t.Fatalf("reissued token must verify: ok=%v err=%v", ok, err)
	}
}

func testConcurrentReplaceVerificationToken(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "ann@x.com", "vh-0")

	const workers = 16
	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ok, err := s.ReplaceVerificationToken(ctx, a.ID, "vh-0", fmt.Sprintf("vh-%d", i+1), time.Time{})
			if err != nil {
				t.Errorf("ReplaceVerificationToken: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one replacement winner, got %d", wins.Load())
	}
	got, _ := s.FindByID(ctx, a.ID)
	resolved, err := s.FindByVerificationToken(ctx, got.VerificationTokenHash)
	if err != nil || resolved.ID != a.ID {
		t.Fatalf("winning digest %q does not resolve: %v", got.VerificationTokenHash, err)
	}
}

func testUpdatePasswordHash(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "ann@x.com", "vh-1")

	if err := s.UpdatePasswordHash(ctx, a.ID, "$2a$12$rehashed"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	got, _ := s.FindByEmail(ctx, "ann@x.com")
	if got.PasswordHash != "$2a$12$rehashed" {
		t.Fatalf("password hash = %q", got.PasswordHash)
	}
	if got.VerificationTokenHash != "vh-1" || got.Verified {
		t.Fatal("password update touched verification state")
	}

	if err := s.UpdatePasswordHash(ctx, "00000000-0000-0000-0000-000000000000", "x"); err != nil {
		t.Fatalf("unknown id must be a no-op, got %v", err)
	}
}

func testDelete(t *testing.T, s account.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "ann@x.com", "vh-1")

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.FindByID(ctx, a.ID); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("deleted account still found: %v", err)
	}
	if _, err := s.FindByVerificationToken(ctx, "vh-1"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("deleted account's token still resolvable: %v", err)
	}
	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("second Delete must be a no-op: %v", err)
	}

	// email is free again
	mustCreate(t, s, "ann@x.com", "vh-2")
}
