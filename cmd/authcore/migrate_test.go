package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls   []string
	version uint
	dirty   bool
	err     error
	closed  bool
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.err
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	return f.err
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	f.calls = append(f.calls, "version")
	return f.version, f.dirty, f.err
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func useFakeMigrator(t *testing.T, f *fakeMigrator) *string {
	t.Helper()
	var gotURL string
	orig := newMigrator
	newMigrator = func(databaseURL string) (migrator, error) {
		gotURL = databaseURL
		return f, nil
	}
	t.Cleanup(func() { newMigrator = orig })
	return &gotURL
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateUp(t *testing.T) {
	t.Setenv("AUTHCORE_DATABASE_URL", "postgres://u:p@localhost/authcore")
	f := &fakeMigrator{}
	gotURL := useFakeMigrator(t, f)

	out, err := runCLI(t, "migrate", "up")
	require.NoError(t, err)

	assert.Equal(t, []string{"up"}, f.calls)
	assert.True(t, f.closed)
	assert.Equal(t, "postgres://u:p@localhost/authcore", *gotURL)
	assert.Contains(t, out, "Migrations completed successfully")
}

func TestMigrateDown(t *testing.T) {
	t.Setenv("AUTHCORE_DATABASE_URL", "postgres://localhost/authcore")
	f := &fakeMigrator{}
	useFakeMigrator(t, f)

	out, err := runCLI(t, "migrate", "down")
	require.NoError(t, err)
	assert.Equal(t, []string{"down"}, f.calls)
	assert.Contains(t, out, "Rollback completed successfully")
}

func TestMigrateVersion(t *testing.T) {
	t.Setenv("AUTHCORE_DATABASE_URL", "postgres://localhost/authcore")

	tests := []struct {
		name  string
		dirty bool
		want  string
	}{
		{name: "clean", want: "version 1\n"},
		{name: "dirty", dirty: true, want: "version 1 (dirty)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useFakeMigrator(t, &fakeMigrator{version: 1, dirty: tt.dirty})
			out, err := runCLI(t, "migrate", "version")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestMigrateErrors(t *testing.T) {
	t.Run("missing database url", func(t *testing.T) {
		t.Setenv("AUTHCORE_DATABASE_URL", "")
		useFakeMigrator(t, &fakeMigrator{})
		_, err := runCLI(t, "migrate", "up")
		require.Error(t, err)
		assert.Equal(t, "CONFIG_INVALID", oopsCode(t, err))
	})

	t.Run("migration failure", func(t *testing.T) {
		t.Setenv("AUTHCORE_DATABASE_URL", "postgres://localhost/authcore")
		f := &fakeMigrator{err: errors.New("dirty database")}
		useFakeMigrator(t, f)
		_, err := runCLI(t, "migrate", "up")
		require.Error(t, err)
		assert.Equal(t, "MIGRATION_FAILED", oopsCode(t, err))
		assert.True(t, f.closed)
	})

	t.Run("open failure", func(t *testing.T) {
		t.Setenv("AUTHCORE_DATABASE_URL", "postgres://localhost/authcore")
		orig := newMigrator
		newMigrator = func(string) (migrator, error) { return nil, errors.New("bad url") }
		t.Cleanup(func() { newMigrator = orig })
		_, err := runCLI(t, "migrate", "down")
		require.Error(t, err)
		assert.Equal(t, "DB_CONNECT_FAILED", oopsCode(t, err))
	})
}
