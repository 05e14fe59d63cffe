package sqlite

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMigrator struct {
	upErr    error
	srcErr   error
	dbErr    error
	upCalled bool
}

func (m *stubMigrator) Up() error {
	m.upCalled = true
	return m.upErr
}

func (m *stubMigrator) Close() (error, error) { return m.srcErr, m.dbErr }

func stubEngine(m *stubMigrator) migrationEngine {
	return func(string) (migrator, error) { return m, nil }
}

func TestRunMigrations(t *testing.T) {
	m := &stubMigrator{}
	require.NoError(t, runMigrations("ignored", stubEngine(m)))
	assert.True(t, m.upCalled)
}

func TestRunMigrationsNoChange(t *testing.T) {
	m := &stubMigrator{upErr: migrate.ErrNoChange}
	assert.NoError(t, runMigrations("ignored", stubEngine(m)))
}

func TestRunMigrationsUpFailure(t *testing.T) {
	boom := errors.New("disk full")
	m := &stubMigrator{upErr: boom}
	err := runMigrations("ignored", stubEngine(m))
	assert.ErrorIs(t, err, boom)
}

func TestRunMigrationsCloseFailure(t *testing.T) {
	m := &stubMigrator{dbErr: errors.New("close failed")}
	assert.Error(t, runMigrations("ignored", stubEngine(m)))
}

func TestRunMigrationsEngineFailure(t *testing.T) {
	boom := errors.New("bad dsn")
	err := runMigrations("ignored", func(string) (migrator, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}
