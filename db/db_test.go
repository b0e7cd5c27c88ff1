package db

import (
	"context"
	"testing"

	"github.com/pressly/goose/v3/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"search-analytics-node/config"
)

func TestDriverFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "pgx", DriverFor("postgres://u:p@localhost:5432/gsc"))
	require.Equal(t, "libsql", DriverFor("libsql://gsc.turso.io"))
	require.Equal(t, "libsql", DriverFor("https://gsc.turso.io"))
	require.Equal(t, "sqlite", DriverFor("search-analytics.db"))
	require.Equal(t, "sqlite", DriverFor(":memory:"))
}

func TestEnsureAuthTokenQuery(t *testing.T) {
	t.Parallel()

	require.Equal(t, "libsql://gsc.turso.io?authToken=tok", ensureAuthTokenQuery("libsql://gsc.turso.io", "tok"))
	require.Equal(t, "libsql://gsc.turso.io?authToken=a", ensureAuthTokenQuery("libsql://gsc.turso.io?authToken=a", "tok"))
	require.Equal(t, "libsql://gsc.turso.io", ensureAuthTokenQuery("libsql://gsc.turso.io", ""))
}

func TestOpen_Disabled(t *testing.T) {
	t.Parallel()

	_, err := Open(config.DBConfig{})
	require.ErrorIs(t, err, ErrDBDisabled)
}

func TestMigrate_UpAndDownOnSQLite(t *testing.T) {
	t.Parallel()

	x, err := Open(config.DBConfig{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = x.Close() })
	require.Equal(t, database.DialectSQLite3, DialectOf(x))

	logger := zap.NewNop().Sugar()
	version, err := Migrate(context.Background(), x, "up", logger)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)

	_, err = x.Exec(`INSERT INTO workflow_credentials (workflow, payload, created_at_ms, updated_at_ms) VALUES (?,?,?,?)`, "wf", "{}", 1, 1)
	require.NoError(t, err)

	version, err = Migrate(context.Background(), x, "down", logger)
	require.NoError(t, err)
	require.Equal(t, int64(0), version)

	_, err = Migrate(context.Background(), x, "sideways", logger)
	require.ErrorContains(t, err, "unknown migrate command")
}

func TestNewDB_AutoMigratesOnStart(t *testing.T) {
	t.Parallel()

	lc := fxtest.NewLifecycle(t)
	cfg := &config.Config{DB: config.DBConfig{DSN: ":memory:", AutoMigrate: true}}

	x, err := NewDB(NewDBParams{Lc: lc, Cfg: cfg, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	require.NotNil(t, x)

	lc.RequireStart()
	defer lc.RequireStop()

	var n int
	require.NoError(t, x.Get(&n, `SELECT COUNT(*) FROM node_runs`))
	require.Zero(t, n)
}

func TestNewDB_DisabledWithoutDSN(t *testing.T) {
	t.Parallel()

	x, err := NewDB(NewDBParams{Lc: fxtest.NewLifecycle(t), Cfg: &config.Config{}, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	require.Nil(t, x)
}
