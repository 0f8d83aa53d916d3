package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:test.db")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_CONN_MAX_LIFETIME", "10m")

	cfg := ConnectionConfigFromEnv()

	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "file:test.db", cfg.DSN)
	assert.Equal(t, 7, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 10*time.Minute, cfg.ConnMaxLifetime)
}

func TestConnectionConfig_Validate(t *testing.T) {
	valid := DefaultConnectionConfig()
	valid.DSN = "postgres://localhost/app"

	tests := []struct {
		name    string
		mutate  func(*ConnectionConfig)
		wantErr bool
	}{
		{"valid", func(*ConnectionConfig) {}, false},
		{"sqlite", func(c *ConnectionConfig) { c.Driver = DriverSQLite }, false},
		{"unknown driver", func(c *ConnectionConfig) { c.Driver = "mysql" }, true},
		{"missing dsn", func(c *ConnectionConfig) { c.DSN = "" }, true},
		{"zero pool", func(c *ConnectionConfig) { c.MaxOpenConns = 0 }, true},
		{"idle above open", func(c *ConnectionConfig) { c.MaxIdleConns = 100 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), ConnectionConfig{Driver: "mysql", DSN: "x", MaxOpenConns: 1, MaxIdleConns: 1})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestOpen_SQLiteAndMigrate(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConnectionConfig()
	cfg.Driver = DriverSQLite
	cfg.DSN = "file:" + t.TempDir() + "/users.db"

	db, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)

	require.NoError(t, MigrateUp(ctx, db, DriverSQLite))
	require.NoError(t, MigrateUp(ctx, db, DriverSQLite), "migration must be idempotent")

	_, err = db.ExecContext(ctx, `INSERT INTO users (email) VALUES (?)`, "dev@example.com")
	require.NoError(t, err)

	var requests, tokens int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT requests_count, token_usage FROM users WHERE email = ?`, "dev@example.com").Scan(&requests, &tokens))
	assert.Zero(t, requests)
	assert.Zero(t, tokens)
}

func TestMigrateUp_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_users_token_usage").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, MigrateUp(context.Background(), db, DriverPostgres))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUp_UnknownDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.ErrorIs(t, MigrateUp(context.Background(), db, "oracle"), ErrUnsupportedDriver)
}
