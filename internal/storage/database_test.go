package storage

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harmoni/internal/config"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, Migrate(db, "sqlite3"))
	require.NoError(t, Migrate(db, "sqlite"))

	for _, table := range []string{"users", "screening_responses"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestMigrateRejectsUnknownDriver(t *testing.T) {
	db := openMemory(t)
	require.Error(t, Migrate(db, "oracle"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
}

func TestUniqueViolationDetected(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, Migrate(db, "sqlite3"))
	insert := `INSERT INTO users (id, identity, created_at, updated_at) VALUES (?, ?, datetime('now'), datetime('now'))`
	_, err := db.Exec(insert, "u1", "same")
	require.NoError(t, err)
	_, err = db.Exec(insert, "u2", "same")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(nil))
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b = ?`
	assert.Equal(t, q, Rebind("sqlite3", q))
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = $2`, Rebind("postgres", q))
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(config.DatabaseConfig{Host: "db", Username: "app", Password: "p@ss", DBName: "harmoni", Params: "sslmode=disable"})
	assert.Equal(t, "postgres://app:p%40ss@db:5432/harmoni?sslmode=disable", dsn)
}
