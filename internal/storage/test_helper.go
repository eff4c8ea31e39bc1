//go:build integration

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SetupTestDB connects to the local integration test database and runs
// migrations against it. The database (cardcore_test) is created by
// docker-compose.
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := Config{
		Host:            "localhost",
		Port:            "5432",
		User:            "postgres",
		Password:        "postgres",
		DB:              "cardcore_test",
		SslMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5,
		MaxConnIdleTime: 1,
	}

	db, err := NewDB(cfg)
	require.NoError(t, err, "failed to connect to test database")

	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	projectRoot := filepath.Join(dir, "../..")
	migrationsPath := filepath.Join(projectRoot, "migrations")
	db.migrationPath = "file://" + migrationsPath

	require.NoError(t, db.RunMigrations(), "failed to run migrations on test database")

	return db
}

// CleanupTestDB truncates every table touched by the pipelines between
// tests. Each TRUNCATE uses CASCADE, which also empties the tables that
// reference the truncated one, so the list order does not have to follow
// the foreign keys.
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tables := []string{
		"ledger_entries",
		"holds",
		"authorizations",
		"processor_transaction_mappings",
		"bank_account_mappings",
		"cards",
	}
	for _, table := range tables {
		query := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)
		_, err := db.pool.Exec(ctx, query)
		require.NoError(t, err, "failed to truncate table %s", table)
	}
}
