package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const ledgerImage = "postgres:16-alpine"

// SetupTestDB starts a throwaway Postgres, applies every up migration in one
// transaction and checks the sequence counter starts at zero.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, ledgerImage,
		postgres.WithDatabase("fund_ledger_test"),
		postgres.WithUsername("ledger"),
		postgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "start ledger postgres")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate ledger postgres: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	applyMigrations(t, db, migrationFiles(t))

	var seq int64
	require.NoError(t, db.QueryRow(`SELECT current_seq FROM ledger_sequence`).Scan(&seq))
	require.Zero(t, seq, "fresh ledger must start at seq 0")

	return db
}

func applyMigrations(t *testing.T, db *sql.DB, files []string) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	for _, f := range files {
		body, err := os.ReadFile(f)
		require.NoError(t, err, "read %s", filepath.Base(f))
		_, err = tx.Exec(string(body))
		require.NoError(t, err, "apply %s", filepath.Base(f))
	}
	require.NoError(t, tx.Commit())
}

// migrationFiles finds the repo's migrations directory by walking up from
// the package under test and returns its up scripts in apply order.
func migrationFiles(t *testing.T) []string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)
	for range 10 {
		files, _ := filepath.Glob(filepath.Join(dir, "migrations", "*.up.sql"))
		if len(files) > 0 {
			sort.Strings(files)
			return files
		}
		dir = filepath.Dir(dir)
	}
	t.Fatal("no migrations directory above the test package")
	return nil
}
