package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/learnershield/learner-data-gateway/internal/testutil/containers"
)

// TestDB provides a disposable PostgreSQL database with the gateway
// schema applied. Each call starts its own container, so tests using it
// are fully isolated from one another.
type TestDB struct {
	t         *testing.T
	db        *sql.DB
	container *containers.PostgresContainer
	connStr   string
}

// NewTestDB starts a PostgreSQL container and applies all migrations.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := containers.NewPostgresContainer(ctx)
	require.NoError(t, err, "failed to start postgres container")

	db, err := sql.Open("postgres", container.ConnectionString)
	require.NoError(t, err)

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	require.NoError(t, db.Ping())

	tdb := &TestDB{
		t:         t,
		db:        db,
		container: container,
		connStr:   container.ConnectionString,
	}

	t.Cleanup(func() {
		db.Close()
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	tdb.ExecuteMigrations()

	return tdb
}

// DB returns the underlying database connection
func (tdb *TestDB) DB() *sql.DB {
	return tdb.db
}

// ConnectionString returns a DSN usable by pgx pools and lib/pq alike.
func (tdb *TestDB) ConnectionString() string {
	return tdb.connStr
}

// ExecuteMigrations applies every file under migrations/ in filename
// order. The schema under test is the schema that ships.
func (tdb *TestDB) ExecuteMigrations() {
	tdb.t.Helper()

	files, err := filepath.Glob(filepath.Join(repoRoot(tdb.t), "migrations", "*.sql"))
	require.NoError(tdb.t, err)
	require.NotEmpty(tdb.t, files, "no migration files found")
	sort.Strings(files)

	ctx := context.Background()
	for _, file := range files {
		content, err := os.ReadFile(file)
		require.NoError(tdb.t, err)
		_, err = tdb.db.ExecContext(ctx, string(content))
		require.NoError(tdb.t, err, "migration %s failed", filepath.Base(file))
	}
}

// TruncateTables truncates all tables for test isolation
func (tdb *TestDB) TruncateTables() {
	tdb.t.Helper()

	ctx := context.Background()
	tables := []string{
		"audit_events",
		"anomaly_records",
		"violations",
		"volume_tracking",
		"rate_limit_config",
		"behavioral_baseline",
		"client_reputation",
		"access_log",
	}

	for _, table := range tables {
		_, err := tdb.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		require.NoError(tdb.t, err)
	}
}

// AssertRowCount asserts the number of rows in a table
func (tdb *TestDB) AssertRowCount(table string, expected int) {
	tdb.t.Helper()

	var count int
	err := tdb.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	require.NoError(tdb.t, err)
	require.Equal(tdb.t, expected, count, "expected %d rows in %s, got %d", expected, table, count)
}

// repoRoot resolves the repository root from this source file's location
// so migrations are found regardless of the test's working directory.
func repoRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok, "failed to resolve caller location")
	return filepath.Join(filepath.Dir(thisFile), "..", "..")
}
