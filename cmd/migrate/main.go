// cmd/migrate applies the numbered SQL files under migrations/ to the
// gateway's Postgres schema. Applied migrations are recorded in
// schema_migrations by id; the id is the 14-digit UTC timestamp prefix
// of the filename, so lexical order is apply order.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/learnershield/learner-data-gateway/internal/domain/errors"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/config"
	"github.com/learnershield/learner-data-gateway/internal/infrastructure/telemetry"
)

const (
	migrationsTable = "schema_migrations"
	connectTimeout  = 10 * time.Second
)

// Filenames must look like 20250903101500_initial_schema.sql. Anything
// else in the migrations directory is a mistake, not data to skip over.
var (
	filePattern = regexp.MustCompile(`^(\d{14})_([a-z][a-z0-9_]*)\.sql$`)
	namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

type migration struct {
	ID   string
	File string
}

type appliedMigration struct {
	migration
	AppliedAt time.Time
}

func main() {
	var (
		action = flag.String("action", "up", "up, down, status, or create")
		name   = flag.String("name", "", "migration name (create only)")
		steps  = flag.Int("steps", 0, "number of migrations to run, 0 means all")
		dir    = flag.String("dir", "migrations", "migrations directory")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(*action, *name, *steps, *dir, cfg, logger); err != nil {
		logger.Error("migration failed", zap.String("action", *action), zap.Error(err))
		os.Exit(1)
	}
}

func run(action, name string, steps int, dir string, cfg *config.Config, logger *zap.Logger) error {
	m := &migrator{dir: dir, logger: logger}

	// create never touches the database.
	if action == "create" {
		file, err := m.Create(name, time.Now().UTC())
		if err != nil {
			return err
		}
		logger.Info("created migration", zap.String("file", file))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return errors.NewDataUnavailableError("postgres", "migration target unreachable").WithCause(err)
	}
	m.db = db

	switch action {
	case "up":
		return m.Up(context.Background(), steps)
	case "down":
		return m.Down(context.Background(), steps)
	case "status":
		return m.Status(context.Background())
	default:
		return errors.NewValidationError("UNKNOWN_ACTION",
			fmt.Sprintf("unknown migration action %q", action))
	}
}

type migrator struct {
	db     *sql.DB
	dir    string
	logger *zap.Logger
}

// parseMigrationFile validates a filename against the naming scheme and
// extracts its id.
func parseMigrationFile(name string) (migration, error) {
	parts := filePattern.FindStringSubmatch(name)
	if parts == nil {
		return migration{}, errors.NewIntegrityError("migration",
			fmt.Sprintf("%q does not match <14-digit timestamp>_<snake_case_name>.sql", name))
	}
	return migration{ID: parts[1] + "_" + parts[2], File: name}, nil
}

// available lists the migration files on disk in apply order. A file
// that breaks the naming scheme aborts the run.
func (m *migrator) available() ([]migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory %s: %w", m.dir, err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		mig, err := parseMigrationFile(entry.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, mig)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].ID < migrations[j].ID })
	return migrations, nil
}

func (m *migrator) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         VARCHAR(255) PRIMARY KEY,
			filename   VARCHAR(255) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, migrationsTable)

	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure %s: %w", migrationsTable, err)
	}
	return nil
}

func (m *migrator) applied(ctx context.Context) (map[string]appliedMigration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT id, filename, applied_at FROM %s", migrationsTable)
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewDataUnavailableError(migrationsTable, "applied migrations unreadable").WithCause(err)
	}
	defer rows.Close()

	applied := make(map[string]appliedMigration)
	for rows.Next() {
		var a appliedMigration
		if err := rows.Scan(&a.ID, &a.File, &a.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		applied[a.ID] = a
	}
	return applied, rows.Err()
}

// plan filters the on-disk migrations down to the unapplied ones,
// preserving apply order.
func plan(available []migration, applied map[string]appliedMigration) []migration {
	var pending []migration
	for _, mig := range available {
		if _, done := applied[mig.ID]; !done {
			pending = append(pending, mig)
		}
	}
	return pending
}

func (m *migrator) Up(ctx context.Context, steps int) error {
	available, err := m.available()
	if err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	pending := plan(available, applied)
	if len(pending) == 0 {
		m.logger.Info("schema is current, no pending migrations")
		return nil
	}
	if steps > 0 && steps < len(pending) {
		pending = pending[:steps]
	}

	for _, mig := range pending {
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("apply %s: %w", mig.File, err)
		}
		m.logger.Info("applied migration", zap.String("id", mig.ID))
	}

	m.logger.Info("migrations complete", zap.Int("applied", len(pending)))
	return nil
}

// apply runs one migration file and records it in the same transaction,
// so a failed statement leaves no applied-but-broken record behind.
func (m *migrator) apply(ctx context.Context, mig migration) error {
	content, err := os.ReadFile(filepath.Join(m.dir, mig.File))
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("execute migration sql: %w", err)
	}

	record := fmt.Sprintf("INSERT INTO %s (id, filename) VALUES ($1, $2)", migrationsTable)
	if _, err := tx.ExecContext(ctx, record, mig.ID, mig.File); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}

// Down unwinds applied migrations in reverse id order. The gateway's
// migrations carry no down SQL, so this only drops the record; the
// operator owns the schema cleanup.
func (m *migrator) Down(ctx context.Context, steps int) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		m.logger.Info("nothing to roll back")
		return nil
	}

	rollback := make([]appliedMigration, 0, len(applied))
	for _, a := range applied {
		rollback = append(rollback, a)
	}
	sort.Slice(rollback, func(i, j int) bool { return rollback[i].ID > rollback[j].ID })
	if steps > 0 && steps < len(rollback) {
		rollback = rollback[:steps]
	}

	remove := fmt.Sprintf("DELETE FROM %s WHERE id = $1", migrationsTable)
	for _, a := range rollback {
		if _, err := m.db.ExecContext(ctx, remove, a.ID); err != nil {
			return fmt.Errorf("remove record for %s: %w", a.File, err)
		}
		m.logger.Warn("rolled back migration record, schema objects need manual cleanup",
			zap.String("id", a.ID))
	}

	m.logger.Info("rollback complete", zap.Int("rolled_back", len(rollback)))
	return nil
}

func (m *migrator) Status(ctx context.Context) error {
	available, err := m.available()
	if err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Applied migrations: %d\n", len(applied))
	for _, mig := range available {
		if a, done := applied[mig.ID]; done {
			fmt.Printf("  %s  applied %s\n", mig.ID, a.AppliedAt.Format(time.RFC3339))
		}
	}

	pending := plan(available, applied)
	fmt.Printf("\nPending migrations: %d\n", len(pending))
	for _, mig := range pending {
		fmt.Printf("  %s\n", mig.ID)
	}
	return nil
}

// Create writes an empty migration stub named after the naming scheme
// the loader enforces.
func (m *migrator) Create(name string, now time.Time) (string, error) {
	if !namePattern.MatchString(name) {
		return "", errors.NewValidationError("INVALID_MIGRATION_NAME",
			fmt.Sprintf("migration name %q must be snake_case starting with a letter", name))
	}

	file := fmt.Sprintf("%s_%s.sql", now.Format("20060102150405"), name)
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations directory: %w", err)
	}

	stub := fmt.Sprintf("-- %s\n-- Created %s.\n\n", name, now.Format(time.RFC3339))
	path := filepath.Join(m.dir, file)
	if err := os.WriteFile(path, []byte(stub), 0o644); err != nil {
		return "", fmt.Errorf("write migration stub: %w", err)
	}
	return path, nil
}
