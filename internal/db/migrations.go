package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/aliuyar1234/seatdesk/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrationLockID serializes migration runs across instances booting at
// the same time.
const migrationLockID int64 = 0x5ea7de5c

// MigrationStatus lists applied and pending migration files in order.
type MigrationStatus struct {
	Applied []string
	Pending []string
}

// RunMigrations applies every pending migration. Each file runs in its own
// transaction together with its schema_migrations row.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	return runMigrations(ctx, pool, migrations.FS)
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	if err := createMigrationsTable(ctx, conn.Conn()); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	status, err := migrationStatus(ctx, conn.Conn(), fsys)
	if err != nil {
		return err
	}
	if len(status.Pending) == 0 {
		log.Info().Int("applied", len(status.Applied)).Msg("Database schema is up to date")
		return nil
	}

	for _, name := range status.Pending {
		log.Info().Str("migration", name).Msg("Applying migration")
		if err := applyMigration(ctx, conn.Conn(), fsys, name); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}

	log.Info().Int("applied", len(status.Pending)).Msg("Migrations applied")
	return nil
}

// Status compares the embedded migrations with the ones recorded in the
// database without applying anything.
func Status(ctx context.Context, pool *pgxpool.Pool) (MigrationStatus, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if err := createMigrationsTable(ctx, conn.Conn()); err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to create migrations table: %w", err)
	}
	return migrationStatus(ctx, conn.Conn(), migrations.FS)
}

func createMigrationsTable(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func migrationFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration files: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func migrationStatus(ctx context.Context, conn *pgx.Conn, fsys fs.FS) (MigrationStatus, error) {
	names, err := migrationFiles(fsys)
	if err != nil {
		return MigrationStatus{}, err
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	var st MigrationStatus
	for _, name := range names {
		if done[name] {
			st.Applied = append(st.Applied, name)
		} else {
			st.Pending = append(st.Pending, name)
		}
	}
	return st, nil
}

func applyMigration(ctx context.Context, conn *pgx.Conn, fsys fs.FS, name string) error {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Multi-statement files need the simple query protocol.
	if _, err := tx.Conn().PgConn().Exec(ctx, string(content)).ReadAll(); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
