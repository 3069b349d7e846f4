package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/CodeMonkeyCybersecurity/idlscan/internal/logger"
)

// Migration represents a single database migration
type Migration struct {
	Version     int
	Description string
	Up          string // SQL to apply migration
	Down        string // SQL to rollback migration (optional)
}

// MigrationRunner handles database migrations
type MigrationRunner struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sqlx.DB, log *logger.Logger) *MigrationRunner {
	return &MigrationRunner{
		db:  db,
		log: log,
	}
}

// GetAllMigrations returns all available migrations in order. The SQL is kept to the subset
// shared by sqlite3 and postgres.
func GetAllMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create scan_reports table",
			Up: `
				CREATE TABLE IF NOT EXISTS scan_reports (
					id TEXT PRIMARY KEY,
					program TEXT NOT NULL,
					verdict TEXT NOT NULL,
					severity TEXT NOT NULL,
					summary TEXT NOT NULL,
					loader TEXT NOT NULL,
					binary_size BIGINT NOT NULL,
					binary_sha256 TEXT NOT NULL,
					binary_mmh3 TEXT NOT NULL,
					has_anchor_idl BOOLEAN NOT NULL,
					has_idl_create_account BOOLEAN NOT NULL,
					derived BOOLEAN NOT NULL,
					signer TEXT,
					bump INTEGER NOT NULL,
					idl_account TEXT,
					account_exists BOOLEAN NOT NULL,
					account_owner TEXT,
					account_lamports BIGINT NOT NULL,
					account_data_len BIGINT NOT NULL,
					account_executable BOOLEAN NOT NULL,
					owner_matches_program BOOLEAN NOT NULL,
					started_at TIMESTAMP NOT NULL,
					completed_at TIMESTAMP NOT NULL
				);
			`,
			Down: `DROP TABLE IF EXISTS scan_reports;`,
		},
		{
			Version:     2,
			Description: "Index scan_reports by program and verdict",
			Up: `
				CREATE INDEX IF NOT EXISTS idx_scan_reports_program ON scan_reports(program);
				CREATE INDEX IF NOT EXISTS idx_scan_reports_verdict ON scan_reports(verdict);
				CREATE INDEX IF NOT EXISTS idx_scan_reports_completed_at ON scan_reports(completed_at);
			`,
			Down: `
				DROP INDEX IF EXISTS idx_scan_reports_program;
				DROP INDEX IF EXISTS idx_scan_reports_verdict;
				DROP INDEX IF EXISTS idx_scan_reports_completed_at;
			`,
		},
	}
}

// ensureMigrationsTable creates the migrations tracking table if it doesn't exist
func (mr *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			checksum TEXT NOT NULL
		);
	`

	if _, err := mr.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	return nil
}

// getAppliedMigrations returns a map of applied migration versions
func (mr *MigrationRunner) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := mr.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// RunMigrations applies all pending migrations
func (mr *MigrationRunner) RunMigrations(ctx context.Context) error {
	if err := mr.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	appliedMigrations, err := mr.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	allMigrations := GetAllMigrations()
	sort.Slice(allMigrations, func(i, j int) bool {
		return allMigrations[i].Version < allMigrations[j].Version
	})

	pendingCount := 0
	for _, migration := range allMigrations {
		if !appliedMigrations[migration.Version] {
			pendingCount++
		}
	}

	if pendingCount == 0 {
		mr.log.Debugw("Database schema is up to date",
			"component", "migrations",
			"latest_version", allMigrations[len(allMigrations)-1].Version,
		)
		return nil
	}

	mr.log.Infow("Found pending migrations",
		"component", "migrations",
		"pending_count", pendingCount,
	)

	for _, migration := range allMigrations {
		if appliedMigrations[migration.Version] {
			continue
		}

		if err := mr.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// applyMigration applies a single migration
func (mr *MigrationRunner) applyMigration(ctx context.Context, migration Migration) error {
	mr.log.Infow("Applying migration",
		"component", "migrations",
		"version", migration.Version,
		"description", migration.Description,
	)

	tx, err := mr.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		mr.log.Errorw("Migration failed",
			"component", "migrations",
			"version", migration.Version,
			"error", err,
		)
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	checksum := fmt.Sprintf("%x", migration.Version)
	recordQuery := tx.Rebind(`
		INSERT INTO schema_migrations (version, description, applied_at, checksum)
		VALUES (?, ?, ?, ?)
	`)
	if _, err := tx.ExecContext(ctx, recordQuery, migration.Version, migration.Description, time.Now().UTC(), checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// MigrationStatus summarises the schema_migrations table against the known migrations.
type MigrationStatus struct {
	CurrentVersion int `json:"current_version" yaml:"current_version"`
	LatestVersion  int `json:"latest_version" yaml:"latest_version"`
	Applied        int `json:"applied_count" yaml:"applied_count"`
	Pending        int `json:"pending_count" yaml:"pending_count"`
}

func (s MigrationStatus) UpToDate() bool {
	return s.Pending == 0
}

// GetMigrationStatus returns the current migration status
func (mr *MigrationRunner) GetMigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	if err := mr.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	appliedMigrations, err := mr.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	status := &MigrationStatus{Applied: len(appliedMigrations)}
	for _, migration := range GetAllMigrations() {
		if migration.Version > status.LatestVersion {
			status.LatestVersion = migration.Version
		}
		if !appliedMigrations[migration.Version] {
			status.Pending++
		}
	}
	for version := range appliedMigrations {
		if version > status.CurrentVersion {
			status.CurrentVersion = version
		}
	}

	return status, nil
}

// RollbackMigration rolls back one applied migration
func (mr *MigrationRunner) RollbackMigration(ctx context.Context, version int) error {
	mr.log.Warnw("Rolling back migration",
		"component", "migrations",
		"version", version,
	)

	var migration *Migration
	for _, m := range GetAllMigrations() {
		if m.Version == version {
			migration = &m
			break
		}
	}

	if migration == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	if migration.Down == "" {
		return fmt.Errorf("migration version %d has no rollback SQL", version)
	}

	if err := mr.ensureMigrationsTable(ctx); err != nil {
		return err
	}
	applied, err := mr.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if !applied[version] {
		return fmt.Errorf("migration version %d is not applied", version)
	}

	tx, err := mr.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM schema_migrations WHERE version = ?"), version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	return nil
}
