// Package database keeps a history of scan reports in sqlite3 or postgres.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CodeMonkeyCybersecurity/idlscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/core"
	"github.com/CodeMonkeyCybersecurity/idlscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

// ErrNotConfigured is returned by NewStore when no DSN is set.
var ErrNotConfigured = errors.New("scan history database not configured")

// Store is the sqlx-backed core.ResultStore.
type Store struct {
	db     *sqlx.DB
	cfg    config.DatabaseConfig
	logger *logger.Logger
}

var _ core.ResultStore = (*Store)(nil)

type reportRow struct {
	ID                  string         `db:"id"`
	Program             string         `db:"program"`
	Verdict             string         `db:"verdict"`
	Severity            string         `db:"severity"`
	Summary             string         `db:"summary"`
	Loader              string         `db:"loader"`
	BinarySize          int64          `db:"binary_size"`
	BinarySHA256        string         `db:"binary_sha256"`
	BinaryMMH3          string         `db:"binary_mmh3"`
	HasAnchorIDL        bool           `db:"has_anchor_idl"`
	HasIdlCreateAccount bool           `db:"has_idl_create_account"`
	Derived             bool           `db:"derived"`
	Signer              sql.NullString `db:"signer"`
	Bump                int            `db:"bump"`
	IDLAccount          sql.NullString `db:"idl_account"`
	AccountExists       bool           `db:"account_exists"`
	AccountOwner        sql.NullString `db:"account_owner"`
	AccountLamports     int64          `db:"account_lamports"`
	AccountDataLen      int64          `db:"account_data_len"`
	AccountExecutable   bool           `db:"account_executable"`
	OwnerMatchesProgram bool           `db:"owner_matches_program"`
	StartedAt           time.Time      `db:"started_at"`
	CompletedAt         time.Time      `db:"completed_at"`
}

const reportColumns = `id, program, verdict, severity, summary, loader, binary_size, binary_sha256,
	binary_mmh3, has_anchor_idl, has_idl_create_account, derived, signer, bump, idl_account,
	account_exists, account_owner, account_lamports, account_data_len, account_executable,
	owner_matches_program, started_at, completed_at`

// NewStore connects to the configured database and brings its schema up to date.
func NewStore(cfg config.DatabaseConfig, log *logger.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, ErrNotConfigured
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("database")

	ctx, span := log.StartOperation(context.Background(), "database.NewStore",
		"driver", cfg.Driver,
		"dsn_masked", MaskDSN(cfg.DSN),
	)
	start := time.Now()
	var err error
	defer func() {
		log.FinishOperation(ctx, span, "database.NewStore", start, err)
	}()

	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	store := &Store{
		db:     db,
		cfg:    cfg,
		logger: log,
	}

	if err = NewMigrationRunner(db, log).RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.LogDuration(ctx, "database.Connect", start, "driver", cfg.Driver)
	return store, nil
}

// Open connects to the configured database without touching its schema. Maintenance commands
// use it to inspect or roll back migrations; NewStore migrates on top of it.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, ErrNotConfigured
	}
	db, err := sqlx.Connect(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// MaskDSN masks sensitive information in DSN for logging and display
func MaskDSN(dsn string) string {
	if len(dsn) > 10 {
		return dsn[:5] + "***" + dsn[len(dsn)-5:]
	}
	return "***"
}

func (s *Store) SaveReport(ctx context.Context, report *types.ScanReport) error {
	if report == nil {
		return fmt.Errorf("nil report")
	}
	start := time.Now()

	query := `
		INSERT INTO scan_reports (` + reportColumns + `) VALUES (
			:id, :program, :verdict, :severity, :summary, :loader, :binary_size, :binary_sha256,
			:binary_mmh3, :has_anchor_idl, :has_idl_create_account, :derived, :signer, :bump, :idl_account,
			:account_exists, :account_owner, :account_lamports, :account_data_len, :account_executable,
			:owner_matches_program, :started_at, :completed_at
		)
	`

	result, err := s.db.NamedExecContext(ctx, query, toRow(report))
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.ID, err)
	}

	rowsAffected, _ := result.RowsAffected()
	s.logger.LogDatabaseOperation(ctx, "INSERT", "scan_reports", rowsAffected, time.Since(start),
		"scan_id", report.ID,
		"program", report.Program.String(),
	)
	return nil
}

// ListReports returns stored reports, newest first.
func (s *Store) ListReports(ctx context.Context, filter core.ReportFilter) ([]*types.ScanReport, error) {
	start := time.Now()
	query := `SELECT ` + reportColumns + ` FROM scan_reports WHERE 1=1`
	var args []interface{}

	if filter.Program != "" {
		query += " AND program = ?"
		args = append(args, filter.Program)
	}
	if filter.Verdict != "" {
		query += " AND verdict = ?"
		args = append(args, string(filter.Verdict))
	}

	query += " ORDER BY completed_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []reportRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	reports := make([]*types.ScanReport, 0, len(rows))
	for i := range rows {
		report, err := fromRow(rows[i])
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	s.logger.LogDatabaseOperation(ctx, "SELECT", "scan_reports", int64(len(reports)), time.Since(start))
	return reports, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullAddress(a address.Address, valid bool) sql.NullString {
	if !valid {
		return sql.NullString{}
	}
	return sql.NullString{String: a.String(), Valid: true}
}

func toRow(r *types.ScanReport) reportRow {
	row := reportRow{
		ID:                  r.ID,
		Program:             r.Program.String(),
		Verdict:             string(r.Verdict),
		Severity:            string(r.Verdict.Severity()),
		Summary:             r.Summary,
		Loader:              string(r.Loader),
		BinarySize:          int64(r.BinarySize),
		BinarySHA256:        r.BinarySHA256,
		BinaryMMH3:          r.BinaryMMH3,
		HasAnchorIDL:        r.HasAnchorIDL,
		HasIdlCreateAccount: r.HasIdlCreateAccount,
		Derived:             r.Derived,
		Signer:              nullAddress(r.Signer, r.Derived),
		Bump:                int(r.Bump),
		IDLAccount:          nullAddress(r.IDLAccount, r.Derived),
		OwnerMatchesProgram: r.OwnerMatchesProgram,
		StartedAt:           r.StartedAt.UTC(),
		CompletedAt:         r.CompletedAt.UTC(),
	}
	if r.Account != nil {
		row.AccountExists = r.Account.Exists
		row.AccountOwner = nullAddress(r.Account.Owner, true)
		row.AccountLamports = int64(r.Account.Lamports)
		row.AccountDataLen = int64(r.Account.DataLen)
		row.AccountExecutable = r.Account.Executable
	}
	return row
}

func parseNullAddress(ns sql.NullString) (address.Address, error) {
	if !ns.Valid {
		return address.Address{}, nil
	}
	return address.Parse(ns.String)
}

func fromRow(row reportRow) (*types.ScanReport, error) {
	program, err := address.Parse(row.Program)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", row.ID, err)
	}
	signer, err := parseNullAddress(row.Signer)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", row.ID, err)
	}
	idl, err := parseNullAddress(row.IDLAccount)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", row.ID, err)
	}

	report := &types.ScanReport{
		ID:                  row.ID,
		Program:             program,
		Verdict:             types.Verdict(row.Verdict),
		Summary:             row.Summary,
		BinarySize:          int(row.BinarySize),
		BinarySHA256:        row.BinarySHA256,
		BinaryMMH3:          row.BinaryMMH3,
		Loader:              types.Loader(row.Loader),
		HasAnchorIDL:        row.HasAnchorIDL,
		HasIdlCreateAccount: row.HasIdlCreateAccount,
		Derived:             row.Derived,
		Signer:              signer,
		Bump:                uint8(row.Bump),
		IDLAccount:          idl,
		OwnerMatchesProgram: row.OwnerMatchesProgram,
		StartedAt:           row.StartedAt,
		CompletedAt:         row.CompletedAt,
	}

	if row.AccountExists {
		owner, err := parseNullAddress(row.AccountOwner)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", row.ID, err)
		}
		report.Account = &types.AccountRecord{
			Address:    idl,
			Exists:     true,
			Owner:      owner,
			Lamports:   uint64(row.AccountLamports),
			DataLen:    int(row.AccountDataLen),
			Executable: row.AccountExecutable,
		}
	}

	return report, nil
}
