// Package store persists a manifest of load runs in SQLite: one row
// per run, one row per object outcome. The manifest is diagnostic
// only; the pinned filesystem remains the source of truth for what is
// actually loaded.
//
// The database is opened in WAL mode. The loader is single-threaded,
// so there is no writer contention; WAL is kept for crash recovery.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/loader"
)

//go:embed schema.sql
var schemaSQL string

// Run describes one completed invocation of the loader.
type Run struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    time.Time
	LoaderVersion uint32
	Kernel        bpfload.KernelVersion
	Succeeded     bool
}

// ObjectRow is one persisted object outcome.
type ObjectRow struct {
	Path   string
	Object string
	Prefix string
	// Error is empty for objects that loaded (or were skipped)
	// cleanly.
	Error string
}

// Store is a SQLite-backed run manifest.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	stmtInsertRun    *sql.Stmt
	stmtInsertObject *sql.Stmt
	stmtLastRun      *sql.Stmt
	stmtRunObjects   *sql.Stmt
}

// Open opens (creating if necessary) the manifest database at dbPath.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(dbPath, [][2]string{
		{"journal_mode", "WAL"},
		{"foreign_keys", "1"},
	}))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, log: logger}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("opened manifest database")
	return s, nil
}

func (s *Store) prepareStatements() error {
	var err error

	const sqlInsertRun = `
		INSERT INTO runs (started_at, finished_at, loader_version, kernel_version, succeeded)
		VALUES (?, ?, ?, ?, ?)`
	if s.stmtInsertRun, err = s.db.Prepare(sqlInsertRun); err != nil {
		return fmt.Errorf("prepare InsertRun: %w", err)
	}

	const sqlInsertObject = `
		INSERT INTO run_objects (run_id, path, object, prefix, error)
		VALUES (?, ?, ?, ?, ?)`
	if s.stmtInsertObject, err = s.db.Prepare(sqlInsertObject); err != nil {
		return fmt.Errorf("prepare InsertObject: %w", err)
	}

	const sqlLastRun = `
		SELECT id, started_at, finished_at, loader_version, kernel_version, succeeded
		FROM runs ORDER BY id DESC LIMIT 1`
	if s.stmtLastRun, err = s.db.Prepare(sqlLastRun); err != nil {
		return fmt.Errorf("prepare LastRun: %w", err)
	}

	const sqlRunObjects = `
		SELECT path, object, prefix, COALESCE(error, '')
		FROM run_objects WHERE run_id = ? ORDER BY path`
	if s.stmtRunObjects, err = s.db.Prepare(sqlRunObjects); err != nil {
		return fmt.Errorf("prepare RunObjects: %w", err)
	}

	return nil
}

// RecordRun persists one run and its object outcomes atomically and
// returns the new run id.
func (s *Store) RecordRun(ctx context.Context, run Run, results []loader.ObjectResult) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.StmtContext(ctx, s.stmtInsertRun).ExecContext(ctx,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.LoaderVersion,
		uint32(run.Kernel),
		run.Succeeded,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	insert := tx.StmtContext(ctx, s.stmtInsertObject)
	for _, r := range results {
		var errStr string
		if r.Err != nil {
			errStr = r.Err.Error()
		}
		if _, err := insert.ExecContext(ctx, id, r.Path, r.Object, r.Prefix, errStr); err != nil {
			return 0, fmt.Errorf("insert object %s: %w", r.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.log.Debug("recorded run", "run_id", id, "objects", len(results), "succeeded", run.Succeeded)
	return id, nil
}

// LastRun returns the most recent run and its object rows. A database
// with no runs yet reports sql.ErrNoRows.
func (s *Store) LastRun(ctx context.Context) (Run, []ObjectRow, error) {
	var (
		run                 Run
		startedAt, finished string
	)
	err := s.stmtLastRun.QueryRowContext(ctx).Scan(
		&run.ID, &startedAt, &finished, &run.LoaderVersion, &run.Kernel, &run.Succeeded)
	if err != nil {
		return Run{}, nil, err
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Run{}, nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return Run{}, nil, fmt.Errorf("parse finished_at: %w", err)
	}

	rows, err := s.stmtRunObjects.QueryContext(ctx, run.ID)
	if err != nil {
		return Run{}, nil, fmt.Errorf("query run objects: %w", err)
	}
	defer rows.Close()

	var objects []ObjectRow
	for rows.Next() {
		var o ObjectRow
		if err := rows.Scan(&o.Path, &o.Object, &o.Prefix, &o.Error); err != nil {
			return Run{}, nil, fmt.Errorf("scan object row: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return Run{}, nil, err
	}
	return run, objects, nil
}

// Close releases the database.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtInsertRun, s.stmtInsertObject, s.stmtLastRun, s.stmtRunObjects} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}
