// Package store is the Durable Log: a single-writer SQLite-backed relational
// store, opened with write-ahead logging, holding transactions, steps, and
// snapshots. It is the sole owner of these rows — every other component
// reads and writes through it, never touching the file directly.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"optiinfra/pkginstall/internal/metrics"
	"optiinfra/pkginstall/internal/store/migrations"
)

// Store wraps the durable log's database handle. A process holds exactly
// one Store for its data file, matching the single-writer discipline of
// SPEC_FULL.md §5.
type Store struct {
	db      *sql.DB
	mu      sync.Mutex // not used by any Store method; txn.Manager.Begin serializes its busy check with the Manager's own mutex
	metrics *metrics.Metrics
}

// SetMetrics attaches a Metrics instance that every subsequent operation
// reports to. Optional: a Store with no Metrics attached records nothing.
func (s *Store) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// recordOp reports one durable-log operation's outcome and duration, a
// no-op when no Metrics is attached.
func (s *Store) recordOp(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordStoreOperation(op, status, time.Since(start).Seconds())
}

// DefaultDataDir returns the OS-appropriate system data directory for the
// durable log file, honoring XDG_DATA_HOME where set.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pkginstall")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(string(os.PathSeparator), "var", "lib", "pkginstall")
	}
	return filepath.Join(home, ".local", "share", "pkginstall")
}

// Open opens (creating if absent) the SQLite file at path, enables WAL
// mode, and applies any pending schema migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The durable log is single-writer by design (SPEC_FULL.md §5); one
	// connection avoids SQLITE_BUSY races between readers and the writer.
	db.SetMaxOpenConns(1)

	if err := migrate_(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate_(db *sql.DB) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
