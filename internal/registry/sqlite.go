package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite is a Registry kept in a local database file, for single-host
// setups that restart often.
type SQLite struct {
	db   *sql.DB
	path string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS course_registry (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	title     TEXT NOT NULL UNIQUE,
	loaded_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time avoids SQLITE_BUSY under concurrent Add.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating course_registry: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Contains(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM course_registry WHERE title = ?)`, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking registry for %q: %w", title, err)
	}
	return exists, nil
}

func (s *SQLite) Add(ctx context.Context, title string) (bool, error) {
	var added bool
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO course_registry (title) VALUES (?) ON CONFLICT (title) DO NOTHING`, title)
		if err != nil {
			return fmt.Errorf("inserting %q: %w", title, err)
		}
		added, err = insertedOne(res)
		return err
	})
	return added, err
}

func (s *SQLite) Titles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title FROM course_registry ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("listing registry: %w", err)
	}
	return scanTitles(rows)
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM course_registry`); err != nil {
		return fmt.Errorf("clearing registry: %w", err)
	}
	return nil
}
