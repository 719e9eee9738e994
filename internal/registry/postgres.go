package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Postgres is a Registry shared by every process pointed at the same
// database.
type Postgres struct {
	DB *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS course_registry (
	seq       BIGSERIAL,
	title     TEXT PRIMARY KEY,
	loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// OpenPostgres connects, pings and creates the registry table if needed.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating course_registry: %w", err)
	}
	return &Postgres{DB: db}, nil
}

func (p *Postgres) Close() error {
	return p.DB.Close()
}

func (p *Postgres) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return inTx(ctx, p.DB, fn)
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (p *Postgres) Contains(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := p.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM course_registry WHERE title = $1)`, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking registry for %q: %w", title, err)
	}
	return exists, nil
}

func (p *Postgres) Add(ctx context.Context, title string) (bool, error) {
	var added bool
	err := p.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO course_registry (title) VALUES ($1) ON CONFLICT (title) DO NOTHING`, title)
		if err != nil {
			return fmt.Errorf("inserting %q: %w", title, err)
		}
		added, err = insertedOne(res)
		return err
	})
	return added, err
}

func insertedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Postgres) Titles(ctx context.Context) ([]string, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT title FROM course_registry ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("listing registry: %w", err)
	}
	return scanTitles(rows)
}

func scanTitles(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, `TRUNCATE course_registry`); err != nil {
		return fmt.Errorf("clearing registry: %w", err)
	}
	return nil
}
