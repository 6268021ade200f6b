package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// SQLite is a Store backed by a single SQLite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the catalog database at dbPath and runs
// migrations.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite catalog requires a file path")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// busy_timeout avoids "database locked" errors when two processes share the file
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLite{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recordings (
		identifier TEXT PRIMARY KEY,
		directory TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Create(ctx context.Context, rec Recording) error {
	return create(ctx, s, rec)
}

func (s *SQLite) Write(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(sqliteTx{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLite) Retrieve(ctx context.Context, filter Filter) ([]Recording, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identifier, directory, path, created_at FROM recordings`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		if matches(filter, rec) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

func (s *SQLite) Get(ctx context.Context, identifier string) (Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT identifier, directory, path, created_at FROM recordings WHERE identifier = ?`, identifier)
	return getRecording(row)
}

func (s *SQLite) Delete(ctx context.Context, identifiers ...string) error {
	return remove(ctx, s, identifiers)
}

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t sqliteTx) Create(rec Recording) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if _, err := t.Get(rec.Identifier); err == nil {
		return ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO recordings (identifier, directory, path, created_at) VALUES (?, ?, ?, ?)`,
		rec.Identifier, rec.Directory, rec.Path, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (t sqliteTx) Get(identifier string) (Recording, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT identifier, directory, path, created_at FROM recordings WHERE identifier = ?`, identifier)
	return getRecording(row)
}

func (t sqliteTx) Delete(identifier string) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM recordings WHERE identifier = ?`, identifier)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (Recording, error) {
	var rec Recording
	var createdAt string
	if err := row.Scan(&rec.Identifier, &rec.Directory, &rec.Path, &createdAt); err != nil {
		return Recording{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}

func getRecording(row *sql.Row) (Recording, error) {
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, ErrNotFound
	}
	return rec, err
}
