package ownership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS ownership_members (
		set_key TEXT NOT NULL,
		member TEXT NOT NULL,
		PRIMARY KEY (set_key, member)
	)`,
	`CREATE TABLE IF NOT EXISTS ownership_blobs (
		blob_key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`,
}

// SQLiteStore keeps ownership sets in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens database file and ensures schema.
// Params: context and database path (":memory:" allowed).
// Returns: ready store or setup error.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set sqlite wal: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Exists reports whether set key has members.
func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ownership_members WHERE set_key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count members %q: %w", key, err)
	}
	return n > 0, nil
}

// Members lists set members.
func (s *SQLiteStore) Members(ctx context.Context, key string) ([]string, error) {
	return s.queryStrings(ctx, `SELECT member FROM ownership_members WHERE set_key = ? ORDER BY member`, key)
}

// Add inserts member into set.
func (s *SQLiteStore) Add(ctx context.Context, key, member string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO ownership_members (set_key, member) VALUES (?, ?)`, key, member)
	if err != nil {
		return fmt.Errorf("add member %q: %w", key, err)
	}
	return nil
}

// Remove deletes member from set.
func (s *SQLiteStore) Remove(ctx context.Context, key, member string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ownership_members WHERE set_key = ? AND member = ?`, key, member)
	if err != nil {
		return fmt.Errorf("remove member %q: %w", key, err)
	}
	return nil
}

// KeysWithPrefix lists distinct set keys by literal prefix.
func (s *SQLiteStore) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT DISTINCT set_key FROM ownership_members WHERE substr(set_key, 1, length(?)) = ? ORDER BY set_key`,
		prefix, prefix)
}

// Get reads blob value.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ownership_blobs WHERE blob_key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blob %q: %w", key, err)
	}
	return value, nil
}

// Put upserts blob value.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ownership_blobs (blob_key, value) VALUES (?, ?)
		ON CONFLICT(blob_key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("put blob %q: %w", key, err)
	}
	return nil
}

// Close closes database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
