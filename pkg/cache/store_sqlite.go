package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS cache_entries (
	k TEXT PRIMARY KEY,
	v BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore persists entries in a local SQLite database file, surviving
// process restarts.
type SQLiteStore struct {
	db         *sql.DB
	getStmt    *sql.Stmt
	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
	casStmt    *sql.Stmt
	keysStmt   *sql.Stmt
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, classifyStoreError("sqlite open", err)
	}
	// database/sql pools connections; a single writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classifyStoreError("sqlite ping", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, classifyStoreError("sqlite schema", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.prepare(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) prepare(ctx context.Context) error {
	var err error
	if s.getStmt, err = s.db.PrepareContext(ctx, `SELECT v FROM cache_entries WHERE k = ?`); err != nil {
		return classifyStoreError("sqlite prepare get", err)
	}
	if s.upsertStmt, err = s.db.PrepareContext(ctx,
		`INSERT INTO cache_entries (k, v, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`); err != nil {
		return classifyStoreError("sqlite prepare put", err)
	}
	if s.deleteStmt, err = s.db.PrepareContext(ctx, `DELETE FROM cache_entries WHERE k = ?`); err != nil {
		return classifyStoreError("sqlite prepare delete", err)
	}
	if s.casStmt, err = s.db.PrepareContext(ctx, `DELETE FROM cache_entries WHERE k = ? AND v = ?`); err != nil {
		return classifyStoreError("sqlite prepare delete if", err)
	}
	if s.keysStmt, err = s.db.PrepareContext(ctx,
		`SELECT k FROM cache_entries WHERE k LIKE ? ESCAPE '\' ORDER BY k`); err != nil {
		return classifyStoreError("sqlite prepare keys", err)
	}
	return nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.upsertStmt.ExecContext(ctx, key, value, time.Now().UnixMilli()); err != nil {
		return classifyStoreError("sqlite put", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.getStmt.QueryRowContext(ctx, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classifyStoreError("sqlite get", err)
	}
	return v, true, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, key); err != nil {
		return classifyStoreError("sqlite delete", err)
	}
	return nil
}

// DeleteIf implements Store.
func (s *SQLiteStore) DeleteIf(ctx context.Context, key string, old []byte) (bool, error) {
	res, err := s.casStmt.ExecContext(ctx, key, old)
	if err != nil {
		return false, classifyStoreError("sqlite delete if", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classifyStoreError("sqlite delete if", err)
	}
	return n > 0, nil
}

// Keys implements Store.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.keysStmt.QueryContext(ctx, escapeLike(prefix)+"%")
	if err != nil {
		return nil, classifyStoreError("sqlite keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, classifyStoreError("sqlite keys", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError("sqlite keys", err)
	}
	return keys, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.getStmt, s.upsertStmt, s.deleteStmt, s.casStmt, s.keysStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

// escapeLike escapes LIKE wildcards so prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
