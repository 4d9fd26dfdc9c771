package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS thread_checkpoints (
		thread_id  TEXT PRIMARY KEY,
		updated_at TEXT NOT NULL,
		data       BLOB NOT NULL
	)`
	sqliteUpsert = `INSERT INTO thread_checkpoints (thread_id, updated_at, data) VALUES (?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET updated_at = excluded.updated_at, data = excluded.data`
	sqliteSelect = `SELECT data FROM thread_checkpoints WHERE thread_id = ?`
	sqliteList   = `SELECT thread_id, updated_at, LENGTH(data) FROM thread_checkpoints ORDER BY updated_at, thread_id`
	sqliteDelete = `DELETE FROM thread_checkpoints WHERE thread_id = ?`
)

// SQLiteStore keeps checkpoints in a SQLite file so threads survive a
// restart of a single-process deployment.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB // nil once closed
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens path ("./checkpoints.db", ":memory:") and creates
// the table if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare checkpoint database: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// with runs fn against the open database under the read or write lock.
func (s *SQLiteStore) with(write bool, fn func(db *sql.DB) error) error {
	if write {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	if s.db == nil {
		return ErrStoreClosed
	}
	return fn(s.db)
}

// Save implements Store. It upserts the thread's single row.
func (s *SQLiteStore) Save(ctx context.Context, threadID string, data []byte) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.with(true, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, sqliteUpsert, threadID, now, data); err != nil {
			return fmt.Errorf("save checkpoint %s: %w", threadID, err)
		}
		return nil
	})
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) ([]byte, error) {
	var data []byte
	err := s.with(false, func(db *sql.DB) error {
		err := db.QueryRowContext(ctx, sqliteSelect, threadID).Scan(&data)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrNotFound
		case err != nil:
			return fmt.Errorf("load checkpoint %s: %w", threadID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	infos := []Info{}
	err := s.with(false, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, sqliteList)
		if err != nil {
			return fmt.Errorf("list checkpoints: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				info    Info
				updated string
			)
			if err := rows.Scan(&info.ThreadID, &updated, &info.Size); err != nil {
				return fmt.Errorf("list checkpoints: %w", err)
			}
			info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
			infos = append(infos, info)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	return s.with(true, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, sqliteDelete, threadID); err != nil {
			return fmt.Errorf("delete checkpoint %s: %w", threadID, err)
		}
		return nil
	})
}

// Close is idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
