package brandcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps brand cache entries in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open brand cache database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize brand cache schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS brand_cache (
        key TEXT PRIMARY KEY,
        estimate TEXT NOT NULL,
        tools_used TEXT NOT NULL,
        inserted_at INTEGER NOT NULL
    );
    `
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, estimate, tools_used, inserted_at FROM brand_cache`)
	if err != nil {
		return nil, fmt.Errorf("failed to query brand cache: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                   Entry
			estimateJSON, tools string
			insertedAt          int64
		)
		if err := rows.Scan(&e.Key, &estimateJSON, &tools, &insertedAt); err != nil {
			return nil, fmt.Errorf("failed to scan brand cache row: %w", err)
		}
		if err := json.Unmarshal([]byte(estimateJSON), &e.Estimate); err != nil {
			return nil, fmt.Errorf("failed to decode cached estimate for %q: %w", e.Key, err)
		}
		if err := json.Unmarshal([]byte(tools), &e.ToolsUsed); err != nil {
			return nil, fmt.Errorf("failed to decode cached tools for %q: %w", e.Key, err)
		}
		e.InsertedAt = time.Unix(0, insertedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	estimateJSON, err := json.Marshal(e.Estimate)
	if err != nil {
		return fmt.Errorf("failed to encode estimate: %w", err)
	}
	tools, err := json.Marshal(e.ToolsUsed)
	if err != nil {
		return fmt.Errorf("failed to encode tools: %w", err)
	}

	query := `
        INSERT INTO brand_cache (key, estimate, tools_used, inserted_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET
            estimate = excluded.estimate,
            tools_used = excluded.tools_used,
            inserted_at = excluded.inserted_at
    `
	if _, err := s.db.ExecContext(ctx, query, e.Key, string(estimateJSON), string(tools), e.InsertedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to upsert brand cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM brand_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete brand cache entry: %w", err)
	}
	return nil
}
