package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	app_id     TEXT NOT NULL,
	app_name   TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	result     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS analyses_created_at ON analyses (created_at DESC);
`

// SQLiteStore is the embedded Store backend. ":memory:" works for tests.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes writes internally; one connection avoids
	// SQLITE_BUSY under concurrent writers
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("history: marshal result: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, source, app_id, app_name, status, created_at, result)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source = excluded.source, app_id = excluded.app_id,
			app_name = excluded.app_name, status = excluded.status,
			created_at = excluded.created_at, result = excluded.result`,
		rec.ID, rec.Source, rec.AppID, rec.AppName, rec.Status, rec.CreatedAt.UTC(), payload,
	)
	if err != nil {
		return fmt.Errorf("history: save analysis: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	var (
		rec     Record
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, app_id, app_name, status, created_at, result
		FROM analyses WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Source, &rec.AppID, &rec.AppName, &rec.Status, &rec.CreatedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("history: get analysis: %w", err)
	}
	if err := json.Unmarshal(payload, &rec.Result); err != nil {
		return Record{}, fmt.Errorf("history: unmarshal result: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, app_id, app_name, status, created_at
		FROM analyses ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list analyses: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.AppID, &rec.AppName, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan analysis: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list analyses: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("history: delete analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }
