package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	app_id     TEXT NOT NULL,
	app_name   TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	result     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS analyses_created_at ON analyses (created_at DESC);
`

// PostgresStore is the shared Store backend, pooled through pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, verifies connectivity, and ensures the
// schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("history: marshal result: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO analyses (id, source, app_id, app_name, status, created_at, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
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

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	var (
		rec     Record
		payload []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, source, app_id, app_name, status, created_at, result
		FROM analyses WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Source, &rec.AppID, &rec.AppName, &rec.Status, &rec.CreatedAt, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, app_id, app_name, status, created_at
		FROM analyses ORDER BY created_at DESC, id LIMIT $1`, limit)
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

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analyses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("history: delete analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
