package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	pgDriver     = "pgx"
	defaultPgDSN = "postgres://localhost/lensforge?sslmode=disable"
)

// Postgres persists run records as JSON payloads, mirroring the SQLite
// backend's single-table layout.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a Postgres-backed catalog using the provided DSN
// (falls back to a local default).
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		dsn = defaultPgDSN
	}
	db, err := sql.Open(pgDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS runs (
		idx BIGINT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Append(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO runs(idx, payload) VALUES($1, $2)
		 ON CONFLICT(idx) DO UPDATE SET payload=excluded.payload`,
		rec.Index, payload)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, index int) (Record, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT payload FROM runs WHERE idx = $1`, index).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("select record: %w", err)
	}
	return decodeRecord(payload)
}

func (p *Postgres) List(ctx context.Context) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT payload FROM runs ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) Len(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (p *Postgres) Close() error { return p.db.Close() }
