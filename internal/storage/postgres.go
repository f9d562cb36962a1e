package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS harness_runs (
	id           TEXT PRIMARY KEY,
	command      TEXT NOT NULL,
	extension    TEXT NOT NULL,
	root         TEXT NOT NULL,
	output       TEXT NOT NULL,
	total        INTEGER NOT NULL DEFAULT 0,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS harness_records (
	run_id      TEXT NOT NULL REFERENCES harness_runs(id),
	position    INTEGER NOT NULL,
	file        TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	exit_code   INTEGER,
	elapsed_ms  BIGINT,
	log_dir     TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, position)
);`

// DB wraps a PostgreSQL connection pool for the run audit trail.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool and ensures the schema exists.
func New(ctx context.Context, dsn string, maxConns int, maxLifetime time.Duration) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = int32(maxConns) // #nosec G115 -- validated config value
	}
	config.MinConns = 1
	if maxLifetime > 0 {
		config.MaxConnLifetime = maxLifetime
	}
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// StartRun inserts the batch row that records reference.
func (db *DB) StartRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO harness_runs (id, command, extension, root, output, total, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := db.pool.Exec(ctx, query,
		run.ID, run.Command, run.Extension, run.Root, run.Output, run.Total, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// FinishRun stamps the completion time of a batch.
func (db *DB) FinishRun(ctx context.Context, id string, total int, completedAt time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE harness_runs SET total = $2, completed_at = $3 WHERE id = $1`,
		id, total, completedAt,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	return nil
}

// LogRecord inserts one result row. Re-inserting the same position is a no-op.
func (db *DB) LogRecord(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO harness_records (run_id, position, file, outcome, exit_code,
			elapsed_ms, log_dir, fingerprint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, position) DO NOTHING`

	_, err := db.pool.Exec(ctx, query,
		rec.RunID, rec.Position, rec.File, rec.Outcome, rec.ExitCode,
		rec.ElapsedMS, rec.LogDir, rec.Fingerprint, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}
