// Package postgres implements the store contracts on PostgreSQL via pgx.
// The scrape_tasks table is both the task record and the work queue;
// claiming uses FOR UPDATE SKIP LOCKED so concurrent workers never take
// the same task.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// Config holds database connection settings.
type Config struct {
	DSN string
	// TablePrefix separates environments sharing one database
	// (e.g. "dev_" yields dev_scrape_tasks).
	TablePrefix string
	DialTimeout time.Duration
}

// Store is the PostgreSQL-backed task and chunk store.
type Store struct {
	pool        *pgxpool.Pool
	tasksTable  string
	chunksTable string
}

// Open connects, verifies the connection and ensures the schema exists.
func Open(ctx context.Context, config Config) (*Store, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	pc, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "recepd"

	dialCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &Store{
		pool:        pool,
		tasksTable:  config.TablePrefix + "scrape_tasks",
		chunksTable: config.TablePrefix + "chunks",
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("connected to database", "tasks_table", s.tasksTable, "chunks_table", s.chunksTable)
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ensureSchema creates the tables and indexes if they do not exist. The
// partial unique index on (organization_id, url) over non-terminal states
// is the durable single-flight marker for task submission.
func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id              UUID PRIMARY KEY,
			url             TEXT NOT NULL,
			status          TEXT NOT NULL,
			organization_id TEXT NOT NULL,
			receptionist_id TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at      TIMESTAMPTZ,
			completed_at    TIMESTAMPTZ,
			error           TEXT
		)`, s.tasksTable),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_inflight_idx
			ON %s (organization_id, url)
			WHERE status IN ('queued', 'started')`, s.tasksTable, s.tasksTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_queued_idx
			ON %s (created_at)
			WHERE status = 'queued'`, s.tasksTable, s.tasksTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id               UUID PRIMARY KEY,
			organization_id  TEXT NOT NULL,
			source_type      TEXT NOT NULL,
			source_id        TEXT NOT NULL,
			name             TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			content          TEXT NOT NULL,
			bullets          JSONB NOT NULL DEFAULT '[]',
			sample_questions JSONB NOT NULL DEFAULT '[]',
			vapi_file_id     TEXT,
			deleted          BOOLEAN NOT NULL DEFAULT FALSE,
			receptionist_id  TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.chunksTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_org_active_idx
			ON %s (organization_id, created_at DESC)
			WHERE deleted = FALSE`, s.chunksTable, s.chunksTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx
			ON %s (organization_id, source_id)`, s.chunksTable, s.chunksTable),
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
