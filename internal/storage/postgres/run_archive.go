// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/newsdesk-sync/internal/syncer"
)

// DefaultTable stores one row per sync run.
const DefaultTable = "sync_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for run rows.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// RunArchive writes finished run summaries into Postgres and reads the most
// recent ones back on startup.
//
// Expected schema:
//
//	CREATE TABLE sync_runs (
//		run_id      TEXT PRIMARY KEY,
//		started_at  TIMESTAMPTZ NOT NULL,
//		duration_ms BIGINT NOT NULL,
//		total_found INT NOT NULL,
//		succeeded   INT NOT NULL,
//		failed      INT NOT NULL,
//		interrupted BOOLEAN NOT NULL,
//		sites       JSONB NOT NULL
//	);
type RunArchive struct {
	pool  pool
	table string
}

// NewRunArchive connects to Postgres using cfg.
func NewRunArchive(ctx context.Context, cfg Config) (*RunArchive, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	archive, err := NewRunArchiveWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return archive, nil
}

// NewRunArchiveWithPool wraps an existing pool.
func NewRunArchiveWithPool(p pool, table string) (*RunArchive, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunArchive{pool: p, table: table}, nil
}

// Save upserts one run row.
func (a *RunArchive) Save(ctx context.Context, run syncer.RunSummary) error {
	sites, err := json.Marshal(run.Sites)
	if err != nil {
		return fmt.Errorf("marshal sites: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, started_at, duration_ms, total_found, succeeded, failed, interrupted, sites)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			duration_ms = EXCLUDED.duration_ms,
			total_found = EXCLUDED.total_found,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			interrupted = EXCLUDED.interrupted,
			sites = EXCLUDED.sites;
	`, a.table)
	_, err = a.pool.Exec(ctx, query,
		run.RunID,
		run.StartedAt,
		run.Duration.Milliseconds(),
		run.TotalFound,
		run.Succeeded,
		run.Failed,
		run.Interrupted,
		sites,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (a *RunArchive) Recent(ctx context.Context, limit int) ([]syncer.RunSummary, error) {
	query := fmt.Sprintf(`
		SELECT run_id, started_at, duration_ms, total_found, succeeded, failed, interrupted, sites
		FROM %s
		ORDER BY started_at DESC
		LIMIT $1;
	`, a.table)
	rows, err := a.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []syncer.RunSummary
	for rows.Next() {
		var (
			run        syncer.RunSummary
			durationMs int64
			sites      []byte
		)
		if err := rows.Scan(
			&run.RunID,
			&run.StartedAt,
			&durationMs,
			&run.TotalFound,
			&run.Succeeded,
			&run.Failed,
			&run.Interrupted,
			&sites,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		if len(sites) > 0 {
			if err := json.Unmarshal(sites, &run.Sites); err != nil {
				return nil, fmt.Errorf("decode sites for run %s: %w", run.RunID, err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Close closes the underlying pool.
func (a *RunArchive) Close() {
	a.pool.Close()
}
