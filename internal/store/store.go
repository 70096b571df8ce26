// Package store implements the Postgres audit trail for runner
// lifecycles, executed actions, and closed positions: a pgxpool-backed
// fire-and-forget write pattern, schema ensured on startup, and
// parameterized queries for the HTTP API's history endpoints.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store wraps a pgx connection pool and the audit-trail schema.
type Store struct {
	pool *pgxpool.Pool
}

// RunnerRow is one row of the runner_lifecycle table, returned to the
// HTTP API's history endpoints.
type RunnerRow struct {
	RunnerID  string     `json:"runnerId"`
	Symbol    string     `json:"symbol"`
	Strategy  string     `json:"strategy"`
	StartedAt time.Time  `json:"startedAt"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`
	Status    string     `json:"status"`
}

// ClosedPositionRow is one row of the closed_positions table. RealizedPnL
// is stored as decimal.Decimal, not float64, so the audit trail never
// accumulates binary floating-point drift across many trades.
type ClosedPositionRow struct {
	RunnerID    string          `json:"runnerId"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	EntryPrice  float64         `json:"entryPrice"`
	ExitPrice   float64         `json:"exitPrice"`
	Quantity    float64         `json:"quantity"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
	EntryTs     time.Time       `json:"entryTs"`
	ExitTs      time.Time       `json:"exitTs"`
	Reason      string          `json:"reason"`
}

// New creates a connection pool and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: pgxpool.New: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`create table if not exists runner_lifecycle (
			id bigserial primary key,
			runner_id text unique not null,
			symbol text not null,
			strategy text not null,
			started_at timestamptz not null default now(),
			stopped_at timestamptz,
			status text not null default 'running'
		)`,
		`create index if not exists idx_runner_lifecycle_symbol on runner_lifecycle(symbol, started_at desc)`,
		`create table if not exists runner_events (
			id bigserial primary key,
			runner_id text not null,
			ts timestamptz not null default now(),
			kind text not null,
			symbol text,
			details jsonb
		)`,
		`create index if not exists idx_runner_events_runner on runner_events(runner_id, ts desc)`,
		`create table if not exists closed_positions (
			id bigserial primary key,
			runner_id text not null,
			symbol text not null,
			side text not null,
			entry_price numeric not null,
			exit_price numeric not null,
			quantity numeric not null,
			realized_pnl numeric not null,
			entry_ts timestamptz not null,
			exit_ts timestamptz not null,
			reason text not null
		)`,
		`create index if not exists idx_closed_positions_runner on closed_positions(runner_id, exit_ts desc)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensureSchema: %w", err)
		}
	}
	return nil
}

// LogRunnerStarted records a new runner's registration. Fire-and-forget:
// a slow or unavailable database must never stall the hot tick path.
func (s *Store) LogRunnerStarted(runnerID, symbol, strategyName string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _ = s.pool.Exec(ctx,
			`insert into runner_lifecycle(runner_id, symbol, strategy, status) values($1,$2,$3,'running')
			 on conflict (runner_id) do nothing`,
			runnerID, symbol, strategyName)
	}()
}

// LogRunnerStopped marks a runner's lifecycle row as stopped.
func (s *Store) LogRunnerStopped(runnerID, status string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if status == "" {
			status = "stopped"
		}
		_, _ = s.pool.Exec(ctx,
			`update runner_lifecycle set stopped_at = now(), status = $2 where runner_id = $1`,
			runnerID, status)
	}()
}

// LogEvent persists an arbitrary runner event row, JSON-encoding details.
func (s *Store) LogEvent(runnerID, kind, symbol string, details any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		var dj []byte
		if details != nil {
			dj, _ = json.Marshal(details)
		}
		_, _ = s.pool.Exec(ctx,
			`insert into runner_events(runner_id, kind, symbol, details) values($1,$2,$3,$4)`,
			runnerID, kind, symbol, dj)
	}()
}

// LogClosedPosition records a closed trade's exact audit row. This is
// the one write path that blocks on the caller's context rather than
// firing in the background, since the audit trail must not silently
// lose a realized P&L entry the way a best-effort log line may.
func (s *Store) LogClosedPosition(ctx context.Context, row ClosedPositionRow) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx,
		`insert into closed_positions(runner_id, symbol, side, entry_price, exit_price, quantity, realized_pnl, entry_ts, exit_ts, reason)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		row.RunnerID, row.Symbol, row.Side, row.EntryPrice, row.ExitPrice, row.Quantity, row.RealizedPnL, row.EntryTs, row.ExitTs, row.Reason)
	return err
}

// clampLimit substitutes def whenever requested is non-positive or
// exceeds max, so a caller-supplied page size can never force an
// unbounded or zero-row query.
func clampLimit(requested, def, max int) int {
	if requested <= 0 || requested > max {
		return def
	}
	return requested
}

// QueryRunnerHistory returns lifecycle rows, optionally filtered by
// symbol, newest first.
func (s *Store) QueryRunnerHistory(ctx context.Context, symbol string, limit int) ([]RunnerRow, error) {
	limit = clampLimit(limit, 100, 500)
	rows, err := s.pool.Query(ctx,
		`select runner_id, symbol, strategy, started_at, stopped_at, status from runner_lifecycle
		 where ($1 = '' or symbol = $1) order by started_at desc limit $2`,
		symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []RunnerRow{}
	for rows.Next() {
		var r RunnerRow
		if err := rows.Scan(&r.RunnerID, &r.Symbol, &r.Strategy, &r.StartedAt, &r.StoppedAt, &r.Status); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// QueryClosedPositions returns closed-position rows for a runner, newest
// first.
func (s *Store) QueryClosedPositions(ctx context.Context, runnerID string, limit int) ([]ClosedPositionRow, error) {
	limit = clampLimit(limit, 200, 1000)
	rows, err := s.pool.Query(ctx,
		`select runner_id, symbol, side, entry_price, exit_price, quantity, realized_pnl, entry_ts, exit_ts, reason
		 from closed_positions where runner_id = $1 order by exit_ts desc limit $2`,
		runnerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []ClosedPositionRow{}
	for rows.Next() {
		var r ClosedPositionRow
		if err := rows.Scan(&r.RunnerID, &r.Symbol, &r.Side, &r.EntryPrice, &r.ExitPrice, &r.Quantity, &r.RealizedPnL, &r.EntryTs, &r.ExitTs, &r.Reason); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}
