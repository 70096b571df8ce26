// Package simsource implements sources.Source as a deterministic replay
// feed backed by a SQLite database of recorded bars, via modernc.org/sqlite
// (pure Go, no cgo). It plays the rows back in timestamp order at a
// configurable pace, the Go-native counterpart to the reference engine's
// SimulatedFeed random-walk generator — but replaying recorded history
// instead of synthesizing it, for reproducible backtests.
package simsource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/marksmithsgit/lumen-engine/internal/market"
)

// Source replays bars from a SQLite table named "bars" with columns
// (symbol, timestamp_ms, open, high, low, close, volume, bid, ask).
type Source struct {
	db   *sql.DB
	rows *sql.Rows

	symbols []string
	// Speed scales the delay between successive bars: 0 disables the
	// delay entirely (replay as fast as possible), 1.0 replays at the
	// original wall-clock pace implied by consecutive timestamps.
	Speed float64

	lastTs int64
	hasLast bool
}

// New opens the SQLite database at path, the sole constructor: Connect
// only pings the already-open handle, since modernc.org/sqlite has
// nothing to dial.
func New(path string) (*Source, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("simsource: open %s: %w", path, err)
	}
	return &Source{db: db}, nil
}

func (s *Source) Connect(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("simsource: no database opened; construct with New(path)")
	}
	return s.db.PingContext(ctx)
}

func (s *Source) Subscribe(ctx context.Context, symbols []string) error {
	s.symbols = symbols
	query := `select symbol, timestamp_ms, open, high, low, close, volume, bid, ask from bars`
	args := []any{}
	if len(symbols) > 0 {
		query += ` where symbol in (` + placeholders(len(symbols)) + `)`
		for _, sym := range symbols {
			args = append(args, sym)
		}
	}
	query += ` order by timestamp_ms asc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("simsource: query bars: %w", err)
	}
	s.rows = rows
	return nil
}

func placeholders(n int) string {
	out := "?"
	for i := 1; i < n; i++ {
		out += ",?"
	}
	return out
}

// NextBar returns the next replayed bar in timestamp order, pacing the
// delivery by Speed if set and blocking only until ctx is done or the
// underlying result set is exhausted.
func (s *Source) NextBar(ctx context.Context) (market.Bar, error) {
	if s.rows == nil {
		return market.Bar{}, fmt.Errorf("simsource: NextBar called before Subscribe")
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return market.Bar{}, fmt.Errorf("simsource: reading bars: %w", err)
		}
		return market.Bar{}, sql.ErrNoRows
	}

	var b market.Bar
	if err := s.rows.Scan(&b.Symbol, &b.TimestampMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Bid, &b.Ask); err != nil {
		return market.Bar{}, fmt.Errorf("simsource: scan bar: %w", err)
	}
	if err := b.Validate(); err != nil {
		return market.Bar{}, fmt.Errorf("simsource: %w", err)
	}

	if s.Speed > 0 && s.hasLast {
		delta := time.Duration(float64(b.TimestampMs-s.lastTs) * float64(time.Millisecond) * s.Speed)
		if delta > 0 {
			select {
			case <-time.After(delta):
			case <-ctx.Done():
				return market.Bar{}, ctx.Err()
			}
		}
	}
	s.lastTs = b.TimestampMs
	s.hasLast = true

	return b, nil
}

// Disconnect closes the result set and the underlying database handle.
func (s *Source) Disconnect(ctx context.Context) error {
	if s.rows != nil {
		s.rows.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
