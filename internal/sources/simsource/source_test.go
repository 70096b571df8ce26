package simsource

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`create table bars (
		symbol text, timestamp_ms integer, open real, high real, low real,
		close real, volume integer, bid real, ask real
	)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	rows := []struct {
		symbol string
		ts     int64
		close  float64
	}{
		{"BTCUSD", 3000, 102},
		{"ETHUSD", 1000, 10},
		{"BTCUSD", 1000, 100},
		{"BTCUSD", 2000, 101},
	}
	for _, r := range rows {
		if _, err := db.Exec(
			`insert into bars(symbol, timestamp_ms, open, high, low, close, volume, bid, ask) values(?,?,?,?,?,?,?,?,?)`,
			r.symbol, r.ts, r.close, r.close, r.close, r.close, 1, r.close, r.close,
		); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return path
}

func TestSourceReplaysInTimestampOrder(t *testing.T) {
	path := seedDB(t)

	src, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := src.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := src.Subscribe(ctx, []string{"BTCUSD"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var gotTs []int64
	for {
		bar, err := src.NextBar(ctx)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			t.Fatalf("NextBar: %v", err)
		}
		if bar.Symbol != "BTCUSD" {
			t.Fatalf("got symbol %s, want BTCUSD only", bar.Symbol)
		}
		gotTs = append(gotTs, bar.TimestampMs)
	}

	want := []int64{1000, 2000, 3000}
	if len(gotTs) != len(want) {
		t.Fatalf("got %d bars, want %d: %v", len(gotTs), len(want), gotTs)
	}
	for i, ts := range want {
		if gotTs[i] != ts {
			t.Fatalf("bar %d: got ts %d, want %d (replay must be ordered by timestamp)", i, gotTs[i], ts)
		}
	}

	if err := src.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
}

func TestSourceWithoutSymbolFilterReplaysAll(t *testing.T) {
	path := seedDB(t)

	src, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := src.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := src.Subscribe(ctx, nil); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	count := 0
	for {
		_, err := src.NextBar(ctx)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			t.Fatalf("NextBar: %v", err)
		}
		count++
	}
	if count != 4 {
		t.Fatalf("got %d bars, want 4", count)
	}
	_ = src.Disconnect(ctx)
}

func TestNextBarBeforeSubscribeErrors(t *testing.T) {
	path := seedDB(t)
	src, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := src.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := src.NextBar(ctx); err == nil {
		t.Fatal("expected error calling NextBar before Subscribe")
	}
	_ = src.Disconnect(ctx)
}
