package fsm

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/marksmithsgit/lumen-engine/internal/market"
)

func discardLogger() zerolog.Logger {
	return zerolog.Nop()
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

// S1 — long profitable trade closed by take-profit.
func TestLongProfitableTradeClosesOnTarget(t *testing.T) {
	f := New("BTCUSDT", discardLogger())
	f.Apply(NewEnterLong(50000, 0.1), 1)
	if f.State() != InPosition {
		t.Fatalf("expected InPosition, got %v", f.State())
	}
	if f.Position().EntryPrice != 50000 {
		t.Fatalf("expected entry price 50000, got %v", f.Position().EntryPrice)
	}
	f.Apply(NewUpdateTakeProfit(52000), 1)

	f.OnBar(market.Bar{Symbol: "BTCUSDT", Close: 52500, High: 52500, Low: 52400, Open: 1, Volume: 1, Ask: 1, Bid: 1})

	if f.State() != Idle {
		t.Fatalf("expected Idle after auto-exit, got %v", f.State())
	}
	if f.Position() != nil {
		t.Fatalf("expected no open position")
	}
	last := f.History()[len(f.History())-1]
	if last.Reason != "target" {
		t.Fatalf("expected reason mentioning target, got %q", last.Reason)
	}
}

// S2 — short stop-loss hit.
func TestShortStopLossHit(t *testing.T) {
	f := New("ETHUSDT", discardLogger())
	f.Apply(NewEnterShort(50000, 0.1), 1)
	f.Apply(NewUpdateStopLoss(51000), 1)

	f.OnBar(market.Bar{Symbol: "ETHUSDT", Close: 51500, High: 51600, Low: 51400, Open: 1, Volume: 1, Ask: 1, Bid: 1})

	if f.State() != Idle {
		t.Fatalf("expected Idle, got %v", f.State())
	}
}

// S3 — idle to analyzing to cancel.
func TestStartAndCancelAnalysis(t *testing.T) {
	f := New("BTCUSDT", discardLogger())
	f.Apply(NewStartAnalyzing("sig"), 1)
	if f.State() != Analyzing {
		t.Fatalf("expected Analyzing, got %v", f.State())
	}
	f.Apply(NewCancelAnalysis("none"), 2)
	if f.State() != Idle {
		t.Fatalf("expected Idle, got %v", f.State())
	}
	if len(f.History()) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(f.History()))
	}
}

// S5 — illegal exit from Idle is a rejected no-op.
func TestIllegalExitIsRejected(t *testing.T) {
	f := New("BTCUSDT", discardLogger())
	f.Apply(NewExit(100), 1)
	if f.State() != Idle {
		t.Fatalf("expected Idle, got %v", f.State())
	}
	if f.Position() != nil {
		t.Fatalf("expected no position")
	}
	if len(f.History()) != 0 {
		t.Fatalf("expected no transitions logged, got %d", len(f.History()))
	}
}

func TestResetClearsEverything(t *testing.T) {
	f := New("BTCUSDT", discardLogger())
	f.Apply(NewEnterLong(100, 1), 1)
	f.Context().SetString("signal", "bullish")
	f.Reset()
	if f.State() != Idle || f.Position() != nil || !f.Context().IsEmpty() || len(f.History()) != 0 {
		t.Fatalf("reset did not fully clear fsm state")
	}
}
