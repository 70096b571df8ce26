package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/marksmithsgit/lumen-engine/internal/events"
	"github.com/marksmithsgit/lumen-engine/internal/fsm"
	"github.com/marksmithsgit/lumen-engine/internal/market"
	"github.com/marksmithsgit/lumen-engine/internal/runner"
	"github.com/marksmithsgit/lumen-engine/internal/strategy"
)

// quietStrategy never detects an opportunity; it exists to exercise
// runner lifecycle and event routing without depending on indicator math.
type quietStrategy struct{}

func (quietStrategy) Name() string { return "quiet" }
func (quietStrategy) DetectOpportunity(market.Bar, strategy.ContextView, strategy.IndicatorView) (*strategy.Opportunity, error) {
	return nil, nil
}
func (quietStrategy) FilterCommitment(market.Bar, strategy.ContextView, strategy.IndicatorView) (*fsm.Action, error) {
	return nil, nil
}
func (quietStrategy) ManagePosition(market.Bar, strategy.ContextView, strategy.IndicatorView) (*fsm.Action, error) {
	return nil, nil
}

func bar(symbol string, close float64, ts int64) market.Bar {
	return market.Bar{Symbol: symbol, TimestampMs: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10, Bid: close - 0.5, Ask: close + 0.5}
}

func TestAddRunnerRejectsDuplicateID(t *testing.T) {
	e := New(runner.DefaultConfig(), 10, zerolog.Nop())
	defer e.Shutdown(time.Second)

	if err := e.AddRunner("r1", "BTCUSDT", quietStrategy{}); err != nil {
		t.Fatalf("first AddRunner: %v", err)
	}
	if err := e.AddRunner("r1", "BTCUSDT", quietStrategy{}); err == nil {
		t.Fatal("expected error adding duplicate runner id")
	}
}

func TestFeedDataRoutesOnlyToSubscribedSymbol(t *testing.T) {
	e := New(runner.DefaultConfig(), 10, zerolog.Nop())
	defer e.Shutdown(time.Second)

	if err := e.AddRunner("btc", "BTCUSDT", quietStrategy{}); err != nil {
		t.Fatalf("AddRunner: %v", err)
	}

	if err := e.FeedData(bar("BTCUSDT", 100, 1)); err != nil {
		t.Fatalf("FeedData for subscribed symbol: %v", err)
	}
	if err := e.FeedData(bar("ETHUSDT", 100, 1)); err == nil {
		t.Fatal("expected error feeding a symbol with no runners")
	}
}

func TestRemoveRunnerStopsItsGoroutine(t *testing.T) {
	e := New(runner.DefaultConfig(), 10, zerolog.Nop())
	defer e.Shutdown(time.Second)

	if err := e.AddRunner("btc", "BTCUSDT", quietStrategy{}); err != nil {
		t.Fatalf("AddRunner: %v", err)
	}
	if err := e.RemoveRunner("btc", 2*time.Second); err != nil {
		t.Fatalf("RemoveRunner: %v", err)
	}
	if e.HasRunner("btc") {
		t.Fatal("runner should no longer be registered after RemoveRunner")
	}
	if err := e.FeedData(bar("BTCUSDT", 100, 1)); err == nil {
		t.Fatal("expected error feeding a symbol whose only runner was removed")
	}
}

func TestSubscribeReceivesRunnerStartedEvent(t *testing.T) {
	e := New(runner.DefaultConfig(), 10, zerolog.Nop())
	defer e.Shutdown(time.Second)

	ch := e.Subscribe(16)
	if err := e.AddRunner("btc", "BTCUSDT", quietStrategy{}); err != nil {
		t.Fatalf("AddRunner: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.RunnerID != "btc" {
			t.Fatalf("event runner id = %q, want %q (engine's runner id must match the runner's own id)", ev.RunnerID, "btc")
		}
		if ev.Kind != events.KindRunnerStarted {
			t.Fatalf("first event kind = %q, want %q", ev.Kind, events.KindRunnerStarted)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for an event after AddRunner")
	}
}

func TestGetRunnerSnapshotUnknownIDReturnsNotFound(t *testing.T) {
	e := New(runner.DefaultConfig(), 10, zerolog.Nop())
	defer e.Shutdown(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := e.GetRunnerSnapshot(ctx, "does-not-exist"); err == nil {
		t.Fatal("expected error for unknown runner id")
	}
}
