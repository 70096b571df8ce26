package runner

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/marksmithsgit/lumen-engine/internal/events"
	"github.com/marksmithsgit/lumen-engine/internal/fsm"
	"github.com/marksmithsgit/lumen-engine/internal/market"
	"github.com/marksmithsgit/lumen-engine/internal/strategy"
)

// scriptedStrategy returns pre-programmed actions so runner tests don't
// depend on any particular indicator math.
type scriptedStrategy struct {
	opp       *strategy.Opportunity
	commit    *fsm.Action
	manage    *fsm.Action
	callCount int
}

func (s *scriptedStrategy) Name() string { return "scripted" }
func (s *scriptedStrategy) DetectOpportunity(market.Bar, strategy.ContextView, strategy.IndicatorView) (*strategy.Opportunity, error) {
	s.callCount++
	return s.opp, nil
}
func (s *scriptedStrategy) FilterCommitment(market.Bar, strategy.ContextView, strategy.IndicatorView) (*fsm.Action, error) {
	return s.commit, nil
}
func (s *scriptedStrategy) ManagePosition(market.Bar, strategy.ContextView, strategy.IndicatorView) (*fsm.Action, error) {
	return s.manage, nil
}

func bar(symbol string, close float64, ts int64) market.Bar {
	return market.Bar{Symbol: symbol, TimestampMs: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10, Bid: close - 0.5, Ask: close + 0.5}
}

func TestRunnerFullCycleEmitsExpectedEvents(t *testing.T) {
	qty := 0.1
	entry := fsm.NewEnterLong(50000, qty)
	strat := &scriptedStrategy{
		opp:    &strategy.Opportunity{Signal: "bullish", Confidence: 0.9},
		commit: &entry,
	}

	evCh := make(chan events.RunnerEvent, 64)
	r := New("", "BTCUSDT", strat, 10, DefaultConfig(), evCh, zerolog.Nop())
	go r.Run()

	r.DataInbox() <- bar("BTCUSDT", 50000, 1) // Idle -> Analyzing
	r.DataInbox() <- bar("BTCUSDT", 50010, 2) // Analyzing -> InPosition

	close(r.DataInbox())
	time.Sleep(20 * time.Millisecond)

	var kinds []events.Kind
	drain:
	for {
		select {
		case ev := <-evCh:
			kinds = append(kinds, ev.Kind)
		default:
			break drain
		}
	}

	has := func(k events.Kind) bool {
		for _, x := range kinds {
			if x == k {
				return true
			}
		}
		return false
	}

	if !has(events.KindRunnerStarted) {
		t.Fatalf("expected RunnerStarted event, got %v", kinds)
	}
	if !has(events.KindStateTransition) {
		t.Fatalf("expected at least one StateTransition event, got %v", kinds)
	}
	if !has(events.KindPositionOpened) {
		t.Fatalf("expected PositionOpened event, got %v", kinds)
	}
	if !has(events.KindRunnerStopped) {
		t.Fatalf("expected RunnerStopped event, got %v", kinds)
	}
}

func TestRunnerDropsMismatchedSymbol(t *testing.T) {
	strat := &scriptedStrategy{}
	r := New("", "BTCUSDT", strat, 10, DefaultConfig(), nil, zerolog.Nop())
	go r.Run()

	r.DataInbox() <- bar("ETHUSDT", 3000, 1)
	close(r.DataInbox())
	time.Sleep(10 * time.Millisecond)

	if strat.callCount != 0 {
		t.Fatalf("expected strategy never called for mismatched symbol, got %d calls", strat.callCount)
	}
}

func TestRunnerSnapshotCommand(t *testing.T) {
	strat := &scriptedStrategy{}
	r := New("", "BTCUSDT", strat, 10, DefaultConfig(), nil, zerolog.Nop())
	go r.Run()

	r.DataInbox() <- bar("BTCUSDT", 50000, 1)

	cmd, reply := GetSnapshotCommand()
	r.CommandInbox() <- cmd
	snap := <-reply

	if snap.Symbol != "BTCUSDT" {
		t.Fatalf("expected symbol BTCUSDT, got %s", snap.Symbol)
	}
	if snap.CurrentState != fsm.Idle {
		t.Fatalf("expected Idle state with no opportunity, got %v", snap.CurrentState)
	}

	close(r.DataInbox())
}

func TestRunnerPauseStopsProcessingUntilResumed(t *testing.T) {
	strat := &scriptedStrategy{opp: &strategy.Opportunity{Signal: "bullish", Confidence: 0.5}}
	r := New("", "BTCUSDT", strat, 10, DefaultConfig(), nil, zerolog.Nop())
	go r.Run()

	pauseCmd, pauseReply := PauseCommand()
	r.CommandInbox() <- pauseCmd
	<-pauseReply

	r.DataInbox() <- bar("BTCUSDT", 50000, 1)
	time.Sleep(10 * time.Millisecond)

	if strat.callCount != 0 {
		t.Fatalf("expected no strategy calls while paused, got %d", strat.callCount)
	}

	resumeCmd, resumeReply := ResumeCommand()
	r.CommandInbox() <- resumeCmd
	<-resumeReply

	r.DataInbox() <- bar("BTCUSDT", 50010, 2)
	time.Sleep(10 * time.Millisecond)

	if strat.callCount == 0 {
		t.Fatalf("expected strategy to be called after resume")
	}

	close(r.DataInbox())
}
