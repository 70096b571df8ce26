// Package runner implements the per-symbol trading orchestrator: one
// goroutine owning a market window, a state machine, and a strategy,
// driven by a single select loop over market data and introspection
// commands.
package runner

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marksmithsgit/lumen-engine/internal/events"
	"github.com/marksmithsgit/lumen-engine/internal/fsm"
	"github.com/marksmithsgit/lumen-engine/internal/market"
	"github.com/marksmithsgit/lumen-engine/internal/position"
	"github.com/marksmithsgit/lumen-engine/internal/strategy"
)

// DataInboxCapacity is the default buffered channel size for a runner's
// market data inbox. Buffered rather than unbounded, to give the
// engine's fan-out a bounded high-watermark it can alert on instead of
// growing without limit.
const DataInboxCapacity = 1024

// CommandInboxCapacity bounds the introspection command queue; commands
// are rare relative to bars and a caller blocks on its own reply channel,
// so a small buffer is enough to avoid a synchronous handshake.
const CommandInboxCapacity = 8

// SymbolRunner orchestrates one symbol's trading loop: it owns a market
// window, a finite state machine, and a strategy, none of which are
// safe for concurrent use outside this type's own goroutine.
type SymbolRunner struct {
	id     string
	symbol string

	strategy strategy.Strategy
	window   *market.Window
	fsm      *fsm.FSM

	dataCh    chan market.Bar
	commandCh chan Command

	config Config
	stats  Stats
	status Status

	events chan<- events.RunnerEvent

	startedAt time.Time
	log       zerolog.Logger
}

// New constructs a SymbolRunner identified by id (the same id the
// caller will use to route commands and look up snapshots elsewhere,
// e.g. the Engine Supervisor's runner map key). An empty id generates a
// fresh one, for callers — tests, standalone backtests — that have no
// external registry to stay consistent with. events may be nil, in
// which case the runner processes ticks silently (useful for tests and
// backtests that only need the final snapshot).
func New(id, symbol string, strat strategy.Strategy, windowSize int, cfg Config, eventsCh chan<- events.RunnerEvent, log zerolog.Logger) *SymbolRunner {
	if id == "" {
		id = uuid.NewString()
	}
	return &SymbolRunner{
		id:        id,
		symbol:    symbol,
		strategy:  strat,
		window:    market.NewWindow(windowSize),
		fsm:       fsm.New(symbol, log),
		dataCh:    make(chan market.Bar, DataInboxCapacity),
		commandCh: make(chan Command, CommandInboxCapacity),
		config:    cfg,
		stats:     NewStats(),
		status:    StatusRunning,
		events:    eventsCh,
		startedAt: time.Now(),
		log:       log.With().Str("component", "runner").Str("runner_id", id).Str("symbol", symbol).Logger(),
	}
}

// ID returns the runner's unique identifier.
func (r *SymbolRunner) ID() string { return r.id }

// Symbol returns the symbol this runner trades.
func (r *SymbolRunner) Symbol() string { return r.symbol }

// DataInbox returns the channel the Engine Supervisor feeds bars into.
func (r *SymbolRunner) DataInbox() chan<- market.Bar { return r.dataCh }

// CommandInbox returns the channel used for introspection/control.
func (r *SymbolRunner) CommandInbox() chan<- Command { return r.commandCh }

// Run is the runner's main loop: it strictly serializes bars and
// commands through one select, so a snapshot taken mid-tick never races
// the FSM or window. It returns when the data channel is closed.
func (r *SymbolRunner) Run() {
	if r.events != nil {
		r.emit(events.RunnerStarted(r.id, r.symbol, nowMs()))
	}

	for {
		select {
		case bar, ok := <-r.dataCh:
			if !ok {
				r.shutdown("data channel closed")
				return
			}
			if r.status != StatusRunning {
				continue
			}
			if err := r.processTick(bar); err != nil {
				r.log.Error().Err(err).Msg("error processing tick")
				if r.config.CollectMetrics {
					r.stats.RecordError()
				}
				if r.events != nil {
					severity := events.ErrorSev
					if r.config.StopOnError {
						severity = events.Critical
					}
					r.emit(events.Error(r.id, err.Error(), severity, nowMs()))
				}
				if r.config.StopOnError {
					r.shutdown("stopped on error")
					return
				}
			}

		case cmd, ok := <-r.commandCh:
			if !ok {
				continue
			}
			if stop := r.handleCommand(cmd); stop {
				r.shutdown("stop command")
				return
			}
		}
	}
}

func (r *SymbolRunner) shutdown(reason string) {
	r.status = StatusStopped
	if r.events != nil {
		r.emit(events.RunnerStopped(r.id, reason, nowMs()))
	}
	r.log.Info().Str("reason", reason).Msg("runner stopped")
}

func (r *SymbolRunner) emit(e events.RunnerEvent) {
	select {
	case r.events <- e:
	default:
		r.log.Warn().Str("kind", string(e.Kind)).Msg("event dropped: subscriber channel full")
	}
}

// processTick runs the full per-bar pipeline: window update, context
// writes, state-dispatched strategy call, action application, auto-exit
// check, event emission, and stats recording.
func (r *SymbolRunner) processTick(bar market.Bar) error {
	tickStart := time.Now()

	if bar.Symbol != r.symbol {
		r.log.Warn().Str("got", bar.Symbol).Msg("received bar for a different symbol, dropping")
		return nil
	}

	if r.events != nil {
		r.emit(events.TickReceived(r.id, r.symbol, bar))
	}

	r.window.Push(bar)
	r.fsm.Context().SetLatestPrice(bar.Close)
	r.fsm.Context().SetLatestTimestamp(bar.TimestampMs)
	stateBefore := r.fsm.State()
	posBefore := r.fsm.Position().Clone()

	action, err := r.dispatch(bar, stateBefore)
	if err != nil {
		return err
	}

	if action != nil {
		if r.config.LogActions {
			r.log.Info().Str("kind", action.Kind.String()).Msg("executing action")
		}
		r.fsm.Apply(*action, bar.TimestampMs)
		r.applyRisk(*action, bar.TimestampMs)
		if r.config.CollectMetrics {
			r.stats.RecordAction()
		}
		if r.events != nil {
			r.emit(events.ActionExecuted(r.id, *action, bar.TimestampMs))
		}
		if action.Kind == fsm.EnterLong || action.Kind == fsm.EnterShort {
			if pos := r.fsm.Position(); pos != nil && r.events != nil {
				r.emit(events.PositionOpened(r.id, toPositionView(pos), bar.TimestampMs))
			}
		}
	}

	r.fsm.OnBar(bar)

	if stateAfter := r.fsm.State(); stateAfter != stateBefore && r.events != nil {
		reason := ""
		if hist := r.fsm.History(); len(hist) > 0 {
			reason = hist[len(hist)-1].Reason
		}
		r.emit(events.StateTransition(r.id, stateBefore, stateAfter, reason, bar.TimestampMs))
	}

	r.emitPositionEvents(posBefore, bar.TimestampMs)

	if r.config.LogPositions {
		if pos := r.fsm.Position(); pos != nil {
			if pnl, ok := pos.UnrealizedPnL(); ok {
				r.log.Debug().Float64("unrealized_pnl", pnl).Msg("position mark")
			}
		}
	}

	if r.config.CollectMetrics {
		r.stats.RecordTick(time.Since(tickStart))
	}
	if r.config.CollectMetrics && r.events != nil && r.config.StatsInterval > 0 && r.stats.TicksProcessed%r.config.StatsInterval == 0 {
		r.emit(events.StatsUpdate(r.id, r.stats.TicksProcessed, r.stats.ActionsExecuted, r.stats.ErrorRate(), float64(r.stats.AvgTickDuration.Microseconds())/1000, bar.TimestampMs))
	}

	return nil
}

// emitPositionEvents compares the position held before this tick's
// action/auto-exit pass to the one held after, emitting PositionClosed if
// a position that existed is now closed, or PositionUpdated if one that
// was already open before this tick is still open.
func (r *SymbolRunner) emitPositionEvents(posBefore *position.Position, ts int64) {
	if r.events == nil {
		return
	}
	posAfter := r.fsm.Position()

	switch {
	case posBefore != nil && !posBefore.IsClosed() && (posAfter == nil || posAfter.IsClosed()):
		exitPrice := posBefore.CurrentPrice
		realized := 0.0
		reason := "manual"
		if posAfter != nil && posAfter.IsClosed() {
			if px := posAfter.ExitPrice; px != nil {
				exitPrice = *px
			}
			if pnl, ok := posAfter.RealizedPnL(); ok {
				realized = pnl
			}
			if hist := r.fsm.History(); len(hist) > 0 {
				reason = hist[len(hist)-1].Reason
			}
		}
		r.emit(events.PositionClosed(r.id, exitPrice, realized, reason, ts))

	case posBefore != nil && posAfter != nil && !posAfter.IsClosed():
		// A freshly opened position (posBefore nil) already got its
		// PositionOpened event from processTick; this only covers marks
		// on a position that was already open at the start of the tick.
		if pnl, ok := posAfter.UnrealizedPnL(); ok {
			r.emit(events.PositionUpdated(r.id, posAfter.CurrentPrice, pnl, ts))
		}
	}
}

func toPositionView(p *position.Position) events.PositionView {
	return events.PositionView{
		EntryPrice:   p.EntryPrice,
		Quantity:     p.Quantity,
		Side:         p.Side.String(),
		EntryTs:      p.EntryTs,
		CurrentPrice: p.CurrentPrice,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		ExitPrice:    p.ExitPrice,
		ExitTs:       p.ExitTs,
	}
}

// applyRisk issues the follow-up UpdateStopLoss/UpdateTakeProfit applies
// an entry action carries, since the FSM only ever actions one Kind at a
// time (see fsm.Action's doc comment).
func (r *SymbolRunner) applyRisk(action fsm.Action, ts int64) {
	if action.Kind != fsm.EnterLong && action.Kind != fsm.EnterShort {
		return
	}
	if action.StopLoss != nil {
		r.fsm.Apply(fsm.NewUpdateStopLoss(*action.StopLoss), ts)
	}
	if action.TakeProfit != nil {
		r.fsm.Apply(fsm.NewUpdateTakeProfit(*action.TakeProfit), ts)
	}
}

// dispatch calls the strategy callback matching the state the FSM was in
// before this tick's action is applied.
func (r *SymbolRunner) dispatch(bar market.Bar, state fsm.State) (*fsm.Action, error) {
	ctx := r.fsm.Context()
	ind := strategy.NewIndicatorView(r.window.Clone())

	switch state {
	case fsm.Idle:
		opp, err := r.strategy.DetectOpportunity(bar, ctx, ind)
		if err != nil {
			return nil, err
		}
		if opp == nil {
			return nil, nil
		}
		ctx.SetString("signal", opp.Signal)
		ctx.SetNumber("confidence", opp.Confidence)
		a := fsm.NewStartAnalyzing("strategy detected opportunity")
		return &a, nil

	case fsm.Analyzing:
		return r.strategy.FilterCommitment(bar, ctx, ind)

	case fsm.InPosition:
		return r.strategy.ManagePosition(bar, ctx, ind)

	default:
		return nil, nil
	}
}

// StatusNow returns the runner's current execution status.
func (r *SymbolRunner) StatusNow() Status { return r.status }

// Uptime returns how long this runner has been alive.
func (r *SymbolRunner) Uptime() time.Duration { return time.Since(r.startedAt) }

// Snapshot builds a point-in-time copy of the runner's full state. Only
// safe to call from the runner's own goroutine (i.e. from handleCommand);
// callers elsewhere must go through the command channel.
func (r *SymbolRunner) Snapshot() Snapshot {
	var posView *events.PositionView
	if pos := r.fsm.Position(); pos != nil {
		v := toPositionView(pos)
		posView = &v
	}
	return newSnapshot(r.id, r.symbol, r.status, r.fsm.State(), posView, r.fsm.Context().Snapshot(), r.stats, r.Uptime(), nowMs())
}

// handleCommand services one introspection/control command inline on the
// runner's own goroutine. Returns true if the runner should stop.
func (r *SymbolRunner) handleCommand(cmd Command) bool {
	switch cmd.Kind {
	case CmdGetSnapshot:
		trySend(cmd.SnapshotReply, r.Snapshot())

	case CmdGetPriceHistory:
		n := r.window.Len()
		if cmd.HistoryCount != nil && *cmd.HistoryCount < n {
			n = *cmd.HistoryCount
		}
		bars := make([]market.Bar, 0, n)
		for i := r.window.Len() - n; i < r.window.Len(); i++ {
			if b, ok := r.window.At(i); ok {
				bars = append(bars, b)
			}
		}
		trySend(cmd.HistoryReply, bars)

	case CmdPause:
		r.status = StatusPaused
		trySend(cmd.BoolReply, true)

	case CmdResume:
		r.status = StatusRunning
		trySend(cmd.BoolReply, true)

	case CmdStop:
		trySend(cmd.BoolReply, true)
		return true
	}
	return false
}

func trySend[T any](ch chan T, v T) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	default:
	}
}

// nowMs is the single indirection point for "current time in epoch
// milliseconds" across the runner, so tests can see it and production
// code stays readable.
func nowMs() int64 {
	return time.Now().UnixMilli()
}
