// Package fsm implements the three-state trading state machine: legal
// transitions, atomic action application, and the auto-exit update loop
// that checks stop-loss before take-profit on every bar.
package fsm

import (
	"github.com/rs/zerolog"

	"github.com/marksmithsgit/lumen-engine/internal/market"
	"github.com/marksmithsgit/lumen-engine/internal/position"
)

// MaxTransitionHistory bounds the diagnostic transition log.
const MaxTransitionHistory = 100

// FSM owns the state, context, optional open position, and a bounded
// transition history for one symbol. Not safe for concurrent use; it is
// exclusively owned by its SymbolRunner.
type FSM struct {
	symbol     string
	state      State
	context    *Context
	pos        *position.Position
	history    []Transition
	log        zerolog.Logger
}

// New constructs an idle FSM with an empty context.
func New(symbol string, log zerolog.Logger) *FSM {
	return &FSM{
		symbol:  symbol,
		state:   Idle,
		context: NewContext(),
		log:     log.With().Str("component", "fsm").Str("symbol", symbol).Logger(),
	}
}

func (f *FSM) State() State           { return f.state }
func (f *FSM) Context() *Context      { return f.context }
func (f *FSM) Position() *position.Position { return f.pos }
func (f *FSM) History() []Transition  { return f.history }

func (f *FSM) transition(to State, ts int64, reason string) {
	from := f.state
	f.state = to
	f.history = append(f.history, Transition{From: from, To: to, Timestamp: ts, Reason: reason})
	if len(f.history) > MaxTransitionHistory {
		f.history = f.history[len(f.history)-MaxTransitionHistory:]
	}
	f.log.Info().Str("from", from.String()).Str("to", to.String()).Str("reason", reason).Msg("state transition")
}

// Apply executes an action against the current state atomically: it
// either succeeds and mutates state/position/context, or the action is
// rejected and nothing changes. Rejections are non-fatal and logged.
func (f *FSM) Apply(action Action, ts int64) {
	switch action.Kind {
	case EnterLong:
		f.enterPosition(position.Long, action.Price, action.Quantity, ts)
	case EnterShort:
		f.enterPosition(position.Short, action.Price, action.Quantity, ts)
	case Exit:
		f.exitPosition(action.Price, ts, "manual")
	case UpdateStopLoss:
		if f.pos != nil && !f.pos.IsClosed() {
			f.pos.SetStopLoss(action.Price)
			f.log.Info().Float64("stop_loss", action.Price).Msg("stop loss updated")
		} else {
			f.log.Warn().Msg("UpdateStopLoss rejected: no open position")
		}
	case UpdateTakeProfit:
		if f.pos != nil && !f.pos.IsClosed() {
			f.pos.SetTakeProfit(action.Price)
			f.log.Info().Float64("take_profit", action.Price).Msg("take profit updated")
		} else {
			f.log.Warn().Msg("UpdateTakeProfit rejected: no open position")
		}
	case StartAnalyzing:
		if f.state == Idle {
			f.transition(Analyzing, ts, action.Reason)
		} else {
			f.log.Warn().Str("state", f.state.String()).Msg("StartAnalyzing rejected: not idle")
		}
	case CancelAnalysis:
		if f.state == Analyzing {
			f.transition(Idle, ts, action.Reason)
		} else {
			f.log.Warn().Str("state", f.state.String()).Msg("CancelAnalysis rejected: not analyzing")
		}
	case NoAction:
		// no-op
	}
}

func (f *FSM) enterPosition(side position.Side, price, qty float64, ts int64) {
	f.pos = position.New(price, qty, side, ts)
	f.transition(InPosition, ts, "position entered")
}

func (f *FSM) exitPosition(price float64, ts int64, reason string) {
	if f.pos == nil || f.pos.IsClosed() {
		f.log.Warn().Msg("Exit rejected: no open position")
		return
	}
	f.pos.Close(price, ts)
	f.transition(Idle, ts, reason)
}

// OnBar is invoked after action application on every tick. It records the
// bar's close and timestamp into context, updates the open position's
// mark price, and — stop-loss checked before take-profit — performs an
// automatic exit if a risk predicate fires.
func (f *FSM) OnBar(b market.Bar) {
	f.context.SetLatestPrice(b.Close)
	f.context.SetLatestTimestamp(b.TimestampMs)

	if f.pos == nil || f.pos.IsClosed() {
		return
	}
	f.pos.UpdateCurrentPrice(b.Close)

	if f.pos.IsStopLossHit() {
		f.exitPosition(b.Close, b.TimestampMs, "stop")
		return
	}
	if f.pos.IsTakeProfitHit() {
		f.exitPosition(b.Close, b.TimestampMs, "target")
	}
}

// Reset returns the FSM to Idle with an empty context, no position, and
// an empty transition log.
func (f *FSM) Reset() {
	f.state = Idle
	f.context.Clear()
	f.pos = nil
	f.history = nil
}
