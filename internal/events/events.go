// Package events defines the lifecycle event union runners emit and the
// command envelope the Engine Supervisor uses to query a runner without
// blocking its hot loop.
package events

import (
	"github.com/marksmithsgit/lumen-engine/internal/fsm"
	"github.com/marksmithsgit/lumen-engine/internal/market"
)

// Severity classifies an Error event.
type Severity string

const (
	Warning  Severity = "warning"
	ErrorSev Severity = "error"
	Critical Severity = "critical"
)

// Kind discriminates the RunnerEvent union on the wire as "type".
type Kind string

const (
	KindRunnerStarted   Kind = "RunnerStarted"
	KindRunnerStopped   Kind = "RunnerStopped"
	KindTickReceived    Kind = "TickReceived"
	KindStateTransition Kind = "StateTransition"
	KindActionExecuted  Kind = "ActionExecuted"
	KindPositionOpened  Kind = "PositionOpened"
	KindPositionUpdated Kind = "PositionUpdated"
	KindPositionClosed  Kind = "PositionClosed"
	KindError           Kind = "Error"
	KindStatsUpdate     Kind = "StatsUpdate"
)

// PositionView is the serializable form of an open or closed position,
// mirroring position.Position's fields for the wire.
type PositionView struct {
	EntryPrice   float64  `json:"entry_price"`
	Quantity     float64  `json:"quantity"`
	Side         string   `json:"side"`
	EntryTs      int64    `json:"entry_ts"`
	CurrentPrice float64  `json:"current_price"`
	StopLoss     *float64 `json:"stop_loss,omitempty"`
	TakeProfit   *float64 `json:"take_profit,omitempty"`
	ExitPrice    *float64 `json:"exit_price,omitempty"`
	ExitTs       *int64   `json:"exit_ts,omitempty"`
}

// RunnerEvent is one tagged lifecycle event. Exactly the fields relevant
// to Kind are populated; JSON omits zero-valued optional fields.
type RunnerEvent struct {
	Kind      Kind    `json:"type"`
	RunnerID  string  `json:"runner_id"`
	Timestamp int64   `json:"timestamp"`
	Symbol    string  `json:"symbol,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Bar       *market.Bar   `json:"bar,omitempty"`
	From      *fsm.State    `json:"from,omitempty"`
	To        *fsm.State    `json:"to,omitempty"`
	Action    *fsm.Action   `json:"action,omitempty"`
	Position  *PositionView `json:"position,omitempty"`
	Price           float64 `json:"price,omitempty"`
	UnrealizedPnL   float64 `json:"unrealized_pnl,omitempty"`
	RealizedPnL     float64 `json:"realized_pnl,omitempty"`
	Message         string  `json:"message,omitempty"`
	Severity        Severity `json:"severity,omitempty"`
	TicksProcessed  uint64  `json:"ticks_processed,omitempty"`
	ActionsExecuted uint64  `json:"actions_executed,omitempty"`
	ErrorRate       float64 `json:"error_rate,omitempty"`
	AvgTickDurationMs float64 `json:"avg_tick_duration_ms,omitempty"`
}

// IsHighFrequency reports whether this event kind may need client-side
// throttling (ticks and position updates fire on every bar).
func (e RunnerEvent) IsHighFrequency() bool {
	return e.Kind == KindTickReceived || e.Kind == KindPositionUpdated
}

// IsCritical reports whether this event should always be delivered
// immediately, bypassing any throttling.
func (e RunnerEvent) IsCritical() bool {
	if e.Kind == KindRunnerStopped {
		return true
	}
	return e.Kind == KindError && e.Severity == Critical
}

func RunnerStarted(runnerID, symbol string, ts int64) RunnerEvent {
	return RunnerEvent{Kind: KindRunnerStarted, RunnerID: runnerID, Symbol: symbol, Timestamp: ts}
}

func RunnerStopped(runnerID, reason string, ts int64) RunnerEvent {
	return RunnerEvent{Kind: KindRunnerStopped, RunnerID: runnerID, Reason: reason, Timestamp: ts}
}

func TickReceived(runnerID, symbol string, b market.Bar) RunnerEvent {
	return RunnerEvent{Kind: KindTickReceived, RunnerID: runnerID, Symbol: symbol, Bar: &b, Timestamp: b.TimestampMs}
}

func StateTransition(runnerID string, from, to fsm.State, reason string, ts int64) RunnerEvent {
	return RunnerEvent{Kind: KindStateTransition, RunnerID: runnerID, From: &from, To: &to, Reason: reason, Timestamp: ts}
}

func ActionExecuted(runnerID string, action fsm.Action, ts int64) RunnerEvent {
	return RunnerEvent{Kind: KindActionExecuted, RunnerID: runnerID, Action: &action, Timestamp: ts}
}

func PositionOpened(runnerID string, view PositionView, ts int64) RunnerEvent {
	return RunnerEvent{Kind: KindPositionOpened, RunnerID: runnerID, Position: &view, Timestamp: ts}
}

func PositionUpdated(runnerID string, price, unrealizedPnL float64, ts int64) RunnerEvent {
	return RunnerEvent{Kind: KindPositionUpdated, RunnerID: runnerID, Price: price, UnrealizedPnL: unrealizedPnL, Timestamp: ts}
}

func PositionClosed(runnerID string, exitPrice, realizedPnL float64, reason string, ts int64) RunnerEvent {
	return RunnerEvent{Kind: KindPositionClosed, RunnerID: runnerID, Price: exitPrice, RealizedPnL: realizedPnL, Reason: reason, Timestamp: ts}
}

func Error(runnerID, message string, severity Severity, ts int64) RunnerEvent {
	return RunnerEvent{Kind: KindError, RunnerID: runnerID, Message: message, Severity: severity, Timestamp: ts}
}

func StatsUpdate(runnerID string, ticks, actions uint64, errorRate, avgTickMs float64, ts int64) RunnerEvent {
	return RunnerEvent{
		Kind: KindStatsUpdate, RunnerID: runnerID, Timestamp: ts,
		TicksProcessed: ticks, ActionsExecuted: actions, ErrorRate: errorRate, AvgTickDurationMs: avgTickMs,
	}
}
