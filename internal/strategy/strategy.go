// Package strategy defines the uniform callback surface a trading
// strategy exposes to a SymbolRunner, plus a read-only indicator view
// over the runner's market window. Two concrete strategy families are
// provided: native Go signal strategies, and a Lua adapter for
// user-supplied scripts. Each script runs in a VM opened with
// gopher-lua's default standard libraries, so io, os and math.random
// are reachable from a script.
package strategy

import (
	"github.com/marksmithsgit/lumen-engine/internal/fsm"
	"github.com/marksmithsgit/lumen-engine/internal/market"
)

// ContextView is the read surface of fsm.Context handed to callbacks.
// *fsm.Context satisfies this directly.
type ContextView interface {
	String(key string) (string, bool)
	Number(key string) (float64, bool)
	Integer(key string) (int64, bool)
	Bool(key string) (bool, bool)
}

// IndicatorView is a read-only handle over a runner's BarWindow exposing
// the lookups strategies need: moving averages, RSI, window
// high/low/range/average-volume, and a last-N closes slice. Indicator
// math is a thin adapter over market.Window, not core engine logic.
type IndicatorView interface {
	MA(period int) (float64, bool)
	RSI(period int) (float64, bool)
	High(n int) (float64, bool)
	Low(n int) (float64, bool)
	Range(n int) (float64, bool)
	AvgVolume(n int) (float64, bool)
	Closes(n int) []float64
}

type windowIndicatorView struct {
	w *market.Window
}

// NewIndicatorView wraps a cloned window snapshot as a read-only
// indicator surface for one tick's strategy callbacks.
func NewIndicatorView(w *market.Window) IndicatorView {
	return windowIndicatorView{w: w}
}

func (v windowIndicatorView) High(n int) (float64, bool)      { return v.w.High(n) }
func (v windowIndicatorView) Low(n int) (float64, bool)       { return v.w.Low(n) }
func (v windowIndicatorView) Range(n int) (float64, bool)     { return v.w.Range(n) }
func (v windowIndicatorView) AvgVolume(n int) (float64, bool) { return v.w.AvgVolume(n) }
func (v windowIndicatorView) Closes(n int) []float64          { return v.w.Closes(n) }

// MA is a simple moving average of the last `period` closes.
func (v windowIndicatorView) MA(period int) (float64, bool) {
	closes := v.w.Closes(period)
	if len(closes) == 0 {
		return 0, false
	}
	var sum float64
	for _, c := range closes {
		sum += c
	}
	return sum / float64(len(closes)), true
}

// RSI computes the classic Wilder relative-strength index over the last
// `period` closes using a simple (non-smoothed) average of gains/losses.
func (v windowIndicatorView) RSI(period int) (float64, bool) {
	closes := v.w.Closes(period + 1)
	if len(closes) < 2 {
		return 0, false
	}
	var gains, losses float64
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses += -delta
		}
	}
	n := float64(len(closes) - 1)
	avgGain := gains / n
	avgLoss := losses / n
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// Opportunity is the opaque record detect_opportunity may return. The
// runner copies recognized fields (signal, confidence) into context.
type Opportunity struct {
	Signal     string
	Confidence float64
}

// Strategy is the adapter contract: detect an opportunity in Idle,
// filter a commitment in Analyzing, manage an open position in
// InPosition. A nil return means "no action this tick".
type Strategy interface {
	Name() string
	DetectOpportunity(bar market.Bar, ctx ContextView, ind IndicatorView) (*Opportunity, error)
	FilterCommitment(bar market.Bar, ctx ContextView, ind IndicatorView) (*fsm.Action, error)
	ManagePosition(bar market.Bar, ctx ContextView, ind IndicatorView) (*fsm.Action, error)
}
