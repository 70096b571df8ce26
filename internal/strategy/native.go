package strategy

import (
	"github.com/marksmithsgit/lumen-engine/internal/fsm"
	"github.com/marksmithsgit/lumen-engine/internal/market"
)

// Params is a runtime-tunable parameter bag keyed by parameter name.
type Params map[string]float64

// Parametrizable lets a strategy be reconfigured without reconstruction.
type Parametrizable interface {
	SetParams(p Params)
}

// EMACrossover trades a 10/20-period moving-average crossover confirmed
// by a 14-period RSI filter. Both averages come from IndicatorView.MA,
// a simple moving average; no exponential weighting is applied. It
// trades through the full detect/filter/manage contract instead of
// returning a single Buy/Sell signal, so entries carry a stop-loss and
// take-profit derived from the signal bar's close.
type EMACrossover struct {
	fastPeriod int
	slowPeriod int
	rsiPeriod  int
	qty        float64
	stopPct    float64
	targetPct  float64
}

// NewEMACrossover returns an EMACrossover with conservative defaults:
// a 10/20 period cross confirmed by a 14-period RSI, trading 0.1 units
// with a 2%/5% stop/target band around the signal price.
func NewEMACrossover() *EMACrossover {
	return &EMACrossover{fastPeriod: 10, slowPeriod: 20, rsiPeriod: 14, qty: 0.1, stopPct: 0.02, targetPct: 0.05}
}

func (s *EMACrossover) Name() string { return "ema_crossover" }

func (s *EMACrossover) SetParams(p Params) {
	if v, ok := p["fast"]; ok && v > 1 {
		s.fastPeriod = int(v)
	}
	if v, ok := p["slow"]; ok && v > 1 {
		s.slowPeriod = int(v)
	}
	if v, ok := p["rsi"]; ok && v > 1 {
		s.rsiPeriod = int(v)
	}
	if v, ok := p["qty"]; ok && v > 0 {
		s.qty = v
	}
	if v, ok := p["stopPct"]; ok && v > 0 {
		s.stopPct = v
	}
	if v, ok := p["targetPct"]; ok && v > 0 {
		s.targetPct = v
	}
}

func (s *EMACrossover) DetectOpportunity(bar market.Bar, _ ContextView, ind IndicatorView) (*Opportunity, error) {
	fast, ok1 := ind.MA(s.fastPeriod)
	slow, ok2 := ind.MA(s.slowPeriod)
	if !ok1 || !ok2 {
		return nil, nil
	}
	rsi, ok3 := ind.RSI(s.rsiPeriod)
	if !ok3 {
		return nil, nil
	}
	if fast > slow && rsi > 50 {
		return &Opportunity{Signal: "bullish", Confidence: 0.8}, nil
	}
	if fast < slow && rsi < 50 {
		return &Opportunity{Signal: "bearish", Confidence: 0.8}, nil
	}
	return nil, nil
}

func (s *EMACrossover) FilterCommitment(bar market.Bar, ctx ContextView, _ IndicatorView) (*fsm.Action, error) {
	signal, ok := ctx.String("signal")
	if !ok {
		return nil, nil
	}
	switch signal {
	case "bullish":
		a := fsm.NewEnterLong(bar.Close, s.qty).WithRisk(bar.Close*(1-s.stopPct), bar.Close*(1+s.targetPct))
		return &a, nil
	case "bearish":
		a := fsm.NewEnterShort(bar.Close, s.qty).WithRisk(bar.Close*(1+s.stopPct), bar.Close*(1-s.targetPct))
		return &a, nil
	}
	return nil, nil
}

func (s *EMACrossover) ManagePosition(bar market.Bar, ctx ContextView, ind IndicatorView) (*fsm.Action, error) {
	fast, ok1 := ind.MA(s.fastPeriod)
	slow, ok2 := ind.MA(s.slowPeriod)
	if !ok1 || !ok2 {
		return nil, nil
	}
	// The position direction lives on the FSM, not in the strategy's
	// read-only views, so ManagePosition infers it from the "signal" the
	// detected opportunity left in context and exits once the MAs cross
	// against it. A dead cross (fast == slow) is inconclusive and holds.
	signal, ok := ctx.String("signal")
	if !ok {
		return nil, nil
	}
	crossedBearish := fast < slow && signal == "bullish"
	crossedBullish := fast > slow && signal == "bearish"
	if crossedBearish || crossedBullish {
		a := fsm.NewExit(bar.Close)
		return &a, nil
	}
	return nil, nil
}

// DonchianBreakout trades a channel-breakout entry with an optional
// ATR-proportional buffer, sizing entries with a stop-loss and
// take-profit band instead of returning a bare Buy/Sell signal.
type DonchianBreakout struct {
	length    int
	bufferATR float64
	qty       float64
	stopPct   float64
	targetPct float64
}

func NewDonchianBreakout() *DonchianBreakout {
	return &DonchianBreakout{length: 20, bufferATR: 0, qty: 0.1, stopPct: 0.02, targetPct: 0.05}
}

func (s *DonchianBreakout) Name() string { return "donchian_breakout" }

func (s *DonchianBreakout) SetParams(p Params) {
	if v, ok := p["len"]; ok && int(v) > 1 {
		s.length = int(v)
	}
	if v, ok := p["buf"]; ok && v >= 0 {
		s.bufferATR = v
	}
	if v, ok := p["qty"]; ok && v > 0 {
		s.qty = v
	}
}

func (s *DonchianBreakout) band(ind IndicatorView) (upper, lower float64, ok bool) {
	upper, ok1 := ind.High(s.length)
	lower, ok2 := ind.Low(s.length)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	if s.bufferATR > 0 {
		// Average-range proxy for ATR: Range(n)/n approximates the mean
		// true range closely enough for a breakout buffer without
		// requiring per-bar high/low history through IndicatorView.
		if rng, ok := ind.Range(s.length); ok {
			buf := s.bufferATR * (rng / float64(s.length))
			upper += buf
			lower -= buf
		}
	}
	return upper, lower, true
}

func (s *DonchianBreakout) DetectOpportunity(bar market.Bar, _ ContextView, ind IndicatorView) (*Opportunity, error) {
	upper, lower, ok := s.band(ind)
	if !ok {
		return nil, nil
	}
	if bar.Close > upper {
		return &Opportunity{Signal: "bullish", Confidence: 0.7}, nil
	}
	if bar.Close < lower {
		return &Opportunity{Signal: "bearish", Confidence: 0.7}, nil
	}
	return nil, nil
}

func (s *DonchianBreakout) FilterCommitment(bar market.Bar, ctx ContextView, _ IndicatorView) (*fsm.Action, error) {
	signal, ok := ctx.String("signal")
	if !ok {
		return nil, nil
	}
	switch signal {
	case "bullish":
		a := fsm.NewEnterLong(bar.Close, s.qty).WithRisk(bar.Close*(1-s.stopPct), bar.Close*(1+s.targetPct))
		return &a, nil
	case "bearish":
		a := fsm.NewEnterShort(bar.Close, s.qty).WithRisk(bar.Close*(1+s.stopPct), bar.Close*(1-s.targetPct))
		return &a, nil
	}
	return nil, nil
}

func (s *DonchianBreakout) ManagePosition(bar market.Bar, _ ContextView, ind IndicatorView) (*fsm.Action, error) {
	upper, lower, ok := s.band(ind)
	if !ok {
		return nil, nil
	}
	// Re-entry back inside the channel closes the breakout trade.
	if bar.Close < upper && bar.Close > lower {
		a := fsm.NewExit(bar.Close)
		return &a, nil
	}
	return nil, nil
}

// SupertrendTrend trades a trend-follow band built from a volatility
// multiplier around the window's midpoint, signaling on a close
// crossing back through the opposite band from the prior tick.
// IndicatorView exposes window aggregates rather than per-bar
// high/low, so True Range is approximated as the average window Range
// over the ATR lookback (the same proxy DonchianBreakout uses for its
// buffer), and the band's own trailing values are held across ticks on
// the strategy itself via a shifted-window comparison against the
// previous tick's band.
type SupertrendTrend struct {
	atrLen int
	mult   float64
	qty    float64

	havePrev   bool
	prevUpper  float64
	prevLower  float64
	prevClose  float64
}

func NewSupertrendTrend() *SupertrendTrend {
	return &SupertrendTrend{atrLen: 10, mult: 3.0, qty: 0.1}
}

func (s *SupertrendTrend) Name() string { return "supertrend_trend" }

func (s *SupertrendTrend) SetParams(p Params) {
	if v, ok := p["atrLen"]; ok && int(v) > 1 {
		s.atrLen = int(v)
	}
	if v, ok := p["mult"]; ok && v > 0 {
		s.mult = v
	}
	if v, ok := p["qty"]; ok && v > 0 {
		s.qty = v
	}
}

func (s *SupertrendTrend) bands(ind IndicatorView) (upper, lower float64, ok bool) {
	high, ok1 := ind.High(s.atrLen)
	low, ok2 := ind.Low(s.atrLen)
	rng, ok3 := ind.Range(s.atrLen)
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, false
	}
	mid := (high + low) / 2
	atr := rng / float64(s.atrLen)
	return mid + s.mult*atr, mid - s.mult*atr, true
}

func (s *SupertrendTrend) DetectOpportunity(bar market.Bar, _ ContextView, ind IndicatorView) (*Opportunity, error) {
	upper, lower, ok := s.bands(ind)
	if !ok {
		return nil, nil
	}
	defer func() { s.havePrev, s.prevUpper, s.prevLower, s.prevClose = true, upper, lower, bar.Close }()

	if !s.havePrev {
		return nil, nil
	}
	if s.prevLower > 0 && s.prevClose <= s.prevLower && bar.Close > lower {
		return &Opportunity{Signal: "bullish", Confidence: 0.75}, nil
	}
	if s.prevUpper > 0 && s.prevClose >= s.prevUpper && bar.Close < upper {
		return &Opportunity{Signal: "bearish", Confidence: 0.75}, nil
	}
	return nil, nil
}

func (s *SupertrendTrend) FilterCommitment(bar market.Bar, ctx ContextView, _ IndicatorView) (*fsm.Action, error) {
	signal, ok := ctx.String("signal")
	if !ok {
		return nil, nil
	}
	switch signal {
	case "bullish":
		a := fsm.NewEnterLong(bar.Close, s.qty)
		return &a, nil
	case "bearish":
		a := fsm.NewEnterShort(bar.Close, s.qty)
		return &a, nil
	}
	return nil, nil
}

func (s *SupertrendTrend) ManagePosition(bar market.Bar, _ ContextView, ind IndicatorView) (*fsm.Action, error) {
	upper, lower, ok := s.bands(ind)
	if !ok {
		return nil, nil
	}
	// A close back through the band it broke out from reverses the trend.
	if bar.Close < lower || bar.Close > upper {
		a := fsm.NewExit(bar.Close)
		return &a, nil
	}
	return nil, nil
}
