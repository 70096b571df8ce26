package strategy

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/marksmithsgit/lumen-engine/internal/engineerr"
	"github.com/marksmithsgit/lumen-engine/internal/fsm"
	"github.com/marksmithsgit/lumen-engine/internal/market"
)

// requiredGlobals are the three callbacks every strategy script must
// define, checked once at load time so a malformed script fails fast
// instead of on its first tick.
var requiredGlobals = [...]string{"detect_opportunity", "filter_commitment", "manage_position"}

// LuaStrategy runs a user-supplied Lua script as a Strategy. Each
// SymbolRunner owns its own *lua.LState; states are never shared across
// goroutines, since gopher-lua's VM is not safe for concurrent use.
type LuaStrategy struct {
	state      *lua.LState
	scriptPath string
	name       string
}

// NewLuaStrategy loads and validates a script file, failing immediately
// if it does not define all three required globals.
func NewLuaStrategy(scriptPath, name string) (*LuaStrategy, error) {
	L := lua.NewState()
	if err := L.DoFile(scriptPath); err != nil {
		L.Close()
		return nil, fmt.Errorf("loading strategy script %s: %w", scriptPath, err)
	}
	for _, fn := range requiredGlobals {
		v := L.GetGlobal(fn)
		if v.Type() != lua.LTFunction {
			L.Close()
			return nil, fmt.Errorf("strategy script %s: missing required function %q", scriptPath, fn)
		}
	}
	return &LuaStrategy{state: L, scriptPath: scriptPath, name: name}, nil
}

// Close releases the underlying Lua VM. Call once the owning runner
// shuts down.
func (s *LuaStrategy) Close() {
	s.state.Close()
}

func (s *LuaStrategy) Name() string { return s.name }

func (s *LuaStrategy) DetectOpportunity(bar market.Bar, ctx ContextView, ind IndicatorView) (*Opportunity, error) {
	ret, err := s.call("detect_opportunity", bar, ctx, ind)
	if err != nil {
		return nil, err
	}
	if ret == lua.LNil {
		return nil, nil
	}
	table, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("strategy %s: detect_opportunity must return a table or nil", s.name)
	}
	signal := table.RawGetString("signal")
	if signal.Type() != lua.LTString {
		return nil, nil
	}
	confidence := 0.0
	if n, ok := table.RawGetString("confidence").(lua.LNumber); ok {
		confidence = float64(n)
	}
	return &Opportunity{Signal: signal.String(), Confidence: confidence}, nil
}

func (s *LuaStrategy) FilterCommitment(bar market.Bar, ctx ContextView, ind IndicatorView) (*fsm.Action, error) {
	ret, err := s.call("filter_commitment", bar, ctx, ind)
	if err != nil {
		return nil, err
	}
	return tableToAction(s.name, ret)
}

func (s *LuaStrategy) ManagePosition(bar market.Bar, ctx ContextView, ind IndicatorView) (*fsm.Action, error) {
	ret, err := s.call("manage_position", bar, ctx, ind)
	if err != nil {
		return nil, err
	}
	return tableToAction(s.name, ret)
}

// call invokes a named global function with (market_data, context,
// indicators) Lua tables, the same argument order the original script
// contract documents, and returns its single result value.
func (s *LuaStrategy) call(fn string, bar market.Bar, ctx ContextView, ind IndicatorView) (lua.LValue, error) {
	L := s.state
	fv := L.GetGlobal(fn)
	if fv.Type() != lua.LTFunction {
		return lua.LNil, fmt.Errorf("strategy %s: %s is no longer a function", s.name, fn)
	}
	if err := L.CallByParam(lua.P{
		Fn:      fv,
		NRet:    1,
		Protect: true,
	}, barToLua(L, bar), contextToLua(L, ctx), indicatorsToLua(L, ind)); err != nil {
		return lua.LNil, fmt.Errorf("strategy %s: %s: %w", s.name, fn, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

func barToLua(L *lua.LState, b market.Bar) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("symbol", lua.LString(b.Symbol))
	t.RawSetString("timestamp", lua.LNumber(b.TimestampMs))
	t.RawSetString("open", lua.LNumber(b.Open))
	t.RawSetString("high", lua.LNumber(b.High))
	t.RawSetString("low", lua.LNumber(b.Low))
	t.RawSetString("close", lua.LNumber(b.Close))
	t.RawSetString("volume", lua.LNumber(b.Volume))
	t.RawSetString("bid", lua.LNumber(b.Bid))
	t.RawSetString("ask", lua.LNumber(b.Ask))
	t.RawSetString("mid_price", lua.LNumber((b.Bid+b.Ask)/2))
	return t
}

// iterableContext is satisfied by *fsm.Context; kept narrow so this
// package need not import fsm's concrete type to flatten it.
type iterableContext interface {
	IterStrings(func(key, value string))
	IterNumbers(func(key string, value float64))
	IterIntegers(func(key string, value int64))
	IterBooleans(func(key string, value bool))
}

// contextToLua flattens a context into a single Lua table keyed by name
// across all four value kinds, exactly as context_to_lua does in the
// reference strategy bridge.
func contextToLua(L *lua.LState, ctx ContextView) *lua.LTable {
	t := L.NewTable()
	full, ok := ctx.(iterableContext)
	if !ok {
		return t
	}
	full.IterStrings(func(k, v string) { t.RawSetString(k, lua.LString(v)) })
	full.IterNumbers(func(k string, v float64) { t.RawSetString(k, lua.LNumber(v)) })
	full.IterIntegers(func(k string, v int64) { t.RawSetString(k, lua.LNumber(v)) })
	full.IterBooleans(func(k string, v bool) { t.RawSetString(k, lua.LBool(v)) })
	return t
}

// indicatorsToLua exposes sma/ema-style callables plus the window
// aggregate fields, matching indicators_to_lua's shape. Only a simple
// moving average and RSI are backed by real math (see IndicatorView);
// ema is served by the same MA implementation, since a true
// exponential average needs more window history than IndicatorView
// retains beyond N closes.
func indicatorsToLua(L *lua.LState, ind IndicatorView) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("sma", L.NewFunction(func(L *lua.LState) int {
		period := L.CheckInt(1)
		if v, ok := ind.MA(period); ok {
			L.Push(lua.LNumber(v))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))
	t.RawSetString("ema", L.NewFunction(func(L *lua.LState) int {
		period := L.CheckInt(1)
		if v, ok := ind.MA(period); ok {
			L.Push(lua.LNumber(v))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))
	t.RawSetString("rsi", L.NewFunction(func(L *lua.LState) int {
		period := L.CheckInt(1)
		if v, ok := ind.RSI(period); ok {
			L.Push(lua.LNumber(v))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))
	high, _ := ind.High(1 << 30)
	low, _ := ind.Low(1 << 30)
	rng, _ := ind.Range(1 << 30)
	avgVol, _ := ind.AvgVolume(1 << 30)
	t.RawSetString("high", lua.LNumber(high))
	t.RawSetString("low", lua.LNumber(low))
	t.RawSetString("range", lua.LNumber(rng))
	t.RawSetString("avg_volume", lua.LNumber(avgVol))
	return t
}

// tableToAction mirrors table_to_action's action-type switch exactly,
// translating a returned Lua table into an fsm.Action. Every rejection
// (unknown kind, non-string action field, missing/mistyped required
// numeric field) is an engineerr.ErrStrategyError, matching
// table_to_action's own Err(TradingEngineError::StrategyError(...))
// returns for the same cases.
func tableToAction(stratName string, v lua.LValue) (*fsm.Action, error) {
	if v == lua.LNil {
		return nil, nil
	}
	table, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: strategy %s: expected table or nil, got %s", engineerr.ErrStrategyError, stratName, v.Type().String())
	}
	kindVal := table.RawGetString("action")
	if kindVal == lua.LNil {
		return nil, nil
	}
	kind, ok := kindVal.(lua.LString)
	if !ok {
		return nil, fmt.Errorf("%w: strategy %s: action field must be a string", engineerr.ErrStrategyError, stratName)
	}

	// num requires field to be present and numeric; the reference
	// table.get("field")? call errors on either a missing key or a
	// type mismatch, and so does this.
	num := func(action, field string) (float64, error) {
		n, ok := table.RawGetString(field).(lua.LNumber)
		if !ok {
			return 0, fmt.Errorf("%w: strategy %s: %s requires numeric field %q", engineerr.ErrStrategyError, stratName, action, field)
		}
		return float64(n), nil
	}
	// optionalNum is for the Go-only stop_loss/take_profit convenience
	// fields WithRisk accepts; the reference table_to_action never
	// reads these, so a missing or mistyped value just leaves the leg
	// unset rather than failing the action.
	optionalNum := func(field string) float64 {
		if n, ok := table.RawGetString(field).(lua.LNumber); ok {
			return float64(n)
		}
		return 0
	}
	str := func(field, def string) string {
		if s, ok := table.RawGetString(field).(lua.LString); ok {
			return string(s)
		}
		return def
	}

	switch string(kind) {
	case "enter_long":
		price, err := num("enter_long", "price")
		if err != nil {
			return nil, err
		}
		qty, err := num("enter_long", "quantity")
		if err != nil {
			return nil, err
		}
		a := fsm.NewEnterLong(price, qty).WithRisk(optionalNum("stop_loss"), optionalNum("take_profit"))
		return &a, nil
	case "enter_short":
		price, err := num("enter_short", "price")
		if err != nil {
			return nil, err
		}
		qty, err := num("enter_short", "quantity")
		if err != nil {
			return nil, err
		}
		a := fsm.NewEnterShort(price, qty).WithRisk(optionalNum("stop_loss"), optionalNum("take_profit"))
		return &a, nil
	case "exit":
		price, err := num("exit", "price")
		if err != nil {
			return nil, err
		}
		a := fsm.NewExit(price)
		return &a, nil
	case "update_stop_loss":
		newStop, err := num("update_stop_loss", "new_stop")
		if err != nil {
			return nil, err
		}
		a := fsm.NewUpdateStopLoss(newStop)
		return &a, nil
	case "update_take_profit":
		newTarget, err := num("update_take_profit", "new_target")
		if err != nil {
			return nil, err
		}
		a := fsm.NewUpdateTakeProfit(newTarget)
		return &a, nil
	case "start_analyzing":
		a := fsm.NewStartAnalyzing(str("reason", "strategy signal"))
		return &a, nil
	case "cancel_analysis":
		a := fsm.NewCancelAnalysis(str("reason", "conditions not met"))
		return &a, nil
	default:
		return nil, fmt.Errorf("%w: strategy %s: unknown action type %q", engineerr.ErrStrategyError, stratName, string(kind))
	}
}
