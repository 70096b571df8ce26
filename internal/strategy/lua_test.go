package strategy

import (
	"errors"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/marksmithsgit/lumen-engine/internal/engineerr"
)

func newTableAction(L *lua.LState, fields map[string]lua.LValue) *lua.LTable {
	t := L.NewTable()
	for k, v := range fields {
		t.RawSetString(k, v)
	}
	return t
}

func TestTableToActionEnterLongRequiresPriceAndQuantity(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	table := newTableAction(L, map[string]lua.LValue{
		"action": lua.LString("enter_long"),
	})
	_, err := tableToAction("s", table)
	if err == nil {
		t.Fatal("expected an error when price and quantity are both missing")
	}
	if !errors.Is(err, engineerr.ErrStrategyError) {
		t.Fatalf("expected engineerr.ErrStrategyError, got %v", err)
	}
}

func TestTableToActionEnterLongMistypedQuantityFails(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	table := newTableAction(L, map[string]lua.LValue{
		"action":   lua.LString("enter_long"),
		"price":    lua.LNumber(50000),
		"quantity": lua.LString("a lot"),
	})
	_, err := tableToAction("s", table)
	if err == nil {
		t.Fatal("expected an error for a non-numeric quantity field")
	}
	if !errors.Is(err, engineerr.ErrStrategyError) {
		t.Fatalf("expected engineerr.ErrStrategyError, got %v", err)
	}
}

func TestTableToActionEnterLongWithRequiredFieldsSucceeds(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	table := newTableAction(L, map[string]lua.LValue{
		"action":   lua.LString("enter_long"),
		"price":    lua.LNumber(50000),
		"quantity": lua.LNumber(0.1),
	})
	action, err := tableToAction("s", table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action.Price != 50000 || action.Quantity != 0.1 {
		t.Fatalf("unexpected action fields: %+v", action)
	}
	if action.StopLoss != nil || action.TakeProfit != nil {
		t.Fatalf("expected no risk band when stop_loss/take_profit are omitted, got %+v", action)
	}
}

func TestTableToActionEnterLongOptionalRiskFieldsAreAttachedWhenPresent(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	table := newTableAction(L, map[string]lua.LValue{
		"action":     lua.LString("enter_long"),
		"price":      lua.LNumber(50000),
		"quantity":   lua.LNumber(0.1),
		"stop_loss":  lua.LNumber(49000),
		"take_profit": lua.LNumber(52000),
	})
	action, err := tableToAction("s", table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action.StopLoss == nil || *action.StopLoss != 49000 {
		t.Fatalf("expected stop loss 49000, got %+v", action.StopLoss)
	}
	if action.TakeProfit == nil || *action.TakeProfit != 52000 {
		t.Fatalf("expected take profit 52000, got %+v", action.TakeProfit)
	}
}

func TestTableToActionExitRequiresPrice(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	table := newTableAction(L, map[string]lua.LValue{"action": lua.LString("exit")})
	_, err := tableToAction("s", table)
	if !errors.Is(err, engineerr.ErrStrategyError) {
		t.Fatalf("expected engineerr.ErrStrategyError for missing exit price, got %v", err)
	}
}

func TestTableToActionUnknownKindFails(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	table := newTableAction(L, map[string]lua.LValue{"action": lua.LString("teleport")})
	_, err := tableToAction("s", table)
	if !errors.Is(err, engineerr.ErrStrategyError) {
		t.Fatalf("expected engineerr.ErrStrategyError for unknown action kind, got %v", err)
	}
}

func TestTableToActionNilReturnsNoAction(t *testing.T) {
	action, err := tableToAction("s", lua.LNil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != nil {
		t.Fatalf("expected nil action, got %+v", action)
	}
}

func TestTableToActionStartAnalyzingDefaultsReason(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	table := newTableAction(L, map[string]lua.LValue{"action": lua.LString("start_analyzing")})
	action, err := tableToAction("s", table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action.Reason != "strategy signal" {
		t.Fatalf("expected default reason, got %q", action.Reason)
	}
}
