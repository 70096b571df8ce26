package position

import "testing"

func TestLongUnrealizedPnL(t *testing.T) {
	p := New(50000, 0.1, Long, 1)
	p.UpdateCurrentPrice(52500)
	pnl, ok := p.UnrealizedPnL()
	if !ok {
		t.Fatal("expected open position to have unrealized pnl")
	}
	if got, want := pnl, 250.0; !almostEqual(got, want) {
		t.Fatalf("pnl = %v, want %v", got, want)
	}
}

func TestShortRealizedPnLOnStop(t *testing.T) {
	p := New(50000, 0.1, Short, 1)
	p.SetStopLoss(51000)
	p.UpdateCurrentPrice(51500)
	if !p.IsStopLossHit() {
		t.Fatal("expected stop loss hit")
	}
	p.Close(51500, 2)
	pnl, ok := p.RealizedPnL()
	if !ok {
		t.Fatal("expected closed position to have realized pnl")
	}
	if want := -150.0; !almostEqual(pnl, want) {
		t.Fatalf("pnl = %v, want %v", pnl, want)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := New(100, 1, Long, 0)
	p.Close(110, 1)
	p.Close(999, 2)
	exit := *p.ExitPrice
	if exit != 110 {
		t.Fatalf("second close mutated exit price: %v", exit)
	}
}

func TestUpdateCurrentPriceNoOpAfterClose(t *testing.T) {
	p := New(100, 1, Long, 0)
	p.Close(110, 1)
	p.UpdateCurrentPrice(200)
	if p.CurrentPrice != 100 {
		t.Fatalf("current price mutated after close: %v", p.CurrentPrice)
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
