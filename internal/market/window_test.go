package market

import "testing"

func testBar(i int) Bar {
	return Bar{
		Symbol:      "BTCUSDT",
		TimestampMs: int64(i),
		Open:        100 + float64(i),
		High:        105 + float64(i),
		Low:         95 + float64(i),
		Close:       102 + float64(i),
		Volume:      1000 + uint64(i),
		Bid:         101 + float64(i),
		Ask:         103 + float64(i),
	}
}

func TestWindowPushAndCapacity(t *testing.T) {
	w := NewWindow(3)
	for i := 0; i < 5; i++ {
		w.Push(testBar(i))
	}
	if w.Len() != 3 {
		t.Fatalf("expected len 3, got %d", w.Len())
	}
	latest, ok := w.Latest()
	if !ok || latest.TimestampMs != 4 {
		t.Fatalf("expected latest timestamp 4, got %+v", latest)
	}
}

func TestWindowHighLow(t *testing.T) {
	w := NewWindow(10)
	for i := 0; i < 5; i++ {
		w.Push(testBar(i))
	}
	high, ok := w.High(3)
	if !ok || high != 109.0 {
		t.Fatalf("expected high 109.0, got %v ok=%v", high, ok)
	}
	low, ok := w.Low(3)
	if !ok || low != 97.0 {
		t.Fatalf("expected low 97.0, got %v ok=%v", low, ok)
	}
}

func TestWindowAvgVolume(t *testing.T) {
	w := NewWindow(10)
	for i := 0; i < 5; i++ {
		w.Push(testBar(i))
	}
	avg, ok := w.AvgVolume(5)
	if !ok || avg != 1002.0 {
		t.Fatalf("expected avg 1002.0, got %v ok=%v", avg, ok)
	}
}

func TestWindowEmpty(t *testing.T) {
	w := NewWindow(10)
	if !w.IsEmpty() || w.Len() != 0 {
		t.Fatalf("expected empty window")
	}
	if _, ok := w.High(1); ok {
		t.Fatalf("expected no high on empty window")
	}
	if _, ok := w.Low(1); ok {
		t.Fatalf("expected no low on empty window")
	}
	if _, ok := w.AvgVolume(1); ok {
		t.Fatalf("expected no avg volume on empty window")
	}
}

func TestBarValidate(t *testing.T) {
	good := Bar{Symbol: "X", Open: 1, High: 2, Low: 1, Close: 1.5, Ask: 1.6, Bid: 1.4}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := good
	bad.High, bad.Low = 1, 2
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for high < low")
	}
}
