// Package market holds the immutable bar record and the bounded window
// of recent bars that the strategy-facing indicator surface reads from.
package market

import "fmt"

// Bar is one completed interval of OHLCV+bid/ask data for a single symbol.
type Bar struct {
	Symbol      string
	TimestampMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      uint64
	Bid         float64
	Ask         float64
}

// Validate checks the ingest invariants: high >= low, open > 0, close > 0,
// ask >= bid. A zero volume is not an error; callers should log it.
func (b Bar) Validate() error {
	if b.High < b.Low {
		return fmt.Errorf("market: bar %s@%d: high %.8f < low %.8f", b.Symbol, b.TimestampMs, b.High, b.Low)
	}
	if b.Open <= 0 {
		return fmt.Errorf("market: bar %s@%d: non-positive open %.8f", b.Symbol, b.TimestampMs, b.Open)
	}
	if b.Close <= 0 {
		return fmt.Errorf("market: bar %s@%d: non-positive close %.8f", b.Symbol, b.TimestampMs, b.Close)
	}
	if b.Ask < b.Bid {
		return fmt.Errorf("market: bar %s@%d: ask %.8f < bid %.8f", b.Symbol, b.TimestampMs, b.Ask, b.Bid)
	}
	return nil
}
