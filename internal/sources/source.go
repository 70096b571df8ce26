// Package sources defines the uniform market data source contract every
// concrete feed implements, grounded on the reference engine's
// MarketDataSource trait (connect/subscribe/next_tick/disconnect).
package sources

import (
	"context"

	"github.com/marksmithsgit/lumen-engine/internal/market"
)

// Source is the lifecycle every market data provider follows: Connect,
// then Subscribe to a symbol set, then repeated NextBar calls, then
// Disconnect. A Source is not expected to be safe for concurrent use by
// more than one caller of NextBar.
type Source interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	NextBar(ctx context.Context) (market.Bar, error)
	Disconnect(ctx context.Context) error
}
