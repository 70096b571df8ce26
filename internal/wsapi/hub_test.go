package wsapi

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/marksmithsgit/lumen-engine/internal/events"
	"github.com/marksmithsgit/lumen-engine/internal/market"
)

func testBar(symbol string, ts int64) market.Bar {
	return market.Bar{Symbol: symbol, TimestampMs: ts, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1, Bid: 1, Ask: 1}
}

// newTestClient builds a Client with no underlying websocket connection,
// which is safe here: Hub.Run/dispatch and the register/unregister paths
// never touch Client.conn, only send and limiter.
func newTestClient(burst int) *Client {
	return &Client{send: make(chan []byte, 8), limiter: rate.NewLimiter(rate.Limit(burst), burst)}
}

func recvOrTimeout(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast delivery")
		return nil
	}
}

func TestHubDeliversOrdinaryEventToRegisteredClient(t *testing.T) {
	h := NewHub(zerolog.Nop())
	go h.Run()

	c := newTestClient(20)
	h.register <- c
	time.Sleep(10 * time.Millisecond)

	h.broadcast <- events.RunnerStarted("r1", "BTCUSD", 1000)

	msg := recvOrTimeout(t, c.send)
	assert.Contains(t, string(msg), "RunnerStarted")
	assert.Contains(t, string(msg), "r1")
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	h := NewHub(zerolog.Nop())
	go h.Run()

	c := newTestClient(20)
	h.register <- c
	time.Sleep(10 * time.Millisecond)

	h.unregister <- c
	time.Sleep(10 * time.Millisecond)

	_, ok := <-c.send
	assert.False(t, ok, "send channel should be closed after unregister")
}

func TestHubThrottlesHighFrequencyEventsPerClient(t *testing.T) {
	h := NewHub(zerolog.Nop())
	go h.Run()

	c := newTestClient(1)
	h.register <- c
	time.Sleep(10 * time.Millisecond)

	bar := events.TickReceived("r1", "BTCUSD", testBar("BTCUSD", 1000))
	h.broadcast <- bar
	first := recvOrTimeout(t, c.send)
	assert.Contains(t, string(first), "TickReceived")

	h.broadcast <- bar
	select {
	case <-c.send:
		t.Fatal("expected second high-frequency tick to be throttled by the client's limiter")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubNeverThrottlesCriticalEvents(t *testing.T) {
	h := NewHub(zerolog.Nop())
	go h.Run()

	c := newTestClient(1)
	h.register <- c
	time.Sleep(10 * time.Millisecond)

	// Exhaust the limiter's single token with a throttleable event first.
	h.broadcast <- events.TickReceived("r1", "BTCUSD", testBar("BTCUSD", 1000))
	recvOrTimeout(t, c.send)

	stopped := events.RunnerStopped("r1", "shutdown", 2000)
	require.True(t, stopped.IsCritical())
	h.broadcast <- stopped

	msg := recvOrTimeout(t, c.send)
	assert.Contains(t, string(msg), "RunnerStopped")
}

func TestHubDropsClientWithFullSendBuffer(t *testing.T) {
	h := NewHub(zerolog.Nop())
	go h.Run()

	c := newTestClient(1000)
	h.register <- c
	time.Sleep(10 * time.Millisecond)

	// Fill the client's 8-slot send buffer beyond capacity with ordinary
	// (non-throttled) events so the hub is forced to drop it.
	for i := 0; i < 16; i++ {
		h.broadcast <- events.RunnerStarted("r1", "BTCUSD", int64(i))
	}
	time.Sleep(50 * time.Millisecond)

	// A dropped client gets unregistered, which closes send; draining
	// until the channel reports closed confirms it was dropped rather
	// than merely full.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the hub to drop the overflowing client")
		}
	}
}
