// Package wsapi fans out engine events to WebSocket dashboards with a
// register/unregister/broadcast select loop sourced from an
// engine.Engine subscription, rate-limiting the high-frequency event
// kinds per client so one busy symbol can't starve a dashboard's view
// of the rest.
package wsapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/marksmithsgit/lumen-engine/internal/engine"
	"github.com/marksmithsgit/lumen-engine/internal/events"
)

// Hub manages all WebSocket dashboard clients and fans out engine
// events to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan events.RunnerEvent
	mu         sync.RWMutex
	log        zerolog.Logger
}

// NewHub creates a Hub; call Run in its own goroutine, then Attach it to
// an engine's event stream.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan events.RunnerEvent, 256),
		log:        log.With().Str("component", "wsapi").Logger(),
	}
}

// Attach subscribes to eng's event stream and forwards every event onto
// the hub's broadcast loop, for the lifetime of the supplied engine.
func (h *Hub) Attach(eng *engine.Engine) {
	ch := eng.Subscribe(1024)
	go func() {
		for ev := range ch {
			h.broadcast <- ev
		}
	}()
}

// Run starts the hub's event loop; it never returns.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug().Msg("dashboard client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Debug().Msg("dashboard client unregistered")

		case ev := <-h.broadcast:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev events.RunnerEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if ev.IsHighFrequency() && !ev.IsCritical() && !client.limiter.Allow() {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.log.Warn().Msg("dashboard client send buffer full, dropping connection")
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

// upgrader allows connections with no Origin header (native clients),
// localhost for local dashboard development, and the 10.10.10.0/24
// operator network.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if origin == "http://localhost:5173" || origin == "https://localhost:5173" {
			return true
		}
		if host, _, err := net.SplitHostPort(r.Host); err == nil && strings.HasPrefix(host, "10.10.10.") {
			return true
		}
		return false
	},
}

// ServeWs upgrades an HTTP request to a WebSocket dashboard connection.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, 256),
		limiter: rate.NewLimiter(20, 20),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}
