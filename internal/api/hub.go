/*
Package api
File: hub.go
Description:
    The WebSocket Hub is the real-time transport for mutation requests and
    their replies.

    It maintains a registry of active clients keyed by player, forwards
    every inbound frame to the Dispatcher (which defers it onto the owner
    loop), and delivers outcomes and resyncs to the sockets of one player.
    It also answers whether a player still has any socket open, which the
    roster uses to decide what to keep in memory.

    Architecture:
    - Hub: owns the client registry; only Run touches it.
    - Client: one socket for one player.
    - ServeWs: upgrades GET /ws?player=<id> to a WebSocket.
*/

package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256

	// Inbound frames per second per socket, with a short burst allowance.
	frameRate  = 20
	frameBurst = 40
)

// Dispatcher receives connections and inbound frames.
type Dispatcher interface {
	// Connect readies player's artifact before the socket is accepted.
	Connect(ctx context.Context, player string) error
	// Dispatch handles one frame. It must not block.
	Dispatch(player string, frame []byte)
}

// Client represents a single connected socket.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	player  string
	send    chan []byte // Buffered channel for outbound messages
	limiter *rate.Limiter
}

type delivery struct {
	player string
	data   []byte
}

// Hub maintains the set of active clients.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	quit       chan struct{}

	dispatcher Dispatcher
	logger     *slog.Logger

	onlineMu sync.RWMutex
	online   map[string]int // open sockets per player
}

// NewHub creates a new Hub. Call Run in its own goroutine.
func NewHub(dispatcher Dispatcher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 1024),
		quit:       make(chan struct{}),
		dispatcher: dispatcher,
		logger:     logger,
		online:     make(map[string]int),
	}
}

// Online reports whether player has at least one registered socket.
func (h *Hub) Online(player string) bool {
	h.onlineMu.RLock()
	defer h.onlineMu.RUnlock()
	return h.online[player] > 0
}

func (h *Hub) track(player string, delta int) {
	h.onlineMu.Lock()
	defer h.onlineMu.Unlock()
	if n := h.online[player] + delta; n > 0 {
		h.online[player] = n
	} else {
		delete(h.online, player)
	}
}

// drop removes client from the registry. Only Run calls it.
func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.track(client.player, -1)
}

// SetDispatcher sets the inbound frame handler. Must be called before Run.
func (h *Hub) SetDispatcher(d Dispatcher) { h.dispatcher = d }

// SendTo queues data for every socket of player. It never blocks; if the
// delivery queue is full the message is dropped and logged.
func (h *Hub) SendTo(player string, data []byte) {
	select {
	case h.deliver <- delivery{player: player, data: data}:
	default:
		h.logger.Warn("WS: delivery queue full, dropping message", slog.String("player", player))
	}
}

// Stop ends Run and closes all client send channels.
func (h *Hub) Stop() { close(h.quit) }

// Run is the main event loop for the Hub.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.track(client.player, 1)
			h.logger.Info("WS: connection registered", slog.String("player", client.player))

		case client := <-h.unregister:
			h.drop(client)

		case d := <-h.deliver:
			for client := range h.clients {
				if client.player != d.player {
					continue
				}
				select {
				case client.send <- d.data:
				default:
					// Send buffer full: assume the client hung.
					h.drop(client)
				}
			}

		case <-h.quit:
			for client := range h.clients {
				h.drop(client)
			}
			return
		}
	}
}

// upgrader configures the WebSocket handshake.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs equips the player, upgrades the request and starts the client's pumps.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	player := r.URL.Query().Get("player")
	if !ValidPlayer(player) {
		http.Error(w, "Invalid player", http.StatusBadRequest)
		return
	}
	if hub.dispatcher != nil {
		if err := hub.dispatcher.Connect(r.Context(), player); err != nil {
			hub.logger.Warn("WS: connect refused", slog.String("player", player), slog.String("error", err.Error()))
			http.Error(w, "Server busy", http.StatusServiceUnavailable)
			return
		}
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("WS: upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := &Client{
		hub:     hub,
		conn:    conn,
		player:  player,
		send:    make(chan []byte, sendBufferSize),
		limiter: rate.NewLimiter(frameRate, frameBurst),
	}
	select {
	case hub.register <- client:
	case <-hub.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump forwards inbound frames to the dispatcher.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WS: read error", slog.String("player", c.player), slog.String("error", err.Error()))
			}
			break
		}
		if !c.allow() {
			c.hub.logger.Debug("WS: frame rate exceeded, dropping", slog.String("player", c.player))
			continue
		}
		if c.hub.dispatcher != nil {
			c.hub.dispatcher.Dispatch(c.player, message)
		}
	}
}

// allow reports whether the socket is within its inbound frame budget.
func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// writePump writes queued messages and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
