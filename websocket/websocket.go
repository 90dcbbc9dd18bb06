package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/events"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/lobby"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/messages"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/state"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Time allowed to write a message to the peer.
	WriteWait time.Duration
	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration
	// Send pings to peer with this period. Must be less than PongWait.
	PingPeriod time.Duration
	// Maximum message size allowed from peer.
	MaxMessageSize int64
	// Outbound queue length per connection.
	SendBuffer int
	// Allowed Origin header values; "*" or empty allows any origin.
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 512,
		SendBuffer:     256,
		AllowedOrigins: []string{"*"},
	}
}

// Hub serves the /ws endpoint. Every connection gets a Client with its own read and write
// pumps; requests go through messages.Processor and lobby pushes through the lobby's
// notification channel.
type Hub struct {
	state     *state.AppState
	processor *messages.Processor
	upgrader  websocket.Upgrader
	cfg       Config

	mu      sync.Mutex
	clients map[*Client]struct{}
}

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	address string
	send    chan []byte
	done    chan struct{}
	once    sync.Once

	subMu    sync.Mutex
	sub      *events.Subscription
	subLobby *lobby.Lobby
}

func NewHub(s *state.AppState, cfg Config) *Hub {
	h := &Hub{
		state:   s,
		cfg:     cfg,
		clients: make(map[*Client]struct{}),
	}
	h.processor = messages.NewProcessor(s, messages.WithDetachHook(h.detach))
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("address", r.RemoteAddr).Msg("WebSocket upgrade error")
		return
	}

	c := &Client{
		hub:     h,
		conn:    conn,
		address: conn.RemoteAddr().String(),
		send:    make(chan []byte, h.cfg.SendBuffer),
		done:    make(chan struct{}),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	log.Info().Str("address", c.address).Int("connectionsCount", len(h.clients)).Msg("WebSocket connection established and registered")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		log.Info().Str("address", c.address).Int("remainingConnections", len(h.clients)).Msg("WebSocket connection deregistered")
	}
}

// detach resyncs the connection at address after its session was resumed elsewhere, which
// ends its lobby subscription.
func (h *Hub) detach(address string) {
	h.mu.Lock()
	var stale *Client
	for c := range h.clients {
		if c.address == address {
			stale = c
			break
		}
	}
	h.mu.Unlock()

	if stale != nil {
		log.Info().Str("address", address).Msg("Session resumed on another connection")
		stale.followLobby()
	}
}

// Connections returns the number of open connections.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close drops every open connection. Sessions stay registered and can be resumed.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
	log.Info().Int("connections", len(clients)).Msg("WebSocket hub closed")
}

func (c *Client) readPump() {
	defer c.shutdown()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("address", c.address).Msg("WebSocket closed unexpectedly")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		resp := c.hub.processor.Handle(c.address, message)
		data, err := messages.Encode(resp)
		if err != nil {
			log.Error().Err(err).Str("address", c.address).Msg("Failed to encode response")
			data, _ = messages.Encode(messages.NewError(err))
		}
		// Subscribe before replying so a client that acts on the reply cannot miss pushes
		// from the lobby it just entered.
		c.followLobby()
		c.enqueue(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("address", c.address).Msg("Failed to write message")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// enqueue never blocks the caller. A full queue drops the message.
func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		log.Warn().Str("address", c.address).Msg("Send queue full, dropping message")
	}
}

// followLobby keeps the client subscribed to the notification channel of whatever lobby its
// session is in now, switching when a request moved it.
func (c *Client) followLobby() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	var current *lobby.Lobby
	if sess, err := c.hub.state.SessionBySocket(c.address); err == nil {
		current, _ = c.hub.state.LobbyOf(sess)
	}
	if current == c.subLobby && c.sub != nil {
		return
	}
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
		c.subLobby = nil
	}
	if current == nil {
		return
	}

	sub, err := current.Channel().Subscribe()
	if err != nil {
		log.Debug().Err(err).Str("code", current.Code()).Msg("Lobby closed before subscribing")
		return
	}
	c.sub = sub
	c.subLobby = current
	go c.forward(sub, current.Code())
}

func (c *Client) forward(sub *events.Subscription, code string) {
	for event := range sub.Events() {
		data, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Str("code", code).Msg("Failed to marshal lobby event")
			continue
		}
		c.enqueue(data)
	}
	log.Debug().Str("address", c.address).Str("code", code).Msg("Stopped forwarding lobby events")
}

// shutdown runs once when the read side ends: it detaches the socket from its session, stops
// forwarding and lets writePump close the connection.
func (c *Client) shutdown() {
	c.once.Do(func() {
		c.subMu.Lock()
		if c.sub != nil {
			c.sub.Unsubscribe()
			c.sub = nil
			c.subLobby = nil
		}
		c.subMu.Unlock()

		c.hub.state.DisconnectSocket(c.address)
		c.hub.unregister(c)
		close(c.done)
	})
}
