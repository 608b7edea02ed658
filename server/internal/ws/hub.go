package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hydrostack/hydrostack/pkg/types"
	"github.com/hydrostack/hydrostack/server/internal/store"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	sendBufSize  = 32
	maxReadSize  = 512
)

// Event names sent to clients.
const (
	EventSnapshot = "snapshot"
	EventStatus   = "status"
	EventStation  = "event"
	EventAlert    = "alert"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are checked at the reverse proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Snapshot is the payload of a snapshot message.
type Snapshot struct {
	Stations    []types.StationStatus `json:"stations"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// Hub fans station updates out to WebSocket clients. A client connected
// with ?station=ID only receives that station's messages and snapshots.
type Hub struct {
	store    *store.Store
	interval time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn    *websocket.Conn
	station string
	send    chan []byte
}

func (c *client) wants(station string) bool {
	return c.station == "" || station == "" || c.station == station
}

// New creates a Hub that reads from st and sends snapshots every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		now:      time.Now,
		clients:  make(map[*client]struct{}),
	}
}

// Run sends snapshots every interval until ctx is cancelled, then closes
// all connections.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.sendSnapshots()
		}
	}
}

// Broadcast sends an update about station to every client following it.
// An empty station reaches all clients.
func (h *Hub) Broadcast(station, event string, v any) {
	data, err := json.Marshal(Message{Event: event, Data: v})
	if err != nil {
		slog.Error("ws: marshal broadcast", "event", event, "err", err)
		return
	}
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if c.wants(station) && !offer(c, data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	h.drop(slow)
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{
		conn:    conn,
		station: r.URL.Query().Get("station"),
		send:    make(chan []byte, sendBufSize),
	}
	if data, err := h.encodeSnapshot(h.store.List(), c.station); err == nil {
		c.send <- data
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Debug("ws: client connected", "remote", r.RemoteAddr, "station", c.station)

	go c.writeLoop()
	c.readLoop()
	h.drop([]*client{c})
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) sendSnapshots() {
	entries := h.store.List()
	encoded := make(map[string][]byte)

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		data, ok := encoded[c.station]
		if !ok {
			var err error
			if data, err = h.encodeSnapshot(entries, c.station); err != nil {
				slog.Error("ws: marshal snapshot", "err", err)
				continue
			}
			encoded[c.station] = data
		}
		if !offer(c, data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	h.drop(slow)
}

func (h *Hub) encodeSnapshot(entries []store.Entry, station string) ([]byte, error) {
	snap := Snapshot{Stations: []types.StationStatus{}, GeneratedAt: h.now().UTC()}
	for _, e := range entries {
		if station == "" || e.Status.Station == station {
			snap.Stations = append(snap.Stations, e.Status)
		}
	}
	return json.Marshal(Message{Event: EventSnapshot, Data: snap})
}

// offer queues data without blocking. It must be called with h.mu held so
// drop cannot close the channel concurrently.
func offer(c *client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// drop unregisters clients; a client that cannot keep up is disconnected.
func (h *Hub) drop(cs []*client) {
	if len(cs) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range cs {
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()
	for {
		var (
			kind = websocket.TextMessage
			msg  []byte
		)
		select {
		case data, ok := <-c.send:
			if !ok {
				kind = websocket.CloseMessage
			}
			msg = data
		case <-ping.C:
			kind = websocket.PingMessage
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(kind, msg); err != nil || kind == websocket.CloseMessage {
			return
		}
	}
}

// readLoop discards client input and returns when the peer goes away.
func (c *client) readLoop() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
