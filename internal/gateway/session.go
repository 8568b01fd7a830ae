package gateway

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/oriys/optionspulse/internal/domain"
	"github.com/oriys/optionspulse/internal/metrics"
)

// Client is a single connected websocket session: its connection, a bounded
// outbound buffer, and the set of rooms it currently belongs to. Adapted
// from the feed-simulator's session.Client, generalized from a locate-code
// subscription set to a room-string set.
type Client struct {
	ID   string
	Conn *websocket.Conn

	mu    sync.RWMutex
	rooms map[string]bool

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	Dropped uint64
}

func newClient(conn *websocket.Conn, bufferSize int) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Conn:   conn,
		rooms:  make(map[string]bool),
		sendCh: make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

// Join adds the client to room.
func (c *Client) Join(room string) {
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
}

// Leave removes the client from room.
func (c *Client) Leave(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// InRoom reports whether the client currently belongs to room.
func (c *Client) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

// Rooms returns a snapshot of the client's current room membership.
func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// Send enqueues a frame for delivery, reporting false if the bounded
// send buffer is full (§4.3.4: overflow disconnects the client, it never
// silently drops a non-overflowing client's events).
func (c *Client) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		c.Dropped++
		return false
	}
}

// SendCh returns the channel drained by the write pump.
func (c *Client) SendCh() <-chan []byte { return c.sendCh }

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close terminates the underlying connection exactly once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}

// Hub owns every locally-connected client and a room -> client reverse
// index, so a broadcast only has to walk the members of the target room
// instead of every connection.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	byRoom     map[string]map[string]*Client
	bufferSize int
}

// NewHub creates an empty Hub whose clients get a send buffer of
// bufferSize frames.
func NewHub(bufferSize int) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		byRoom:     make(map[string]map[string]*Client),
		bufferSize: bufferSize,
	}
}

// Register wraps conn as a Client and joins it to the general room, per
// §4.3.1's connect contract.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := newClient(conn, h.bufferSize)

	h.mu.Lock()
	h.clients[c.ID] = c
	c.Join(domain.GeneralRoom)
	h.addToRoomLocked(domain.GeneralRoom, c)
	h.mu.Unlock()

	if m := metrics.Get(); m != nil {
		m.GatewayConnections.Inc()
	}
	return c
}

// Unregister removes c from the hub and every room it belonged to, then
// closes its connection.
func (h *Hub) Unregister(c *Client, reason string) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	for _, room := range c.Rooms() {
		h.removeFromRoomLocked(room, c)
	}
	h.mu.Unlock()

	c.Close()
	if m := metrics.Get(); m != nil {
		m.GatewayConnections.Dec()
		m.GatewayDisconnects.WithLabelValues(reason).Inc()
	}
}

// JoinRoom adds c to room, tracked both on the client and the reverse
// index.
func (h *Hub) JoinRoom(c *Client, room, kind string) {
	h.mu.Lock()
	c.Join(room)
	h.addToRoomLocked(room, c)
	h.mu.Unlock()

	if m := metrics.Get(); m != nil {
		m.GatewayRoomsJoined.WithLabelValues(kind).Inc()
	}
}

// LeaveRoom removes c from room.
func (h *Hub) LeaveRoom(c *Client, room string) {
	h.mu.Lock()
	c.Leave(room)
	h.removeFromRoomLocked(room, c)
	h.mu.Unlock()
}

func (h *Hub) addToRoomLocked(room string, c *Client) {
	members, ok := h.byRoom[room]
	if !ok {
		members = make(map[string]*Client)
		h.byRoom[room] = members
	}
	members[c.ID] = c
}

func (h *Hub) removeFromRoomLocked(room string, c *Client) {
	members, ok := h.byRoom[room]
	if !ok {
		return
	}
	delete(members, c.ID)
	if len(members) == 0 {
		delete(h.byRoom, room)
	}
}

// Broadcast delivers payload as event to every client currently in room.
// A client whose send buffer overflows is disconnected rather than having
// the event silently dropped for it (§4.3.4).
func (h *Hub) Broadcast(room, event string, payload []byte) {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.byRoom[room]))
	for _, c := range h.byRoom[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	if len(members) == 0 {
		return
	}
	if m := metrics.Get(); m != nil {
		m.GatewayBroadcasts.WithLabelValues(event).Add(float64(len(members)))
	}

	for _, c := range members {
		if !c.Send(frame) {
			h.Unregister(c, "send_buffer_overflow")
		}
	}
}

// BroadcastRooms delivers payload as event once to every client that
// belongs to any of rooms, deduplicated by client ID so a client that is a
// member of more than one target room still receives exactly one copy
// (§8: no duplicate deliveries).
func (h *Hub) BroadcastRooms(rooms []string, event string, payload []byte) {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return
	}

	h.mu.RLock()
	members := make(map[string]*Client)
	for _, room := range rooms {
		for id, c := range h.byRoom[room] {
			members[id] = c
		}
	}
	h.mu.RUnlock()

	if len(members) == 0 {
		return
	}
	if m := metrics.Get(); m != nil {
		m.GatewayBroadcasts.WithLabelValues(event).Add(float64(len(members)))
	}

	for _, c := range members {
		if !c.Send(frame) {
			h.Unregister(c, "send_buffer_overflow")
		}
	}
}

// ClientCount returns the number of currently connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
