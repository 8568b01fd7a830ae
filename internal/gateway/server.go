package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oriys/optionspulse/internal/bus"
	"github.com/oriys/optionspulse/internal/config"
	"github.com/oriys/optionspulse/internal/domain"
	"github.com/oriys/optionspulse/internal/logging"
)

// Server is the broadcast gateway (G): an http.Handler that upgrades
// incoming requests to websocket sessions and a background listener that
// re-broadcasts the bus's enriched:* channels to the in-process Hub.
type Server struct {
	hub *Hub
	bus *bus.Bus
	cfg config.Config

	upgrader websocket.Upgrader
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a Server bound to b, with a Hub sized by cfg.Gateway.SendBufferSize.
func New(b *bus.Bus, cfg config.Config) *Server {
	return &Server{
		hub: NewHub(cfg.Gateway.SendBufferSize),
		bus: b,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// ServeHTTP upgrades the connection and runs its session to completion.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Op().Warn("websocket upgrade failed", "error", err)
		return
	}

	c := s.hub.Register(conn)
	connected, err := encodeValue("connected", ConnectedPayload{ClientID: c.ID, Rooms: c.Rooms()})
	if err == nil {
		c.Send(connected)
	}

	go s.writePump(c)
	s.readPump(c)
}

// readPump decodes client operations until the connection closes.
func (s *Server) readPump(c *Client) {
	defer s.hub.Unregister(c, "client_disconnect")

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.sendError(c, "malformed frame")
			continue
		}

		switch frame.Event {
		case "subscribe":
			s.handleSubscribe(c, frame.Data)
		case "unsubscribe":
			s.handleUnsubscribe(c, frame.Data)
		case "disconnect":
			return
		default:
			s.sendError(c, "unknown event")
		}
	}
}

func (s *Server) handleSubscribe(c *Client, data json.RawMessage) {
	var req RoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(c, "malformed subscribe payload")
		return
	}
	if err := req.Validate(); err != nil {
		s.sendError(c, err.Error())
		return
	}

	room := domain.Room(domain.RoomKind(req.Kind), req.Symbol)
	s.hub.JoinRoom(c, room, req.Kind)

	payload, err := encodeValue("subscribed", SubscribedPayload{Room: room})
	if err == nil {
		c.Send(payload)
	}
}

func (s *Server) handleUnsubscribe(c *Client, data json.RawMessage) {
	var req RoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(c, "malformed unsubscribe payload")
		return
	}
	if err := req.Validate(); err != nil {
		s.sendError(c, err.Error())
		return
	}

	room := domain.Room(domain.RoomKind(req.Kind), req.Symbol)
	s.hub.LeaveRoom(c, room)

	payload, err := encodeValue("unsubscribed", SubscribedPayload{Room: room})
	if err == nil {
		c.Send(payload)
	}
}

func (s *Server) sendError(c *Client, message string) {
	payload, err := encodeValue("error", ErrorPayload{Message: message})
	if err != nil {
		return
	}
	c.Send(payload)
}

// writePump drains c's send buffer onto the websocket connection, applying
// the per-write client-send timeout from §5.
func (s *Server) writePump(c *Client) {
	for {
		select {
		case <-c.Done():
			return
		case frame := <-c.SendCh():
			c.Conn.SetWriteDeadline(time.Now().Add(s.cfg.Timeouts.ClientSend))
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.hub.Unregister(c, "write_error")
				return
			}
		}
	}
}

// Listen subscribes to the bus's enriched:* channels and re-broadcasts each
// message to the Hub until ctx is cancelled, reconnecting with exponential
// backoff on disconnect (§4.3.4).
func (s *Server) Listen(ctx context.Context) {
	defer close(s.done)
	backoff := bus.NewBackoff(s.cfg.Reconnect.InitialDelay, s.cfg.Reconnect.MaxDelay)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		sub := s.bus.PSubscribe(ctx, "enriched:*")
		logging.Op().Info("gateway subscribed to enriched channels")
		backoff.Reset()

		s.drain(ctx, sub)
		sub.Close()

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		delay := backoff.Next()
		logging.Op().Warn("gateway bus listener disconnected, reconnecting", "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) drain(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			s.route(msg.Channel, []byte(msg.Payload))
		}
	}
}

// route re-broadcasts one enriched:* message to the rooms §4.3.2 names for
// its channel.
func (s *Server) route(channel string, payload []byte) {
	switch channel {
	case "enriched:underlying":
		var update domain.UnderlyingUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			logging.Op().Warn("gateway decode underlying update failed", "error", err)
			return
		}
		s.hub.BroadcastRooms(
			[]string{domain.Room(domain.RoomProduct, update.Product), domain.GeneralRoom},
			"underlying_update", payload,
		)

	case "enriched:option_chain":
		var chain domain.EnrichedChain
		if err := json.Unmarshal(payload, &chain); err != nil {
			logging.Op().Warn("gateway decode enriched chain failed", "error", err)
			return
		}
		s.hub.Broadcast(domain.Room(domain.RoomChain, chain.Product), "chain_update", payload)

		summaryPayload, err := json.Marshal(chain.Summary())
		if err != nil {
			logging.Op().Warn("gateway marshal chain summary failed", "error", err)
			return
		}
		s.hub.Broadcast(domain.GeneralRoom, "chain_summary", summaryPayload)
	}
}

// Stop signals Listen to return and waits for it to finish.
func (s *Server) Stop() {
	close(s.stopCh)
	<-s.done
}

// Hub exposes the server's in-process Hub.
func (s *Server) Hub() *Hub { return s.hub }
