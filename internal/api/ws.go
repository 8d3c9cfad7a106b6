package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Harishik/SkyLand/internal/engine"
)

// Envelope is the wire format for stream messages. Type tells the client
// how to interpret Payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one connected websocket consumer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump drains inbound frames until the peer disconnects. Clients
// have nothing to say; the loop exists to notice the close.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	// Hub closed the channel; tell the peer we are done.
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Hub fans broadcast messages out to every connected client.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 16),
	}
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer; drop it rather than stall the feed.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// announce wraps payload in an Envelope and broadcasts it.
func (h *Hub) announce(typ string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("stream payload marshal failed", "type", typ, "error", err)
		return
	}
	msg, err := json.Marshal(Envelope{Type: typ, Payload: data})
	if err != nil {
		return
	}
	h.broadcast <- msg
}

// handleWS upgrades the connection and streams envelopes. The first
// message is always a full state view so the client can render without
// extra round trips.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, 32)}

	// Queue the state message before registering so it is the first
	// frame out, ahead of any broadcast.
	if data, err := json.Marshal(s.stateMessage()); err == nil {
		if msg, err := json.Marshal(Envelope{Type: "state", Payload: data}); err == nil {
			client.send <- msg
		}
	}

	s.hub.register <- client
	go client.writePump()
	go client.readPump()
}

func (s *Server) stateMessage() map[string]any {
	stats := s.City.Stats()
	news := s.City.News()
	if news == nil {
		news = []engine.News{}
	}
	return map[string]any{
		"day":        stats.Day,
		"money":      stats.Money,
		"population": stats.Population,
		"modifiers":  s.City.Modifiers(),
		"grid": map[string]any{
			"size":  s.City.GridSize(),
			"tiles": s.City.Tiles(),
		},
		"goal":  s.City.Goal(),
		"token": s.City.Token(),
		"governance": map[string]any{
			"active":        s.City.Proposal(),
			"last_resolved": s.City.LastResolved(),
		},
		"news":       news,
		"speed":      s.Scheduler.Speed(),
		"ai_enabled": s.Scheduler.AIEnabled(),
	}
}

// proposalKey fingerprints a proposal for transition detection. Attaching
// an audit changes the key so the update reaches clients even though the
// proposal ID stays the same.
func proposalKey(p *engine.Proposal) string {
	if p == nil {
		return ""
	}
	key := p.ID
	if p.Audit != nil {
		key += ":audited"
	}
	return key
}

// primeTransitions seeds the stream fingerprints from the live city so a
// resumed game does not replay its whole history to the first client.
func (s *Server) primeTransitions() {
	if news := s.City.News(); len(news) > 0 {
		s.lastNewsID = news[len(news)-1].ID
	}
	if g := s.City.Goal(); g != nil {
		s.lastGoalKey = g.ID
	}
	s.lastProposalKey = proposalKey(s.City.Proposal())
	if res := s.City.LastResolved(); res != nil {
		s.lastResolvedID = res.ID
	}
}

// OnTick publishes the tick report and any state transitions since the
// previous tick. Wired as the scheduler callback, so it always runs on
// the scheduler goroutine; the fingerprint fields need no lock.
func (s *Server) OnTick(report engine.TickReport) {
	s.hub.announce("tick", report)

	news := s.City.News()
	fresh := news
	for i := len(news) - 1; i >= 0; i-- {
		if news[i].ID == s.lastNewsID {
			fresh = news[i+1:]
			break
		}
	}
	for _, n := range fresh {
		s.hub.announce("news", n)
	}
	if len(news) > 0 {
		s.lastNewsID = news[len(news)-1].ID
	}

	goal := s.City.Goal()
	goalKey := ""
	if goal != nil {
		goalKey = goal.ID
	}
	if goalKey != s.lastGoalKey {
		s.lastGoalKey = goalKey
		s.hub.announce("goal", goal)
	}

	proposal := s.City.Proposal()
	if key := proposalKey(proposal); key != s.lastProposalKey {
		s.lastProposalKey = key
		s.hub.announce("proposal", proposal)
	}

	if res := s.City.LastResolved(); res != nil && res.ID != s.lastResolvedID {
		s.lastResolvedID = res.ID
		s.hub.announce("proposal_resolved", map[string]any{
			"proposal":  res,
			"modifiers": s.City.Modifiers(),
		})
	}
}
