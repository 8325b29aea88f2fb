package hub

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/nameishyam/code-together/domain"
)

type member struct {
	conn     domain.Connection
	clientID string
}

type room struct {
	members map[string]member
}

func (r *room) holds(clientID string) bool {
	for _, m := range r.members {
		if m.clientID == clientID {
			return true
		}
	}
	return false
}

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	Room    string `json:"room"`
	Clients int    `json:"clients"`
}

// Hub is the connection registry and room broadcaster. Join, Leave and the
// recipient snapshot taken by Broadcast share one lock so a broadcast never
// sees a half-applied membership change.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
	conns map[string]domain.Membership
}

func New() *Hub {
	return &Hub{
		rooms: make(map[string]*room),
		conns: make(map[string]domain.Membership),
	}
}

// Join registers conn in roomKey under clientID. A connection holds one
// membership at a time: an earlier membership with a different room or
// identity is dropped and returned as replaced.
func (h *Hub) Join(conn domain.Connection, roomKey, clientID string) (domain.Departure, bool) {
	if roomKey == "" || clientID == "" {
		return domain.Departure{}, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var replaced domain.Departure
	var ok bool
	if prev, exists := h.conns[conn.ID()]; exists {
		if prev.Room == roomKey && prev.ClientID == clientID {
			return domain.Departure{}, false
		}
		replaced, ok = h.removeLocked(conn.ID(), prev), true
	}

	r, exists := h.rooms[roomKey]
	if !exists {
		r = &room{members: make(map[string]member)}
		h.rooms[roomKey] = r
	}
	r.members[conn.ID()] = member{conn: conn, clientID: clientID}
	h.conns[conn.ID()] = domain.Membership{Room: roomKey, ClientID: clientID}

	slog.Info("client joined", "room", roomKey, "clientId", clientID, "conn", conn.ID(), "clients", len(r.members))
	return replaced, ok
}

// Leave removes whatever membership conn holds.
func (h *Hub) Leave(conn domain.Connection) (domain.Departure, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, exists := h.conns[conn.ID()]
	if !exists {
		return domain.Departure{}, false
	}
	return h.removeLocked(conn.ID(), m), true
}

func (h *Hub) removeLocked(connID string, m domain.Membership) domain.Departure {
	delete(h.conns, connID)

	d := domain.Departure{Membership: m}
	r, exists := h.rooms[m.Room]
	if !exists {
		return d
	}
	delete(r.members, connID)
	count := len(r.members)
	d.Shared = r.holds(m.ClientID)

	slog.Info("client left", "room", m.Room, "clientId", m.ClientID, "conn", connID, "clients", count)

	if count == 0 {
		delete(h.rooms, m.Room)
		slog.Info("room removed", "room", m.Room)
	}
	return d
}

func (h *Hub) Lookup(conn domain.Connection) (domain.Membership, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.conns[conn.ID()]
	return m, ok
}

// Broadcast queues msg for every member of roomKey except exclude and
// returns how many members accepted it. Recipients are snapshotted under the
// lock and sent to after it is released; the payload is encoded once per
// codec. Members whose queue rejects the message are closed and their
// transport then runs the disconnect path.
func (h *Hub) Broadcast(roomKey string, exclude domain.Connection, msg domain.Outbound) int {
	h.mu.Lock()
	var targets []domain.Connection
	if r, exists := h.rooms[roomKey]; exists {
		targets = make([]domain.Connection, 0, len(r.members))
		for id, m := range r.members {
			if exclude != nil && id == exclude.ID() {
				continue
			}
			targets = append(targets, m.conn)
		}
	}
	h.mu.Unlock()

	if msg.Frames == nil {
		msg.Frames = domain.NewFrameCache()
	}
	delivered := 0
	for _, c := range targets {
		if err := c.Send(msg); err != nil {
			slog.Warn("send failed, closing connection", "room", roomKey, "conn", c.ID(), "event", msg.Event, "error", err)
			go c.Close()
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) Stats() (rooms, clients int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms), len(h.conns)
}

// Rooms lists active rooms ordered by key.
func (h *Hub) Rooms() []RoomInfo {
	h.mu.Lock()
	out := make([]RoomInfo, 0, len(h.rooms))
	for key, r := range h.rooms {
		out = append(out, RoomInfo{Room: key, Clients: len(r.members)})
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}
