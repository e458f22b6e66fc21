// ABOUTME: In-memory fan-out hub mapping rooms to connected clients
// ABOUTME: Non-blocking broadcast; slow consumers drop events, never block senders

package gateway

import (
	"log/slog"
	"sync"
)

// Hub tracks room membership for connected clients and fans event payloads
// out to them. Broadcasting is fire-and-forget: a consumer whose send buffer
// is full has the event dropped rather than blocking the sender or other
// rooms. Durability comes from the store, not the socket.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[Room]map[*client]struct{}
	members map[*client]map[Room]struct{}
	logger  *slog.Logger
}

// NewHub creates an empty hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:   make(map[Room]map[*client]struct{}),
		members: make(map[*client]map[Room]struct{}),
		logger:  logger.With("component", "hub"),
	}
}

// Join subscribes the client to a room.
func (h *Hub) Join(c *client, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*client]struct{})
	}
	h.rooms[room][c] = struct{}{}

	if _, ok := h.members[c]; !ok {
		h.members[c] = make(map[Room]struct{})
	}
	h.members[c][room] = struct{}{}

	h.logger.Debug("client joined room", "conn_id", c.id, "room", room.Name())
}

// Leave removes the client from a room. Leaving a room the client is not in
// is a no-op; no authorization is needed to leave.
func (h *Hub) Leave(c *client, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *client, room Room) {
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	if set, ok := h.members[c]; ok {
		delete(set, room)
	}
}

// RemoveClient removes the client from every room it joined. Called once on
// disconnect.
func (h *Hub) RemoveClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.members[c] {
		h.leaveLocked(c, room)
	}
	delete(h.members, c)

	h.logger.Debug("client removed", "conn_id", c.id)
}

// Broadcast sends a payload to every client in the room. If exclude is
// non-nil that client is skipped (used so typing events don't echo back to
// the typist).
func (h *Hub) Broadcast(room Room, payload []byte, exclude *client) {
	h.mu.RLock()
	set, ok := h.rooms[room]
	if !ok || len(set) == 0 {
		h.mu.RUnlock()
		return
	}

	// Copy targets under read lock to avoid holding it during sends
	targets := make([]*client, 0, len(set))
	for c := range set {
		if c == exclude {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}

// BroadcastAll sends a payload to every connected client. Used for the
// coarse presence and receipt events.
func (h *Hub) BroadcastAll(payload []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.members))
	for c := range h.members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}
