package gateway

import (
	"sync"

	"github.com/coder/websocket"
)

// hub is the registry of live connections and their room memberships.
// Connect and disconnect are the only mutators of the connection set; room
// membership only grows for the life of a connection, so there is no
// unsubscribe path to race against broadcasts.
type hub struct {
	mu    sync.RWMutex
	conns map[string]*conn
	rooms map[string]map[string]*conn
}

func newHub() *hub {
	return &hub{
		conns: make(map[string]*conn),
		rooms: make(map[string]map[string]*conn),
	}
}

func (h *hub) add(c *conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

// remove drops the connection from the registry and every room, then marks
// it closed. Safe to call for an id that was already removed.
func (h *hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	for room, members := range h.rooms {
		delete(members, id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	if ok {
		c.close()
	}
}

func (h *hub) join(room string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*conn)
		h.rooms[room] = members
	}
	members[c.id] = c
}

// broadcast fans a frame out to every member of the room, skipping dead or
// saturated connections. It returns how many writers accepted the frame.
func (h *hub) broadcast(room string, frame []byte) int {
	h.mu.RLock()
	members := make([]*conn, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range members {
		if c.enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

// broadcastAll fans a frame out to every live connection regardless of room.
func (h *hub) broadcastAll(frame []byte) int {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if c.enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// identities snapshots every live connection's identity.
func (h *hub) identities() []Identity {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	out := make([]Identity, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.snapshot())
	}
	return out
}

// closeAll requests shutdown of every live connection. Used on server stop.
func (h *hub) closeAll(code websocket.StatusCode, reason string) {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if c.shutdown != nil {
			c.shutdown(code, reason)
		}
	}
}
