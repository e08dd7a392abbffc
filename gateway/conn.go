package gateway

import (
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Identity describes who is on the other end of a connection. It is fixed at
// handshake time except for LastActivity, which every inbound operation
// refreshes before dispatch.
type Identity struct {
	ServiceID     string    `json:"serviceId"`
	ServiceName   string    `json:"serviceName,omitempty"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
}

// conn is one live websocket connection. The send channel is never closed;
// writers check done instead, so a broadcast racing a disconnect can at worst
// enqueue into a channel nobody drains.
type conn struct {
	id   string
	send chan []byte
	done chan struct{}

	// shutdown tears the connection down exactly once. Assigned by the
	// handler before the conn is registered with the hub.
	shutdown func(code websocket.StatusCode, reason string)

	mu        sync.Mutex
	identity  Identity
	closeOnce sync.Once
}

func newConn(id string, identity Identity, queueSize int) *conn {
	return &conn{
		id:       id,
		send:     make(chan []byte, queueSize),
		done:     make(chan struct{}),
		identity: identity,
	}
}

// Done reports connection teardown. Safe on a nil conn so select loops can
// hold one without guarding.
func (c *conn) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.done
}

// close marks the connection dead. Idempotent.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// touch records inbound activity.
func (c *conn) touch(now time.Time) {
	c.mu.Lock()
	c.identity.LastActivity = now
	c.mu.Unlock()
}

// snapshot returns a copy of the identity safe to hand out.
func (c *conn) snapshot() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// enqueue offers a marshalled frame to the writer without blocking. Frames
// for dead or saturated connections are dropped; the caller treats delivery
// as best effort.
func (c *conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
