package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sandeepprukmani-maker/jobstream/internal/protocol"
)

// ErrTooManyConnections is returned by Add when the connection ceiling is hit.
var ErrTooManyConnections = errors.New("too many websocket connections")

type client struct {
	conn *websocket.Conn
	reg  *Registry

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn, reg *Registry) *client {
	c := &client{
		conn: conn,
		reg:  reg,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

// trySend queues msg for the write pump. It reports false when the client is
// live but its buffer is full; a send to a closed client is dropped quietly.
// The per-client lock is what lets broadcasters race teardown safely: the
// channel is only ever closed under the same lock, in shutdown.
func (c *client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once, ending the write pump.
func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.reg.Remove(c)
			return
		}
	}
}

// Registry is the in-process map from session id to live observer
// connections. A connection belongs to at most one session; re-subscribing
// moves it. Sessions exist only while they have members.
type Registry struct {
	mu       sync.RWMutex
	conns    map[*client]bool
	sessions map[string]map[*client]bool
	owner    map[*client]string
	maxConns int
}

// NewRegistry creates a registry. maxConns of 0 means unlimited.
func NewRegistry(maxConns int) *Registry {
	return &Registry{
		conns:    make(map[*client]bool),
		sessions: make(map[string]map[*client]bool),
		owner:    make(map[*client]string),
		maxConns: maxConns,
	}
}

// Add registers a freshly upgraded connection and starts its write pump.
// The connection receives nothing until it subscribes to a session.
func (r *Registry) Add(conn *websocket.Conn) (*client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConns > 0 && len(r.conns) >= r.maxConns {
		return nil, ErrTooManyConnections
	}

	c := newClient(conn, r)
	r.conns[c] = true
	connectionsGauge.Inc()
	return c, nil
}

// Subscribe files c under sessionID, creating the session entry if absent.
// Subscribing to the session c already belongs to is a no-op; subscribing to
// a different session first removes c from the old one.
func (r *Registry) Subscribe(sessionID string, c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.conns[c] {
		return
	}
	if prev, ok := r.owner[c]; ok {
		if prev == sessionID {
			return
		}
		r.dropMemberLocked(prev, c)
	}
	set, ok := r.sessions[sessionID]
	if !ok {
		set = make(map[*client]bool)
		r.sessions[sessionID] = set
		sessionsGauge.Inc()
	}
	set[c] = true
	r.owner[c] = sessionID
}

// Unsubscribe removes c from whichever session it belongs to. The connection
// itself stays alive and may subscribe again.
func (r *Registry) Unsubscribe(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.owner[c]; ok {
		r.dropMemberLocked(sess, c)
	}
}

// Remove tears down a connection: unsubscribes it and closes its send
// channel, which ends the write pump. Safe to call more than once.
func (r *Registry) Remove(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.conns[c] {
		return
	}
	delete(r.conns, c)
	if sess, ok := r.owner[c]; ok {
		r.dropMemberLocked(sess, c)
	}
	c.shutdown()
	connectionsGauge.Dec()
}

// dropMemberLocked removes c from a session's member set and deletes the
// session entry when it empties. Caller must hold r.mu.
func (r *Registry) dropMemberLocked(sessionID string, c *client) {
	delete(r.owner, c)
	set, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.sessions, sessionID)
		sessionsGauge.Dec()
	}
}

// Broadcast serializes msg once and delivers it to every connection currently
// subscribed to sessionID. Delivery attempts are independent: a connection
// that cannot accept the frame is evicted without affecting its siblings.
// Broadcasting to an unknown or empty session is a silent no-op.
func (r *Registry) Broadcast(sessionID string, msg protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	r.mu.RLock()
	members := make([]*client, 0, len(r.sessions[sessionID]))
	for c := range r.sessions[sessionID] {
		members = append(members, c)
	}
	r.mu.RUnlock()

	for _, c := range members {
		if c.trySend(data) {
			broadcastFrames.WithLabelValues(string(msg.Type)).Inc()
		} else {
			// Client can't keep up, disconnect it.
			log.Printf("ws client too slow, disconnecting (session %s)", sessionID)
			evictionsTotal.Inc()
			r.Remove(c)
		}
	}
}

// MemberCount reports the live member count for a session.
func (r *Registry) MemberCount(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID])
}

// SessionCount reports the number of sessions with at least one member.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ConnCount reports all live connections, subscribed or not.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
