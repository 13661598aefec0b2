package session

import (
	"context"
	"sync"

	"github.com/Vasu1712/scenyx-realtime/internal/ws"
	"github.com/rs/zerolog/log"
)

// State is the lifecycle position of a connection.
type State int

const (
	StateConnected State = iota
	StateInSession
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInSession:
		return "in_session"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Connection is the router's per-socket dispatcher. Frames must be handed
// to it from a single goroutine so they are processed in receipt order.
type Connection struct {
	router *Router
	client *ws.Client

	mu        sync.Mutex
	state     State
	sessionID string
	userID    string
	cached    bool
}

func (c *Connection) Client() *ws.Client { return c.client }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the joined session, or "" outside a session.
func (c *Connection) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// HandleFrame decodes and dispatches one inbound frame.
func (c *Connection) HandleFrame(ctx context.Context, data []byte) {
	if c.State() == StateDisconnected {
		return
	}
	c.router.dispatch(ctx, c, data)
}

// Disconnect is terminal: presence is cleared, peers are told and pending
// throttled emissions of this connection are dropped or flushed.
func (c *Connection) Disconnect() {
	sessionID, userID, cached, _ := c.exit(StateDisconnected)
	c.router.depart(c, sessionID, userID, cached)
	log.Info().Str("module", "session").Str("conn", c.client.ID).Msg("connection closed")
}

func (c *Connection) enter(sessionID, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateConnected:
		c.state = StateInSession
		c.sessionID = sessionID
		c.userID = userID
		return true
	case StateInSession:
		log.Warn().Str("module", "session").Str("conn", c.client.ID).Str("current", c.sessionID).Str("requested", sessionID).Msg("join while already in a session dropped")
	}
	return false
}

func (c *Connection) setCached(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = v
}

// exit moves the connection to next and returns what it was joined to. ok is
// false when the connection was not in a session.
func (c *Connection) exit(next State) (sessionID, userID string, cached, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return "", "", false, false
	}
	ok = c.state == StateInSession
	sessionID, userID, cached = c.sessionID, c.userID, c.cached
	c.state = next
	c.sessionID, c.userID, c.cached = "", "", false
	return sessionID, userID, cached, ok
}
