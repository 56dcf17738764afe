package core

import (
	"sync"

	"github.com/samber/lo"
)

// SessionState is the lifecycle state of a connection.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	stateAuthenticating
	StateAuthenticated
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case stateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultSendQueueSize bounds the per-connection outbound queue.
const DefaultSendQueueSize = 64

// Connection is one live client session as seen by the core layer.
//
// Lock order: mu before room locks, room locks before sendMu.
type Connection struct {
	ID string

	events chan *Event
	done   chan struct{}

	mu     sync.Mutex
	state  SessionState
	userID string
	name   string
	rooms  map[string]struct{}

	sendMu sync.RWMutex
	closed bool
}

// NewConnection constructs an unauthenticated connection.
func NewConnection(id string, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	return &Connection{
		ID:     id,
		events: make(chan *Event, queueSize),
		done:   make(chan struct{}),
		rooms:  make(map[string]struct{}),
	}
}

// Events streams outbound events. It is never closed; watch Done instead.
func (c *Connection) Events() <-chan *Event { return c.events }

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// State returns the current session state.
func (c *Connection) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the bound user while authenticated.
func (c *Connection) UserID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.state == StateAuthenticated
}

// Rooms returns the rooms the connection is a member of.
func (c *Connection) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Keys(c.rooms)
}

// deliver enqueues ev without blocking. Closed or saturated connections drop it.
func (c *Connection) deliver(ev *Event) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

func (c *Connection) beginAuth() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateUnauthenticated:
		c.state = stateAuthenticating
		return nil
	case StateClosed:
		return ErrConnectionClosed
	default:
		return ErrAlreadyAuthenticated
	}
}

// completeAuth finishes authentication. It reports false if the connection
// was closed while the bind was in flight.
func (c *Connection) completeAuth(userID, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateAuthenticating {
		return false
	}
	c.state = StateAuthenticated
	c.userID = userID
	c.name = name
	return true
}

func (c *Connection) joinRoom(reg *Registry, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAuthLocked(); err != nil {
		return err
	}
	reg.Join(roomID, c)
	c.rooms[roomID] = struct{}{}
	return nil
}

func (c *Connection) leaveRoom(reg *Registry, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAuthLocked(); err != nil {
		return err
	}
	reg.Leave(roomID, c)
	delete(c.rooms, roomID)
	return nil
}

func (c *Connection) requireAuthLocked() error {
	switch c.state {
	case StateAuthenticated:
		return nil
	case StateClosed:
		return ErrConnectionClosed
	default:
		return ErrUnauthorized
	}
}

// close transitions to Closed exactly once. It returns the user that was bound
// (empty if none) and the rooms to leave; first is false on repeated calls.
func (c *Connection) close() (userID string, rooms []string, first bool) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return "", nil, false
	}
	prev := c.state
	c.state = StateClosed
	if prev == StateAuthenticated {
		userID = c.userID
	}
	rooms = lo.Keys(c.rooms)
	c.rooms = make(map[string]struct{})
	c.mu.Unlock()

	c.sendMu.Lock()
	c.closed = true
	c.sendMu.Unlock()
	close(c.done)
	return userID, rooms, true
}
