package core

import (
	"sync"

	"github.com/samber/lo"
)

// Room groups connections subscribed to the same room ID.
type Room struct {
	ID string

	mu      sync.RWMutex
	members map[*Connection]struct{}
	dead    bool
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		members: make(map[*Connection]struct{}),
	}
}

// Registry maps room IDs to their live members. Rooms exist only while they
// have at least one member.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

func (r *Registry) get(roomID string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

func (r *Registry) getOrCreate(roomID string) *Room {
	if room := r.get(roomID); room != nil {
		return room
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		room = newRoom(roomID)
		r.rooms[roomID] = room
	}
	return room
}

// Join adds conn to the room. Joining twice is a no-op.
func (r *Registry) Join(roomID string, conn *Connection) {
	for {
		room := r.getOrCreate(roomID)
		room.mu.Lock()
		if room.dead {
			// Pruned between lookup and lock; retry on the fresh room.
			room.mu.Unlock()
			continue
		}
		room.members[conn] = struct{}{}
		room.mu.Unlock()
		return
	}
}

// Leave removes conn from the room and prunes the room once empty.
func (r *Registry) Leave(roomID string, conn *Connection) {
	room := r.get(roomID)
	if room == nil {
		return
	}

	room.mu.Lock()
	delete(room.members, conn)
	empty := len(room.members) == 0
	room.mu.Unlock()
	if !empty {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	room.mu.Lock()
	defer room.mu.Unlock()
	if len(room.members) == 0 && r.rooms[roomID] == room {
		room.dead = true
		delete(r.rooms, roomID)
	}
}

// Contains reports whether conn is a member of the room.
func (r *Registry) Contains(roomID string, conn *Connection) bool {
	room := r.get(roomID)
	if room == nil {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	_, ok := room.members[conn]
	return ok
}

// Members returns a snapshot of the room's members.
func (r *Registry) Members(roomID string) []*Connection {
	room := r.get(roomID)
	if room == nil {
		return nil
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return lo.Keys(room.members)
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Broadcast enqueues ev on every member of the room and returns how many
// accepted it. Slow or closed members are skipped.
func (r *Registry) Broadcast(roomID string, ev *Event) int {
	room := r.get(roomID)
	if room == nil {
		return 0
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	delivered := 0
	for conn := range room.members {
		if conn.deliver(ev) {
			delivered++
		}
	}
	return delivered
}
