package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/relaychat/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent fails if an event of kind shows up within a short grace period.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// statusTrail collects, in order, the statuses announced for messageID among
// the events already queued on ch.
func statusTrail(ch <-chan *Event, messageID string) []store.MessageStatus {
	var trail []store.MessageStatus
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == EventStatusUpdated && ev.MessageID == messageID {
				trail = append(trail, ev.Status)
			}
		default:
			return trail
		}
	}
}

func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

type fakeStore struct {
	mu         sync.Mutex
	seq        int
	messages   map[string]*store.Message
	presence   map[string]store.UserStatus
	failCreate bool
	failRead   bool
	// afterCreate runs once the message is stored, outside the lock.
	afterCreate func(id string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[string]*store.Message),
		presence: make(map[string]store.UserStatus),
	}
}

func (s *fakeStore) CreateMessage(_ context.Context, msg *store.Message) (string, error) {
	s.mu.Lock()
	if s.failCreate {
		s.mu.Unlock()
		return "", errors.New("disk full")
	}
	s.seq++
	cp := *msg
	cp.ID = fmt.Sprintf("m%03d", s.seq)
	s.messages[cp.ID] = &cp
	hook := s.afterCreate
	s.mu.Unlock()

	if hook != nil {
		hook(cp.ID)
	}
	return cp.ID, nil
}

func (s *fakeStore) UpdateMessageStatus(_ context.Context, id string, status store.MessageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	if !m.Status.CanAdvanceTo(status) {
		return store.ErrStatusNotAdvanced
	}
	m.Status = status
	return nil
}

func (s *fakeStore) MarkRoomRead(_ context.Context, roomID, receiverID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, errors.New("database is locked")
	}
	var ids []string
	for id, m := range s.messages {
		if m.RoomID == roomID && m.ReceiverID == receiverID && m.Status.CanAdvanceTo(store.MessageStatusRead) {
			m.Status = store.MessageStatusRead
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) FindUser(_ context.Context, id string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.presence[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.User{ID: id, Username: id, Status: st}, nil
}

func (s *fakeStore) UpsertUserPresence(_ context.Context, id string, status store.UserStatus, _ time.Time) error {
	s.mu.Lock()
	s.presence[id] = status
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) status(id string) store.MessageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		return m.Status
	}
	return ""
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *fakeStore) userStatus(id string) store.UserStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence[id]
}

// authed connects and authenticates a connection, draining the confirmation.
func authed(t *testing.T, h *Hub, userID string) *Connection {
	t.Helper()
	conn := h.Connect()
	if err := h.Authenticate(context.Background(), conn, userID); err != nil {
		t.Fatalf("authenticate %s: %v", userID, err)
	}
	mustEvent(t, conn.Events(), EventAuthenticated)
	return conn
}
