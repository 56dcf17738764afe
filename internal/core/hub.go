package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/relaychat/internal/metrics"
	"github.com/vovakirdan/relaychat/internal/presence"
	"github.com/vovakirdan/relaychat/internal/store"
	"github.com/vovakirdan/relaychat/internal/utils"
)

const (
	// DefaultMaxMessageChars caps the body length of a submitted message.
	DefaultMaxMessageChars = 4000
	// DefaultFanoutChannel is the pub/sub channel peers relay on.
	DefaultFanoutChannel = "new_message"

	cleanupTimeout = 5 * time.Second
)

// Store is the persistence the hub needs.
type Store interface {
	CreateMessage(ctx context.Context, msg *store.Message) (string, error)
	UpdateMessageStatus(ctx context.Context, id string, status store.MessageStatus) error
	MarkRoomRead(ctx context.Context, roomID, receiverID string) ([]string, error)
	FindUser(ctx context.Context, id string) (*store.User, error)
	UpsertUserPresence(ctx context.Context, id string, status store.UserStatus, lastSeen time.Time) error
}

// Presence records which connection a user is reachable on.
type Presence interface {
	Bind(ctx context.Context, userID, ref string)
	Lookup(ctx context.Context, userID string) (string, bool)
	Unbind(ctx context.Context, userID, ref string) bool
}

// RateLimiter gates submissions per sender.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) bool
}

// Fanout relays events between instances.
type Fanout interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error
}

// Deps wires the hub to its collaborators. Store is required.
type Deps struct {
	Store    Store
	Presence Presence
	Limiter  RateLimiter
	Fanout   Fanout
	Metrics  *metrics.Metrics
	Logger   *zerolog.Logger

	InstanceID      string
	FanoutChannel   string
	MaxMessageChars int
	SendQueueSize   int
	Now             func() time.Time
}

// Hub coordinates connections, rooms and message relay.
type Hub struct {
	store    Store
	presence Presence
	limiter  RateLimiter
	fanout   Fanout
	metrics  *metrics.Metrics
	log      *zerolog.Logger

	instanceID string
	channel    string
	maxChars   int
	queueSize  int
	now        func() time.Time
	rooms      *Registry

	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewHub creates a hub. Missing optional collaborators fall back to
// in-process presence, no rate limiting and no cross-instance relay.
func NewHub(deps Deps) *Hub {
	if deps.Store == nil {
		panic("core: NewHub requires a Store")
	}
	h := &Hub{
		store:      deps.Store,
		presence:   deps.Presence,
		limiter:    deps.Limiter,
		fanout:     deps.Fanout,
		metrics:    deps.Metrics,
		log:        deps.Logger,
		instanceID: deps.InstanceID,
		channel:    deps.FanoutChannel,
		maxChars:   deps.MaxMessageChars,
		queueSize:  deps.SendQueueSize,
		now:        deps.Now,
		rooms:      NewRegistry(),
		conns:      make(map[string]*Connection),
	}
	if h.log == nil {
		nop := zerolog.Nop()
		h.log = &nop
	}
	if h.presence == nil {
		h.presence = presence.New(nil, h.log)
	}
	if h.limiter == nil {
		h.limiter = allowAll{}
	}
	if h.instanceID == "" {
		h.instanceID = utils.NewID()
	}
	if h.channel == "" {
		h.channel = DefaultFanoutChannel
	}
	if h.maxChars <= 0 {
		h.maxChars = DefaultMaxMessageChars
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// InstanceID identifies this hub among its peers.
func (h *Hub) InstanceID() string { return h.instanceID }

// Rooms exposes the room registry.
func (h *Hub) Rooms() *Registry { return h.rooms }

// ConnRef is the presence reference stored for conn.
func (h *Hub) ConnRef(conn *Connection) string {
	return h.instanceID + "/" + conn.ID
}

// Connect registers a new unauthenticated connection.
func (h *Hub) Connect() *Connection {
	conn := NewConnection(utils.NewID(), h.queueSize)
	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()
	h.metrics.ConnectionOpened()
	h.log.Debug().Str("client_id", conn.ID).Msg("connection opened")
	return conn
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Handle routes a command from conn to the matching operation.
func (h *Hub) Handle(ctx context.Context, conn *Connection, cmd Command) error {
	switch cmd.Kind {
	case CommandAuthenticate:
		return h.Authenticate(ctx, conn, cmd.UserID)
	case CommandJoinRoom:
		return h.JoinRoom(conn, cmd.Room)
	case CommandLeaveRoom:
		return h.LeaveRoom(conn, cmd.Room)
	case CommandSendMessage:
		_, err := h.Submit(ctx, conn, cmd.Send)
		return err
	case CommandMarkRead:
		userID, ok := conn.UserID()
		if !ok {
			h.notify(conn, ErrCodeUnauthorized, "authenticate first")
			return ErrUnauthorized
		}
		roomID := strings.TrimSpace(cmd.Room)
		if roomID == "" {
			h.notify(conn, ErrCodeBadRequest, "roomId is required")
			return ErrBadRequest
		}
		if _, err := h.MarkRead(ctx, roomID, userID); err != nil {
			h.log.Error().Err(err).Str("room_id", roomID).Str("user_id", userID).Msg("mark room read")
			h.notify(conn, ErrCodePersistenceFailed, "read status could not be saved")
			return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
		}
		return nil
	default:
		h.notify(conn, ErrCodeBadRequest, "unknown command")
		return ErrBadRequest
	}
}

// Authenticate binds conn to userID and records the user as online.
// Presence or store outages are logged and never fail authentication.
func (h *Hub) Authenticate(ctx context.Context, conn *Connection, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		h.notify(conn, ErrCodeBadRequest, "userId is required")
		return ErrBadRequest
	}
	if err := conn.beginAuth(); err != nil {
		if errors.Is(err, ErrAlreadyAuthenticated) {
			h.notify(conn, ErrCodeAlreadyAuthenticated, "connection is already authenticated")
		}
		return err
	}

	ref := h.ConnRef(conn)
	h.presence.Bind(ctx, userID, ref)
	if err := h.store.UpsertUserPresence(ctx, userID, store.UserStatusOnline, h.now()); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("record online status")
	}

	name := userID
	if u, err := h.store.FindUser(ctx, userID); err == nil && u.Username != "" {
		name = u.Username
	}

	if !conn.completeAuth(userID, name) {
		// Closed while binding; undo what this attempt recorded.
		h.releaseUser(ctx, userID, ref)
		return ErrConnectionClosed
	}

	conn.deliver(&Event{Kind: EventAuthenticated, User: userID, Name: name})
	h.log.Info().Str("client_id", conn.ID).Str("user_id", userID).Msg("connection authenticated")
	return nil
}

// JoinRoom subscribes an authenticated connection to roomID. Idempotent.
func (h *Hub) JoinRoom(conn *Connection, roomID string) error {
	return h.changeRoom(conn, roomID, conn.joinRoom)
}

// LeaveRoom unsubscribes conn from roomID. Idempotent.
func (h *Hub) LeaveRoom(conn *Connection, roomID string) error {
	return h.changeRoom(conn, roomID, conn.leaveRoom)
}

func (h *Hub) changeRoom(conn *Connection, roomID string, op func(*Registry, string) error) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		h.notify(conn, ErrCodeBadRequest, "roomId is required")
		return ErrBadRequest
	}
	err := op(h.rooms, roomID)
	if errors.Is(err, ErrUnauthorized) {
		h.notify(conn, ErrCodeUnauthorized, "authenticate first")
	}
	return err
}

// Disconnect closes conn, removes it from every room and, if it still owns
// the user's presence binding, marks the user offline. Safe to call twice.
func (h *Hub) Disconnect(ctx context.Context, conn *Connection) {
	userID, rooms, first := conn.close()
	if !first {
		return
	}
	for _, roomID := range rooms {
		h.rooms.Leave(roomID, conn)
	}

	h.mu.Lock()
	delete(h.conns, conn.ID)
	h.mu.Unlock()
	h.metrics.ConnectionClosed()

	if userID != "" {
		h.releaseUser(ctx, userID, h.ConnRef(conn))
	}
	h.log.Debug().Str("client_id", conn.ID).Str("user_id", userID).Msg("connection closed")
}

// releaseUser drops the presence binding for ref and marks the user offline,
// unless a newer connection has already replaced the binding.
func (h *Hub) releaseUser(parent context.Context, userID, ref string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), cleanupTimeout)
	defer cancel()

	if !h.presence.Unbind(ctx, userID, ref) {
		return
	}
	if err := h.store.UpsertUserPresence(ctx, userID, store.UserStatusOffline, h.now()); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("record offline status")
	}
}

// Start subscribes to peer relays.
func (h *Hub) Start(ctx context.Context) error {
	if h.fanout == nil {
		return nil
	}
	return h.fanout.Subscribe(ctx, h.channel, h.onRelay)
}

// Run starts the hub and blocks until ctx is cancelled, then closes every
// live connection.
func (h *Hub) Run(ctx context.Context) {
	if err := h.Start(ctx); err != nil {
		h.log.Error().Err(err).Msg("fanout subscribe failed; running without peer relay")
	}
	<-ctx.Done()
	h.Shutdown(context.WithoutCancel(ctx))
}

// Shutdown disconnects every live connection.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.RLock()
	conns := lo.Values(h.conns)
	h.mu.RUnlock()
	for _, conn := range conns {
		h.Disconnect(ctx, conn)
	}
}

func (h *Hub) notify(conn *Connection, code, msg string) {
	conn.deliver(&Event{Kind: EventError, Error: coreError(code, msg)})
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string) bool { return true }
