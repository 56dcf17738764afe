package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a user or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned when a username is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrStatusNotAdvanced is returned when a message is already at or past the requested status.
	ErrStatusNotAdvanced = errors.New("status not advanced")
)

// UserStatus is the presence status persisted for a user.
type UserStatus string

const (
	UserStatusOnline  UserStatus = "online"
	UserStatusOffline UserStatus = "offline"
)

// User represents a user identity in the system.
type User struct {
	ID        string
	Username  string
	Status    UserStatus
	LastSeen  time.Time
	CreatedAt time.Time
}

// MessageStatus is the delivery status of a message.
// Statuses are ordered: pending < sent < delivered < read.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Rank returns the position of the status in the delivery order, or -1 if unknown.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusPending:
		return 0
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool {
	return s.Rank() >= 0
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.Valid() && next.Rank() > s.Rank()
}

// Message represents a persisted chat message.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	RoomID     string
	Body       string
	Status     MessageStatus
	CreatedAt  time.Time
}

// Page is a paginated slice of messages, newest first.
type Page struct {
	Messages    []*Message
	Total       int
	CurrentPage int
	TotalPages  int
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a user with a unique username.
	CreateUser(ctx context.Context, username string) (*User, error)

	// FindUser retrieves a user by ID.
	FindUser(ctx context.Context, id string) (*User, error)

	// UpsertUserPresence records the online status and last-seen time of a user.
	// Unknown users are created with their ID as username.
	UpsertUserPresence(ctx context.Context, id string, status UserStatus, lastSeen time.Time) error

	// ListUsers lists all users, most recently seen first.
	ListUsers(ctx context.Context) ([]*User, error)

	// ListOnlineUsers lists users whose status is online.
	ListOnlineUsers(ctx context.Context) ([]*User, error)

	// SearchUsers finds users whose username contains query.
	SearchUsers(ctx context.Context, query string, limit int) ([]*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message and returns its ID.
	// An empty msg.ID is assigned by the store.
	CreateMessage(ctx context.Context, msg *Message) (string, error)

	// UpdateMessageStatus moves a message forward to status.
	// Backward or same-status updates leave the row untouched and return
	// ErrStatusNotAdvanced.
	UpdateMessageStatus(ctx context.Context, id string, status MessageStatus) error

	// MarkRoomRead advances every sent or delivered message addressed to
	// receiverID in roomID to read, returning the updated IDs.
	MarkRoomRead(ctx context.Context, roomID, receiverID string) ([]string, error)

	// ListRoomMessages returns a page of messages in a room.
	ListRoomMessages(ctx context.Context, roomID string, page, limit int) (*Page, error)

	// ListConversation returns a page of messages exchanged between two users.
	ListConversation(ctx context.Context, userA, userB string, page, limit int) (*Page, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
