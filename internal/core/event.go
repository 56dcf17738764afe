package core

import "github.com/vovakirdan/relaychat/internal/store"

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventMessageNew carries an accepted message to room members.
	EventMessageNew EventKind = iota
	// EventStatusUpdated notifies room members that a message advanced.
	EventStatusUpdated
	// EventAuthenticated confirms a successful authenticate to the connection.
	EventAuthenticated
	// EventError notifies a single connection about a rejected request.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMessageNew:
		return "new_message"
	case EventStatusUpdated:
		return "message_status_update"
	case EventAuthenticated:
		return "authenticated"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to connections to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Room    string
	User    string
	Name    string
	Message Message

	// Set for EventStatusUpdated.
	MessageID string
	Status    store.MessageStatus

	Error *CoreError
}
