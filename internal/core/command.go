package core

// CommandKind describes what the connection wants to do.
type CommandKind int

const (
	// CommandAuthenticate binds the connection to a user.
	CommandAuthenticate CommandKind = iota
	// CommandJoinRoom subscribes the connection to a room.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the connection from a room.
	CommandLeaveRoom
	// CommandSendMessage submits a message for relay.
	CommandSendMessage
	// CommandMarkRead marks a room as read by the connection's user.
	CommandMarkRead
)

// Command represents an action requested by a connection.
type Command struct {
	Kind   CommandKind
	UserID string
	Room   string
	Send   SubmitRequest
}
