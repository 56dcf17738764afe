package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeAuthenticate = "authenticate"
	InboundTypeJoinRoom     = "join_room"
	InboundTypeLeaveRoom    = "leave_room"
	InboundTypeSendMessage  = "send_message"
	InboundTypeMarkRead     = "mark_read"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNewMessage    = "new_message"
	EventStatusUpdate  = "message_status_update"
	EventAuthenticated = "authenticated"
)

// AuthenticateData binds the connection to a user.
type AuthenticateData struct {
	UserID string `json:"userId" validate:"required,max=128"`
}

// RoomData names a room to join, leave or mark read.
type RoomData struct {
	RoomID string `json:"roomId" validate:"required,max=256"`
}

// SendMessageData is a chat message from the client. RoomID may be empty for
// a direct conversation.
type SendMessageData struct {
	ReceiverID       string `json:"receiverId" validate:"required,max=128"`
	RoomID           string `json:"roomId,omitempty" validate:"max=256"`
	Message          string `json:"message" validate:"required"`
	CorrelationToken string `json:"correlationToken,omitempty" validate:"max=128"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage carries an accepted message. Timestamp is unix milliseconds.
type EventMessage struct {
	ID               string `json:"id"`
	SenderID         string `json:"senderId"`
	ReceiverID       string `json:"receiverId"`
	RoomID           string `json:"roomId"`
	Message          string `json:"message"`
	Status           string `json:"status"`
	Timestamp        int64  `json:"timestamp"`
	CorrelationToken string `json:"correlationToken,omitempty"`
}

// EventStatus notifies that a message advanced.
type EventStatus struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	Status    string `json:"status"`
}

// EventAuthenticatedData confirms the bound identity.
type EventAuthenticatedData struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
