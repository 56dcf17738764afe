package core

import (
	"sort"
	"strings"
	"time"

	"github.com/vovakirdan/relaychat/internal/store"
)

// Message is the domain model for a relayed chat message.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	RoomID     string
	Body       string
	Status     store.MessageStatus
	CreatedAt  time.Time
	// CorrelationToken is echoed back so the sender can match its optimistic copy.
	CorrelationToken string
}

// Advance moves the message forward to status. It never moves backwards.
func (m *Message) Advance(status store.MessageStatus) error {
	if !m.Status.CanAdvanceTo(status) {
		return ErrStatusRegression
	}
	m.Status = status
	return nil
}

func messageFromRecord(rec *store.Message, token string) Message {
	return Message{
		ID:               rec.ID,
		SenderID:         rec.SenderID,
		ReceiverID:       rec.ReceiverID,
		RoomID:           rec.RoomID,
		Body:             rec.Body,
		Status:           rec.Status,
		CreatedAt:        rec.CreatedAt,
		CorrelationToken: token,
	}
}

// roomIDEscaper escapes the separator so distinct pairs never share a room.
var roomIDEscaper = strings.NewReplacer(`\`, `\\`, "-", `\-`)

// DeriveRoomID returns the canonical direct-conversation room for two users.
// The result does not depend on argument order. IDs containing "-" or "\"
// are escaped.
func DeriveRoomID(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return roomIDEscaper.Replace(ids[0]) + "-" + roomIDEscaper.Replace(ids[1])
}
