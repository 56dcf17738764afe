package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/relaychat/internal/metrics"
	"github.com/vovakirdan/relaychat/internal/store"
)

// SubmitRequest is a message submitted by an authenticated connection.
type SubmitRequest struct {
	ReceiverID string
	// RoomID defaults to the direct room of sender and receiver.
	RoomID           string
	Body             string
	CorrelationToken string
}

// Submit validates, rate limits, persists and broadcasts a message from conn.
// The sender learns about rejections through an error event on its own
// connection; nothing is broadcast or persisted for a rejected submission.
func (h *Hub) Submit(ctx context.Context, conn *Connection, req SubmitRequest) (*Message, error) {
	senderID, ok := conn.UserID()
	if !ok {
		if conn.State() == StateClosed {
			return nil, ErrConnectionClosed
		}
		h.reject(conn, metrics.ReasonUnauthorized, ErrCodeUnauthorized, "authenticate first")
		return nil, ErrUnauthorized
	}

	receiverID := strings.TrimSpace(req.ReceiverID)
	roomID := strings.TrimSpace(req.RoomID)
	switch {
	case receiverID == "":
		h.reject(conn, metrics.ReasonBadRequest, ErrCodeBadRequest, "receiverId is required")
		return nil, ErrBadRequest
	case strings.TrimSpace(req.Body) == "":
		h.reject(conn, metrics.ReasonBadRequest, ErrCodeBadRequest, "message is empty")
		return nil, ErrBadRequest
	case utf8.RuneCountInString(req.Body) > h.maxChars:
		h.reject(conn, metrics.ReasonBadRequest, ErrCodeBadRequest, fmt.Sprintf("message exceeds %d characters", h.maxChars))
		return nil, ErrBadRequest
	}
	if roomID == "" {
		roomID = DeriveRoomID(senderID, receiverID)
	}

	if !h.limiter.Allow(ctx, senderID) {
		h.reject(conn, metrics.ReasonRateLimited, ErrCodeRateLimited, "too many messages, slow down")
		return nil, ErrRateLimited
	}

	rec := &store.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		RoomID:     roomID,
		Body:       req.Body,
		Status:     store.MessageStatusSent,
		CreatedAt:  h.now().UTC(),
	}
	id, err := h.store.CreateMessage(ctx, rec)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", senderID).Str("room_id", roomID).Msg("persist message")
		h.reject(conn, metrics.ReasonPersistenceFailed, ErrCodePersistenceFailed, "message could not be saved")
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	rec.ID = id

	msg := messageFromRecord(rec, req.CorrelationToken)
	h.rooms.Broadcast(roomID, &Event{Kind: EventMessageNew, Room: roomID, Message: msg})
	h.metrics.MessageAccepted()
	h.publish(ctx, relayMessageEnvelope(h.instanceID, msg))

	if _, online := h.presence.Lookup(ctx, receiverID); online {
		h.advance(ctx, &msg, store.MessageStatusDelivered)
	}

	h.log.Debug().
		Str("user_id", senderID).
		Str("room_id", roomID).
		Str("message_id", msg.ID).
		Str("status", string(msg.Status)).
		Msg("message relayed")
	return &msg, nil
}

// advance persists a forward status change and broadcasts it to the room.
// Nothing is broadcast unless the stored row actually moved.
func (h *Hub) advance(ctx context.Context, msg *Message, status store.MessageStatus) {
	err := h.store.UpdateMessageStatus(ctx, msg.ID, status)
	switch {
	case errors.Is(err, store.ErrStatusNotAdvanced):
		// A concurrent mark-read already moved it further.
		h.log.Debug().Str("message_id", msg.ID).Str("status", string(status)).Msg("status already past target")
		return
	case err != nil:
		h.log.Warn().Err(err).Str("message_id", msg.ID).Str("status", string(status)).Msg("update message status")
		return
	}
	if err := msg.Advance(status); err != nil {
		return
	}
	h.broadcastStatus(ctx, msg.RoomID, msg.ID, status)
}

func (h *Hub) broadcastStatus(ctx context.Context, roomID, messageID string, status store.MessageStatus) {
	h.rooms.Broadcast(roomID, &Event{
		Kind:      EventStatusUpdated,
		Room:      roomID,
		MessageID: messageID,
		Status:    status,
	})
	h.metrics.StatusUpdated(string(status))
	h.publish(ctx, relayStatusEnvelope(h.instanceID, roomID, messageID, status))
}

// MarkRead advances every unread message addressed to readerID in roomID to
// read and notifies the room. It returns the IDs that changed.
func (h *Hub) MarkRead(ctx context.Context, roomID, readerID string) ([]string, error) {
	ids, err := h.store.MarkRoomRead(ctx, roomID, readerID)
	if err != nil {
		return nil, fmt.Errorf("mark room read: %w", err)
	}
	for _, id := range ids {
		h.broadcastStatus(ctx, roomID, id, store.MessageStatusRead)
	}
	if len(ids) > 0 {
		h.log.Debug().Str("room_id", roomID).Str("user_id", readerID).Int("count", len(ids)).Msg("room marked read")
	}
	return ids, nil
}

func (h *Hub) reject(conn *Connection, reason, code, msg string) {
	h.metrics.MessageRejected(reason)
	h.notify(conn, code, msg)
}
