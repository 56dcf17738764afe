package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vovakirdan/relaychat/internal/store"
)

const (
	relayKindMessage = "message"
	relayKindStatus  = "status"
)

// relayEnvelope is the payload exchanged between instances over the fanout.
type relayEnvelope struct {
	Origin  string        `json:"origin"`
	Kind    string        `json:"kind"`
	Message *relayMessage `json:"message,omitempty"`
	Status  *relayStatus  `json:"status,omitempty"`
}

type relayMessage struct {
	ID               string    `json:"id"`
	SenderID         string    `json:"senderId"`
	ReceiverID       string    `json:"receiverId"`
	RoomID           string    `json:"roomId"`
	Body             string    `json:"message"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"timestamp"`
	CorrelationToken string    `json:"correlationToken,omitempty"`
}

type relayStatus struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	Status    string `json:"status"`
}

func relayMessageEnvelope(origin string, m Message) relayEnvelope {
	return relayEnvelope{
		Origin: origin,
		Kind:   relayKindMessage,
		Message: &relayMessage{
			ID:               m.ID,
			SenderID:         m.SenderID,
			ReceiverID:       m.ReceiverID,
			RoomID:           m.RoomID,
			Body:             m.Body,
			Status:           string(m.Status),
			CreatedAt:        m.CreatedAt,
			CorrelationToken: m.CorrelationToken,
		},
	}
}

func relayStatusEnvelope(origin, roomID, messageID string, status store.MessageStatus) relayEnvelope {
	return relayEnvelope{
		Origin: origin,
		Kind:   relayKindStatus,
		Status: &relayStatus{MessageID: messageID, RoomID: roomID, Status: string(status)},
	}
}

// publish hands env to peers. Failures are logged and counted only.
func (h *Hub) publish(ctx context.Context, env relayEnvelope) {
	if h.fanout == nil {
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Msg("encode relay envelope")
		return
	}
	if err := h.fanout.Publish(ctx, h.channel, payload); err != nil {
		h.metrics.FanoutPublishFailed()
		h.log.Warn().Err(err).Str("channel", h.channel).Msg("fanout publish failed")
	}
}

// onRelay delivers a peer's event to local room members.
func (h *Hub) onRelay(payload []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.log.Warn().Err(err).Msg("discard malformed relay envelope")
		return
	}
	if env.Origin == h.instanceID {
		return
	}

	switch {
	case env.Kind == relayKindMessage && env.Message != nil:
		m := env.Message
		msg := Message{
			ID:               m.ID,
			SenderID:         m.SenderID,
			ReceiverID:       m.ReceiverID,
			RoomID:           m.RoomID,
			Body:             m.Body,
			Status:           store.MessageStatus(m.Status),
			CreatedAt:        m.CreatedAt,
			CorrelationToken: m.CorrelationToken,
		}
		h.rooms.Broadcast(msg.RoomID, &Event{Kind: EventMessageNew, Room: msg.RoomID, Message: msg})
	case env.Kind == relayKindStatus && env.Status != nil:
		st := env.Status
		h.rooms.Broadcast(st.RoomID, &Event{
			Kind:      EventStatusUpdated,
			Room:      st.RoomID,
			MessageID: st.MessageID,
			Status:    store.MessageStatus(st.Status),
		})
	default:
		h.log.Warn().Str("kind", env.Kind).Msg("discard unknown relay envelope")
		return
	}
	h.metrics.Relayed()
}
