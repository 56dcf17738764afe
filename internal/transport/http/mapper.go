package http

import (
	"encoding/json"

	"github.com/vovakirdan/relaychat/internal/core"
	"github.com/vovakirdan/relaychat/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeAuthenticate:
		var auth proto.AuthenticateData
		if perr := decodeData(inbound.Data, &auth); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandAuthenticate, UserID: auth.UserID}, nil
	case proto.InboundTypeJoinRoom, proto.InboundTypeLeaveRoom, proto.InboundTypeMarkRead:
		var room proto.RoomData
		if perr := decodeData(inbound.Data, &room); perr != nil {
			return nil, perr
		}
		kind := core.CommandJoinRoom
		switch inbound.Type {
		case proto.InboundTypeLeaveRoom:
			kind = core.CommandLeaveRoom
		case proto.InboundTypeMarkRead:
			kind = core.CommandMarkRead
		}
		return &core.Command{Kind: kind, Room: room.RoomID}, nil
	case proto.InboundTypeSendMessage:
		var msg proto.SendMessageData
		if perr := decodeData(inbound.Data, &msg); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind: core.CommandSendMessage,
			Room: msg.RoomID,
			Send: core.SubmitRequest{
				ReceiverID:       msg.ReceiverID,
				RoomID:           msg.RoomID,
				Body:             msg.Message,
				CorrelationToken: msg.CorrelationToken,
			},
		}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown message type"}
	}
}

func decodeData(raw json.RawMessage, dst any) *proto.Error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed data"}
	}
	if err := proto.Validate(dst); err != nil {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: err.Error()}
	}
	return nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessageNew:
		m := event.Message
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data: proto.EventMessage{
				ID:               m.ID,
				SenderID:         m.SenderID,
				ReceiverID:       m.ReceiverID,
				RoomID:           m.RoomID,
				Message:          m.Body,
				Status:           string(m.Status),
				Timestamp:        m.CreatedAt.UnixMilli(),
				CorrelationToken: m.CorrelationToken,
			},
		}
	case core.EventStatusUpdated:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventStatusUpdate,
			Data: proto.EventStatus{
				MessageID: event.MessageID,
				RoomID:    event.Room,
				Status:    string(event.Status),
			},
		}
	case core.EventAuthenticated:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventAuthenticated,
			Data:  proto.EventAuthenticatedData{UserID: event.User, Username: event.Name},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
